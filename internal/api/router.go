package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ozanardine/phanteon-rewards/internal/api/middleware"
	"github.com/ozanardine/phanteon-rewards/internal/auth"
	"github.com/ozanardine/phanteon-rewards/internal/config"
	"github.com/ozanardine/phanteon-rewards/internal/monitoring"
	"github.com/ozanardine/phanteon-rewards/internal/reconciler"
	"github.com/ozanardine/phanteon-rewards/internal/rewards"
	"github.com/ozanardine/phanteon-rewards/internal/usecase/claim"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	serverWriteTimeout = 30 * time.Second
	// Room left after the reconcile budget for one in-flight delivery to finish and the
	// response to be written.
	responseMargin     = 5 * time.Second
	minReconcileBudget = time.Second
)

type Router struct {
	engine     *gin.Engine
	server     *http.Server
	cfg        *config.Config
	claimUC    *claim.UseCase
	rewardSvc  *rewards.Service
	dispatcher *rewards.Dispatcher
	reconciler *reconciler.RewardReconciler
	probe      *monitoring.HealthProbe
	events     *monitoring.EventLog
	authMW     *auth.Middleware
	logger     *zap.Logger

	reconcileBudget time.Duration
}

func NewRouter(
	cfg *config.Config,
	claimUC *claim.UseCase,
	rewardSvc *rewards.Service,
	dispatcher *rewards.Dispatcher,
	rec *reconciler.RewardReconciler,
	probe *monitoring.HealthProbe,
	events *monitoring.EventLog,
	authMW *auth.Middleware,
	logger *zap.Logger,
) *Router {
	// Disable GIN default logger
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.Logger(logger))

	api := &Router{
		engine:     r,
		cfg:        cfg,
		claimUC:    claimUC,
		rewardSvc:  rewardSvc,
		dispatcher: dispatcher,
		reconciler: rec,
		probe:      probe,
		events:     events,
		authMW:     authMW,
		logger:     logger,

		reconcileBudget: reconcileBudget(cfg),
	}

	api.RegisterRoutes()
	return api
}

func (r *Router) RegisterRoutes() {
	// Liveness only; system health lives under /admin/health.
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rewardsGroup := r.engine.Group("/api/rewards")
	{
		rewardsGroup.POST("/reconcile", r.reconcileAuth(), r.Reconcile)

		player := rewardsGroup.Group("")
		player.Use(r.authMW.Handler())
		player.POST("/claim", r.ClaimReward)
		player.GET("/pending", r.ListPendingRewards)
		player.GET("/daily", r.GetDailyStatus)
	}

	admin := r.engine.Group("/admin")
	admin.Use(r.adminAuth())
	{
		admin.GET("/health", r.GetSystemHealth)
		admin.POST("/health/check", r.RunHealthCheck)
		admin.POST("/rewards/:id/retry", r.RetryReward)
		admin.GET("/events", r.ListEvents)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not_found"})
	})
}

// Handler exposes the engine for in-process callers and tests.
func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) Run() error {
	r.server = &http.Server{
		Addr:         ":" + r.cfg.Port,
		Handler:      r.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return r.server.ListenAndServe()
}

// reconcileBudget bounds a manual sweep so its answer is written before the server's
// write deadline. A delivery already handed to the channel runs past ctx for up to
// DeliveryTimeout, so that is subtracted too.
func reconcileBudget(cfg *config.Config) time.Duration {
	budget := serverWriteTimeout - cfg.DeliveryTimeout - responseMargin
	if budget < minReconcileBudget {
		return minReconcileBudget
	}
	return budget
}

func (r *Router) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(r.cfg.AdminAPIToken)
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "admin_token_not_configured"})
			return
		}

		provided := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if provided == "" {
			authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				provided = strings.TrimSpace(authHeader[7:])
			}
		}

		if !tokensMatch(provided, expected) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// reconcileAuth guards the scheduler-facing trigger with the shared X-API-Key.
func (r *Router) reconcileAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(r.cfg.ReconcileAPIKey)
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "reconcile_key_not_configured"})
			return
		}
		if !tokensMatch(strings.TrimSpace(c.GetHeader("X-API-Key")), expected) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func tokensMatch(provided, expected string) bool {
	return provided != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// Shutdown gracefully shuts down the HTTP server
func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
