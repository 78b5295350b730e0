package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	gameserverAdapter "github.com/ozanardine/phanteon-rewards/internal/adapter/delivery/gameserver"
	"github.com/ozanardine/phanteon-rewards/internal/adapter/delivery/stub"
	"github.com/ozanardine/phanteon-rewards/internal/adapter/repository/postgres"
	"github.com/ozanardine/phanteon-rewards/internal/api"
	"github.com/ozanardine/phanteon-rewards/internal/auth"
	"github.com/ozanardine/phanteon-rewards/internal/config"
	"github.com/ozanardine/phanteon-rewards/internal/domain/delivery"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"github.com/ozanardine/phanteon-rewards/internal/monitoring"
	"github.com/ozanardine/phanteon-rewards/internal/reconciler"
	"github.com/ozanardine/phanteon-rewards/internal/rewards"
	"github.com/ozanardine/phanteon-rewards/internal/usecase/claim"
	"github.com/ozanardine/phanteon-rewards/internal/user"
	"github.com/ozanardine/phanteon-rewards/pkg/db"
	"github.com/ozanardine/phanteon-rewards/pkg/gameserver"
	zaplog "github.com/ozanardine/phanteon-rewards/pkg/log"
	"github.com/ozanardine/phanteon-rewards/pkg/snowflake"
)

const oneShotTimeout = 5 * time.Minute

// core wires everything except the HTTP router and background loops.
func core() fx.Option {
	return fx.Options(
		fx.Provide(
			// Config
			config.Load,

			// Domain Adapters (Bind Interfaces)
			fx.Annotate(
				postgres.NewRewardRepository,
				fx.As(new(reward.Repository)),
			),
			fx.Annotate(
				postgres.NewSystemRepository,
				fx.As(new(system.Repository)),
			),
			newDeliveryChannel,

			// Monitoring
			newAlertDispatcher,
			fx.Annotate(
				monitoring.NewEventLog,
				fx.As(fx.Self()),
				fx.As(new(monitoring.EventLogger)),
			),
			monitoring.NewHealthProbe,

			// Delivery engine
			rewards.NewService,
			rewards.NewDispatcher,
			reconciler.NewRewardReconciler,

			// Use Cases
			user.NewService,
			newClaimUseCase,
		),
		db.Module,        // Database Module
		snowflake.Module, // Snowflake ID Module
		zaplog.Module,    // Logger Module
		zaplog.WithFxLogger,
	)
}

// RunServer starts the HTTP server and background workers.
func RunServer() {
	app := fx.New(
		core(),
		fx.Provide(
			auth.NewMiddleware,
			api.NewRouter,
		),
		fx.Invoke(registerHooks),
	)

	app.Run()
}

// RunMigrations executes database migrations (up or down), optionally creating the
// database first.
func RunMigrations(command string, createDB bool) error {
	cfg := config.Load()
	logger, err := zaplog.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("migration_started", zap.String("command", command))

	if createDB {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.EnsureDatabase(ctx, cfg, logger); err != nil {
			return err
		}
	}

	return db.Migrate(cfg.DSN(), command, logger)
}

// RunReconcile performs one reconciliation sweep and returns its tally.
func RunReconcile() (reconciler.Result, error) {
	var (
		rec    *reconciler.RewardReconciler
		result reconciler.Result
	)
	err := runOnce(fx.Populate(&rec), func(ctx context.Context) error {
		var err error
		result, err = rec.Sweep(ctx)
		return err
	})
	return result, err
}

// RunHealthCheck probes the system once and stores the snapshot.
func RunHealthCheck() (*system.StatusSnapshot, error) {
	var (
		probe    *monitoring.HealthProbe
		snapshot *system.StatusSnapshot
	)
	err := runOnce(fx.Populate(&probe), func(ctx context.Context) error {
		snapshot = probe.Check(ctx)
		return nil
	})
	return snapshot, err
}

func runOnce(populate fx.Option, fn func(ctx context.Context) error) error {
	app := fx.New(core(), populate)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), oneShotTimeout)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	return errors.Join(runErr, app.Stop(stopCtx))
}

// newDeliveryChannel selects the game server client, or the logging stub when no
// game server is configured.
func newDeliveryChannel(cfg *config.Config, logger *zap.Logger) (delivery.Channel, monitoring.Pinger) {
	if cfg.GameServerURL == "" {
		logger.Warn("game_server_not_configured", zap.String("channel", "stub"))
		ch := stub.NewAdapter(logger)
		return ch, ch
	}
	ch := gameserverAdapter.NewAdapter(gameserver.New(gameserver.FromAppConfig(cfg)))
	return ch, ch
}

func newAlertDispatcher(cfg *config.Config, logger *zap.Logger) *monitoring.AlertDispatcher {
	alerts := monitoring.NewAlertDispatcher(logger)
	alerts.RegisterHandler(monitoring.NewLogHandler(logger))
	if cfg.AlertWebhookURL != "" {
		alerts.RegisterHandler(monitoring.NewWebhookHandler(cfg.AlertWebhookURL, cfg.Environment, cfg.AlertWebhookTimeout))
	}
	return alerts
}

func newClaimUseCase(users *user.Service, repo reward.Repository, dispatcher *rewards.Dispatcher, node *snowflake.Node, cfg *config.Config, logger *zap.Logger) *claim.UseCase {
	return claim.NewUseCase(users, repo, dispatcher, node, cfg, logger)
}

func registerHooks(lc fx.Lifecycle, cfg *config.Config, router *api.Router, dispatcher *rewards.Dispatcher, rewardReconciler *reconciler.RewardReconciler, probe *monitoring.HealthProbe, logger *zap.Logger) {
	var (
		dispatcherCancel context.CancelFunc
		reconcilerCancel context.CancelFunc
		probeCancel      context.CancelFunc
		dispatcherDone   = make(chan struct{})
	)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("port", cfg.Port))

			dispatcherCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			dispatcherCancel = cancel
			go func() {
				defer close(dispatcherDone)
				dispatcher.Run(dispatcherCtx)
			}()

			reconcilerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			reconcilerCancel = cancel
			go rewardReconciler.Run(reconcilerCtx)

			probeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			probeCancel = cancel
			go probe.Run(probeCtx)

			go func() {
				if err := router.Run(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed to start", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server gracefully...")

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			// Stop accepting claims before the workers drain.
			if err := router.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
			}

			if probeCancel != nil {
				probeCancel()
			}
			if reconcilerCancel != nil {
				reconcilerCancel()
			}
			if dispatcherCancel != nil {
				dispatcherCancel()
				select {
				case <-dispatcherDone:
				case <-shutdownCtx.Done():
					return fmt.Errorf("reward workers did not drain: %w", shutdownCtx.Err())
				}
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		},
	})
}
