package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
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
	"github.com/ozanardine/phanteon-rewards/pkg/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	jwtSecret    = "test-secret"
	adminToken   = "admin-token"
	reconcileKey = "reconcile-key"
)

type directory struct {
	users map[string]*user.User
}

func (d *directory) FindByDiscordID(ctx context.Context, discordID string) (*user.User, error) {
	return d.users[discordID], nil
}

func (d *directory) VIPTier(ctx context.Context, userID int64, now time.Time) (string, error) {
	return user.TierNone, nil
}

type sequence struct{ n atomic.Int64 }

func (s *sequence) GenerateID() int64 { return s.n.Add(1) }

type fixture struct {
	router  *Router
	store   *testhelper.RewardStore
	system  *testhelper.SystemStore
	channel *testhelper.MockChannel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Port:                "0",
		Environment:         "test",
		AuthJWTSecret:       jwtSecret,
		AdminAPIToken:       adminToken,
		ReconcileAPIKey:     reconcileKey,
		GameServerID:        "main",
		DeliveryMaxAttempts: 1,
		DeliveryTimeout:     time.Second,
		RewardQueueSize:     8,
		RewardWorkers:       1,
		RewardOrphanAfter:   time.Minute,
		RewardPollInterval:  time.Minute,
		ClaimCooldown:       20 * time.Hour,
		ReconcileInterval:   time.Hour,
		ReconcileStaleAge:   3 * time.Hour,
		HealthInterval:      time.Hour,
	}
	logger := zap.NewNop()

	steam := "76561198000000042"
	users := &directory{users: map[string]*user.User{
		"discord-1": {ID: 1, DiscordID: "discord-1", SteamID: &steam},
		"discord-2": {ID: 2, DiscordID: "discord-2"},
	}}

	store := testhelper.NewRewardStore(time.Now)
	sys := testhelper.NewSystemStore()
	channel := &testhelper.MockChannel{}

	events := monitoring.NewEventLog(sys, monitoring.NewAlertDispatcher(logger), cfg, logger)
	svc := rewards.NewService(store, channel, events, cfg, logger)
	dispatcher := rewards.NewDispatcher(svc, store, cfg, logger)
	probe := monitoring.NewHealthProbe(sys, store, channel, events, cfg, logger)
	rec := reconciler.NewRewardReconciler(store, svc, probe, events, cfg, logger)
	claimUC := claim.NewUseCase(users, store, dispatcher, &sequence{}, cfg, logger)

	return &fixture{
		router:  NewRouter(cfg, claimUC, svc, dispatcher, rec, probe, events, auth.NewMiddleware(cfg), logger),
		store:   store,
		system:  sys,
		channel: channel,
	}
}

func bearer(t *testing.T, discordID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"discord_id": discordID,
		"exp":        time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func (f *fixture) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestClaim_AcceptsThenEnforcesCooldown(t *testing.T) {
	f := newFixture(t)
	hdr := map[string]string{"Authorization": bearer(t, "discord-1")}

	w := f.do(http.MethodPost, "/api/rewards/claim", payload{"day": 1}, hdr)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["rewardId"])
	assert.NotEmpty(t, body["nextClaimTime"])
	assert.Len(t, f.store.Claims(), 1)

	w = f.do(http.MethodPost, "/api/rewards/claim", payload{"day": 2}, hdr)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body = decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.EqualValues(t, 20, body["hoursToWait"])
	assert.Contains(t, body["message"], "20 hour")
	assert.Len(t, f.store.Claims(), 1)
}

func TestClaim_Rejections(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name      string
		discordID string
		body      any
		status    int
	}{
		{"day out of range", "discord-1", payload{"day": 8}, http.StatusBadRequest},
		{"missing day", "discord-1", payload{}, http.StatusBadRequest},
		{"no steam id", "discord-2", payload{"day": 1}, http.StatusBadRequest},
		{"unknown user", "discord-404", payload{"day": 1}, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/rewards/claim", tc.body, map[string]string{"Authorization": bearer(t, tc.discordID)})
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, false, decode(t, w)["success"])
		})
	}
	assert.Empty(t, f.store.Claims())
}

func TestClaim_RequiresToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/rewards/claim", payload{"day": 1}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/rewards/claim", payload{"day": 1}, map[string]string{"Authorization": "Bearer nonsense"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaim_StoreOutageIsServiceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.CreateErr = fmt.Errorf("insert: %w", system.ErrStoreUnavailable)

	w := f.do(http.MethodPost, "/api/rewards/claim", payload{"day": 1}, map[string]string{"Authorization": bearer(t, "discord-1")})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Len(t, f.system.EventsOfType(system.EventAPIError), 1)
}

func TestClaim_UnexpectedErrorIsLogged(t *testing.T) {
	f := newFixture(t)
	f.store.CreateErr = errors.New("constraint violated")

	w := f.do(http.MethodPost, "/api/rewards/claim", payload{"day": 1}, map[string]string{"Authorization": bearer(t, "discord-1")})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	events := f.system.EventsOfType(system.EventAPIError)
	require.Len(t, events, 1)
	assert.Equal(t, "/api/rewards/claim", events[0].Data["path"])
}

func TestPendingRewards(t *testing.T) {
	f := newFixture(t)
	hdr := map[string]string{"Authorization": bearer(t, "discord-1")}
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/rewards/claim", payload{"day": 3}, hdr).Code)

	w := f.do(http.MethodGet, "/api/rewards/pending", nil, hdr)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	items, ok := body["rewards"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.EqualValues(t, 3, items[0].(map[string]any)["day"])

	w = f.do(http.MethodGet, "/api/rewards/pending", nil, map[string]string{"Authorization": bearer(t, "discord-2")})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["rewards"])
}

func TestDailyStatus(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/rewards/daily", nil, map[string]string{"Authorization": bearer(t, "discord-1")})

	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 1, data["nextDay"])
	assert.Equal(t, true, data["canClaim"])
	assert.Len(t, data["rewards"], 7)
}

func TestReconcile_RequiresKey(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/rewards/reconcile", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/rewards/reconcile", nil, map[string]string{"X-API-Key": "wrong"}).Code)
}

func TestReconcile_DeliversStuckRewards(t *testing.T) {
	f := newFixture(t)
	old := time.Now().Add(-4 * time.Hour)
	f.store.Put(&reward.PendingReward{ID: 10, UserID: 1, SteamID: "s", Day: 1, Status: reward.StatusPending, RequestedAt: old, CreatedAt: old, UpdatedAt: old})

	w := f.do(http.MethodPost, "/api/rewards/reconcile", nil, map[string]string{"X-API-Key": reconcileKey})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 1, body["fixed"])
	assert.EqualValues(t, 0, body["failed"])
	assert.Equal(t, reward.StatusProcessed, f.store.Get(10).Status)
	assert.Equal(t, 1, f.channel.CallCount())
}

func TestReconcile_SkippedWhenCritical(t *testing.T) {
	f := newFixture(t)
	f.store.CountErr = errors.New("relation does not exist")

	w := f.do(http.MethodPost, "/api/rewards/reconcile", nil, map[string]string{"X-API-Key": reconcileKey})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "system_critical", decode(t, w)["error"])
}

func TestReconcile_SlowChannelReturnsPartialTallyWithinBudget(t *testing.T) {
	f := newFixture(t)
	f.router.reconcileBudget = 450 * time.Millisecond
	f.channel.OnDeliver = func(delivery.Request) { time.Sleep(300 * time.Millisecond) }
	old := time.Now().Add(-4 * time.Hour)
	for id := int64(30); id <= 32; id++ {
		f.store.Put(&reward.PendingReward{ID: id, UserID: 1, SteamID: "s", Day: 1, Status: reward.StatusPending, RequestedAt: old, CreatedAt: old, UpdatedAt: old})
	}

	start := time.Now()
	w := f.do(http.MethodPost, "/api/rewards/reconcile", nil, map[string]string{"X-API-Key": reconcileKey})
	elapsed := time.Since(start)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 2, body["fixed"])
	assert.Equal(t, true, body["partial"])
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, reward.StatusPending, f.store.Get(32).Status)
}

func TestReconcileBudget(t *testing.T) {
	assert.Equal(t, 15*time.Second, reconcileBudget(&config.Config{DeliveryTimeout: 10 * time.Second}))
	assert.Equal(t, minReconcileBudget, reconcileBudget(&config.Config{DeliveryTimeout: time.Minute}))
}

func TestAdmin_RequiresToken(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/admin/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/admin/health", nil, map[string]string{"X-Admin-Token": adminToken}).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/admin/health", nil, map[string]string{"Authorization": "Bearer " + adminToken}).Code)
}

func TestAdmin_HealthCheckStoresSnapshot(t *testing.T) {
	f := newFixture(t)
	admin := map[string]string{"X-Admin-Token": adminToken}

	w := f.do(http.MethodPost, "/admin/health/check", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(system.HealthHealthy), decode(t, w)["data"].(map[string]any)["status"])

	snap, err := f.system.GetSnapshot(context.Background(), system.SnapshotLatest)
	require.NoError(t, err)
	require.NotNil(t, snap)
}

func TestAdmin_RetryReward(t *testing.T) {
	f := newFixture(t)
	admin := map[string]string{"X-Admin-Token": adminToken}
	now := time.Now()
	f.store.Put(&reward.PendingReward{ID: 20, UserID: 1, SteamID: "s", Day: 1, Status: reward.StatusFailed, LastError: "boom", RequestedAt: now, CreatedAt: now, UpdatedAt: now})
	f.store.Put(&reward.PendingReward{ID: 21, UserID: 1, SteamID: "s", Day: 1, Status: reward.StatusProcessed, RequestedAt: now, CreatedAt: now, UpdatedAt: now})

	w := f.do(http.MethodPost, "/admin/rewards/20/retry", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["enqueued"])
	assert.Equal(t, reward.StatusPending, f.store.Get(20).Status)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/admin/rewards/21/retry", nil, admin).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/admin/rewards/99/retry", nil, admin).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/admin/rewards/abc/retry", nil, admin).Code)
}

func TestAdmin_ListEvents(t *testing.T) {
	f := newFixture(t)
	admin := map[string]string{"X-Admin-Token": adminToken}
	f.store.CreateErr = errors.New("boom")
	f.do(http.MethodPost, "/api/rewards/claim", payload{"day": 1}, map[string]string{"Authorization": bearer(t, "discord-1")})

	w := f.do(http.MethodGet, "/admin/events?type=api_error&limit=500", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/admin/events?limit=-1", nil, admin).Code)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/nope", nil, nil).Code)
}

type payload = map[string]any
