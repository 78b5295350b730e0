package testhelper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ozanardine/phanteon-rewards/pkg/db"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresContainer is a disposable Postgres for integration tests.
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	DSN       string
}

// SetupPostgres starts an empty Postgres 16 container.
func SetupPostgres(ctx context.Context) (*PostgresContainer, error) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("phanteon_test"),
		postgres.WithUsername("phanteon"),
		postgres.WithPassword("phanteon"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{Container: pgContainer, DSN: connStr}, nil
}

func (c *PostgresContainer) Teardown(ctx context.Context) error {
	return c.Container.Terminate(ctx)
}

// MigratedDB starts a container, applies the embedded migrations and returns a gorm
// handle. It skips under -short and terminates the container on cleanup.
func MigratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := SetupPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Teardown(context.Background()) })

	require.NoError(t, db.Migrate(container.DSN, "up", zap.NewNop()))

	gdb, err := gorm.Open(gormpostgres.Open(container.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gdb
}
