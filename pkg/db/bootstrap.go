package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/ozanardine/phanteon-rewards/internal/config"
	"go.uber.org/zap"
)

const maintenanceDB = "postgres"

// EnsureDatabase creates the configured database when it does not exist yet.
// It connects through the maintenance database, so the configured user needs CREATEDB.
func EnsureDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	conn, err := pgx.Connect(ctx, cfg.DSNFor(maintenanceDB))
	if err != nil {
		return fmt.Errorf("failed to connect to maintenance db: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname=$1)", cfg.DBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check db existence: %w", err)
	}
	if exists {
		return nil
	}

	// Identifiers cannot be bound as parameters.
	query := "CREATE DATABASE " + pgx.Identifier{cfg.DBName}.Sanitize()
	if _, err := conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	logger.Info("database_created", zap.String("db_name", cfg.DBName))
	return nil
}
