package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/ozanardine/phanteon-rewards/sql/migrations"
	"go.uber.org/zap"
)

// Migrate applies ("up") or rolls back ("down") the embedded schema migrations.
func Migrate(dsn, command string, logger *zap.Logger) error {
	if command == "" {
		command = "up"
	}

	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration files: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, dsn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("migration_no_change")
			return nil
		}
		if err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("migration_up_applied")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("migration_down_applied")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}

	return nil
}
