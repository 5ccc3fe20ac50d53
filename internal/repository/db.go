package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/timmy/producer-tools/internal/config"
	"github.com/timmy/producer-tools/internal/domain"
	applog "github.com/timmy/producer-tools/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
}

// InitDB opens the history database and migrates the conversion_jobs table.
// Parameters:
//   - cfg: database configuration including driver and connection settings.
//
// Returns:
//   - *gorm.DB: initialized database handle.
//   - error: non-nil if connection or migration fails.
func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		for _, pragma := range sqlitePragmas {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
			}
		}
	}
	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&domain.ConversionRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	applog.With(applog.Fields{
		applog.FieldComponent: "database",
		"driver":              cfg.Driver,
	}).Info(context.Background(), "Database initialized (auto_migrate=%t)", cfg.AutoMigrate)
	return db, nil
}

func openDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		// simple protocol keeps transaction poolers such as pgbouncer working
		return postgres.New(postgres.Config{
			DSN:                  cfg.DSN(),
			PreferSimpleProtocol: true,
		}), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); cfg.Path != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(cfg.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func configurePool(db *gorm.DB, cfg *config.DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}
