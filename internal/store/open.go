package store

import (
	"context"
	"fmt"

	"github.com/huangang/codecollab/backend/internal/config"
	"github.com/huangang/codecollab/backend/internal/models"
	"gorm.io/gorm/logger"
)

// Open connects the store selected by cfg.Driver. Relational drivers are
// migrated before returning.
func Open(ctx context.Context, cfg *config.DatabaseConfig, logLevel logger.LogLevel) (Store, error) {
	if cfg.Driver == "mongo" {
		return ConnectMongo(ctx, cfg.DSN, cfg.Name)
	}

	db, err := models.OpenDB(cfg, logLevel)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// sqlite serializes writers; one connection avoids "database is locked".
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := models.AutoMigrate(db); err != nil {
		_ = models.CloseDB(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return NewGormStore(db), nil
}
