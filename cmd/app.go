package cmd

import (
	"context"
	"fmt"
	"time"

	"restore-manager/core/config"
	"restore-manager/core/database"
	"restore-manager/core/kvstore"
	"restore-manager/core/logger"
	"restore-manager/core/reconcile"
	"restore-manager/core/snapshot"
	"restore-manager/core/storage"
	"restore-manager/feature/restore"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app bundles the dependencies shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	client  storage.Client
	store   kvstore.Store
	applier *reconcile.Applier
	source  *snapshot.Source
	cache   *snapshot.Cache
}

// bootstrap loads configuration and builds the store, storage and engine.
// The database connection is optional unless the database store is selected.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Restore.IsValidStoreDriver() {
		return nil, fmt.Errorf("invalid restore store driver %q", cfg.Restore.StoreDriver)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logg}

	if conn, err := database.Connect(cfg.Database); err != nil {
		if cfg.Restore.StoreDriver == config.StoreDriverDatabase {
			return nil, fmt.Errorf("database connection required: %w", err)
		}
		logg.Warn("Optional database connection failed", zap.Error(err))
	} else {
		a.db = conn
		logg.Info("Connected to database", zap.String("driver", cfg.Database.Driver))
	}

	a.store, err = kvstore.New(ctx, cfg.Restore, a.db, logg)
	if err != nil {
		return nil, fmt.Errorf("failed to create local store: %w", err)
	}

	a.client, err = storage.NewClient(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	a.applier = reconcile.NewApplier(a.store, logg, cfg.Restore.BackupRetention)
	a.source = snapshot.NewSource(a.client, cfg.Storage, logg)
	a.cache = snapshot.NewCache(a.source, time.Duration(cfg.Restore.CacheTTLSeconds)*time.Second)
	return a, nil
}

func (a *app) restoreService() *restore.Service {
	return restore.NewService(a.source, a.cache, a.store, a.applier, a.cfg.Restore.CloudRetention, a.logger)
}
