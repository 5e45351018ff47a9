package kvstore

import (
	"context"
	"fmt"

	"restore-manager/core/config"
	"restore-manager/core/reconcile"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the key-value contract the restore engine reads and writes.
type Store = reconcile.Store

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// New builds the store selected by the restore configuration. db is only used
// by the database driver and may be nil otherwise.
func New(ctx context.Context, cfg config.RestoreConfig, db *gorm.DB, logger *zap.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverDatabase:
		if db == nil {
			return nil, fmt.Errorf("database store requires a database connection")
		}
		s := NewGormStore(db)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		logger.Debug("Using database store")
		return s, nil
	case config.StoreDriverFile:
		s, err := NewFileStore(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		logger.Debug("Using file store", zap.String("path", cfg.StorePath))
		return s, nil
	case config.StoreDriverMemory:
		logger.Warn("Using in-memory store; changes are lost on exit")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
