package integrity

import (
	"context"

	"restore-manager/core/kvstore"
	"restore-manager/core/reconcile"
	"restore-manager/core/storage"
	"restore-manager/feature/integrity/checks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service handles integrity checks.
type Service struct {
	client     storage.Client
	storageCfg storage.Config
	db         *gorm.DB
	store      reconcile.Store
	applier    *reconcile.Applier
	logger     *zap.Logger
}

// NewService creates a new integrity service. db may be nil when the local
// store is not database backed.
func NewService(client storage.Client, storageCfg storage.Config, db *gorm.DB, store reconcile.Store, applier *reconcile.Applier, logger *zap.Logger) *Service {
	return &Service{
		client:     client,
		storageCfg: storageCfg,
		db:         db,
		store:      store,
		applier:    applier,
		logger:     logger,
	}
}

// CheckBucket reports on the cloud snapshot bucket.
func (s *Service) CheckBucket(ctx context.Context) (*checks.BucketReport, error) {
	return checks.CheckBucket(ctx, s.client, s.storageCfg.Bucket, s.storageCfg.Prefix)
}

// FixBucket creates the bucket if it is missing.
func (s *Service) FixBucket(ctx context.Context) error {
	return checks.FixBucket(ctx, s.client, s.storageCfg.Bucket, s.storageCfg.Region, s.logger)
}

// CheckStore reports on the kv_entries schema. It returns nil without a database.
func (s *Service) CheckStore() (*checks.StoreReport, error) {
	if s.db == nil {
		return nil, nil
	}
	return checks.CheckStoreSchema(s.db, kvstore.TableName, kvstore.Columns)
}

// CheckBackups reports on local backups.
func (s *Service) CheckBackups(ctx context.Context) (*checks.BackupReport, error) {
	return checks.CheckBackups(ctx, s.store, s.applier)
}

// Run executes every check and collects the results by name.
func (s *Service) Run(ctx context.Context) map[string]interface{} {
	report := make(map[string]interface{})

	if r, err := s.CheckBucket(ctx); err != nil {
		report["bucket"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		report["bucket"] = r
	}

	if r, err := s.CheckStore(); err != nil {
		report["store"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else if r == nil {
		report["store"] = map[string]interface{}{"status": "skipped"}
	} else {
		report["store"] = r
	}

	if r, err := s.CheckBackups(ctx); err != nil {
		report["backups"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		report["backups"] = r
	}

	return report
}
