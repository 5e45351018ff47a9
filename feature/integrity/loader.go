package integrity

import (
	"restore-manager/core/reconcile"
	"restore-manager/core/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature wires the integrity checks into the HTTP app.
type Feature struct {
	service *Service
}

// NewFeature creates the integrity feature.
func NewFeature(client storage.Client, storageCfg storage.Config, db *gorm.DB, store reconcile.Store, applier *reconcile.Applier, logger *zap.Logger) *Feature {
	return &Feature{service: NewService(client, storageCfg, db, store, applier, logger)}
}

// Name returns the feature name.
func (f *Feature) Name() string {
	return "integrity"
}

// IsEnabled returns true if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the integrity routes.
func (f *Feature) Load(app fiber.Router) error {
	NewHandler(f.service).RegisterRoutes(app)
	return nil
}

// Service returns the underlying service.
func (f *Feature) Service() *Service {
	return f.service
}
