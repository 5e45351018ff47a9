package restore

import (
	"restore-manager/core/reconcile"
	"restore-manager/core/snapshot"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature wires the restore service into the HTTP app.
type Feature struct {
	service *Service
	logger  *zap.Logger
}

// NewFeature creates the restore feature.
func NewFeature(source CloudSource, fetcher snapshot.Fetcher, store reconcile.Store, applier *reconcile.Applier, cloudRetention int, logger *zap.Logger) *Feature {
	return &Feature{
		service: NewService(source, fetcher, store, applier, cloudRetention, logger),
		logger:  logger,
	}
}

// Name returns the feature name.
func (f *Feature) Name() string {
	return "restore"
}

// IsEnabled returns true if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the restore routes.
func (f *Feature) Load(app fiber.Router) error {
	NewHandler(f.service, f.logger).RegisterRoutes(app)
	return nil
}

// Service returns the underlying service.
func (f *Feature) Service() *Service {
	return f.service
}
