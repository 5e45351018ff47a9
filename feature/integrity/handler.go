package integrity

import (
	"restore-manager/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for integrity checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the integrity routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/integrity")
	group.Get("/", h.HandleIntegrityCheck)
	group.Get("/bucket", h.HandleBucketCheck)
	group.Get("/store", h.HandleStoreCheck)
	group.Get("/backups", h.HandleBackupCheck)
}

// HandleIntegrityCheck triggers all integrity checks.
// @Summary Run All Integrity Checks
// @Description Checks the snapshot bucket, the local store schema and the local backups.
// @Tags integrity
// @Produce json
// @Success 200 {object} map[string]interface{} "Combined Report"
// @Router /integrity [get]
func (h *Handler) HandleIntegrityCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Triggering all integrity checks")
	return c.JSON(h.service.Run(c.Context()))
}

// HandleBucketCheck checks and optionally creates the snapshot bucket.
// @Summary Check Bucket
// @Tags integrity
// @Produce json
// @Param fix query boolean false "Create the bucket if missing"
// @Success 200 {object} checks.BucketReport
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/bucket [get]
func (h *Handler) HandleBucketCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	fix := c.Query("fix") == "true"

	report, err := h.service.CheckBucket(c.Context())
	if err != nil {
		l.Error("Bucket check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if !report.Exists && fix {
		l.Info("Attempting to create missing bucket")
		if err := h.service.FixBucket(c.Context()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "Failed to create bucket",
				"details": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "fixed", "bucket": report.Bucket})
	}

	return c.JSON(report)
}

// HandleStoreCheck checks the local store schema.
// @Summary Check Store Schema
// @Description Checks that the kv_entries table has the expected columns.
// @Tags integrity
// @Produce json
// @Success 200 {object} checks.StoreReport
// @Failure 404 {object} map[string]string "Store is not database backed"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/store [get]
func (h *Handler) HandleStoreCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	report, err := h.service.CheckStore()
	if err != nil {
		l.Error("Store check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if report == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "store is not database backed"})
	}
	return c.JSON(report)
}

// HandleBackupCheck checks local backups.
// @Summary Check Local Backups
// @Tags integrity
// @Produce json
// @Success 200 {object} checks.BackupReport
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/backups [get]
func (h *Handler) HandleBackupCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	report, err := h.service.CheckBackups(c.Context())
	if err != nil {
		l.Error("Backup check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}
