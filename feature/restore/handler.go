package restore

import (
	"errors"
	"net/url"

	"restore-manager/core/logger"
	"restore-manager/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the restore flow.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// StartSessionRequest selects the cloud snapshot to restore from.
type StartSessionRequest struct {
	Path string `json:"path"`
}

// StrategyRequest selects the merge strategy.
type StrategyRequest struct {
	Strategy reconcile.Strategy `json:"strategy"`
}

// ContentRequest selects the collections to restore.
type ContentRequest struct {
	Flags map[reconcile.CollectionName]bool `json:"flags"`
}

// ChoiceRequest resolves one conflict.
type ChoiceRequest struct {
	Choice reconcile.Choice `json:"choice"`
}

// BatchChoiceRequest resolves several conflicts. All, when set, applies to
// every conflict before Choices.
type BatchChoiceRequest struct {
	Choices map[string]reconcile.Choice `json:"choices"`
	All     reconcile.Choice            `json:"all"`
}

// RegisterRoutes registers the restore routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/restore")
	group.Get("/snapshots", h.HandleListSnapshots)

	group.Post("/session", h.HandleStartSession)
	group.Get("/session", h.HandleGetSession)
	group.Delete("/session", h.HandleAbandonSession)
	group.Put("/session/strategy", h.HandleSelectStrategy)
	group.Put("/session/content", h.HandleSelectContent)
	group.Post("/session/back", h.HandleBack)
	group.Get("/session/cursor", h.HandleCurrentConflict)
	group.Put("/session/cursor", h.HandleSelectCurrent)
	group.Post("/session/cursor/next", h.HandleNextConflict)
	group.Post("/session/cursor/previous", h.HandlePreviousConflict)
	group.Get("/session/conflicts/:id", h.HandleGetConflict)
	group.Put("/session/conflicts/:id", h.HandleResolveConflict)
	group.Put("/session/conflicts", h.HandleResolveConflicts)
	group.Post("/session/merge", h.HandleMerge)
	group.Post("/session/apply", h.HandleApply)

	group.Post("/rollback", h.HandleRollback)
	group.Get("/backups", h.HandleListBackups)
	group.Post("/backups/cloud", h.HandleCloudBackup)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoSession),
		errors.Is(err, reconcile.ErrUnknownConflict),
		errors.Is(err, reconcile.ErrNoBackup):
		return fiber.StatusNotFound
	case errors.Is(err, ErrSessionBusy),
		errors.Is(err, reconcile.ErrInvalidTransition),
		errors.Is(err, reconcile.ErrIntegrity):
		return fiber.StatusConflict
	case errors.Is(err, reconcile.ErrInvalidSnapshot):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, reconcile.ErrInvalidChoice),
		errors.Is(err, reconcile.ErrInvalidOptions):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrFetchFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	l := logger.WithRayID(h.logger, c)
	if status >= fiber.StatusInternalServerError {
		l.Error("Restore request failed", zap.String("path", c.Path()), zap.Error(err))
	} else {
		l.Debug("Restore request rejected", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// HandleListSnapshots lists cloud snapshots.
// @Summary List Cloud Snapshots
// @Description Lists snapshot files in the cloud store, newest first.
// @Tags restore
// @Produce json
// @Success 200 {array} snapshot.FileInfo
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /restore/snapshots [get]
func (h *Handler) HandleListSnapshots(c *fiber.Ctx) error {
	files, err := h.service.ListSnapshots(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(files)
}

// HandleStartSession starts a restore session and computes the diff.
// @Summary Start Restore Session
// @Description Fetches a cloud snapshot and diffs it against local data. Replaces any idle session.
// @Tags restore
// @Accept json
// @Produce json
// @Param request body StartSessionRequest true "Snapshot path"
// @Success 201 {object} SessionView
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 502 {object} map[string]string "Cloud fetch failed"
// @Router /restore/session [post]
func (h *Handler) HandleStartSession(c *fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Path == "" {
		return badRequest(c, "path is required")
	}

	view, err := h.service.StartSession(c.Context(), req.Path)
	if err != nil {
		return h.fail(c, err)
	}
	logger.WithRayID(h.logger, c).Info("Restore session started", zap.String("session", view.ID))
	return c.Status(fiber.StatusCreated).JSON(view)
}

// HandleGetSession returns the active session.
// @Summary Get Restore Session
// @Tags restore
// @Produce json
// @Success 200 {object} SessionView
// @Failure 404 {object} map[string]string "No session"
// @Router /restore/session [get]
func (h *Handler) HandleGetSession(c *fiber.Ctx) error {
	view, err := h.service.Session()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

// HandleAbandonSession abandons the active session.
// @Summary Abandon Restore Session
// @Tags restore
// @Success 204
// @Failure 409 {object} map[string]string "Session is executing"
// @Router /restore/session [delete]
func (h *Handler) HandleAbandonSession(c *fiber.Ctx) error {
	if err := h.service.AbandonSession(); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleSelectStrategy selects the merge strategy.
// @Summary Select Strategy
// @Tags restore
// @Accept json
// @Produce json
// @Param request body StrategyRequest true "smart, local, cloud or manual"
// @Success 200 {object} SessionView
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 409 {object} map[string]string "Wrong step"
// @Router /restore/session/strategy [put]
func (h *Handler) HandleSelectStrategy(c *fiber.Ctx) error {
	var req StrategyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	view, err := h.service.SelectStrategy(req.Strategy)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

// HandleSelectContent selects the collections to restore.
// @Summary Select Content
// @Tags restore
// @Accept json
// @Produce json
// @Param request body ContentRequest true "Collection flags"
// @Success 200 {object} SessionView
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 409 {object} map[string]string "Wrong step"
// @Router /restore/session/content [put]
func (h *Handler) HandleSelectContent(c *fiber.Ctx) error {
	var req ContentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	view, err := h.service.SelectContent(req.Flags)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

// HandleBack returns to the previous wizard step.
// @Summary Previous Step
// @Tags restore
// @Produce json
// @Success 200 {object} SessionView
// @Failure 409 {object} map[string]string "No previous step"
// @Router /restore/session/back [post]
func (h *Handler) HandleBack(c *fiber.Ctx) error {
	view, err := h.service.Back()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

func conflictID(c *fiber.Ctx) string {
	id := c.Params("id")
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

// HandleGetConflict returns one conflict with a text preview.
// @Summary Get Conflict
// @Tags restore
// @Produce json
// @Param id path string true "collection:id or unique record id"
// @Success 200 {object} ConflictView
// @Failure 404 {object} map[string]string "Unknown conflict"
// @Router /restore/session/conflicts/{id} [get]
func (h *Handler) HandleGetConflict(c *fiber.Ctx) error {
	view, err := h.service.Conflict(conflictID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

// HandleResolveConflict records a choice for one conflict.
// @Summary Resolve Conflict
// @Tags restore
// @Accept json
// @Produce json
// @Param id path string true "collection:id or unique record id"
// @Param request body ChoiceRequest true "local, cloud or merge"
// @Success 200 {object} ConflictView
// @Failure 400 {object} map[string]string "Invalid choice"
// @Failure 404 {object} map[string]string "Unknown conflict"
// @Router /restore/session/conflicts/{id} [put]
func (h *Handler) HandleResolveConflict(c *fiber.Ctx) error {
	var req ChoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	view, err := h.service.ResolveConflict(conflictID(c), req.Choice)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

// HandleResolveConflicts records several choices at once.
// @Summary Resolve Conflicts
// @Tags restore
// @Accept json
// @Produce json
// @Param request body BatchChoiceRequest true "Choices"
// @Success 200 {object} map[string]string "Explicit resolutions"
// @Failure 400 {object} map[string]string "Invalid choice"
// @Router /restore/session/conflicts [put]
func (h *Handler) HandleResolveConflicts(c *fiber.Ctx) error {
	var req BatchChoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.All == "" && len(req.Choices) == 0 {
		return badRequest(c, "choices or all is required")
	}
	res, err := h.service.ResolveConflicts(req.Choices, req.All)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"resolutions": res})
}

// HandleCurrentConflict returns the conflict under the navigation cursor.
// @Summary Current Conflict
// @Tags restore
// @Produce json
// @Success 200 {object} ConflictView
// @Failure 404 {object} map[string]string "No conflicts"
// @Router /restore/session/cursor [get]
func (h *Handler) HandleCurrentConflict(c *fiber.Ctx) error {
	view, err := h.service.CurrentConflict()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

// HandleSelectCurrent stages a choice for the current conflict.
// @Summary Select Current Choice
// @Description The choice is recorded when the cursor moves.
// @Tags restore
// @Accept json
// @Produce json
// @Param request body ChoiceRequest true "local, cloud or merge"
// @Success 200 {object} ConflictView
// @Failure 400 {object} map[string]string "Invalid choice"
// @Router /restore/session/cursor [put]
func (h *Handler) HandleSelectCurrent(c *fiber.Ctx) error {
	var req ChoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	view, err := h.service.SelectCurrent(req.Choice)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

// HandleNextConflict records the staged choice and moves to the next conflict.
// @Summary Next Conflict
// @Tags restore
// @Produce json
// @Success 200 {object} map[string]interface{} "conflict and moved"
// @Router /restore/session/cursor/next [post]
func (h *Handler) HandleNextConflict(c *fiber.Ctx) error {
	view, moved, err := h.service.NextConflict()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"conflict": view, "moved": moved})
}

// HandlePreviousConflict records the staged choice and moves to the previous conflict.
// @Summary Previous Conflict
// @Tags restore
// @Produce json
// @Success 200 {object} map[string]interface{} "conflict and moved"
// @Router /restore/session/cursor/previous [post]
func (h *Handler) HandlePreviousConflict(c *fiber.Ctx) error {
	view, moved, err := h.service.PreviousConflict()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"conflict": view, "moved": moved})
}

// HandleMerge computes the merge preview.
// @Summary Compute Merge
// @Description Computes the merged dataset and summary without writing anything.
// @Tags restore
// @Produce json
// @Success 200 {object} reconcile.MergeResult
// @Failure 400 {object} map[string]string "Invalid options"
// @Failure 409 {object} map[string]string "Wrong step"
// @Router /restore/session/merge [post]
func (h *Handler) HandleMerge(c *fiber.Ctx) error {
	res, err := h.service.PrepareMerge()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(res)
}

// HandleApply applies the confirmed merge.
// @Summary Apply Merge
// @Description Backs up local data, writes the merged collections and verifies them.
// @Tags restore
// @Produce json
// @Success 200 {object} reconcile.ApplyResult
// @Failure 409 {object} map[string]string "Wrong step"
// @Failure 500 {object} map[string]interface{} "Apply failed"
// @Router /restore/session/apply [post]
func (h *Handler) HandleApply(c *fiber.Ctx) error {
	res, err := h.service.Apply(c.Context())
	if err != nil {
		if res == nil {
			return h.fail(c, err)
		}
		logger.WithRayID(h.logger, c).Error("Apply failed", zap.Error(err))
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error(), "result": res})
	}
	return c.JSON(res)
}

// HandleRollback restores the latest local backup.
// @Summary Rollback Last Apply
// @Tags restore
// @Produce json
// @Success 200 {object} reconcile.RollbackResult
// @Failure 404 {object} map[string]string "No backup"
// @Router /restore/rollback [post]
func (h *Handler) HandleRollback(c *fiber.Ctx) error {
	res, err := h.service.Rollback(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	logger.WithRayID(h.logger, c).Info("Rolled back", zap.String("backup", res.BackupKey))
	return c.JSON(res)
}

// HandleListBackups lists local backups.
// @Summary List Local Backups
// @Tags restore
// @Produce json
// @Success 200 {array} reconcile.BackupInfo
// @Router /restore/backups [get]
func (h *Handler) HandleListBackups(c *fiber.Ctx) error {
	backups, err := h.service.Backups(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(backups)
}

// HandleCloudBackup uploads local data to the cloud.
// @Summary Upload Local Data
// @Description Uploads the local collections as a new cloud snapshot and prunes old snapshots.
// @Tags restore
// @Produce json
// @Success 201 {object} CloudBackupResult
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /restore/backups/cloud [post]
func (h *Handler) HandleCloudBackup(c *fiber.Ctx) error {
	res, err := h.service.BackupToCloud(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}
