// Package items implements the REST API handlers for monitored items.
package items

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ortelius/versionwatch/internal/checker"
	"github.com/ortelius/versionwatch/internal/enrichment"
	"github.com/ortelius/versionwatch/internal/logging"
	"github.com/ortelius/versionwatch/model"
	"go.uber.org/zap"
)

// Checker runs one version check.
type Checker interface {
	Check(ctx context.Context, itemKey string) (*model.CheckResult, error)
}

// Reader loads items and their history.
type Reader interface {
	GetItem(ctx context.Context, key string) (*model.MonitoredItem, error)
	ListVersionLogs(ctx context.Context, itemKey string, limit int) ([]*model.VersionLog, error)
}

// Enricher starts AI enrichment runs, each with its own quota.
type Enricher interface {
	NewRun(ctx context.Context, runID string) (enrichment.Run, error)
}

// CheckRequester queues a check for the background consumer.
type CheckRequester interface {
	RequestCheck(ctx context.Context, itemKey, requestedBy string) error
}

// Handlers groups the item endpoints and their collaborators. Provider may be nil when no
// AI provider is configured, Requests when Kafka is not.
type Handlers struct {
	Checker  Checker
	Requests CheckRequester
	Store    Reader
	Enricher Enricher
	Provider enrichment.Provider
	AIConfig enrichment.Config
	Logger   *zap.Logger
}

// CheckItem handles POST /api/v1/items/:key/check. With ?enqueue=true the check is handed
// to the Kafka consumer and the response is 202.
func (h *Handlers) CheckItem(c *fiber.Ctx) error {
	key := c.Params("key")
	if c.QueryBool("enqueue") {
		return h.enqueueCheck(c, key)
	}

	result, err := h.Checker.Check(c.UserContext(), key)
	if err != nil {
		status := statusFor(err)
		if status == fiber.StatusInternalServerError {
			h.Logger.Error("Version check failed", zap.String("item_key", key), logging.SafeError(err))
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"message": logging.RedactError(err),
		})
	}
	return c.JSON(result)
}

func (h *Handlers) enqueueCheck(c *fiber.Ctx, key string) error {
	if h.Requests == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "queued checks are not configured",
		})
	}
	if _, err := h.Store.GetItem(c.UserContext(), key); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"success": false,
			"message": logging.RedactError(err),
		})
	}
	if err := h.Requests.RequestCheck(c.UserContext(), key, "api"); err != nil {
		h.Logger.Error("Failed to queue check", zap.String("item_key", key), logging.SafeError(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "failed to queue check",
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":  true,
		"item_key": key,
	})
}

// History handles GET /api/v1/items/:key/history?limit=N.
func (h *Handlers) History(c *fiber.Ctx) error {
	key := c.Params("key")
	limit, err := strconv.Atoi(c.Query("limit", "0"))
	if err != nil || limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "limit must be a non-negative integer",
		})
	}

	if _, err := h.Store.GetItem(c.UserContext(), key); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"success": false,
			"message": logging.RedactError(err),
		})
	}

	logs, err := h.Store.ListVersionLogs(c.UserContext(), key, limit)
	if err != nil {
		h.Logger.Error("Failed to list version logs", zap.String("item_key", key), logging.SafeError(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "failed to load history",
		})
	}
	return c.JSON(logs)
}

// AIEnrichment handles POST /api/v1/items/:key/ai-enrichment?run_id=ID. Requests naming the
// same run share its quota; without run_id each request is a run of its own. It answers
// 204 when the analysis is absent (quota used up, provider failure or invalid output).
func (h *Handlers) AIEnrichment(c *fiber.Ctx) error {
	if h.Provider == nil || h.Enricher == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "AI enrichment is not configured",
		})
	}

	key := c.Params("key")
	item, err := h.Store.GetItem(c.UserContext(), key)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"success": false,
			"message": logging.RedactError(err),
		})
	}

	runID := c.Query("run_id")
	if runID == "" {
		runID = uuid.NewString()
	}
	run, err := h.Enricher.NewRun(c.UserContext(), runID)
	if err != nil {
		h.Logger.Error("Failed to start enrichment run", zap.String("run_id", runID), logging.SafeError(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "AI quota is unavailable",
		})
	}
	c.Set("X-Enrichment-Run", runID)

	result := run.Enrich(c.UserContext(), h.Provider, h.AIConfig, item)
	if result == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, checker.ErrConfiguration):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, checker.ErrNoSignal):
		return fiber.StatusBadGateway
	case errors.Is(err, model.ErrNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}
