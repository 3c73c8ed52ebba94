package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/video-assignment-service/internal/api/dto"
	"github.com/spec-kit/video-assignment-service/internal/service"
	"github.com/spec-kit/video-assignment-service/internal/worker"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

const defaultExpiredListLimit = 100

// SweepRunner runs one reclaim pass through the scheduler's single-flight guard.
type SweepRunner interface {
	RunOnce(ctx context.Context) (*service.SweepReport, error)
}

// ReclaimHandler exposes expired-assignment monitoring and manual reclaim.
type ReclaimHandler struct {
	reclaim *service.ReclaimService
	sweeps  SweepRunner
	now     Clock
}

// NewReclaimHandler constructs handler.
func NewReclaimHandler(reclaim *service.ReclaimService, sweeps SweepRunner, clock Clock) *ReclaimHandler {
	return &ReclaimHandler{reclaim: reclaim, sweeps: sweeps, now: orSystemClock(clock)}
}

// Expired GET /admin/reclaim/expired?timeout=15m&limit=100.
func (h *ReclaimHandler) Expired(c *fiber.Ctx) error {
	timeout := h.reclaim.Timeout()
	if raw := c.Query("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return apperrors.NewValidationError("invalid timeout", map[string]any{"timeout": raw})
		}
		timeout = parsed
	}
	now := h.now()
	ctx := c.UserContext()

	count, err := h.reclaim.CountExpired(ctx, timeout, now)
	if err != nil {
		return err
	}
	videos, err := h.reclaim.ListExpired(ctx, timeout, now, parseIntQuery(c, "limit", defaultExpiredListLimit))
	if err != nil {
		return err
	}
	resp := dto.ExpiredResponse{
		Count:          count,
		TimeoutSeconds: int64(timeout / time.Second),
		Videos:         make([]dto.VideoResponse, 0, len(videos)),
	}
	for i := range videos {
		resp.Videos = append(resp.Videos, videoResponse(&videos[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// ReclaimVideo POST /admin/reclaim/videos/:id.
func (h *ReclaimHandler) ReclaimVideo(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	video, err := h.reclaim.ReclaimOne(c.UserContext(), c.Params("id"), principal.Actor(), h.reclaim.Timeout(), h.now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": videoResponse(video)})
}

// Sweep POST /admin/reclaim/sweep.
func (h *ReclaimHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.sweeps.RunOnce(c.UserContext())
	switch {
	case errors.Is(err, worker.ErrSweepInFlight):
		return apperrors.NewConcurrencyConflict("a sweep is already running", err)
	case errors.Is(err, worker.ErrStopped):
		return apperrors.NewDomainError("SCHEDULER_STOPPED", "reclaim scheduler is shutting down", fiber.StatusServiceUnavailable, nil)
	case err != nil:
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
