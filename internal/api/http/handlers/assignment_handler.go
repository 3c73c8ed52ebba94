package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/video-assignment-service/internal/api/dto"
	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/service"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

// AssignmentHandler exposes claiming, admin assignment and lifecycle transitions.
type AssignmentHandler struct {
	assignment *service.AssignmentService
	workload   *service.WorkloadService
	now        Clock
}

// NewAssignmentHandler constructs handler.
func NewAssignmentHandler(assignment *service.AssignmentService, workload *service.WorkloadService, clock Clock) *AssignmentHandler {
	return &AssignmentHandler{assignment: assignment, workload: workload, now: orSystemClock(clock)}
}

// Claim POST /staff/videos/:id/claim.
func (h *AssignmentHandler) Claim(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	video, err := h.assignment.TryAssign(c.UserContext(), c.Params("id"), principal.StaffID, principal.Actor(), h.now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": videoResponse(video)})
}

// MyWorkload GET /staff/me/workload.
func (h *AssignmentHandler) MyWorkload(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	return h.renderWorkload(c, principal.StaffID)
}

// StaffWorkload GET /admin/staff/:id/workload.
func (h *AssignmentHandler) StaffWorkload(c *fiber.Ctx) error {
	return h.renderWorkload(c, c.Params("id"))
}

func (h *AssignmentHandler) renderWorkload(c *fiber.Ctx, staffID string) error {
	snapshot, err := h.workload.Snapshot(c.UserContext(), staffID, h.now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workloadResponse(snapshot)})
}

// Assign POST /admin/videos/:id/assign.
func (h *AssignmentHandler) Assign(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.StaffID == "" {
		return apperrors.NewValidationError("staff_id required", nil)
	}
	video, err := h.assignment.TryAssign(c.UserContext(), c.Params("id"), req.StaffID, principal.Actor(), h.now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": videoResponse(video)})
}

type transitionFunc func(ctx context.Context, videoID string, actor domain.Actor, now time.Time) (*domain.Video, error)

func (h *AssignmentHandler) transition(fn transitionFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, err := requirePrincipal(c)
		if err != nil {
			return err
		}
		video, err := fn(c.UserContext(), c.Params("id"), principal.Actor(), h.now())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": videoResponse(video)})
	}
}

// Unassign POST /admin/videos/:id/unassign.
func (h *AssignmentHandler) Unassign(c *fiber.Ctx) error {
	return h.transition(h.assignment.ForceUnassign)(c)
}

// Complete POST /admin/videos/:id/complete.
func (h *AssignmentHandler) Complete(c *fiber.Ctx) error {
	return h.transition(h.assignment.Complete)(c)
}

// FlagRevision POST /admin/videos/:id/revision.
func (h *AssignmentHandler) FlagRevision(c *fiber.Ctx) error {
	return h.transition(h.assignment.FlagRevision)(c)
}

// CompleteRevision POST /admin/videos/:id/revision/complete.
func (h *AssignmentHandler) CompleteRevision(c *fiber.Ctx) error {
	return h.transition(h.assignment.CompleteRevision)(c)
}

// Cancel POST /admin/videos/:id/cancel.
func (h *AssignmentHandler) Cancel(c *fiber.Ctx) error {
	return h.transition(h.assignment.Cancel)(c)
}
