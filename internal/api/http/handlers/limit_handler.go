package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/video-assignment-service/internal/api/dto"
	"github.com/spec-kit/video-assignment-service/internal/service"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

// StaffLimitHandler manages temporary locks and quota windows.
type StaffLimitHandler struct {
	limits *service.StaffLimitService
	now    Clock
}

// NewStaffLimitHandler constructs handler.
func NewStaffLimitHandler(limits *service.StaffLimitService, clock Clock) *StaffLimitHandler {
	return &StaffLimitHandler{limits: limits, now: orSystemClock(clock)}
}

// SetLimit PUT /admin/staff/:id/limit.
func (h *StaffLimitHandler) SetLimit(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.StaffLimitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.LockUntil == nil {
		return apperrors.NewValidationError("lock_until required", nil)
	}
	now := h.now()
	limit, err := h.limits.SetLimit(c.UserContext(), c.Params("id"), *req.LockUntil, req.MaxPerDay, principal.Actor(), now)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": limitResponse(limit, now)})
}

// RemoveLimit DELETE /admin/staff/:id/limit.
func (h *StaffLimitHandler) RemoveLimit(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.limits.RemoveLimit(c.UserContext(), c.Params("id"), principal.Actor(), h.now()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListLimits GET /admin/staff/limits.
func (h *StaffLimitHandler) ListLimits(c *fiber.Ctx) error {
	now := h.now()
	limits, err := h.limits.ActiveLimits(c.UserContext(), now)
	if err != nil {
		return err
	}
	resp := make([]dto.StaffLimitResponse, 0, len(limits))
	for i := range limits {
		resp = append(resp, limitResponse(&limits[i], now))
	}
	return c.JSON(fiber.Map{"data": resp})
}
