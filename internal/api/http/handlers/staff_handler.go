package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/video-assignment-service/internal/api/dto"
	"github.com/spec-kit/video-assignment-service/internal/service"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

// StaffHandler maintains the local staff directory used for supervisor lookups.
type StaffHandler struct {
	staff *service.StaffService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(staff *service.StaffService) *StaffHandler {
	return &StaffHandler{staff: staff}
}

// Register POST /admin/staff.
func (h *StaffHandler) Register(c *fiber.Ctx) error {
	var req dto.StaffCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	member, err := h.staff.RegisterStaffMember(c.UserContext(), service.StaffInput{
		ID:           req.ID,
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		SupervisorID: req.SupervisorID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": staffResponse(member)})
}

// Get GET /admin/staff/:id.
func (h *StaffHandler) Get(c *fiber.Ctx) error {
	member, err := h.staff.GetStaffMember(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": staffResponse(member)})
}
