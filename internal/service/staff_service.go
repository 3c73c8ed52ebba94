package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/repository"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

// StaffService manages the local staff directory used for supervisor lookups.
type StaffService struct {
	staff repository.StaffRepository
}

// StaffInput carries fields for registering a staff member.
type StaffInput struct {
	ID           string
	Name         string
	Email        string
	Role         domain.StaffRole
	SupervisorID *string
}

// NewStaffService creates the service.
func NewStaffService(staff repository.StaffRepository) *StaffService {
	return &StaffService{staff: staff}
}

// RegisterStaffMember adds a staff member to the directory.
func (s *StaffService) RegisterStaffMember(ctx context.Context, input StaffInput) (*domain.StaffMember, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": input.Email})
	}
	switch input.Role {
	case domain.StaffRoleEditor, domain.StaffRoleSupervisor, domain.StaffRoleAdmin:
	default:
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
	}
	if input.SupervisorID != nil {
		if _, err := s.GetStaffMember(ctx, *input.SupervisorID); err != nil {
			return nil, err
		}
	}

	member := &domain.StaffMember{
		ID:           input.ID,
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Role:         input.Role,
		SupervisorID: input.SupervisorID,
		Active:       true,
	}
	if err := s.staff.Create(ctx, member); err != nil {
		return nil, apperrors.MapError(err)
	}
	return member, nil
}

// GetStaffMember loads a staff member by id.
func (s *StaffService) GetStaffMember(ctx context.Context, id string) (*domain.StaffMember, error) {
	member, err := s.staff.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("staff", map[string]any{"staff_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return member, nil
}
