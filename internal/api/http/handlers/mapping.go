package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/video-assignment-service/internal/api/dto"
	"github.com/spec-kit/video-assignment-service/internal/auth"
	"github.com/spec-kit/video-assignment-service/internal/domain"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

// Clock returns the current instant. Handlers take one so tests can pin time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func orSystemClock(clock Clock) Clock {
	if clock == nil {
		return systemClock
	}
	return clock
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}

func videoResponse(v *domain.Video) dto.VideoResponse {
	return dto.VideoResponse{
		ID:               v.ID,
		Title:            v.Title,
		State:            v.State,
		AssignedStaffID:  v.AssignedStaffID,
		AssignedAt:       v.AssignedAt,
		UrgentFlag:       v.UrgentFlag,
		DeliveryDeadline: v.DeliveryDeadline,
		UpdatedAt:        v.UpdatedAt,
	}
}

func workloadResponse(w *domain.WorkloadSnapshot) dto.WorkloadResponse {
	return dto.WorkloadResponse{
		StaffID:          w.StaffID,
		TotalActive:      w.TotalActive,
		InProgress:       w.InProgress,
		InRevision:       w.InRevision,
		Urgent:           w.Urgent,
		MaxConcurrent:    w.MaxConcurrent,
		CanAcceptNewTask: w.CanAcceptNewTask,
	}
}

func limitResponse(l *domain.StaffLimit, now time.Time) dto.StaffLimitResponse {
	return dto.StaffLimitResponse{
		ID:        l.ID,
		StaffID:   l.StaffID,
		LockUntil: l.LockUntil,
		MaxPerDay: l.MaxPerDay,
		Blocking:  l.Blocks(now),
		CreatedAt: l.CreatedAt,
	}
}

func staffResponse(s *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:           s.ID,
		Name:         s.Name,
		Email:        s.Email,
		Role:         s.Role,
		SupervisorID: s.SupervisorID,
		Active:       s.Active,
	}
}
