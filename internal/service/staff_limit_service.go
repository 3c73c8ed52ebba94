package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/video-assignment-service/internal/config"
	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/events"
	"github.com/spec-kit/video-assignment-service/internal/repository"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

// StaffLimitService is the registry of staff locks and daily quotas.
type StaffLimitService struct {
	limits        repository.StaffLimitRepository
	tx            repository.Transactor
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	quotaLocation *time.Location
}

// StaffLimitDependencies bundles collaborators.
type StaffLimitDependencies struct {
	LimitRepo  repository.StaffLimitRepository
	Transactor repository.Transactor
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Config     config.AssignmentConfig
}

// NewStaffLimitService creates the service.
func NewStaffLimitService(deps StaffLimitDependencies) *StaffLimitService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := deps.Config.QuotaLocation
	if loc == nil {
		loc = time.UTC
	}
	return &StaffLimitService{
		limits:        deps.LimitRepo,
		tx:            deps.Transactor,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		quotaLocation: loc,
	}
}

// SetLimit replaces any active limit of staffID with a new one.
func (s *StaffLimitService) SetLimit(ctx context.Context, staffID string, lockUntil time.Time, maxPerDay *int, actor domain.Actor, now time.Time) (*domain.StaffLimit, error) {
	if strings.TrimSpace(staffID) == "" {
		return nil, apperrors.NewValidationError("staff_id is required", nil)
	}
	if !lockUntil.After(now) {
		return nil, apperrors.NewValidationError("lock_until must be in the future", map[string]any{"lock_until": lockUntil})
	}
	if maxPerDay != nil && *maxPerDay < 1 {
		return nil, apperrors.NewValidationError("max_per_day must be positive", map[string]any{"max_per_day": *maxPerDay})
	}

	limit := &domain.StaffLimit{
		StaffID:   staffID,
		Active:    true,
		LockUntil: lockUntil,
		MaxPerDay: maxPerDay,
		CreatedAt: now,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		// Admissions for this staff hold the same lock while they re-check limits.
		if err := stores.Locks.LockStaff(ctx, staffID); err != nil {
			return err
		}
		if _, err := stores.Limits.DeactivateAll(ctx, staffID); err != nil {
			return err
		}
		return stores.Limits.Create(ctx, limit)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("staff limit set",
		zap.String("staff_id", staffID),
		zap.Time("lock_until", lockUntil),
		zap.Any("max_per_day", maxPerDay))
	s.publish(ctx, events.EventStaffLimitSet, staffID, actor, now, events.StaffLimitPayload{
		LockUntil: &lockUntil,
		MaxPerDay: maxPerDay,
	})
	return limit, nil
}

// RemoveLimit deactivates every active limit of staffID. Removing a missing limit is a no-op.
func (s *StaffLimitService) RemoveLimit(ctx context.Context, staffID string, actor domain.Actor, now time.Time) error {
	if strings.TrimSpace(staffID) == "" {
		return apperrors.NewValidationError("staff_id is required", nil)
	}
	var removed int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		if err := stores.Locks.LockStaff(ctx, staffID); err != nil {
			return err
		}
		n, err := stores.Limits.DeactivateAll(ctx, staffID)
		removed = n
		return err
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	if removed == 0 {
		return nil
	}
	s.logger.Info("staff limit removed", zap.String("staff_id", staffID))
	s.publish(ctx, events.EventStaffLimitRemoved, staffID, actor, now, events.StaffLimitPayload{})
	return nil
}

// IsLimited reports whether staffID has an active limit with lockUntil after now.
// A limit carrying a daily quota counts as limited; whether it also refuses the
// next assignment is decided at admission.
func (s *StaffLimitService) IsLimited(ctx context.Context, staffID string, now time.Time) (bool, error) {
	limit, err := s.limits.GetActive(ctx, staffID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	return limit.InForce(now), nil
}

// ActiveLimit returns the limit in force for staffID at now, or nil.
func (s *StaffLimitService) ActiveLimit(ctx context.Context, staffID string, now time.Time) (*domain.StaffLimit, error) {
	limit, err := s.limits.GetActive(ctx, staffID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !limit.InForce(now) {
		return nil, nil
	}
	return limit, nil
}

// ActiveLimits lists limits in force at now. Elapsed limits still flagged active are omitted.
func (s *StaffLimitService) ActiveLimits(ctx context.Context, now time.Time) ([]domain.StaffLimit, error) {
	limits, err := s.limits.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	result := make([]domain.StaffLimit, 0, len(limits))
	for i := range limits {
		if limits[i].InForce(now) {
			result = append(result, limits[i])
		}
	}
	return result, nil
}

// DeactivateExpired flips elapsed limits to inactive and returns how many changed.
func (s *StaffLimitService) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.limits.DeactivateExpired(ctx, now)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if n > 0 {
		s.logger.Info("deactivated elapsed staff limits", zap.Int64("count", n))
	}
	return n, nil
}

// checkAdmission rejects staffID when a lock is in force or today's quota is used up.
// stores may be bound to the admission transaction.
func (s *StaffLimitService) checkAdmission(ctx context.Context, stores repository.Stores, staffID string, now time.Time) error {
	limit, err := stores.Limits.GetActive(ctx, staffID)
	if err != nil {
		return err
	}
	if limit.Blocks(now) {
		return apperrors.NewStaffLimited(staffID, limit.LockUntil)
	}
	quota, ok := limit.DailyQuota(now)
	if !ok {
		return nil
	}
	assignedToday, err := stores.Videos.CountAssignedSince(ctx, staffID, s.startOfDay(now))
	if err != nil {
		return err
	}
	if assignedToday >= quota {
		return apperrors.NewQuotaExceeded(staffID, assignedToday, quota)
	}
	return nil
}

func (s *StaffLimitService) startOfDay(now time.Time) time.Time {
	local := now.In(s.quotaLocation)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.quotaLocation)
}

func (s *StaffLimitService) publish(ctx context.Context, eventType events.EventType, staffID string, actor domain.Actor, now time.Time, payload events.StaffLimitPayload) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		StaffID:   staffID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
