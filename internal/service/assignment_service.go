package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/events"
	"github.com/spec-kit/video-assignment-service/internal/observability"
	"github.com/spec-kit/video-assignment-service/internal/repository"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

// AssignmentService is the only writer of a video's assignment fields outside the reclaim sweep.
type AssignmentService struct {
	stores     repository.Stores
	tx         repository.Transactor
	workload   *WorkloadService
	limits     *StaffLimitService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Stores     repository.Stores
	Transactor repository.Transactor
	Workload   *WorkloadService
	Limits     *StaffLimitService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		stores:     deps.Stores,
		tx:         deps.Transactor,
		workload:   deps.Workload,
		limits:     deps.Limits,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
	}
}

// TryAssign assigns videoID to staffID if every admission rule holds.
//
// Rules are evaluated in order: video exists, video is unassigned, staff is not locked,
// daily quota not used up, staff under the concurrency cap. The write re-runs the rules
// inside the transaction while holding the staff lock.
func (s *AssignmentService) TryAssign(ctx context.Context, videoID, staffID string, actor domain.Actor, now time.Time) (*domain.Video, error) {
	if strings.TrimSpace(videoID) == "" || strings.TrimSpace(staffID) == "" {
		return nil, apperrors.NewValidationError("video_id and staff_id are required", nil)
	}

	video, err := retryOnConflict(s.logger, "assign", func() (*domain.Video, error) {
		return s.tryAssign(ctx, videoID, staffID, actor, now)
	})
	s.metrics.RecordAdmission(admissionOutcome(err))
	if err != nil {
		s.logFailure("assignment rejected", err,
			zap.String("video_id", videoID),
			zap.String("staff_id", staffID))
		return nil, err
	}

	s.logger.Info("video assigned", zap.String("video_id", videoID), zap.String("staff_id", staffID))
	s.publish(ctx, events.EventVideoAssigned, video.ID, staffID, actor, now, events.VideoAssignedPayload{
		NewStaffID: staffID,
		AssignedAt: now,
	})
	return video, nil
}

func (s *AssignmentService) tryAssign(ctx context.Context, videoID, staffID string, actor domain.Actor, now time.Time) (*domain.Video, error) {
	// Unlocked pre-check so obvious rejections never touch the staff lock.
	if _, err := s.admit(ctx, s.stores, videoID, staffID, now); err != nil {
		return nil, err
	}

	var assigned *domain.Video
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		if err := stores.Locks.LockStaff(ctx, staffID); err != nil {
			return err
		}
		video, err := s.admit(ctx, stores, videoID, staffID, now)
		if err != nil {
			return err
		}
		assignedAt := now
		if err := stores.Videos.CompareAndSwap(ctx, repository.VideoChange{
			VideoID:       video.ID,
			ExpectedState: domain.StateUnassigned,
			NewState:      domain.StateInProgress,
			NewStaffID:    &staffID,
			NewAssignedAt: &assignedAt,
		}); err != nil {
			return err
		}
		if err := NewAuditRecorder(stores.History).RecordAssignmentChange(ctx, video.ID, video.AssignedStaffID, &staffID, actor, now); err != nil {
			return err
		}
		video.AssignedStaffID = &staffID
		video.AssignedAt = &assignedAt
		video.State = domain.StateInProgress
		assigned = video
		return nil
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return assigned, nil
}

// admit evaluates the admission rules against stores and returns the video when all pass.
func (s *AssignmentService) admit(ctx context.Context, stores repository.Stores, videoID, staffID string, now time.Time) (*domain.Video, error) {
	video, err := loadVideo(ctx, stores.Videos, videoID)
	if err != nil {
		return nil, err
	}
	if video.State != domain.StateUnassigned {
		return nil, apperrors.NewInvalidState("video is not unassigned", map[string]any{
			"video_id": video.ID,
			"state":    video.State,
		})
	}
	if err := s.limits.checkAdmission(ctx, stores, staffID, now); err != nil {
		return nil, apperrors.MapError(err)
	}
	snapshot, err := s.workload.snapshotFrom(ctx, stores.Videos, staffID, now)
	if err != nil {
		return nil, err
	}
	if !snapshot.CanAcceptNewTask {
		return nil, apperrors.NewCapacityExceeded(staffID, snapshot.TotalActive, snapshot.MaxConcurrent)
	}
	return video, nil
}

// ForceUnassign returns a non-terminal video to the unassigned pool.
func (s *AssignmentService) ForceUnassign(ctx context.Context, videoID string, actor domain.Actor, now time.Time) (*domain.Video, error) {
	var (
		previous *string
		oldState domain.LifecycleState
		changed  bool
	)
	video, err := retryOnConflict(s.logger, "unassign", func() (*domain.Video, error) {
		var result *domain.Video
		err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
			video, err := loadVideo(ctx, stores.Videos, videoID)
			if err != nil {
				return err
			}
			if video.State.IsTerminal() {
				return apperrors.NewInvalidState("video is in a terminal state", map[string]any{
					"video_id": video.ID,
					"state":    video.State,
				})
			}
			previous, oldState, changed = video.AssignedStaffID, video.State, false
			if video.State == domain.StateUnassigned && !video.IsAssigned() {
				result = video
				return nil
			}
			if err := stores.Videos.CompareAndSwap(ctx, repository.VideoChange{
				VideoID:            video.ID,
				ExpectedState:      video.State,
				ExpectedAssignedAt: video.AssignedAt,
				NewState:           domain.StateUnassigned,
			}); err != nil {
				return err
			}
			if err := NewAuditRecorder(stores.History).RecordAssignmentChange(ctx, video.ID, video.AssignedStaffID, nil, actor, now); err != nil {
				return err
			}
			video.AssignedStaffID = nil
			video.AssignedAt = nil
			video.State = domain.StateUnassigned
			result, changed = video, true
			return nil
		})
		if err != nil {
			return nil, normalizeError(err)
		}
		return result, nil
	})
	if err != nil {
		s.logFailure("unassign failed", err, zap.String("video_id", videoID))
		return nil, err
	}
	if changed {
		s.logger.Info("video unassigned", zap.String("video_id", videoID))
		s.publish(ctx, events.EventVideoUnassigned, videoID, stringValue(previous), actor, now, events.VideoUnassignedPayload{
			PreviousStaffID: previous,
			OldState:        oldState,
		})
	}
	return video, nil
}

// Complete moves an in-progress video to DONE.
func (s *AssignmentService) Complete(ctx context.Context, videoID string, actor domain.Actor, now time.Time) (*domain.Video, error) {
	return s.transition(ctx, videoID, actor, now, transitionRule{
		name: "complete",
		from: []domain.LifecycleState{domain.StateInProgress},
		to:   domain.StateDone,
		apply: func(_ *domain.Video, change *repository.VideoChange) {
			change.NewUrgent = boolPtr(false)
		},
	})
}

// FlagRevision sends a finished video back to its assignee for revision and marks it urgent.
// The assignment timestamp restarts so the reclaim timeout runs from the flag.
// An assignee already at the concurrency cap does not get the revision: the video
// goes back to the pool as UNASSIGNED and urgent so the next claim picks it first.
func (s *AssignmentService) FlagRevision(ctx context.Context, videoID string, actor domain.Actor, now time.Time) (*domain.Video, error) {
	return s.transition(ctx, videoID, actor, now, transitionRule{
		name: "flag_revision",
		from: []domain.LifecycleState{domain.StateDone},
		to:   domain.StateInRevision,
		apply: func(v *domain.Video, change *repository.VideoChange) {
			change.NewUrgent = boolPtr(true)
			if v.AssignedStaffID != nil {
				at := now
				change.NewAssignedAt = &at
			}
		},
		guard: func(ctx context.Context, stores repository.Stores, v *domain.Video, change *repository.VideoChange) error {
			if change.NewStaffID == nil {
				return nil
			}
			staffID := *change.NewStaffID
			if err := stores.Locks.LockStaff(ctx, staffID); err != nil {
				return err
			}
			snapshot, err := s.workload.snapshotFrom(ctx, stores.Videos, staffID, now)
			if err != nil {
				return err
			}
			if snapshot.CanAcceptNewTask {
				return nil
			}
			s.logger.Info("assignee at capacity, revision returned to pool",
				zap.String("video_id", v.ID),
				zap.String("staff_id", staffID),
				zap.Int("active", snapshot.TotalActive))
			change.NewState = domain.StateUnassigned
			change.NewStaffID = nil
			change.NewAssignedAt = nil
			return nil
		},
	})
}

// CompleteRevision moves a video in revision to DONE_REVISED.
func (s *AssignmentService) CompleteRevision(ctx context.Context, videoID string, actor domain.Actor, now time.Time) (*domain.Video, error) {
	return s.transition(ctx, videoID, actor, now, transitionRule{
		name: "complete_revision",
		from: []domain.LifecycleState{domain.StateInRevision},
		to:   domain.StateDoneRevised,
		apply: func(_ *domain.Video, change *repository.VideoChange) {
			change.NewUrgent = boolPtr(false)
		},
	})
}

// Cancel terminates a video that is not finished and releases its assignee.
func (s *AssignmentService) Cancel(ctx context.Context, videoID string, actor domain.Actor, now time.Time) (*domain.Video, error) {
	return s.transition(ctx, videoID, actor, now, transitionRule{
		name: "cancel",
		from: []domain.LifecycleState{domain.StateUnassigned, domain.StateInProgress, domain.StateInRevision},
		to:   domain.StateCancelled,
		apply: func(_ *domain.Video, change *repository.VideoChange) {
			change.NewStaffID = nil
			change.NewAssignedAt = nil
			change.NewUrgent = boolPtr(false)
		},
	})
}

type transitionRule struct {
	name  string
	from  []domain.LifecycleState
	to    domain.LifecycleState
	apply func(v *domain.Video, change *repository.VideoChange)
	// guard runs inside the transaction after apply and may redirect the change.
	guard func(ctx context.Context, stores repository.Stores, v *domain.Video, change *repository.VideoChange) error
}

func (r transitionRule) allows(state domain.LifecycleState) bool {
	for _, from := range r.from {
		if from == state {
			return true
		}
	}
	return false
}

func (s *AssignmentService) transition(ctx context.Context, videoID string, actor domain.Actor, now time.Time, rule transitionRule) (*domain.Video, error) {
	var oldState domain.LifecycleState
	video, err := retryOnConflict(s.logger, rule.name, func() (*domain.Video, error) {
		var result *domain.Video
		err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
			video, err := loadVideo(ctx, stores.Videos, videoID)
			if err != nil {
				return err
			}
			if !rule.allows(video.State) {
				return apperrors.NewInvalidState("transition not allowed from current state", map[string]any{
					"video_id":   video.ID,
					"state":      video.State,
					"transition": rule.name,
				})
			}
			change := repository.VideoChange{
				VideoID:            video.ID,
				ExpectedState:      video.State,
				ExpectedAssignedAt: video.AssignedAt,
				NewState:           rule.to,
				NewStaffID:         video.AssignedStaffID,
				NewAssignedAt:      video.AssignedAt,
			}
			rule.apply(video, &change)
			if rule.guard != nil {
				if err := rule.guard(ctx, stores, video, &change); err != nil {
					return err
				}
			}
			if err := stores.Videos.CompareAndSwap(ctx, change); err != nil {
				return err
			}

			audit := NewAuditRecorder(stores.History)
			if err := audit.RecordStatusChange(ctx, video.ID, video.State, change.NewState, actor, now); err != nil {
				return err
			}
			if video.AssignedStaffID != nil && change.NewStaffID == nil {
				if err := audit.RecordAssignmentChange(ctx, video.ID, video.AssignedStaffID, nil, actor, now); err != nil {
					return err
				}
			}

			oldState = video.State
			video.State = change.NewState
			video.AssignedStaffID = change.NewStaffID
			video.AssignedAt = change.NewAssignedAt
			if change.NewUrgent != nil {
				video.UrgentFlag = *change.NewUrgent
			}
			result = video
			return nil
		})
		if err != nil {
			return nil, normalizeError(err)
		}
		return result, nil
	})
	if err != nil {
		s.logFailure(rule.name+" failed", err, zap.String("video_id", videoID))
		return nil, err
	}

	s.logger.Info("video status changed",
		zap.String("video_id", videoID),
		zap.String("from", string(oldState)),
		zap.String("to", string(video.State)))
	s.publish(ctx, events.EventVideoStatusChanged, videoID, stringValue(video.AssignedStaffID), actor, now, events.VideoStatusChangedPayload{
		OldState: oldState,
		NewState: video.State,
		StaffID:  video.AssignedStaffID,
	})
	return video, nil
}

// logFailure keeps expected rejections out of error logs.
func (s *AssignmentService) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("code", apperrors.KindOf(err)))
	switch {
	case apperrors.IsRejection(err):
		s.logger.Debug(msg, fields...)
	case apperrors.IsKind(err, apperrors.CodeConcurrencyConflict):
		s.logger.Warn(msg, append(fields, zap.Error(err))...)
	default:
		s.logger.Error(msg, append(fields, zap.Error(err))...)
	}
}

func (s *AssignmentService) publish(ctx context.Context, eventType events.EventType, videoID, staffID string, actor domain.Actor, now time.Time, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		VideoID:   videoID,
		StaffID:   staffID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

// retryOnConflict runs fn again once when it lost a race. fn re-reads and re-checks
// everything, so the retry never bypasses an admission rule.
func retryOnConflict[T any](logger *zap.Logger, op string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil || !apperrors.IsKind(err, apperrors.CodeConcurrencyConflict) {
		return result, err
	}
	logger.Debug("concurrent update, re-evaluating", zap.String("op", op))
	return fn()
}

func loadVideo(ctx context.Context, videos repository.VideoRepository, videoID string) (*domain.Video, error) {
	video, err := videos.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("video", map[string]any{"video_id": videoID})
		}
		return nil, apperrors.MapError(err)
	}
	if video.Deleted {
		return nil, apperrors.NewNotFound("video", map[string]any{"video_id": videoID})
	}
	return video, nil
}

func normalizeError(err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return apperrors.NewConcurrencyConflict("video was modified concurrently", err)
	}
	return apperrors.MapError(err)
}

func admissionOutcome(err error) string {
	if err == nil {
		return "ASSIGNED"
	}
	return apperrors.KindOf(err)
}

func boolPtr(v bool) *bool {
	return &v
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
