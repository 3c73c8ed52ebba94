package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/video-assignment-service/internal/config"
	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/events"
	"github.com/spec-kit/video-assignment-service/internal/observability"
	"github.com/spec-kit/video-assignment-service/internal/repository"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

const (
	// itemWriteTimeout bounds a single reclaim transaction once started.
	itemWriteTimeout = 10 * time.Second
	defaultBatchSize = 500

	triggerSweep  = "sweep"
	triggerManual = "manual"
)

// errNotExpired marks a candidate whose assignment no longer matches the expiry predicate.
var errNotExpired = errors.New("assignment no longer expired")

// SweepFailure records one candidate that could not be reclaimed.
type SweepFailure struct {
	VideoID string `json:"video_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SweepReport summarises one sweep pass.
type SweepReport struct {
	StartedAt         time.Time      `json:"started_at"`
	DurationMillis    int64          `json:"duration_ms"`
	Candidates        int            `json:"candidates"`
	ReclaimedCount    int            `json:"reclaimed_count"`
	ReclaimedVideoIDs []string       `json:"reclaimed_video_ids"`
	Skipped           int            `json:"skipped"`
	Failures          []SweepFailure `json:"failures"`
	Truncated         bool           `json:"truncated"`
	LimitsDeactivated int64          `json:"limits_deactivated"`
}

// ReclaimService finds expired assignments and returns them to the unassigned pool.
type ReclaimService struct {
	videos     repository.VideoRepository
	tx         repository.Transactor
	limits     *StaffLimitService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	timeout    time.Duration
	batchSize  int
}

// ReclaimDependencies bundles collaborators.
type ReclaimDependencies struct {
	VideoRepo  repository.VideoRepository
	Transactor repository.Transactor
	Limits     *StaffLimitService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Assignment config.AssignmentConfig
	Scheduler  config.SchedulerConfig
}

// NewReclaimService creates the service.
func NewReclaimService(deps ReclaimDependencies) *ReclaimService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := deps.Scheduler.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &ReclaimService{
		videos:     deps.VideoRepo,
		tx:         deps.Transactor,
		limits:     deps.Limits,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		timeout:    deps.Assignment.Timeout,
		batchSize:  batch,
	}
}

// Timeout returns the configured assignment timeout.
func (s *ReclaimService) Timeout() time.Duration {
	return s.timeout
}

// CountExpired counts assignments older than timeout at now.
func (s *ReclaimService) CountExpired(ctx context.Context, timeout time.Duration, now time.Time) (int, error) {
	if err := validateTimeout(timeout); err != nil {
		return 0, err
	}
	count, err := s.videos.CountExpired(ctx, expiredFilter(timeout, now, 0))
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return count, nil
}

// ListExpired lists expired assignments, longest overdue first.
func (s *ReclaimService) ListExpired(ctx context.Context, timeout time.Duration, now time.Time, limit int) ([]domain.Video, error) {
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.batchSize {
		limit = s.batchSize
	}
	videos, err := s.videos.ListExpired(ctx, expiredFilter(timeout, now, limit))
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return videos, nil
}

// Sweep reclaims up to one batch of expired assignments, one transaction per video.
//
// A failing video is recorded and the pass moves on. When ctx ends, or more videos
// expired than fit in the batch, the report is marked truncated and the rest is left
// for the next pass; a write already in flight still completes.
func (s *ReclaimService) Sweep(ctx context.Context, timeout time.Duration, now time.Time) (*SweepReport, error) {
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}
	started := time.Now()
	report := &SweepReport{
		StartedAt:         now,
		ReclaimedVideoIDs: []string{},
		Failures:          []SweepFailure{},
	}

	// One extra row tells a full batch apart from a backlog.
	candidates, err := s.videos.ListExpired(ctx, expiredFilter(timeout, now, s.batchSize+1))
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(candidates) > s.batchSize {
		candidates = candidates[:s.batchSize]
		report.Truncated = true
		s.logger.Warn("expired backlog exceeds sweep batch", zap.Int("batch_size", s.batchSize))
	}
	report.Candidates = len(candidates)

	for i := range candidates {
		if ctx.Err() != nil {
			report.Truncated = true
			s.logger.Warn("sweep budget exhausted",
				zap.Int("processed", i),
				zap.Int("remaining", len(candidates)-i))
			break
		}
		videoID := candidates[i].ID
		_, err := s.reclaimDetached(ctx, videoID, domain.SystemActor, timeout, now, triggerSweep)
		switch {
		case err == nil:
			report.ReclaimedCount++
			report.ReclaimedVideoIDs = append(report.ReclaimedVideoIDs, videoID)
		case errors.Is(err, errNotExpired), apperrors.IsKind(err, apperrors.CodeConcurrencyConflict):
			report.Skipped++
			s.logger.Debug("reclaim candidate skipped", zap.String("video_id", videoID), zap.Error(err))
		default:
			report.Failures = append(report.Failures, SweepFailure{
				VideoID: videoID,
				Code:    apperrors.KindOf(err),
				Message: err.Error(),
			})
			s.logger.Warn("reclaim failed", zap.String("video_id", videoID), zap.Error(err))
		}
	}

	if s.limits != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), itemWriteTimeout)
		n, err := s.limits.DeactivateExpired(cleanupCtx, now)
		cancel()
		if err != nil {
			s.logger.Warn("staff limit cleanup failed", zap.Error(err))
		}
		report.LimitsDeactivated = n
	}

	elapsed := time.Since(started)
	report.DurationMillis = elapsed.Milliseconds()
	s.metrics.RecordSweep(elapsed, report.Candidates, len(report.Failures))
	s.logger.Info("sweep finished",
		zap.Int("candidates", report.Candidates),
		zap.Int("reclaimed", report.ReclaimedCount),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failures)),
		zap.Bool("truncated", report.Truncated),
		zap.Duration("duration", elapsed))
	return report, nil
}

// ReclaimOne reclaims a single video on operator request. The video must currently
// match the expiry predicate.
func (s *ReclaimService) ReclaimOne(ctx context.Context, videoID string, actor domain.Actor, timeout time.Duration, now time.Time) (*domain.Video, error) {
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}
	video, err := retryOnConflict(s.logger, "reclaim", func() (*domain.Video, error) {
		return s.reclaimDetached(ctx, videoID, actor, timeout, now, triggerManual)
	})
	if errors.Is(err, errNotExpired) {
		return nil, apperrors.NewInvalidState("assignment is not expired", map[string]any{
			"video_id": videoID,
			"timeout":  timeout.String(),
		})
	}
	if err != nil {
		return nil, err
	}
	return video, nil
}

// reclaimDetached runs one reclaim on a context that outlives ctx cancellation.
func (s *ReclaimService) reclaimDetached(ctx context.Context, videoID string, actor domain.Actor, timeout time.Duration, now time.Time, trigger string) (*domain.Video, error) {
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), itemWriteTimeout)
	defer cancel()

	var (
		previous   domain.Video
		reclaimed  *domain.Video
		notExpired bool
	)
	err := s.tx.WithinTx(itemCtx, func(ctx context.Context, stores repository.Stores) error {
		video, err := loadVideo(ctx, stores.Videos, videoID)
		if err != nil {
			return err
		}
		if !video.AssignmentExpired(timeout, now) {
			notExpired = true
			return nil
		}
		previous = *video
		if err := stores.Videos.CompareAndSwap(ctx, repository.VideoChange{
			VideoID:            video.ID,
			ExpectedState:      video.State,
			ExpectedAssignedAt: video.AssignedAt,
			NewState:           domain.StateUnassigned,
		}); err != nil {
			return err
		}
		if err := NewAuditRecorder(stores.History).RecordReclaim(ctx, video.ID, *video.AssignedStaffID, actor, now); err != nil {
			return err
		}
		video.State = domain.StateUnassigned
		video.AssignedStaffID = nil
		video.AssignedAt = nil
		reclaimed = video
		return nil
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	if notExpired {
		return nil, errNotExpired
	}

	s.metrics.RecordReclaim(trigger)
	s.logger.Info("video reclaimed",
		zap.String("video_id", videoID),
		zap.String("previous_staff_id", *previous.AssignedStaffID),
		zap.String("trigger", trigger))
	s.publishReclaimed(itemCtx, previous, actor, now, trigger == triggerManual)
	return reclaimed, nil
}

func (s *ReclaimService) publishReclaimed(ctx context.Context, previous domain.Video, actor domain.Actor, now time.Time, manual bool) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventVideoReclaimed,
		VideoID:   previous.ID,
		StaffID:   *previous.AssignedStaffID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload: events.VideoReclaimedPayload{
			PreviousStaffID: *previous.AssignedStaffID,
			AssignedAt:      *previous.AssignedAt,
			OldState:        previous.State,
			Manual:          manual,
		},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func expiredFilter(timeout time.Duration, now time.Time, limit int) repository.ExpiredFilter {
	return repository.ExpiredFilter{Cutoff: now.Add(-timeout), Limit: limit}
}

func validateTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return apperrors.NewValidationError("timeout must be positive", map[string]any{"timeout": timeout.String()})
	}
	return nil
}
