package service

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/video-assignment-service/internal/config"
	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/repository"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

// WorkloadService evaluates a staff member's active workload against the concurrency cap.
// Every call reads the store; nothing is cached.
type WorkloadService struct {
	videos        repository.VideoRepository
	maxConcurrent int
	urgentWindow  time.Duration
}

// NewWorkloadService creates the service.
func NewWorkloadService(videos repository.VideoRepository, cfg config.AssignmentConfig) *WorkloadService {
	return &WorkloadService{
		videos:        videos,
		maxConcurrent: cfg.MaxConcurrent,
		urgentWindow:  cfg.UrgentWindow,
	}
}

// MaxConcurrent returns the configured cap.
func (s *WorkloadService) MaxConcurrent() int {
	return s.maxConcurrent
}

// ActiveCount returns the number of active videos held by staffID.
func (s *WorkloadService) ActiveCount(ctx context.Context, staffID string, now time.Time) (int, error) {
	snapshot, err := s.Snapshot(ctx, staffID, now)
	if err != nil {
		return 0, err
	}
	return snapshot.TotalActive, nil
}

// Snapshot returns the current workload of staffID. Unknown staff yield an empty workload.
func (s *WorkloadService) Snapshot(ctx context.Context, staffID string, now time.Time) (*domain.WorkloadSnapshot, error) {
	return s.snapshotFrom(ctx, s.videos, staffID, now)
}

// snapshotFrom evaluates against videos, which may be bound to an open transaction.
func (s *WorkloadService) snapshotFrom(ctx context.Context, videos repository.VideoRepository, staffID string, now time.Time) (*domain.WorkloadSnapshot, error) {
	if strings.TrimSpace(staffID) == "" {
		return nil, apperrors.NewValidationError("staff_id is required", nil)
	}
	counts, err := videos.CountActiveByStaff(ctx, staffID, now, s.urgentWindow)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &domain.WorkloadSnapshot{
		StaffID:          staffID,
		TotalActive:      counts.Total,
		InProgress:       counts.InProgress,
		InRevision:       counts.InRevision,
		Urgent:           counts.Urgent,
		MaxConcurrent:    s.maxConcurrent,
		CanAcceptNewTask: counts.Total < s.maxConcurrent,
	}, nil
}
