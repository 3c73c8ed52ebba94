package service

import (
	"context"
	"time"

	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/repository"
)

// AuditRecorder writes the audit trail for assignment state changes.
type AuditRecorder interface {
	RecordAssignmentChange(ctx context.Context, videoID string, oldStaff, newStaff *string, actor domain.Actor, at time.Time) error
	RecordReclaim(ctx context.Context, videoID, previousStaff string, actor domain.Actor, at time.Time) error
	RecordStatusChange(ctx context.Context, videoID string, oldState, newState domain.LifecycleState, actor domain.Actor, at time.Time) error
}

// historyAudit stores audit entries in video_history. Bind it to the transaction's
// history repository so the entry commits or rolls back with the state change.
type historyAudit struct {
	history repository.VideoHistoryRepository
}

// NewAuditRecorder creates an AuditRecorder over a history repository.
func NewAuditRecorder(history repository.VideoHistoryRepository) AuditRecorder {
	return &historyAudit{history: history}
}

func (a *historyAudit) RecordAssignmentChange(ctx context.Context, videoID string, oldStaff, newStaff *string, actor domain.Actor, at time.Time) error {
	return a.history.Create(ctx, &domain.VideoHistory{
		VideoID:       videoID,
		ChangedByType: actor.Type,
		ChangedByID:   actorID(actor),
		ChangeType:    domain.ChangeTypeAssignment,
		OldValue: map[string]any{
			"assigned_staff_id": oldStaff,
		},
		NewValue: map[string]any{
			"assigned_staff_id": newStaff,
		},
		CreatedAt: at,
	})
}

func (a *historyAudit) RecordReclaim(ctx context.Context, videoID, previousStaff string, actor domain.Actor, at time.Time) error {
	return a.history.Create(ctx, &domain.VideoHistory{
		VideoID:       videoID,
		ChangedByType: actor.Type,
		ChangedByID:   actorID(actor),
		ChangeType:    domain.ChangeTypeReclaim,
		OldValue: map[string]any{
			"assigned_staff_id": previousStaff,
		},
		NewValue: map[string]any{
			"assigned_staff_id": nil,
		},
		CreatedAt: at,
	})
}

func (a *historyAudit) RecordStatusChange(ctx context.Context, videoID string, oldState, newState domain.LifecycleState, actor domain.Actor, at time.Time) error {
	return a.history.Create(ctx, &domain.VideoHistory{
		VideoID:       videoID,
		ChangedByType: actor.Type,
		ChangedByID:   actorID(actor),
		ChangeType:    domain.ChangeTypeStatus,
		OldValue: map[string]any{
			"lifecycle_state": oldState,
		},
		NewValue: map[string]any{
			"lifecycle_state": newState,
		},
		CreatedAt: at,
	})
}

func actorID(actor domain.Actor) *string {
	if actor.StaffID == "" {
		return nil
	}
	id := actor.StaffID
	return &id
}
