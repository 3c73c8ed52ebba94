package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/events"
	"github.com/spec-kit/video-assignment-service/internal/repository"
	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

func TestTryAssign_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "v1", domain.StateUnassigned, "", time.Time{})

	video, err := f.assign.TryAssign(ctx, "v1", "staff-a", domain.StaffActor("staff-a"), f.now)
	require.NoError(t, err)
	require.Equal(t, domain.StateInProgress, video.State)
	require.Equal(t, "staff-a", *video.AssignedStaffID)
	require.True(t, video.AssignedAt.Equal(f.now))

	stored := f.video(t, "v1")
	require.Equal(t, domain.StateInProgress, stored.State)
	require.Equal(t, "staff-a", *stored.AssignedStaffID)
	require.True(t, stored.AssignedAt.Equal(f.now))

	history, err := f.store.Stores().History.ListByVideo(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, domain.ChangeTypeAssignment, history[0].ChangeType)
	require.Equal(t, "staff-a", *history[0].ChangedByID)

	assigned := f.events.ofType(events.EventVideoAssigned)
	require.Len(t, assigned, 1)
	payload := assigned[0].Payload.(events.VideoAssignedPayload)
	require.Equal(t, "staff-a", payload.NewStaffID)
	require.True(t, payload.AssignedAt.Equal(f.now))
}

func TestTryAssign_RejectionOrder(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture)
		videoID string
		code    string
	}{
		{
			name:    "missing video",
			setup:   func(t *testing.T, f *fixture) {},
			videoID: "nope",
			code:    apperrors.CodeNotFound,
		},
		{
			name: "deleted video",
			setup: func(t *testing.T, f *fixture) {
				require.NoError(t, f.store.Stores().Videos.Create(ctx, &domain.Video{ID: "v1", Deleted: true}))
			},
			videoID: "v1",
			code:    apperrors.CodeNotFound,
		},
		{
			name: "already assigned beats staff lock",
			setup: func(t *testing.T, f *fixture) {
				f.seed(t, "v1", domain.StateInProgress, "staff-x", f.now)
				_, err := f.limits.SetLimit(ctx, "staff-a", f.now.Add(time.Hour), nil, admin(), f.now)
				require.NoError(t, err)
			},
			videoID: "v1",
			code:    apperrors.CodeInvalidState,
		},
		{
			name: "staff lock beats capacity",
			setup: func(t *testing.T, f *fixture) {
				f.seed(t, "v1", domain.StateUnassigned, "", time.Time{})
				for i := 0; i < 3; i++ {
					f.seed(t, fmt.Sprintf("busy-%d", i), domain.StateInProgress, "staff-a", f.now)
				}
				_, err := f.limits.SetLimit(ctx, "staff-a", f.now.Add(time.Hour), nil, admin(), f.now)
				require.NoError(t, err)
			},
			videoID: "v1",
			code:    apperrors.CodeStaffLimited,
		},
		{
			name: "quota beats capacity",
			setup: func(t *testing.T, f *fixture) {
				f.seed(t, "v1", domain.StateUnassigned, "", time.Time{})
				for i := 0; i < 3; i++ {
					f.seed(t, fmt.Sprintf("busy-%d", i), domain.StateInProgress, "staff-a", f.now.Add(-time.Hour))
				}
				quota := 3
				_, err := f.limits.SetLimit(ctx, "staff-a", f.now.Add(24*time.Hour), &quota, admin(), f.now)
				require.NoError(t, err)
			},
			videoID: "v1",
			code:    apperrors.CodeQuotaExceeded,
		},
		{
			name: "capacity",
			setup: func(t *testing.T, f *fixture) {
				f.seed(t, "v1", domain.StateUnassigned, "", time.Time{})
				for i := 0; i < 3; i++ {
					f.seed(t, fmt.Sprintf("busy-%d", i), domain.StateInProgress, "staff-a", f.now)
				}
			},
			videoID: "v1",
			code:    apperrors.CodeCapacityExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			_, err := f.assign.TryAssign(ctx, tt.videoID, "staff-a", domain.StaffActor("staff-a"), f.now)
			require.Error(t, err)
			require.Equal(t, tt.code, apperrors.KindOf(err))
			require.True(t, apperrors.IsRejection(err))
			require.Empty(t, f.events.ofType(events.EventVideoAssigned))
		})
	}
}

func TestTryAssign_CapacityExceededLeavesItemsUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.seed(t, fmt.Sprintf("held-%d", i), domain.StateInProgress, "A", f.now.Add(-time.Minute))
	}
	f.seed(t, "fourth", domain.StateUnassigned, "", time.Time{})

	_, err := f.assign.TryAssign(ctx, "fourth", "A", domain.StaffActor("A"), f.now)
	require.True(t, apperrors.IsKind(err, apperrors.CodeCapacityExceeded))

	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, 3, domainErr.Details["current"])
	require.Equal(t, 3, domainErr.Details["max"])
	require.Contains(t, domainErr.Message, "3/3")

	for i := 0; i < 3; i++ {
		v := f.video(t, fmt.Sprintf("held-%d", i))
		require.Equal(t, domain.StateInProgress, v.State)
		require.Equal(t, "A", *v.AssignedStaffID)
	}
	require.Equal(t, domain.StateUnassigned, f.video(t, "fourth").State)
}

func TestTryAssign_ReleasingASlotAdmitsAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.seed(t, fmt.Sprintf("held-%d", i), domain.StateInProgress, "A", f.now.Add(-time.Minute))
	}
	f.seed(t, "next", domain.StateUnassigned, "", time.Time{})

	_, err := f.assign.TryAssign(ctx, "next", "A", domain.StaffActor("A"), f.now)
	require.True(t, apperrors.IsKind(err, apperrors.CodeCapacityExceeded))

	_, err = f.assign.Complete(ctx, "held-0", admin(), f.now)
	require.NoError(t, err)

	_, err = f.assign.TryAssign(ctx, "next", "A", domain.StaffActor("A"), f.now)
	require.NoError(t, err)
}

func TestTryAssign_UrgentVideoCountedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "a", domain.StateInProgress, "A", f.now)
	f.seed(t, "b", domain.StateInProgress, "A", f.now)
	f.seed(t, "c", domain.StateUnassigned, "", time.Time{})

	deadline := f.now.Add(2 * time.Hour)
	require.NoError(t, f.store.Stores().Videos.Create(ctx, &domain.Video{
		ID:               "due-soon",
		State:            domain.StateInProgress,
		AssignedStaffID:  strPtr("A"),
		AssignedAt:       &f.now,
		DeliveryDeadline: &deadline,
	}))

	snapshot, err := f.workload.Snapshot(ctx, "A", f.now)
	require.NoError(t, err)
	require.Equal(t, 3, snapshot.TotalActive, "urgent and in-progress is counted once")
	require.Equal(t, 1, snapshot.Urgent)

	_, err = f.assign.TryAssign(ctx, "c", "A", domain.StaffActor("A"), f.now)
	require.True(t, apperrors.IsKind(err, apperrors.CodeCapacityExceeded))
}

func TestTryAssign_StaffLimitRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "item", domain.StateUnassigned, "", time.Time{})

	_, err := f.limits.SetLimit(ctx, "B", f.now.Add(24*time.Hour), nil, admin(), f.now)
	require.NoError(t, err)

	_, err = f.assign.TryAssign(ctx, "item", "B", domain.StaffActor("B"), f.now)
	require.True(t, apperrors.IsKind(err, apperrors.CodeStaffLimited))

	require.NoError(t, f.limits.RemoveLimit(ctx, "B", admin(), f.now))

	_, err = f.assign.TryAssign(ctx, "item", "B", domain.StaffActor("B"), f.now)
	require.NoError(t, err)
}

func TestTryAssign_QuotaCountsOnlyToday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quota := 1
	_, err := f.limits.SetLimit(ctx, "Q", f.now.Add(72*time.Hour), &quota, admin(), f.now)
	require.NoError(t, err)

	f.seed(t, "yesterday", domain.StateDone, "Q", f.now.Add(-24*time.Hour))
	f.seed(t, "first", domain.StateUnassigned, "", time.Time{})
	f.seed(t, "second", domain.StateUnassigned, "", time.Time{})

	_, err = f.assign.TryAssign(ctx, "first", "Q", domain.StaffActor("Q"), f.now)
	require.NoError(t, err)

	_, err = f.assign.TryAssign(ctx, "second", "Q", domain.StaffActor("Q"), f.now)
	require.True(t, apperrors.IsKind(err, apperrors.CodeQuotaExceeded))

	tomorrow := f.now.Add(24 * time.Hour)
	_, err = f.assign.TryAssign(ctx, "second", "Q", domain.StaffActor("Q"), tomorrow)
	require.NoError(t, err)
}

func TestTryAssign_ConcurrentLastSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "held-1", domain.StateInProgress, "A", f.now)
	f.seed(t, "held-2", domain.StateInProgress, "A", f.now)

	const callers = 8
	for i := 0; i < callers; i++ {
		f.seed(t, fmt.Sprintf("open-%d", i), domain.StateUnassigned, "", time.Time{})
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.assign.TryAssign(ctx, fmt.Sprintf("open-%d", i), "A", domain.StaffActor("A"), f.now)
			switch {
			case err == nil:
				successes.Add(1)
			case apperrors.IsKind(err, apperrors.CodeCapacityExceeded), apperrors.IsKind(err, apperrors.CodeConcurrencyConflict):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, successes.Load())
	require.EqualValues(t, callers-1, rejected.Load())

	count, err := f.workload.ActiveCount(ctx, "A", f.now)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestTryAssign_ConcurrentSameVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "hot", domain.StateUnassigned, "", time.Time{})

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			staff := fmt.Sprintf("staff-%d", i)
			_, err := f.assign.TryAssign(ctx, "hot", staff, domain.StaffActor(staff), f.now)
			if err == nil {
				successes.Add(1)
				return
			}
			assert.True(t, apperrors.IsKind(err, apperrors.CodeInvalidState) || apperrors.IsKind(err, apperrors.CodeConcurrencyConflict), err)
		}(i)
	}
	wg.Wait()
	require.EqualValues(t, 1, successes.Load())
}

func TestTryAssign_RetriesOnceOnConflict(t *testing.T) {
	t.Run("second attempt succeeds", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "v1", domain.StateUnassigned, "", time.Time{})
		var calls atomic.Int32
		f.store.SetFault(func(op, _ string) error {
			if calls.Add(1) == 1 {
				return repository.ErrConflict
			}
			return nil
		})

		_, err := f.assign.TryAssign(context.Background(), "v1", "A", domain.StaffActor("A"), f.now)
		require.NoError(t, err)
		require.EqualValues(t, 2, calls.Load())
	})

	t.Run("recurring conflict is surfaced", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "v1", domain.StateUnassigned, "", time.Time{})
		var calls atomic.Int32
		f.store.SetFault(func(string, string) error {
			calls.Add(1)
			return repository.ErrConflict
		})

		_, err := f.assign.TryAssign(context.Background(), "v1", "A", domain.StaffActor("A"), f.now)
		require.True(t, apperrors.IsKind(err, apperrors.CodeConcurrencyConflict))
		require.True(t, apperrors.ToDomainError(err).Retryable())
		require.EqualValues(t, 2, calls.Load())
		require.Equal(t, domain.StateUnassigned, f.video(t, "v1").State)
	})
}

func TestTryAssign_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.assign.TryAssign(context.Background(), "", "A", domain.StaffActor("A"), f.now)
	require.True(t, apperrors.IsKind(err, apperrors.CodeValidation))
	_, err = f.assign.TryAssign(context.Background(), "v1", " ", domain.StaffActor("A"), f.now)
	require.True(t, apperrors.IsKind(err, apperrors.CodeValidation))
}

func TestForceUnassign(t *testing.T) {
	ctx := context.Background()

	t.Run("clears assignment", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "v1", domain.StateInRevision, "A", f.now.Add(-time.Minute))

		video, err := f.assign.ForceUnassign(ctx, "v1", admin(), f.now)
		require.NoError(t, err)
		require.Equal(t, domain.StateUnassigned, video.State)

		stored := f.video(t, "v1")
		require.Nil(t, stored.AssignedStaffID)
		require.Nil(t, stored.AssignedAt)
		require.Equal(t, domain.StateUnassigned, stored.State)

		unassigned := f.events.ofType(events.EventVideoUnassigned)
		require.Len(t, unassigned, 1)
		require.Equal(t, "A", unassigned[0].StaffID)
	})

	t.Run("unassigned video is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "v1", domain.StateUnassigned, "", time.Time{})

		_, err := f.assign.ForceUnassign(ctx, "v1", admin(), f.now)
		require.NoError(t, err)
		require.Empty(t, f.events.ofType(events.EventVideoUnassigned))
	})

	t.Run("terminal video is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "v1", domain.StateDone, "A", f.now)

		_, err := f.assign.ForceUnassign(ctx, "v1", admin(), f.now)
		require.True(t, apperrors.IsKind(err, apperrors.CodeInvalidState))
		require.Equal(t, "A", *f.video(t, "v1").AssignedStaffID)
	})

	t.Run("missing video", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.assign.ForceUnassign(ctx, "missing", admin(), f.now)
		require.True(t, apperrors.IsKind(err, apperrors.CodeNotFound))
	})
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "v1", domain.StateUnassigned, "", time.Time{})

	_, err := f.assign.TryAssign(ctx, "v1", "A", domain.StaffActor("A"), f.now)
	require.NoError(t, err)

	_, err = f.assign.CompleteRevision(ctx, "v1", admin(), f.now)
	require.True(t, apperrors.IsKind(err, apperrors.CodeInvalidState))

	done, err := f.assign.Complete(ctx, "v1", admin(), f.now)
	require.NoError(t, err)
	require.Equal(t, domain.StateDone, done.State)
	require.Equal(t, "A", *done.AssignedStaffID)

	later := f.now.Add(2 * time.Hour)
	revision, err := f.assign.FlagRevision(ctx, "v1", admin(), later)
	require.NoError(t, err)
	require.Equal(t, domain.StateInRevision, revision.State)
	require.True(t, revision.UrgentFlag)
	require.True(t, revision.AssignedAt.Equal(later))

	stored := f.video(t, "v1")
	require.True(t, stored.UrgentFlag)
	require.True(t, stored.AssignedAt.Equal(later))

	revised, err := f.assign.CompleteRevision(ctx, "v1", admin(), later)
	require.NoError(t, err)
	require.Equal(t, domain.StateDoneRevised, revised.State)
	require.False(t, f.video(t, "v1").UrgentFlag)

	_, err = f.assign.Cancel(ctx, "v1", admin(), later)
	require.True(t, apperrors.IsKind(err, apperrors.CodeInvalidState))

	changes := f.events.ofType(events.EventVideoStatusChanged)
	require.Len(t, changes, 3)
}

func TestFlagRevision_AssigneeAtCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "done", domain.StateDone, "A", f.now.Add(-time.Hour))
	for _, id := range []string{"a1", "a2", "a3"} {
		f.seed(t, id, domain.StateInProgress, "A", f.now)
	}

	flagged, err := f.assign.FlagRevision(ctx, "done", admin(), f.now)
	require.NoError(t, err)
	require.Equal(t, domain.StateUnassigned, flagged.State)
	require.Nil(t, flagged.AssignedStaffID)
	require.True(t, flagged.UrgentFlag)

	stored := f.video(t, "done")
	require.Equal(t, domain.StateUnassigned, stored.State)
	require.Nil(t, stored.AssignedStaffID)
	require.Nil(t, stored.AssignedAt)
	require.True(t, stored.UrgentFlag)

	snapshot, err := f.workload.Snapshot(ctx, "A", f.now)
	require.NoError(t, err)
	require.Equal(t, 3, snapshot.TotalActive)
	require.LessOrEqual(t, snapshot.TotalActive, snapshot.MaxConcurrent)

	history, err := f.store.Stores().History.ListByVideo(ctx, "done")
	require.NoError(t, err)
	require.Len(t, history, 2)

	changes := f.events.ofType(events.EventVideoStatusChanged)
	require.Len(t, changes, 1)
	payload := changes[0].Payload.(events.VideoStatusChangedPayload)
	require.Equal(t, domain.StateDone, payload.OldState)
	require.Equal(t, domain.StateUnassigned, payload.NewState)

	// Another editor picks the returned revision up like any pooled video.
	claimed, err := f.assign.TryAssign(ctx, "done", "B", domain.StaffActor("B"), f.now)
	require.NoError(t, err)
	require.Equal(t, "B", *claimed.AssignedStaffID)
}

func TestFlagRevision_AssigneeBelowCapacityKeepsVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "done", domain.StateDone, "A", f.now.Add(-time.Hour))
	f.seed(t, "a1", domain.StateInProgress, "A", f.now)
	f.seed(t, "a2", domain.StateInProgress, "A", f.now)

	flagged, err := f.assign.FlagRevision(ctx, "done", admin(), f.now)
	require.NoError(t, err)
	require.Equal(t, domain.StateInRevision, flagged.State)
	require.Equal(t, "A", *flagged.AssignedStaffID)

	count, err := f.workload.ActiveCount(ctx, "A", f.now)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestCancelReleasesAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "v1", domain.StateInProgress, "A", f.now)

	cancelled, err := f.assign.Cancel(ctx, "v1", admin(), f.now)
	require.NoError(t, err)
	require.Equal(t, domain.StateCancelled, cancelled.State)
	require.Nil(t, cancelled.AssignedStaffID)

	stored := f.video(t, "v1")
	require.Nil(t, stored.AssignedStaffID)
	require.Nil(t, stored.AssignedAt)

	history, err := f.store.Stores().History.ListByVideo(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	count, err := f.workload.ActiveCount(ctx, "A", f.now)
	require.NoError(t, err)
	require.Zero(t, count)
}

func strPtr(s string) *string { return &s }
