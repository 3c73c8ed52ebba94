package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func TestStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := New()
	videos := store.Stores().Videos

	video := &domain.Video{Title: "intro"}
	require.NoError(t, videos.Create(ctx, video))
	require.NotEmpty(t, video.ID)

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	err := videos.CompareAndSwap(ctx, repository.VideoChange{
		VideoID:       video.ID,
		ExpectedState: domain.StateUnassigned,
		NewState:      domain.StateInProgress,
		NewStaffID:    ptr("staff-1"),
		NewAssignedAt: &at,
	})
	require.NoError(t, err)

	t.Run("stale expected state conflicts", func(t *testing.T) {
		err := videos.CompareAndSwap(ctx, repository.VideoChange{
			VideoID:       video.ID,
			ExpectedState: domain.StateUnassigned,
			NewState:      domain.StateInProgress,
			NewStaffID:    ptr("staff-2"),
			NewAssignedAt: &at,
		})
		require.ErrorIs(t, err, repository.ErrConflict)
	})

	t.Run("stale assigned_at conflicts", func(t *testing.T) {
		other := at.Add(time.Second)
		err := videos.CompareAndSwap(ctx, repository.VideoChange{
			VideoID:            video.ID,
			ExpectedState:      domain.StateInProgress,
			ExpectedAssignedAt: &other,
			NewState:           domain.StateUnassigned,
		})
		require.ErrorIs(t, err, repository.ErrConflict)
	})

	got, err := videos.GetByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, "staff-1", *got.AssignedStaffID)
	require.Equal(t, domain.StateInProgress, got.State)

	_, err = videos.GetByID(ctx, "missing")
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := New()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, s repository.Stores) error {
		require.NoError(t, s.Videos.Create(ctx, &domain.Video{ID: "v1"}))
		require.NoError(t, s.Limits.Create(ctx, &domain.StaffLimit{StaffID: "s1", Active: true}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Stores().Videos.GetByID(ctx, "v1")
	require.ErrorIs(t, err, pgx.ErrNoRows)
	limits, err := store.Stores().Limits.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, limits)
}

func TestStore_ExpiredOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	store := New()
	videos := store.Stores().Videos
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	seed := []struct {
		id    string
		age   time.Duration
		state domain.LifecycleState
		del   bool
	}{
		{"newest-expired", 16 * time.Minute, domain.StateInProgress, false},
		{"oldest", 3 * time.Hour, domain.StateInRevision, false},
		{"middle", time.Hour, domain.StateInProgress, false},
		{"fresh", 5 * time.Minute, domain.StateInProgress, false},
		{"done", 3 * time.Hour, domain.StateDone, false},
		{"deleted", 3 * time.Hour, domain.StateInProgress, true},
	}
	for _, s := range seed {
		at := now.Add(-s.age)
		require.NoError(t, videos.Create(ctx, &domain.Video{
			ID:              s.id,
			State:           s.state,
			AssignedStaffID: ptr("staff-1"),
			AssignedAt:      &at,
			Deleted:         s.del,
		}))
	}

	filter := repository.ExpiredFilter{Cutoff: now.Add(-15 * time.Minute)}
	count, err := videos.CountExpired(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	list, err := videos.ListExpired(ctx, filter)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{"oldest", "middle", "newest-expired"}, []string{list[0].ID, list[1].ID, list[2].ID})

	filter.Limit = 1
	list, err = videos.ListExpired(ctx, filter)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "oldest", list[0].ID)
}

func TestStore_FaultHook(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.Stores().Videos.Create(ctx, &domain.Video{ID: "v1"}))

	boom := errors.New("disk on fire")
	store.SetFault(func(op, videoID string) error {
		if videoID == "v1" {
			return boom
		}
		return nil
	})

	err := store.Stores().Videos.CompareAndSwap(ctx, repository.VideoChange{
		VideoID:       "v1",
		ExpectedState: domain.StateUnassigned,
		NewState:      domain.StateCancelled,
	})
	require.ErrorIs(t, err, boom)
}
