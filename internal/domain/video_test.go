package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLifecycleStateClassification(t *testing.T) {
	require.True(t, StateInProgress.IsActive())
	require.True(t, StateInRevision.IsActive())
	require.False(t, StateUnassigned.IsActive())
	require.False(t, StateDone.IsActive())

	for _, s := range []LifecycleState{StateDone, StateDoneRevised, StateCancelled} {
		require.True(t, s.IsTerminal(), s)
	}
	require.False(t, StateUnassigned.IsTerminal())
	require.False(t, LifecycleState("BOGUS").Valid())
}

func TestVideoIsUrgent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(6 * time.Hour)
	later := now.Add(72 * time.Hour)

	t.Run("explicit flag wins", func(t *testing.T) {
		v := Video{State: StateDone, UrgentFlag: true}
		require.True(t, v.IsUrgent(now, 24*time.Hour))
	})

	t.Run("deadline inside window", func(t *testing.T) {
		v := Video{State: StateInProgress, DeliveryDeadline: &soon}
		require.True(t, v.IsUrgent(now, 24*time.Hour))
	})

	t.Run("deadline outside window", func(t *testing.T) {
		v := Video{State: StateInProgress, DeliveryDeadline: &later}
		require.False(t, v.IsUrgent(now, 24*time.Hour))
	})

	t.Run("zero window disables deadline rule", func(t *testing.T) {
		v := Video{State: StateInProgress, DeliveryDeadline: &soon}
		require.False(t, v.IsUrgent(now, 0))
	})

	t.Run("terminal video ignores deadline", func(t *testing.T) {
		v := Video{State: StateDone, DeliveryDeadline: &soon}
		require.False(t, v.IsUrgent(now, 24*time.Hour))
	})
}

func TestVideoAssignmentExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	staff := "staff-1"
	old := now.Add(-20 * time.Minute)
	recent := now.Add(-10 * time.Minute)

	require.True(t, (&Video{AssignedStaffID: &staff, AssignedAt: &old, State: StateInProgress}).AssignmentExpired(15*time.Minute, now))
	require.False(t, (&Video{AssignedStaffID: &staff, AssignedAt: &recent, State: StateInProgress}).AssignmentExpired(15*time.Minute, now))
	require.False(t, (&Video{AssignedStaffID: &staff, AssignedAt: &old, State: StateDone}).AssignmentExpired(15*time.Minute, now))
	require.False(t, (&Video{AssignedStaffID: &staff, AssignedAt: &old, State: StateInProgress, Deleted: true}).AssignmentExpired(15*time.Minute, now))
}

func TestStaffLimitBlocks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var missing *StaffLimit
	require.False(t, missing.Blocks(now))

	limit := &StaffLimit{Active: true, LockUntil: now.Add(time.Hour)}
	require.True(t, limit.Blocks(now))
	require.False(t, limit.Blocks(now.Add(time.Hour)), "lock_until is exclusive")

	limit.Active = false
	require.False(t, limit.Blocks(now))
}

func TestStaffLimitDailyQuota(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	maxPerDay := 2

	limit := &StaffLimit{Active: true, LockUntil: now.Add(time.Hour), MaxPerDay: &maxPerDay}
	require.False(t, limit.Blocks(now), "a quota window does not block outright")

	quota, ok := limit.DailyQuota(now)
	require.True(t, ok)
	require.Equal(t, 2, quota)

	_, ok = limit.DailyQuota(now.Add(2 * time.Hour))
	require.False(t, ok)

	var missing *StaffLimit
	_, ok = missing.DailyQuota(now)
	require.False(t, ok)
}
