package domain

import "time"

// LifecycleState enumerates the production states of a video.
type LifecycleState string

const (
	StateUnassigned  LifecycleState = "UNASSIGNED"
	StateInProgress  LifecycleState = "IN_PROGRESS"
	StateInRevision  LifecycleState = "IN_REVISION"
	StateDone        LifecycleState = "DONE"
	StateDoneRevised LifecycleState = "DONE_REVISED"
	StateCancelled   LifecycleState = "CANCELLED"
)

// ActiveStates are the states that occupy a staff member's capacity and can expire.
var ActiveStates = []LifecycleState{StateInProgress, StateInRevision}

// IsActive reports whether the state counts against the concurrency cap.
func (s LifecycleState) IsActive() bool {
	return s == StateInProgress || s == StateInRevision
}

// IsTerminal reports whether no further assignment transitions apply.
func (s LifecycleState) IsTerminal() bool {
	return s == StateDone || s == StateDoneRevised || s == StateCancelled
}

// Valid reports whether s is a known state.
func (s LifecycleState) Valid() bool {
	switch s {
	case StateUnassigned, StateInProgress, StateInRevision, StateDone, StateDoneRevised, StateCancelled:
		return true
	}
	return false
}

// Video is the unit of production work handed out to staff.
//
// AssignedAt is set exactly when AssignedStaffID is set; the store enforces the pairing.
type Video struct {
	ID               string
	Title            string
	AssignedStaffID  *string
	AssignedAt       *time.Time
	State            LifecycleState
	UrgentFlag       bool
	DeliveryDeadline *time.Time
	Deleted          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAssigned reports whether the video currently has an assignee.
func (v *Video) IsAssigned() bool {
	return v.AssignedStaffID != nil && v.AssignedAt != nil
}

// IsUrgent applies the urgency rule: an explicit flag, or a delivery deadline that falls
// inside window while the video is still open. A zero window disables the deadline rule.
func (v *Video) IsUrgent(now time.Time, window time.Duration) bool {
	if v.UrgentFlag {
		return true
	}
	if window <= 0 || v.DeliveryDeadline == nil || v.State.IsTerminal() {
		return false
	}
	return v.DeliveryDeadline.Before(now.Add(window))
}

// AssignmentExpired reports whether an active assignment is older than timeout at now.
func (v *Video) AssignmentExpired(timeout time.Duration, now time.Time) bool {
	if v.Deleted || !v.IsAssigned() || !v.State.IsActive() {
		return false
	}
	return v.AssignedAt.Before(now.Add(-timeout))
}
