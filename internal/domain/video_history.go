package domain

import "time"

// VideoChangeType captures what changed in a history entry.
type VideoChangeType string

const (
	ChangeTypeAssignment VideoChangeType = "ASSIGNMENT_CHANGE"
	ChangeTypeReclaim    VideoChangeType = "RECLAIM"
	ChangeTypeStatus     VideoChangeType = "STATUS_CHANGE"
)

// ActorType indicates who performed a change.
type ActorType string

const (
	ActorTypeStaff  ActorType = "STAFF"
	ActorTypeSystem ActorType = "SYSTEM"
)

// Actor identifies the caller of a state-changing operation.
type Actor struct {
	Type    ActorType
	StaffID string
}

// SystemActor is used for scheduler-driven changes.
var SystemActor = Actor{Type: ActorTypeSystem}

// StaffActor builds an actor for a staff-initiated change.
func StaffActor(staffID string) Actor {
	return Actor{Type: ActorTypeStaff, StaffID: staffID}
}

// VideoHistory is an immutable audit trail entry.
type VideoHistory struct {
	ID            string
	VideoID       string
	ChangedByType ActorType
	ChangedByID   *string
	ChangeType    VideoChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
