package events

import (
	"time"

	"github.com/spec-kit/video-assignment-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventVideoAssigned      EventType = "video_assigned"
	EventVideoUnassigned    EventType = "video_unassigned"
	EventVideoReclaimed     EventType = "video_reclaimed"
	EventVideoStatusChanged EventType = "video_status_changed"
	EventStaffLimitSet      EventType = "staff_limit_set"
	EventStaffLimitRemoved  EventType = "staff_limit_removed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.ActorType `json:"type"`
	StaffID *string          `json:"staff_id,omitempty"`
}

// ActorFrom converts a domain actor.
func ActorFrom(a domain.Actor) Actor {
	actor := Actor{Type: a.Type}
	if a.StaffID != "" {
		id := a.StaffID
		actor.StaffID = &id
	}
	return actor
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	VideoID   string    `json:"video_id,omitempty"`
	StaffID   string    `json:"staff_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// VideoAssignedPayload payload.
type VideoAssignedPayload struct {
	OldStaffID *string   `json:"old_staff_id,omitempty"`
	NewStaffID string    `json:"new_staff_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// VideoUnassignedPayload payload.
type VideoUnassignedPayload struct {
	PreviousStaffID *string               `json:"previous_staff_id,omitempty"`
	OldState        domain.LifecycleState `json:"old_state"`
}

// VideoReclaimedPayload payload.
type VideoReclaimedPayload struct {
	PreviousStaffID string                `json:"previous_staff_id"`
	AssignedAt      time.Time             `json:"assigned_at"`
	OldState        domain.LifecycleState `json:"old_state"`
	Manual          bool                  `json:"manual"`
}

// VideoStatusChangedPayload payload.
type VideoStatusChangedPayload struct {
	OldState domain.LifecycleState `json:"old_state"`
	NewState domain.LifecycleState `json:"new_state"`
	StaffID  *string               `json:"staff_id,omitempty"`
}

// StaffLimitPayload payload.
type StaffLimitPayload struct {
	LockUntil *time.Time `json:"lock_until,omitempty"`
	MaxPerDay *int       `json:"max_per_day,omitempty"`
}
