package dto

import (
	"time"

	"github.com/spec-kit/video-assignment-service/internal/domain"
)

// AssignRequest names the staff member an admin assigns a video to.
type AssignRequest struct {
	StaffID string `json:"staff_id"`
}

// VideoResponse payload.
type VideoResponse struct {
	ID               string                `json:"id"`
	Title            string                `json:"title"`
	State            domain.LifecycleState `json:"state"`
	AssignedStaffID  *string               `json:"assigned_staff_id"`
	AssignedAt       *time.Time            `json:"assigned_at"`
	UrgentFlag       bool                  `json:"urgent_flag"`
	DeliveryDeadline *time.Time            `json:"delivery_deadline,omitempty"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// WorkloadResponse payload.
type WorkloadResponse struct {
	StaffID          string `json:"staff_id"`
	TotalActive      int    `json:"total_active"`
	InProgress       int    `json:"in_progress"`
	InRevision       int    `json:"in_revision"`
	Urgent           int    `json:"urgent"`
	MaxConcurrent    int    `json:"max_concurrent"`
	CanAcceptNewTask bool   `json:"can_accept_new_task"`
}

// StaffLimitRequest sets a temporary lock or a daily quota window.
type StaffLimitRequest struct {
	LockUntil *time.Time `json:"lock_until"`
	MaxPerDay *int       `json:"max_per_day"`
}

// StaffLimitResponse payload.
type StaffLimitResponse struct {
	ID        string    `json:"id"`
	StaffID   string    `json:"staff_id"`
	LockUntil time.Time `json:"lock_until"`
	MaxPerDay *int      `json:"max_per_day"`
	Blocking  bool      `json:"blocking"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpiredResponse lists assignments older than the timeout.
type ExpiredResponse struct {
	Count          int             `json:"count"`
	TimeoutSeconds int64           `json:"timeout_seconds"`
	Videos         []VideoResponse `json:"videos"`
}
