package dto

import (
	"time"

	"github.com/spec-kit/video-assignment-service/internal/domain"
)

// StaffCreateRequest registers a staff member in the local directory.
type StaffCreateRequest struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	Role         domain.StaffRole `json:"role"`
	SupervisorID *string          `json:"supervisor_id"`
}

// StaffResponse payload.
type StaffResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	Role         domain.StaffRole `json:"role"`
	SupervisorID *string          `json:"supervisor_id,omitempty"`
	Active       bool             `json:"active"`
}

// AuthResponse returns token metadata.
type AuthResponse struct {
	Token     string           `json:"token"`
	StaffID   string           `json:"staff_id"`
	Role      domain.StaffRole `json:"role"`
	ExpiresAt time.Time        `json:"expires_at"`
}
