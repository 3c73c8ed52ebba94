package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleEditor     StaffRole = "EDITOR"
	StaffRoleSupervisor StaffRole = "SUPERVISOR"
	StaffRoleAdmin      StaffRole = "ADMIN"
)

// StaffMember models an editor or administrator. SupervisorID is the manager of record
// notified when one of the member's videos is reclaimed.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	Role         StaffRole
	SupervisorID *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
