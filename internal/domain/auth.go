package domain

import "time"

// SubjectType differentiates token subjects.
type SubjectType string

const (
	SubjectTypeStaff SubjectType = "STAFF"
)

// Token represents issued bearer token metadata.
type Token struct {
	SubjectID string
	Subject   SubjectType
	Role      *StaffRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}
