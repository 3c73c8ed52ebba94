package domain

import "time"

// StaffLimit restricts a staff member until LockUntil.
//
// Without MaxPerDay the limit is a hard lock: no new videos until LockUntil.
// With MaxPerDay the limit is a quota window: until LockUntil the staff member may
// receive at most MaxPerDay videos per calendar day.
type StaffLimit struct {
	ID        string
	StaffID   string
	Active    bool
	LockUntil time.Time
	MaxPerDay *int
	CreatedAt time.Time
}

// InForce reports whether the limit applies at now. LockUntil is exclusive.
func (l *StaffLimit) InForce(now time.Time) bool {
	return l != nil && l.Active && l.LockUntil.After(now)
}

// Blocks reports whether the limit forbids any assignment at now.
func (l *StaffLimit) Blocks(now time.Time) bool {
	return l.InForce(now) && l.MaxPerDay == nil
}

// DailyQuota returns the per-day quota in force at now, if any.
func (l *StaffLimit) DailyQuota(now time.Time) (int, bool) {
	if !l.InForce(now) || l.MaxPerDay == nil {
		return 0, false
	}
	return *l.MaxPerDay, true
}
