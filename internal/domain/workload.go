package domain

// ActiveCounts breaks a staff member's active workload down by contributing condition.
// Total is deduplicated: a video matching several conditions counts once.
type ActiveCounts struct {
	InProgress int
	InRevision int
	Urgent     int
	Total      int
}

// WorkloadSnapshot is computed on demand and never cached.
type WorkloadSnapshot struct {
	StaffID          string
	TotalActive      int
	InProgress       int
	InRevision       int
	Urgent           int
	MaxConcurrent    int
	CanAcceptNewTask bool
}
