package domain

import "time"

// Equipment is one tool carried in a van.
type Equipment struct {
	ID    int64
	Model string
}

// Technician is a field worker as joined from the store at step 0.
// The availability calculator fills EarliestAvailable and StartLocation
// for today's pass; both are meaningless before that.
type Technician struct {
	ID       int64
	UserID   int64
	VanID    *int64
	Workload int

	// CurrentLocation is where the van is right now; only meaningful
	// for today's pass.
	CurrentLocation *Coordinate
	// HomeLocation is required for future-day passes. Technicians
	// without one are excluded from those passes.
	HomeLocation *Coordinate

	EarliestAvailable time.Time
	StartLocation     *Coordinate
}

// TechnicianAvailability is one technician's window for a future-day
// pass: standard working hours on the target date, starting from home.
type TechnicianAvailability struct {
	TechnicianID  int64
	WindowStart   time.Time
	WindowEnd     time.Time
	StartLocation Coordinate
}
