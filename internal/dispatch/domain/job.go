// Package domain holds the value types the replan cycle operates on.
// Technicians, vans and equipment are joined into plain records at the
// store boundary; nothing in this package reaches back into storage.
package domain

import "time"

// JobStatus is the lifecycle state of a job in the store.
type JobStatus string

const (
	// StatusQueued marks a job awaiting (re)planning. It is also the
	// terminal "planned" status: a planned job stays queued with a
	// technician and an estimated start time filled in.
	StatusQueued JobStatus = "queued"
	// StatusEnRoute marks a job a technician is driving to.
	StatusEnRoute JobStatus = "en_route"
	// StatusInProgress marks a job being worked.
	StatusInProgress JobStatus = "in_progress"
	// StatusFixedTime marks a job with a customer-committed start time.
	StatusFixedTime JobStatus = "fixed_time"
	// StatusPendingReview marks a job the planner could not place
	// within the horizon; a human must intervene.
	StatusPendingReview JobStatus = "pending_review"
)

// Locked reports whether a job in this status consumes technician time
// but must never be replanned.
func (s JobStatus) Locked() bool {
	return s == StatusEnRoute || s == StatusInProgress || s == StatusFixedTime
}

// Job is one unit of field work, read-only for the duration of a cycle.
type Job struct {
	ID              int64
	OrderID         int64
	Address         *Coordinate
	Priority        int
	DurationMinutes int
	ServiceCategory string
	ServiceID       int64
	Status          JobStatus

	// FixedScheduleTime is meaningful only when Status is fixed_time.
	FixedScheduleTime *time.Time
	// AssignedTechnician and EstimatedSched carry the current plan, if any.
	AssignedTechnician *int64
	EstimatedSched     *time.Time
}

// Duration returns the job's service duration.
func (j *Job) Duration() time.Duration {
	return time.Duration(j.DurationMinutes) * time.Minute
}

// EffectiveStart returns when the job occupies its technician: the
// fixed start for fixed_time jobs, the estimated start otherwise.
func (j *Job) EffectiveStart() (time.Time, bool) {
	if j.Status == StatusFixedTime && j.FixedScheduleTime != nil {
		return *j.FixedScheduleTime, true
	}
	if j.EstimatedSched != nil {
		return *j.EstimatedSched, true
	}
	return time.Time{}, false
}

// Assignment is the planner's commitment for one job.
type Assignment struct {
	TechnicianID   int64
	EstimatedSched time.Time
}

// JobUpdate is one record of the final batch write. Nil pointer fields
// are written as NULL; the status is always written.
type JobUpdate struct {
	JobID              int64
	Status             JobStatus
	AssignedTechnician *int64
	EstimatedSched     *time.Time
}
