package domain

import (
	"fmt"
	"time"
)

// SchedulableItem is one atomic unit the solver places: either a single
// job or a bundle of jobs sharing an order. The two variants are
// distinct types; downstream code switches on the concrete type and
// expands bundles to job ids only at the ingestion boundary.
type SchedulableItem interface {
	// ItemID is the solver-facing identity: job_<id> or bundle_<orderId>.
	ItemID() string
	Priority() int
	Duration() time.Duration
	// Location is the service address; nil excludes the item from a pass.
	Location() *Coordinate
	// Jobs returns the constituent jobs, length 1 for a single job.
	Jobs() []*Job
}

// SingleJob wraps exactly one job.
type SingleJob struct {
	Job *Job
}

func (s SingleJob) ItemID() string          { return fmt.Sprintf("job_%d", s.Job.ID) }
func (s SingleJob) Priority() int           { return s.Job.Priority }
func (s SingleJob) Duration() time.Duration { return s.Job.Duration() }
func (s SingleJob) Location() *Coordinate   { return s.Job.Address }
func (s SingleJob) Jobs() []*Job            { return []*Job{s.Job} }

// Bundle groups two or more jobs sharing an order id, and hence an
// address. It is scheduled as one stop.
type Bundle struct {
	OrderID int64
	Members []*Job
}

func (b Bundle) ItemID() string { return fmt.Sprintf("bundle_%d", b.OrderID) }

// Priority is the highest priority among members.
func (b Bundle) Priority() int {
	p := 0
	for _, j := range b.Members {
		if j.Priority > p {
			p = j.Priority
		}
	}
	return p
}

// Duration is the sum of member durations.
func (b Bundle) Duration() time.Duration {
	var d time.Duration
	for _, j := range b.Members {
		d += j.Duration()
	}
	return d
}

// Location is the shared address. The store guarantees members share
// one; the first non-nil address wins.
func (b Bundle) Location() *Coordinate {
	for _, j := range b.Members {
		if j.Address != nil {
			return j.Address
		}
	}
	return nil
}

func (b Bundle) Jobs() []*Job { return b.Members }

// PlannableItem is a schedulable item annotated by the eligibility
// filter with its equipment requirements and the technicians able to
// serve it. The eligible list preserves technician input order.
type PlannableItem struct {
	Item                SchedulableItem
	RequiredEquipment   []string
	EligibleTechnicians []int64
}
