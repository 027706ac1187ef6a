package domain

import "context"

// JobStore is the persistence surface the planner consumes. The cycle
// reads through it at step 0 (and once per overflow day for fresh
// technician records) and commits through UpdateJob in one final batch.
type JobStore interface {
	// GetActiveTechnicians returns active technicians joined with
	// their van's current coordinates and home-address coordinates.
	GetActiveTechnicians(ctx context.Context) ([]*Technician, error)

	// GetRelevantJobs returns all jobs with status in
	// {queued, en_route, in_progress, fixed_time}, including address
	// coordinates and service category/id.
	GetRelevantJobs(ctx context.Context) ([]*Job, error)

	// GetJobsByStatus returns jobs in any of the given statuses. The
	// orchestrator does not call this inside the loop; it reuses the
	// job map seeded at step 0.
	GetJobsByStatus(ctx context.Context, statuses []JobStatus) ([]*Job, error)

	// GetEquipmentForVans batch-fetches van contents.
	GetEquipmentForVans(ctx context.Context, vanIDs []int64) (map[int64][]Equipment, error)

	// GetRequiredEquipmentForJob resolves the equipment models a job
	// needs, keyed by service category, service id and the order
	// vehicle's year/make/model. Empty when undeterminable.
	GetRequiredEquipmentForJob(ctx context.Context, job *Job) ([]string, error)

	// GetYmmIDForOrder resolves the vehicle year/make/model id keying
	// the equipment-requirements table.
	GetYmmIDForOrder(ctx context.Context, orderID int64) (int64, error)

	// UpdateJob writes one record of the final batch. Fields omitted
	// from the update are untouched.
	UpdateJob(ctx context.Context, update JobUpdate) error
}
