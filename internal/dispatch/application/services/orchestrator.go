package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
	"github.com/fieldworks/dispatchd/internal/dispatch/infrastructure/eventbus"
	"github.com/fieldworks/dispatchd/internal/solver"
	"github.com/fieldworks/dispatchd/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxOverflowAttempts bounds the future-day loop.
const DefaultMaxOverflowAttempts = 4

// SolverClient is the orchestrator's view of the routing service.
type SolverClient interface {
	Solve(ctx context.Context, req *solver.Request) (*solver.Response, error)
}

// Orchestrator runs one full replan cycle: a today pass with locked
// constraints, then up to MaxOverflowAttempts future-day passes, then a
// single atomic-intent final write. It owns all cycle-local state; no
// other component mutates it.
type Orchestrator struct {
	store        domain.JobStore
	availability *AvailabilityService
	bundler      *Bundler
	eligibility  *EligibilityService
	assembler    *PayloadAssembler
	solver       SolverClient
	ingester     *ResultIngester
	writer       *WriteApplier
	publisher    eventbus.Publisher

	window      domain.WorkingWindow
	maxOverflow int
	logger      *slog.Logger
	metrics     observability.Metrics
	clock       func() time.Time
}

// OrchestratorParams wires an orchestrator.
type OrchestratorParams struct {
	Store        domain.JobStore
	Availability *AvailabilityService
	Bundler      *Bundler
	Eligibility  *EligibilityService
	Assembler    *PayloadAssembler
	Solver       SolverClient
	Ingester     *ResultIngester
	Writer       *WriteApplier
	Publisher    eventbus.Publisher

	Window              domain.WorkingWindow
	MaxOverflowAttempts int
	Logger              *slog.Logger
	Metrics             observability.Metrics
	Clock               func() time.Time
}

// NewOrchestrator creates the cycle runner.
func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Metrics == nil {
		p.Metrics = observability.NoopMetrics{}
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if p.MaxOverflowAttempts <= 0 {
		p.MaxOverflowAttempts = DefaultMaxOverflowAttempts
	}
	if p.Publisher == nil {
		p.Publisher = eventbus.NewNoopPublisher(p.Logger)
	}
	return &Orchestrator{
		store:        p.Store,
		availability: p.Availability,
		bundler:      p.Bundler,
		eligibility:  p.Eligibility,
		assembler:    p.Assembler,
		solver:       p.Solver,
		ingester:     p.Ingester,
		writer:       p.Writer,
		publisher:    p.Publisher,
		window:       p.Window,
		maxOverflow:  p.MaxOverflowAttempts,
		logger:       p.Logger,
		metrics:      p.Metrics,
		clock:        p.Clock,
	}
}

// cycleState is the mutable state of one replan cycle. jobsToPlan and
// finalAssignments are disjoint at all times; their union stays equal
// to the initially queued job ids.
type cycleState struct {
	technicians      []*domain.Technician
	jobs             map[int64]*domain.Job
	orderedQueued    []*domain.Job
	jobsToPlan       map[int64]bool
	finalAssignments map[int64]domain.Assignment
	solverCalls      int
}

func (c *cycleState) remainingJobs() []*domain.Job {
	out := make([]*domain.Job, 0, len(c.jobsToPlan))
	// Iterate the fetched order, not the map, so passes are deterministic.
	for _, job := range c.orderedQueued {
		if c.jobsToPlan[job.ID] {
			out = append(out, job)
		}
	}
	return out
}

// RunCycle executes one replan cycle. Any fatal error before the final
// write leaves the store unchanged.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	started := o.clock()
	defer o.metrics.Timing("replan.cycle", time.Since(started))

	state, lockedToday, fixedToday, err := o.fetchInitialState(ctx)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	// Pass 1: today, with locked constraints.
	if len(state.jobsToPlan) > 0 {
		o.availability.ComputeToday(state.technicians, lockedToday)
		if err := o.runPass(ctx, state, passInput{
			day:           0,
			technicians:   state.technicians,
			fixedTimeJobs: fixedToday,
			date:          started,
		}); err != nil {
			return err
		}
	}

	// Overflow loop: one future day per iteration. Non-working days
	// advance the counter without a solver call.
	for attempt := 1; attempt <= o.maxOverflow && len(state.jobsToPlan) > 0; attempt++ {
		targetDate := started.AddDate(0, 0, attempt)

		technicians, err := o.store.GetActiveTechnicians(ctx)
		if err != nil {
			return fmt.Errorf("refetching technicians for overflow day %d: %w", attempt, err)
		}

		availabilities := o.availability.ComputeForDate(technicians, targetDate)
		if len(availabilities) == 0 {
			o.logger.Info("no availability on overflow day, skipping",
				"day", attempt,
				"date", targetDate.Format("2006-01-02"),
			)
			continue
		}

		available := make(map[int64]bool, len(availabilities))
		for _, a := range availabilities {
			available[a.TechnicianID] = true
		}
		eligible := make([]*domain.Technician, 0, len(technicians))
		for _, tech := range technicians {
			if available[tech.ID] {
				eligible = append(eligible, tech)
			}
		}

		if err := o.runPass(ctx, state, passInput{
			day:          attempt,
			technicians:  eligible,
			availability: availabilities,
			date:         targetDate,
		}); err != nil {
			return err
		}
	}

	return o.commit(ctx, state, started)
}

// fetchInitialState is step 0: both fetches run in parallel. A nil
// state means the cycle has nothing to do.
func (o *Orchestrator) fetchInitialState(ctx context.Context) (*cycleState, []*domain.Job, []*domain.Job, error) {
	var (
		technicians []*domain.Technician
		jobs        []*domain.Job
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		technicians, err = o.store.GetActiveTechnicians(gctx)
		if err != nil {
			return fmt.Errorf("fetching technicians: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		jobs, err = o.store.GetRelevantJobs(gctx)
		if err != nil {
			return fmt.Errorf("fetching jobs: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	if len(technicians) == 0 {
		o.logger.Info("no active technicians, nothing to plan")
		return nil, nil, nil, nil
	}

	state := &cycleState{
		technicians:      technicians,
		jobs:             make(map[int64]*domain.Job, len(jobs)),
		jobsToPlan:       make(map[int64]bool),
		finalAssignments: make(map[int64]domain.Assignment),
	}
	var lockedToday, fixedToday []*domain.Job
	for _, job := range jobs {
		state.jobs[job.ID] = job
		switch {
		case job.Status == domain.StatusQueued:
			state.jobsToPlan[job.ID] = true
			state.orderedQueued = append(state.orderedQueued, job)
		case job.Status.Locked():
			lockedToday = append(lockedToday, job)
			if job.Status == domain.StatusFixedTime && job.FixedScheduleTime != nil {
				fixedToday = append(fixedToday, job)
			}
		}
	}

	if len(state.jobsToPlan) == 0 {
		o.logger.Info("no queued jobs, nothing to plan")
		return nil, nil, nil, nil
	}

	o.logger.Info("replan cycle starting",
		"technicians", len(technicians),
		"queued_jobs", len(state.jobsToPlan),
		"locked_jobs", len(lockedToday),
	)
	return state, lockedToday, fixedToday, nil
}

// passInput selects the planning frame for one pass.
type passInput struct {
	day           int
	technicians   []*domain.Technician
	availability  []domain.TechnicianAvailability
	fixedTimeJobs []*domain.Job
	date          time.Time
}

// runPass executes availability's downstream pipeline for one day:
// bundle, filter, assemble, solve, ingest, update state. The per-pass
// item map is built here and discarded when the pass ends.
func (o *Orchestrator) runPass(ctx context.Context, state *cycleState, in passInput) error {
	passStart := o.clock()
	defer o.metrics.Timing("replan.pass", time.Since(passStart), observability.T("day", strconv.Itoa(in.day)))

	items := o.bundler.Bundle(state.remainingJobs())
	plannable, err := o.eligibility.Filter(ctx, items, in.technicians)
	if err != nil {
		return fmt.Errorf("eligibility on day %d: %w", in.day, err)
	}

	itemMap := make(map[string]domain.PlannableItem, len(plannable))
	for _, p := range plannable {
		itemMap[p.Item.ItemID()] = p
	}

	req, err := o.assembler.Assemble(ctx, PayloadInput{
		Technicians:   in.technicians,
		Availability:  in.availability,
		Items:         plannable,
		FixedTimeJobs: in.fixedTimeJobs,
		Date:          in.date,
	})
	if err != nil {
		return fmt.Errorf("assembling payload for day %d: %w", in.day, err)
	}
	if req == nil {
		o.logger.Info("no solvable items, skipping pass", "day", in.day)
		return nil
	}

	resp, err := o.solver.Solve(ctx, req)
	state.solverCalls++
	o.metrics.Counter("replan.solver.calls", 1)
	if err != nil {
		return fmt.Errorf("solver call on day %d: %w", in.day, err)
	}

	result := o.ingester.Ingest(resp)
	o.applyPassResult(state, result, itemMap, in.day)
	return nil
}

// applyPassResult moves ingested assignments into finalAssignments and
// resolves unassigned item ids back to jobsToPlan.
func (o *Orchestrator) applyPassResult(state *cycleState, result IngestResult, itemMap map[string]domain.PlannableItem, day int) {
	assign := func(jobID, techID int64, start time.Time) {
		if !state.jobsToPlan[jobID] {
			o.logger.Warn("solver assigned a job that was not planned this cycle, ignoring",
				"job_id", jobID,
				"day", day,
			)
			return
		}
		state.finalAssignments[jobID] = domain.Assignment{
			TechnicianID:   techID,
			EstimatedSched: start,
		}
		delete(state.jobsToPlan, jobID)
	}

	for _, a := range result.Assignments {
		assign(a.JobID, a.TechnicianID, a.EstimatedSched)
	}

	// Bundle stops expand to their constituents here, at the ingestion
	// boundary; every member inherits the bundle's start.
	for _, b := range result.BundleAssignments {
		item, ok := itemMap[b.ItemID]
		if !ok {
			o.logger.Warn("solver returned unknown bundle id, ignoring",
				"item_id", b.ItemID,
				"day", day,
			)
			continue
		}
		for _, job := range item.Item.Jobs() {
			assign(job.ID, b.TechnicianID, b.EstimatedSched)
		}
	}

	for _, itemID := range result.UnassignedItemIDs {
		item, ok := itemMap[itemID]
		if !ok {
			o.logger.Warn("solver returned unknown unassigned item id, ignoring",
				"item_id", itemID,
				"day", day,
			)
			continue
		}
		for _, job := range item.Item.Jobs() {
			if state.jobsToPlan[job.ID] {
				continue
			}
			if _, assigned := state.finalAssignments[job.ID]; assigned {
				continue
			}
			fetched, known := state.jobs[job.ID]
			if known && fetched.Status == domain.StatusQueued {
				o.logger.Warn("unassigned job missing from planning set, re-adding",
					"job_id", job.ID,
					"day", day,
				)
				state.jobsToPlan[job.ID] = true
			}
		}
	}
}

// commit performs the single final write and publishes cycle events.
func (o *Orchestrator) commit(ctx context.Context, state *cycleState, started time.Time) error {
	updates := make([]domain.JobUpdate, 0, len(state.finalAssignments)+len(state.jobsToPlan))

	for _, job := range state.orderedQueued {
		if assignment, ok := state.finalAssignments[job.ID]; ok {
			techID := assignment.TechnicianID
			sched := assignment.EstimatedSched
			updates = append(updates, domain.JobUpdate{
				JobID:              job.ID,
				Status:             domain.StatusQueued,
				AssignedTechnician: &techID,
				EstimatedSched:     &sched,
			})
		} else if state.jobsToPlan[job.ID] {
			updates = append(updates, domain.JobUpdate{
				JobID:  job.ID,
				Status: domain.StatusPendingReview,
			})
		}
	}

	if len(updates) == 0 {
		o.logger.Info("nothing to write, cycle complete")
		return nil
	}

	if err := o.writer.Apply(ctx, updates); err != nil {
		return fmt.Errorf("final write: %w", err)
	}

	o.metrics.Gauge("replan.jobs.planned", float64(len(state.finalAssignments)))
	o.metrics.Gauge("replan.jobs.pending_review", float64(len(state.jobsToPlan)))
	o.logger.Info("replan cycle complete",
		"planned", len(state.finalAssignments),
		"pending_review", len(state.jobsToPlan),
		"solver_calls", state.solverCalls,
	)

	o.publishCycleEvents(ctx, state, started)
	return nil
}

// publishCycleEvents is best-effort: failures are logged, never fatal.
func (o *Orchestrator) publishCycleEvents(ctx context.Context, state *cycleState, started time.Time) {
	correlationID := observability.CorrelationIDFromContext(ctx)

	summary := domain.ReplanCompletedEvent{
		CorrelationID: correlationID,
		PlannedJobs:   len(state.finalAssignments),
		PendingReview: len(state.jobsToPlan),
		SolverCalls:   state.solverCalls,
		StartedAt:     started,
		CompletedAt:   o.clock(),
	}
	if payload, err := json.Marshal(summary); err == nil {
		if err := o.publisher.Publish(ctx, domain.EventReplanCompleted, payload); err != nil {
			o.logger.Warn("failed to publish replan summary event", "error", err)
		}
	}

	for jobID := range state.jobsToPlan {
		job := state.jobs[jobID]
		if job == nil {
			continue
		}
		event := domain.JobPendingReviewEvent{
			CorrelationID: correlationID,
			JobID:         job.ID,
			OrderID:       job.OrderID,
			Priority:      job.Priority,
		}
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := o.publisher.Publish(ctx, domain.EventJobPendingReview, payload); err != nil {
			o.logger.Warn("failed to publish pending-review event",
				"job_id", job.ID,
				"error", err,
			)
		}
	}
}
