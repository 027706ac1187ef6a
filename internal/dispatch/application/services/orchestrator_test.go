package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
	"github.com/fieldworks/dispatchd/internal/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(store *mockJobStore, sv *mockSolver, now time.Time) *Orchestrator {
	logger := quietLogger()
	window := testWindow()
	clock := fixedClock(now)
	return NewOrchestrator(OrchestratorParams{
		Store:        store,
		Availability: NewAvailabilityService(window, logger, clock),
		Bundler:      NewBundler(),
		Eligibility:  NewEligibilityService(store, logger),
		Assembler:    testAssembler(),
		Solver:       sv,
		Ingester:     NewResultIngester(logger),
		Writer:       NewWriteApplier(store, logger),
		Window:       window,
		Logger:       logger,
		Clock:        clock,
	})
}

func cycleTechnicians() []*domain.Technician {
	home1 := domain.Coordinate{Lat: 30.50, Lng: -97.80}
	home2 := domain.Coordinate{Lat: 30.55, Lng: -97.85}
	van1 := domain.Coordinate{Lat: 30.30, Lng: -97.70}
	van2 := domain.Coordinate{Lat: 30.35, Lng: -97.75}
	return []*domain.Technician{
		{ID: 1, VanID: ptrInt64(1), CurrentLocation: &van1, HomeLocation: &home1},
		{ID: 2, VanID: ptrInt64(2), CurrentLocation: &van2, HomeLocation: &home2},
	}
}

func cycleEquipment() map[int64][]domain.Equipment {
	return map[int64][]domain.Equipment{
		1: {{ID: 1, Model: "ToolA"}},
		2: {{ID: 2, Model: "ToolC"}},
	}
}

func queuedJob(id, orderID int64) *domain.Job {
	return &domain.Job{
		ID:              id,
		OrderID:         orderID,
		Status:          domain.StatusQueued,
		Priority:        5,
		DurationMinutes: 60,
		Address:         &domain.Coordinate{Lat: 30.10 + float64(id)/100, Lng: -97.10 - float64(id)/100},
	}
}

func jobStop(jobID int64, start time.Time) solver.Stop {
	return solver.Stop{
		ItemID:       domain.SingleJob{Job: &domain.Job{ID: jobID}}.ItemID(),
		StartTimeISO: start.Format(time.RFC3339),
	}
}

func TestRunCycleHappyPathToday(t *testing.T) {
	now := monday.Add(10 * time.Hour)
	store := &mockJobStore{
		technicians:  cycleTechnicians(),
		vanEquipment: cycleEquipment(),
		jobs:         []*domain.Job{queuedJob(1, 10), queuedJob(2, 20), queuedJob(3, 30)},
	}
	sv := &mockSolver{responses: []*solver.Response{{
		Status: solver.StatusSuccess,
		Routes: []solver.Route{
			{TechnicianID: 1, Stops: []solver.Stop{jobStop(1, now.Add(time.Hour)), jobStop(3, now.Add(3*time.Hour))}},
			{TechnicianID: 2, Stops: []solver.Stop{jobStop(2, now.Add(time.Hour))}},
		},
	}}}

	orch := newTestOrchestrator(store, sv, now)
	require.NoError(t, orch.RunCycle(context.Background()))

	assert.Equal(t, 1, sv.calls, "everything placed today, no overflow passes")
	assert.Equal(t, 1, store.technicianFetches)
	require.Len(t, store.updates, 3)
	for _, jobID := range []int64{1, 2, 3} {
		update, ok := store.updateFor(jobID)
		require.True(t, ok)
		assert.Equal(t, domain.StatusQueued, update.Status)
		require.NotNil(t, update.AssignedTechnician)
		require.NotNil(t, update.EstimatedSched)
	}
	update, _ := store.updateFor(2)
	assert.Equal(t, int64(2), *update.AssignedTechnician)
	assert.True(t, update.EstimatedSched.Equal(now.Add(time.Hour)))
}

func TestRunCycleNoTechnicians(t *testing.T) {
	store := &mockJobStore{jobs: []*domain.Job{queuedJob(1, 10)}}
	sv := &mockSolver{}

	orch := newTestOrchestrator(store, sv, monday.Add(10*time.Hour))
	require.NoError(t, orch.RunCycle(context.Background()))

	assert.Zero(t, sv.calls)
	assert.Empty(t, store.updates)
}

func TestRunCycleNoQueuedJobs(t *testing.T) {
	locked := queuedJob(1, 10)
	locked.Status = domain.StatusEnRoute
	locked.AssignedTechnician = ptrInt64(1)
	store := &mockJobStore{
		technicians:  cycleTechnicians(),
		vanEquipment: cycleEquipment(),
		jobs:         []*domain.Job{locked},
	}
	sv := &mockSolver{}

	orch := newTestOrchestrator(store, sv, monday.Add(10*time.Hour))
	require.NoError(t, orch.RunCycle(context.Background()))

	assert.Zero(t, sv.calls)
	assert.Empty(t, store.updates)
}

func TestRunCycleUnplaceableJobExhaustsOverflow(t *testing.T) {
	now := monday.Add(10 * time.Hour)
	techs := cycleTechnicians()
	// No home coordinates: every future day computes empty availability.
	techs[0].HomeLocation = nil
	techs[1].HomeLocation = nil
	store := &mockJobStore{
		technicians:  techs,
		vanEquipment: cycleEquipment(),
		jobs:         []*domain.Job{queuedJob(1, 10), queuedJob(2, 20)},
	}
	sv := &mockSolver{responses: []*solver.Response{{
		Status:            solver.StatusPartial,
		Routes:            []solver.Route{{TechnicianID: 1, Stops: []solver.Stop{jobStop(1, now.Add(time.Hour))}}},
		UnassignedItemIDs: []string{"job_2"},
	}}}

	orch := newTestOrchestrator(store, sv, now)
	require.NoError(t, orch.RunCycle(context.Background()))

	// One today pass; all four overflow days refetch technicians and
	// then skip without a solver call.
	assert.Equal(t, 1, sv.calls)
	assert.Equal(t, 5, store.technicianFetches)

	require.Len(t, store.updates, 2)
	placed, ok := store.updateFor(1)
	require.True(t, ok)
	assert.Equal(t, domain.StatusQueued, placed.Status)

	dropped, ok := store.updateFor(2)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPendingReview, dropped.Status)
	assert.Nil(t, dropped.AssignedTechnician)
	assert.Nil(t, dropped.EstimatedSched)
}

func TestRunCycleOverflowPlacesOnLaterDay(t *testing.T) {
	now := monday.Add(10 * time.Hour)
	wednesday := monday.AddDate(0, 0, 2)
	store := &mockJobStore{
		technicians:  cycleTechnicians(),
		vanEquipment: cycleEquipment(),
		jobs:         []*domain.Job{queuedJob(1, 10)},
	}
	sv := &mockSolver{responses: []*solver.Response{
		{Status: solver.StatusPartial, UnassignedItemIDs: []string{"job_1"}},
		{Status: solver.StatusPartial, UnassignedItemIDs: []string{"job_1"}},
		{Status: solver.StatusSuccess, Routes: []solver.Route{
			{TechnicianID: 2, Stops: []solver.Stop{jobStop(1, wednesday.Add(9*time.Hour+30*time.Minute))}},
		}},
	}}

	orch := newTestOrchestrator(store, sv, now)
	require.NoError(t, orch.RunCycle(context.Background()))

	assert.Equal(t, 3, sv.calls, "today, tuesday, wednesday")
	assert.Equal(t, 3, store.technicianFetches)

	require.Len(t, store.updates, 1)
	update, ok := store.updateFor(1)
	require.True(t, ok)
	assert.Equal(t, domain.StatusQueued, update.Status)
	assert.Equal(t, int64(2), *update.AssignedTechnician)
	assert.True(t, update.EstimatedSched.Equal(wednesday.Add(9*time.Hour+30*time.Minute)))
}

func TestRunCycleOverflowSkipsWeekend(t *testing.T) {
	friday := monday.AddDate(0, 0, 4)
	now := friday.Add(10 * time.Hour)
	nextMonday := monday.AddDate(0, 0, 7)
	store := &mockJobStore{
		technicians:  cycleTechnicians(),
		vanEquipment: cycleEquipment(),
		jobs:         []*domain.Job{queuedJob(1, 10)},
	}
	sv := &mockSolver{responses: []*solver.Response{
		{Status: solver.StatusPartial, UnassignedItemIDs: []string{"job_1"}},
		{Status: solver.StatusSuccess, Routes: []solver.Route{
			{TechnicianID: 1, Stops: []solver.Stop{jobStop(1, nextMonday.Add(10 * time.Hour))}},
		}},
	}}

	orch := newTestOrchestrator(store, sv, now)
	require.NoError(t, orch.RunCycle(context.Background()))

	// Saturday and Sunday consume overflow attempts without solving.
	assert.Equal(t, 2, sv.calls)
	assert.Equal(t, 4, store.technicianFetches)

	update, ok := store.updateFor(1)
	require.True(t, ok)
	assert.Equal(t, domain.StatusQueued, update.Status)
	assert.True(t, update.EstimatedSched.Equal(nextMonday.Add(10*time.Hour)))
}

func TestRunCycleBreaksBundleAcrossTechnicians(t *testing.T) {
	now := monday.Add(10 * time.Hour)
	job1 := queuedJob(1, 101)
	job2 := queuedJob(2, 101)
	store := &mockJobStore{
		technicians:  cycleTechnicians(),
		vanEquipment: cycleEquipment(),
		jobs:         []*domain.Job{job1, job2},
		requiredEquipment: map[int64][]string{
			// No single van carries both tools: the bundle cannot survive.
			1: {"ToolA"},
			2: {"ToolC"},
		},
	}
	sv := &mockSolver{responses: []*solver.Response{{
		Status: solver.StatusSuccess,
		Routes: []solver.Route{
			{TechnicianID: 1, Stops: []solver.Stop{jobStop(1, now.Add(time.Hour))}},
			{TechnicianID: 2, Stops: []solver.Stop{jobStop(2, now.Add(time.Hour))}},
		},
	}}}

	orch := newTestOrchestrator(store, sv, now)
	require.NoError(t, orch.RunCycle(context.Background()))

	assert.Equal(t, 1, sv.calls)
	require.Len(t, sv.requests, 1)
	for _, item := range sv.requests[0].Items {
		assert.NotContains(t, item.ID, "bundle_")
	}

	require.Len(t, store.updates, 2)
	first, _ := store.updateFor(1)
	second, _ := store.updateFor(2)
	assert.Equal(t, int64(1), *first.AssignedTechnician)
	assert.Equal(t, int64(2), *second.AssignedTechnician)
	assert.Equal(t, domain.StatusQueued, first.Status)
	assert.Equal(t, domain.StatusQueued, second.Status)
}

func TestRunCycleExpandsBundleAssignments(t *testing.T) {
	now := monday.Add(10 * time.Hour)
	job1 := queuedJob(1, 101)
	job2 := queuedJob(2, 101)
	job2.Address = job1.Address
	store := &mockJobStore{
		technicians:  cycleTechnicians(),
		vanEquipment: cycleEquipment(),
		jobs:         []*domain.Job{job1, job2},
	}
	start := now.Add(2 * time.Hour)
	sv := &mockSolver{responses: []*solver.Response{{
		Status: solver.StatusSuccess,
		Routes: []solver.Route{
			{TechnicianID: 1, Stops: []solver.Stop{{ItemID: "bundle_101", StartTimeISO: start.Format(time.RFC3339)}}},
		},
	}}}

	orch := newTestOrchestrator(store, sv, now)
	require.NoError(t, orch.RunCycle(context.Background()))

	// Both constituents land on the bundle's technician and start.
	require.Len(t, store.updates, 2)
	for _, jobID := range []int64{1, 2} {
		update, ok := store.updateFor(jobID)
		require.True(t, ok)
		assert.Equal(t, domain.StatusQueued, update.Status)
		assert.Equal(t, int64(1), *update.AssignedTechnician)
		assert.True(t, update.EstimatedSched.Equal(start))
	}
}

func TestRunCycleSolverErrorLeavesStoreUntouched(t *testing.T) {
	store := &mockJobStore{
		technicians:  cycleTechnicians(),
		vanEquipment: cycleEquipment(),
		jobs:         []*domain.Job{queuedJob(1, 10)},
	}
	sv := &mockSolver{errs: []error{solver.ErrSolverTransport}}

	orch := newTestOrchestrator(store, sv, monday.Add(10*time.Hour))
	err := orch.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, solver.ErrSolverTransport)
	assert.Empty(t, store.updates, "a fatal pass leaves the store unchanged")
}

func TestRunCycleFetchErrorIsFatal(t *testing.T) {
	boom := errors.New("connection refused")
	store := &mockJobStore{techErr: boom}
	sv := &mockSolver{}

	orch := newTestOrchestrator(store, sv, monday.Add(10*time.Hour))
	err := orch.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, sv.calls)
}

func TestRunCycleLockedJobsConstrainButAreNeverRewritten(t *testing.T) {
	now := monday.Add(10 * time.Hour)
	lockedStart := monday.Add(10 * time.Hour)
	lockedAddr := domain.Coordinate{Lat: 30.90, Lng: -97.90}
	locked := &domain.Job{
		ID:                 5,
		OrderID:            50,
		Status:             domain.StatusEnRoute,
		DurationMinutes:    90,
		Address:            &lockedAddr,
		AssignedTechnician: ptrInt64(1),
		EstimatedSched:     &lockedStart,
	}
	store := &mockJobStore{
		technicians:  cycleTechnicians(),
		vanEquipment: cycleEquipment(),
		jobs:         []*domain.Job{locked, queuedJob(1, 10)},
	}
	sv := &mockSolver{responses: []*solver.Response{{
		Status: solver.StatusSuccess,
		Routes: []solver.Route{
			{TechnicianID: 1, Stops: []solver.Stop{jobStop(1, now.Add(3 * time.Hour))}},
		},
	}}}

	orch := newTestOrchestrator(store, sv, now)
	require.NoError(t, orch.RunCycle(context.Background()))

	// The locked job pushed technician 1's earliest start past its end.
	require.Len(t, sv.requests, 1)
	var tech1 *solver.Technician
	for i := range sv.requests[0].Technicians {
		if sv.requests[0].Technicians[i].ID == 1 {
			tech1 = &sv.requests[0].Technicians[i]
		}
	}
	require.NotNil(t, tech1)
	assert.Equal(t, lockedStart.Add(90*time.Minute).Format(time.RFC3339), tech1.EarliestStartTimeISO)

	// But it is never part of the final write.
	_, rewritten := store.updateFor(5)
	assert.False(t, rewritten)
	require.Len(t, store.updates, 1)
}

func TestRunCycleIgnoresUnknownSolverAssignments(t *testing.T) {
	now := monday.Add(10 * time.Hour)
	store := &mockJobStore{
		technicians:  cycleTechnicians(),
		vanEquipment: cycleEquipment(),
		jobs:         []*domain.Job{queuedJob(1, 10)},
	}
	sv := &mockSolver{responses: []*solver.Response{{
		Status: solver.StatusSuccess,
		Routes: []solver.Route{
			{TechnicianID: 1, Stops: []solver.Stop{
				jobStop(1, now.Add(time.Hour)),
				jobStop(777, now.Add(2*time.Hour)), // never fetched
			}},
		},
	}}}

	orch := newTestOrchestrator(store, sv, now)
	require.NoError(t, orch.RunCycle(context.Background()))

	require.Len(t, store.updates, 1)
	_, ok := store.updateFor(777)
	assert.False(t, ok)
}
