package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
	"github.com/fieldworks/dispatchd/internal/solver"
	"github.com/fieldworks/dispatchd/internal/travel"
)

// Mock collaborators for planner tests.

type mockJobStore struct {
	mu sync.Mutex

	technicians       []*domain.Technician
	jobs              []*domain.Job
	vanEquipment      map[int64][]domain.Equipment
	requiredEquipment map[int64][]string // job id -> models

	techErr    error
	jobsErr    error
	equipErr   error
	updateErrs map[int64]error

	technicianFetches int
	updates           []domain.JobUpdate
}

func (m *mockJobStore) GetActiveTechnicians(ctx context.Context) ([]*domain.Technician, error) {
	m.mu.Lock()
	m.technicianFetches++
	m.mu.Unlock()
	if m.techErr != nil {
		return nil, m.techErr
	}
	// Hand out copies so per-pass mutation does not leak between fetches.
	out := make([]*domain.Technician, 0, len(m.technicians))
	for _, t := range m.technicians {
		clone := *t
		out = append(out, &clone)
	}
	return out, nil
}

func (m *mockJobStore) GetRelevantJobs(ctx context.Context) ([]*domain.Job, error) {
	if m.jobsErr != nil {
		return nil, m.jobsErr
	}
	return m.jobs, nil
}

func (m *mockJobStore) GetJobsByStatus(ctx context.Context, statuses []domain.JobStatus) ([]*domain.Job, error) {
	want := make(map[domain.JobStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*domain.Job
	for _, j := range m.jobs {
		if want[j.Status] {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *mockJobStore) GetEquipmentForVans(ctx context.Context, vanIDs []int64) (map[int64][]domain.Equipment, error) {
	if m.equipErr != nil {
		return nil, m.equipErr
	}
	out := make(map[int64][]domain.Equipment)
	for _, id := range vanIDs {
		if eq, ok := m.vanEquipment[id]; ok {
			out[id] = eq
		}
	}
	return out, nil
}

func (m *mockJobStore) GetRequiredEquipmentForJob(ctx context.Context, job *domain.Job) ([]string, error) {
	return m.requiredEquipment[job.ID], nil
}

func (m *mockJobStore) GetYmmIDForOrder(ctx context.Context, orderID int64) (int64, error) {
	return orderID, nil
}

func (m *mockJobStore) UpdateJob(ctx context.Context, update domain.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.updateErrs[update.JobID]; ok {
		return err
	}
	m.updates = append(m.updates, update)
	return nil
}

func (m *mockJobStore) updateFor(jobID int64) (domain.JobUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.updates {
		if u.JobID == jobID {
			return u, true
		}
	}
	return domain.JobUpdate{}, false
}

type mockSolver struct {
	responses []*solver.Response
	errs      []error
	calls     int
	requests  []*solver.Request
}

func (m *mockSolver) Solve(ctx context.Context, req *solver.Request) (*solver.Response, error) {
	idx := m.calls
	m.calls++
	m.requests = append(m.requests, req)
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return &solver.Response{Status: solver.StatusSuccess}, nil
}

// stubOracle answers every pair with a constant duration.
type stubOracle struct {
	seconds int64
}

func (o stubOracle) DurationSeconds(ctx context.Context, origin, destination domain.Coordinate) (int64, error) {
	return o.seconds, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptrInt64(v int64) *int64 { return &v }

func ptrTime(v time.Time) *time.Time { return &v }

func testWindow() domain.WorkingWindow {
	return domain.DefaultWorkingWindow()
}

func testAssembler() *PayloadAssembler {
	matrix := travel.NewMatrixBuilder(stubOracle{seconds: 300}, travel.NewMemoryCache(time.Hour), quietLogger(), nil)
	return NewPayloadAssembler(matrix, testWindow(), domain.Coordinate{Lat: 30.2672, Lng: -97.7431}, quietLogger())
}
