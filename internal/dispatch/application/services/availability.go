// Package services implements the replan pipeline: availability,
// bundling, eligibility, payload assembly, result ingestion, the
// orchestrator that sequences them, and the final write applier.
package services

import (
	"log/slog"
	"sort"
	"time"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
)

// AvailabilityService computes when and where each technician is free,
// for today and for future dates.
type AvailabilityService struct {
	window domain.WorkingWindow
	logger *slog.Logger
	clock  func() time.Time
}

// NewAvailabilityService creates the calculator. A nil clock uses
// time.Now; tests inject a fixed one.
func NewAvailabilityService(window domain.WorkingWindow, logger *slog.Logger, clock func() time.Time) *AvailabilityService {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &AvailabilityService{window: window, logger: logger, clock: clock}
}

// ComputeToday fills EarliestAvailable and StartLocation on each
// technician for today's pass. The reference instant is the current
// time clamped into the working window; each technician's locked jobs
// (ordered by effective start) push their earliest-available forward
// and move their start location to the last such job's address.
func (s *AvailabilityService) ComputeToday(technicians []*domain.Technician, lockedJobs []*domain.Job) {
	now := s.clock().In(s.window.Location)
	_, windowEnd := s.window.For(now)
	reference := s.window.Clamp(now)

	byTech := make(map[int64][]*domain.Job)
	for _, job := range lockedJobs {
		if job.AssignedTechnician == nil {
			continue
		}
		byTech[*job.AssignedTechnician] = append(byTech[*job.AssignedTechnician], job)
	}
	for _, jobs := range byTech {
		sort.SliceStable(jobs, func(i, j int) bool {
			si, iok := jobs[i].EffectiveStart()
			sj, jok := jobs[j].EffectiveStart()
			if !iok {
				return false
			}
			if !jok {
				return true
			}
			return si.Before(sj)
		})
	}

	for _, tech := range technicians {
		available := reference
		startLoc := tech.CurrentLocation

		for _, job := range byTech[tech.ID] {
			start, ok := job.EffectiveStart()
			if !ok {
				s.logger.Warn("locked job has no effective start, ignoring for availability",
					"job_id", job.ID,
					"technician_id", tech.ID,
				)
				continue
			}
			end := start.Add(job.Duration())
			if end.After(available) {
				available = end
				if job.Address != nil {
					startLoc = job.Address
				}
			}
		}

		if available.After(windowEnd) {
			available = windowEnd
		}
		tech.EarliestAvailable = available
		tech.StartLocation = startLoc
	}
}

// ComputeForDate returns standard-hours availability on the target
// date, starting from home. Non-working dates yield nothing; so do
// technicians without a home coordinate. Locked jobs are ignored:
// future days are a blank slate.
func (s *AvailabilityService) ComputeForDate(technicians []*domain.Technician, date time.Time) []domain.TechnicianAvailability {
	if !s.window.IsWorkingDay(date) {
		return nil
	}

	start, end := s.window.For(date)
	availabilities := make([]domain.TechnicianAvailability, 0, len(technicians))
	for _, tech := range technicians {
		if tech.HomeLocation == nil {
			s.logger.Warn("technician has no home coordinates, excluded from future-day pass",
				"technician_id", tech.ID,
				"date", date.Format("2006-01-02"),
			)
			continue
		}
		availabilities = append(availabilities, domain.TechnicianAvailability{
			TechnicianID:  tech.ID,
			WindowStart:   start,
			WindowEnd:     end,
			StartLocation: *tech.HomeLocation,
		})
	}
	return availabilities
}
