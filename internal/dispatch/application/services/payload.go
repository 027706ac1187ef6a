package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
	"github.com/fieldworks/dispatchd/internal/solver"
	"github.com/fieldworks/dispatchd/internal/travel"
)

// PayloadAssembler transforms availability, items and fixed constraints
// into a solver request, including the travel matrix over the pass's
// location set.
type PayloadAssembler struct {
	matrix *travel.MatrixBuilder
	window domain.WorkingWindow
	depot  domain.Coordinate
	logger *slog.Logger
}

// NewPayloadAssembler creates the assembler. Every route starts at the
// technician's start location and ends at the depot.
func NewPayloadAssembler(matrix *travel.MatrixBuilder, window domain.WorkingWindow, depot domain.Coordinate, logger *slog.Logger) *PayloadAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayloadAssembler{matrix: matrix, window: window, depot: depot, logger: logger}
}

// PayloadInput is one pass's raw material. For today's pass
// Technicians carry availability on themselves and Availability is nil;
// future-day passes supply Availability records instead.
type PayloadInput struct {
	Technicians   []*domain.Technician
	Availability  []domain.TechnicianAvailability
	Items         []domain.PlannableItem
	FixedTimeJobs []*domain.Job
	Date          time.Time
}

// locationIndex assigns dense indices to deduplicated coordinates.
type locationIndex struct {
	coords  []domain.Coordinate
	indexOf map[string]int
}

func newLocationIndex() *locationIndex {
	return &locationIndex{indexOf: make(map[string]int)}
}

func (l *locationIndex) add(c domain.Coordinate) int {
	key := c.Key()
	if idx, ok := l.indexOf[key]; ok {
		return idx
	}
	idx := len(l.coords)
	l.coords = append(l.coords, c)
	l.indexOf[key] = idx
	return idx
}

// Assemble builds the solver request. A nil request with nil error
// means the pass has nothing to solve and must be skipped.
func (a *PayloadAssembler) Assemble(ctx context.Context, in PayloadInput) (*solver.Request, error) {
	locations := newLocationIndex()
	depotIdx := locations.add(a.depot)

	technicians := a.assembleTechnicians(in, locations, depotIdx)

	items, jobToItemID := a.assembleItems(in.Items, locations)
	if len(items) == 0 {
		return nil, nil
	}

	constraints := a.assembleFixedConstraints(in.FixedTimeJobs, jobToItemID)

	matrix, err := a.matrix.Build(ctx, locations.coords)
	if err != nil {
		return nil, fmt.Errorf("building travel matrix: %w", err)
	}

	req := &solver.Request{
		Technicians:      technicians,
		Items:            items,
		FixedConstraints: constraints,
		TravelTimeMatrix: matrixToWire(matrix),
	}
	for idx, coord := range locations.coords {
		req.Locations = append(req.Locations, solver.Location{
			ID:     fmt.Sprintf("loc_%d", idx),
			Index:  idx,
			Coords: coord,
		})
	}
	return req, nil
}

func (a *PayloadAssembler) assembleTechnicians(in PayloadInput, locations *locationIndex, depotIdx int) []solver.Technician {
	var out []solver.Technician

	if in.Availability != nil {
		for _, avail := range in.Availability {
			startIdx := locations.add(avail.StartLocation)
			out = append(out, solver.Technician{
				ID:                   avail.TechnicianID,
				StartLocationIndex:   startIdx,
				EndLocationIndex:     depotIdx,
				EarliestStartTimeISO: avail.WindowStart.Format(time.RFC3339),
				LatestEndTimeISO:     avail.WindowEnd.Format(time.RFC3339),
			})
		}
		return out
	}

	for _, tech := range in.Technicians {
		startIdx := depotIdx
		if tech.StartLocation != nil {
			startIdx = locations.add(*tech.StartLocation)
		} else if tech.CurrentLocation != nil {
			startIdx = locations.add(*tech.CurrentLocation)
		}

		earliest := tech.EarliestAvailable
		_, latest := a.window.For(earliest)
		out = append(out, solver.Technician{
			ID:                   tech.ID,
			StartLocationIndex:   startIdx,
			EndLocationIndex:     depotIdx,
			EarliestStartTimeISO: earliest.Format(time.RFC3339),
			LatestEndTimeISO:     latest.Format(time.RFC3339),
		})
	}
	return out
}

// assembleItems emits solver items and a jobID -> itemID map used to
// key fixed constraints. Items without coordinates are excluded from
// the pass.
func (a *PayloadAssembler) assembleItems(items []domain.PlannableItem, locations *locationIndex) ([]solver.Item, map[int64]string) {
	var out []solver.Item
	jobToItemID := make(map[int64]string)

	for _, plannable := range items {
		item := plannable.Item
		loc := item.Location()
		if loc == nil {
			a.logger.Warn("item has no coordinates, excluded from pass",
				"item_id", item.ItemID(),
			)
			continue
		}

		out = append(out, solver.Item{
			ID:                    item.ItemID(),
			LocationIndex:         locations.add(*loc),
			DurationSeconds:       int64(item.Duration() / time.Second),
			Priority:              item.Priority(),
			EligibleTechnicianIDs: plannable.EligibleTechnicians,
		})
		for _, job := range item.Jobs() {
			jobToItemID[job.ID] = item.ItemID()
		}
	}
	return out, jobToItemID
}

func (a *PayloadAssembler) assembleFixedConstraints(fixedJobs []*domain.Job, jobToItemID map[int64]string) []solver.FixedConstraint {
	var constraints []solver.FixedConstraint
	for _, job := range fixedJobs {
		if job.FixedScheduleTime == nil {
			continue
		}
		itemID, ok := jobToItemID[job.ID]
		if !ok {
			a.logger.Warn("fixed-time job is not among the pass items, skipping constraint",
				"job_id", job.ID,
			)
			continue
		}
		constraints = append(constraints, solver.FixedConstraint{
			ItemID:       itemID,
			FixedTimeISO: job.FixedScheduleTime.Format(time.RFC3339),
		})
	}
	return constraints
}

func matrixToWire(matrix [][]int64) map[string]map[string]int64 {
	wire := make(map[string]map[string]int64, len(matrix))
	for i, row := range matrix {
		cells := make(map[string]int64, len(row))
		for j, seconds := range row {
			cells[strconv.Itoa(j)] = seconds
		}
		wire[strconv.Itoa(i)] = cells
	}
	return wire
}
