package services

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fieldworks/dispatchd/internal/solver"
)

// JobAssignment is one ingested job-level placement.
type JobAssignment struct {
	JobID          int64
	TechnicianID   int64
	EstimatedSched time.Time
}

// BundleAssignment is one placed bundle stop. The orchestrator expands
// it to constituent jobs through the pass's item map.
type BundleAssignment struct {
	ItemID         string
	TechnicianID   int64
	EstimatedSched time.Time
}

// IngestResult is a solver response reduced to planner terms.
type IngestResult struct {
	Assignments       []JobAssignment
	BundleAssignments []BundleAssignment
	UnassignedItemIDs []string
}

// ResultIngester parses solver responses. Malformed stops are skipped
// with a warning; a pass always produces a result.
type ResultIngester struct {
	logger *slog.Logger
}

// NewResultIngester creates the ingester.
func NewResultIngester(logger *slog.Logger) *ResultIngester {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultIngester{logger: logger}
}

// Ingest walks every route stop. job_ stops become job assignments,
// bundle_ stops become bundle assignments, anything else is skipped.
func (i *ResultIngester) Ingest(resp *solver.Response) IngestResult {
	var result IngestResult

	for _, route := range resp.Routes {
		for _, stop := range route.Stops {
			start, err := time.Parse(time.RFC3339, stop.StartTimeISO)
			if err != nil {
				i.logger.Warn("stop has unparseable start time, skipping",
					"item_id", stop.ItemID,
					"start_time", stop.StartTimeISO,
					"error", err,
				)
				continue
			}

			switch {
			case strings.HasPrefix(stop.ItemID, "job_"):
				jobID, err := strconv.ParseInt(strings.TrimPrefix(stop.ItemID, "job_"), 10, 64)
				if err != nil {
					i.logger.Warn("stop has unparseable job id, skipping",
						"item_id", stop.ItemID,
						"error", err,
					)
					continue
				}
				result.Assignments = append(result.Assignments, JobAssignment{
					JobID:          jobID,
					TechnicianID:   route.TechnicianID,
					EstimatedSched: start,
				})
			case strings.HasPrefix(stop.ItemID, "bundle_"):
				result.BundleAssignments = append(result.BundleAssignments, BundleAssignment{
					ItemID:         stop.ItemID,
					TechnicianID:   route.TechnicianID,
					EstimatedSched: start,
				})
			default:
				i.logger.Warn("stop has unrecognized item id, skipping",
					"item_id", stop.ItemID,
				)
			}
		}
	}

	result.UnassignedItemIDs = resp.UnassignedItemIDs
	if result.UnassignedItemIDs == nil {
		result.UnassignedItemIDs = []string{}
	}
	return result
}
