package domain

import "time"

// Routing keys for events published after a successful final write.
const (
	EventReplanCompleted  = "dispatch.replan.completed"
	EventJobPendingReview = "dispatch.job.pending_review"
)

// ReplanCompletedEvent summarizes one finished replan cycle.
type ReplanCompletedEvent struct {
	CorrelationID string    `json:"correlation_id"`
	PlannedJobs   int       `json:"planned_jobs"`
	PendingReview int       `json:"pending_review"`
	SolverCalls   int       `json:"solver_calls"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// JobPendingReviewEvent flags one job demoted to pending_review.
type JobPendingReviewEvent struct {
	CorrelationID string `json:"correlation_id"`
	JobID         int64  `json:"job_id"`
	OrderID       int64  `json:"order_id"`
	Priority      int    `json:"priority"`
}
