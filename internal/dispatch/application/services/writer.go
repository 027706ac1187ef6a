package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
)

// WriteApplier commits the final batch. Updates run concurrently; a
// failed update never stops the rest, and all failures surface as one
// aggregate error naming the affected jobs. The batch is not
// transactional: partial failure is reported, not rolled back.
type WriteApplier struct {
	store  domain.JobStore
	logger *slog.Logger
}

// NewWriteApplier creates the applier.
func NewWriteApplier(store domain.JobStore, logger *slog.Logger) *WriteApplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriteApplier{store: store, logger: logger}
}

// Apply dispatches every update and waits for all of them. An empty
// batch is a no-op.
func (w *WriteApplier) Apply(ctx context.Context, updates []domain.JobUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		failedIDs []int64
		errs      []error
	)

	for _, update := range updates {
		wg.Add(1)
		go func(update domain.JobUpdate) {
			defer wg.Done()
			if err := w.store.UpdateJob(ctx, update); err != nil {
				w.logger.Error("job update failed",
					"job_id", update.JobID,
					"status", string(update.Status),
					"error", err,
				)
				mu.Lock()
				failedIDs = append(failedIDs, update.JobID)
				errs = append(errs, fmt.Errorf("job %d: %w", update.JobID, err))
				mu.Unlock()
			}
		}(update)
	}
	wg.Wait()

	if len(errs) == 0 {
		return nil
	}
	sort.Slice(failedIDs, func(i, j int) bool { return failedIDs[i] < failedIDs[j] })
	return fmt.Errorf("%d of %d job updates failed (job ids %v): %w",
		len(errs), len(updates), failedIDs, errors.Join(errs...))
}
