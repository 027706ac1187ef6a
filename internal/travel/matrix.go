package travel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
	"github.com/fieldworks/dispatchd/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// PenaltySeconds is substituted for cells the oracle cannot answer.
// Large enough that the solver prefers any real edge, small enough to
// keep the problem solvable.
const PenaltySeconds int64 = 999_999

const defaultParallelism = 8

// MatrixBuilder produces N x N duration matrices over a location set.
type MatrixBuilder struct {
	oracle      Oracle
	cache       DurationCache
	logger      *slog.Logger
	metrics     observability.Metrics
	parallelism int
}

// NewMatrixBuilder wires an oracle with its cache. A nil cache disables
// memoization; a nil metrics sink is replaced with a noop.
func NewMatrixBuilder(oracle Oracle, cache DurationCache, logger *slog.Logger, metrics observability.Metrics) *MatrixBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &MatrixBuilder{
		oracle:      oracle,
		cache:       cache,
		logger:      logger,
		metrics:     metrics,
		parallelism: defaultParallelism,
	}
}

// Build returns the duration matrix for the ordered location list.
// Diagonal cells are zero. Oracle failures yield PenaltySeconds rather
// than aborting; only context cancellation stops the fill.
func (b *MatrixBuilder) Build(ctx context.Context, coords []domain.Coordinate) ([][]int64, error) {
	n := len(coords)
	matrix := make([][]int64, n)
	for i := range matrix {
		matrix[i] = make([]int64, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)

	var mu sync.Mutex
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			i, j := i, j
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				seconds := b.cell(gctx, coords[i], coords[j])
				mu.Lock()
				matrix[i][j] = seconds
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return matrix, nil
}

func (b *MatrixBuilder) cell(ctx context.Context, origin, destination domain.Coordinate) int64 {
	key := CacheKey(origin, destination)

	if b.cache != nil {
		if seconds, ok := b.cache.Get(ctx, key); ok {
			b.metrics.Counter("travel.cache.hit", 1)
			return seconds
		}
		b.metrics.Counter("travel.cache.miss", 1)
	}

	seconds, err := b.oracle.DurationSeconds(ctx, origin, destination)
	if err != nil || seconds < 0 {
		b.metrics.Counter("travel.oracle.failure", 1)
		b.logger.Warn("travel oracle failed, substituting penalty",
			"origin", origin.Key(),
			"destination", destination.Key(),
			"error", err,
		)
		return PenaltySeconds
	}

	if b.cache != nil {
		b.cache.Set(ctx, key, seconds)
	}
	return seconds
}
