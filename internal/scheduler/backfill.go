package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wesm/vaultsearch/internal/metrics"
	"github.com/wesm/vaultsearch/internal/query"
)

// BackfillJob is the job name of the coverage backfill.
const BackfillJob = "index-backfill"

// DefaultBackfillStepDays is how far each backfill run extends coverage.
const DefaultBackfillStepDays = 30

// CoverageExtender is the part of the query engine a backfill drives.
type CoverageExtender interface {
	RefreshCoverage(ctx context.Context) (query.Coverage, error)
	ExtendCoverage(ctx context.Context, since time.Time) error
}

// Backfill pushes the index coverage further into the past, one step per run,
// until the whole mailbox is indexed.
type Backfill struct {
	engine   CoverageExtender
	stepDays int
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewBackfill creates a backfill. stepDays <= 0 uses DefaultBackfillStepDays.
func NewBackfill(engine CoverageExtender, stepDays int, logger *slog.Logger, m *metrics.Metrics) *Backfill {
	if stepDays <= 0 {
		stepDays = DefaultBackfillStepDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfill{engine: engine, stepDays: stepDays, now: time.Now, logger: logger, metrics: m}
}

// WithClock replaces the time source.
func (b *Backfill) WithClock(now func() time.Time) *Backfill {
	b.now = now
	return b
}

// Target returns the day the next run extends coverage to, and false when
// nothing is left to index.
func (b *Backfill) Target(cov query.Coverage) (time.Time, bool) {
	switch cov.Kind {
	case query.CoverageFull:
		return time.Time{}, false
	case query.CoverageNone:
		return query.StartOfDay(b.now()).AddDate(0, 0, -b.stepDays), true
	default:
		return query.StartOfDay(cov.Since).AddDate(0, 0, -b.stepDays), true
	}
}

// Run extends coverage by one step and returns the resulting coverage.
func (b *Backfill) Run(ctx context.Context) (query.Coverage, error) {
	cov, err := b.engine.RefreshCoverage(ctx)
	if err != nil {
		b.metrics.RecordBackfill(err)
		return query.Coverage{}, fmt.Errorf("backfill: %w", err)
	}
	since, ok := b.Target(cov)
	if !ok {
		b.logger.Debug("backfill skipped, index complete")
		return cov, nil
	}

	if err := b.engine.ExtendCoverage(ctx, since); err != nil {
		b.metrics.RecordBackfill(err)
		return cov, fmt.Errorf("backfill to %s: %w", since.Format("2006-01-02"), err)
	}
	cov, err = b.engine.RefreshCoverage(ctx)
	b.metrics.RecordBackfill(err)
	if err != nil {
		return query.Coverage{}, fmt.Errorf("backfill: %w", err)
	}
	b.logger.Info("backfill extended index coverage", "coverage", cov.String())
	return cov, nil
}

// Job adapts Run to a scheduler JobFunc.
func (b *Backfill) Job() JobFunc {
	return func(ctx context.Context, _ string) error {
		_, err := b.Run(ctx)
		return err
	}
}
