package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/elonfeng/campusmatch/internal/store"
	"github.com/elonfeng/campusmatch/pkg/feed"
	"github.com/elonfeng/campusmatch/pkg/match"
	"github.com/elonfeng/campusmatch/pkg/metrics"
)

// Pruner removes stale matches.
type Pruner interface {
	PruneMatches(ctx context.Context, opts store.PruneOpts) (int64, error)
}

// Scheduler runs periodic feed import and match generation.
type Scheduler struct {
	generator     *match.Generator
	importer      *feed.Importer // optional
	pruner        Pruner         // optional
	metrics       *metrics.Recorder
	interval      time.Duration
	pruneReturned bool
}

// New creates a new scheduler. importer and pruner may be nil.
func New(
	gen *match.Generator,
	importer *feed.Importer,
	pruner Pruner,
	rec *metrics.Recorder,
	interval time.Duration,
	pruneReturned bool,
) *Scheduler {
	if interval == 0 {
		interval = 10 * time.Minute
	}
	return &Scheduler{
		generator:     gen,
		importer:      importer,
		pruner:        pruner,
		metrics:       rec,
		interval:      interval,
		pruneReturned: pruneReturned,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler: initial pass")
	s.RunOnce(ctx)

	slog.Info("scheduler: running", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce imports feeds, runs one generation pass and optionally prunes.
// Failures are logged; the next tick retries.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.importer != nil && len(s.importer.Feeds()) > 0 {
		counts, err := s.importer.Import(ctx)
		if err != nil {
			slog.Warn("scheduler: feed import incomplete", "error", err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		slog.Info("scheduler: feeds imported", "listings", total, "feeds", len(counts))
	}

	res, err := s.generator.Run(ctx)
	if err != nil {
		slog.Error("scheduler: match pass failed", "error", err)
		return
	}
	slog.Info("scheduler: match pass",
		"lost", res.Lost, "found", res.Found,
		"candidates", len(res.Candidates), "duration", res.Duration)

	if !s.pruneReturned || s.pruner == nil {
		return
	}
	n, err := s.pruner.PruneMatches(ctx, store.PruneOpts{Returned: true})
	if err != nil {
		slog.Error("scheduler: prune failed", "error", err)
		return
	}
	s.metrics.ObservePrune(n)
	if n > 0 {
		slog.Info("scheduler: pruned matches", "removed", n)
	}
}
