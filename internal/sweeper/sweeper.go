// ABOUTME: Timeout sweeper that expires actions past their deadline.
// ABOUTME: Also prunes terminal actions older than the retention window.

package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notssh/notssh/internal/queue"
	"github.com/notssh/notssh/internal/store"
)

// Config controls sweep and prune cadence.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// PruneInterval between prunes. Zero disables pruning.
	PruneInterval time.Duration
	// Retention is how long terminal actions are kept. Zero disables pruning.
	Retention time.Duration
}

// Sweeper periodically times out overdue actions. It is the backstop for
// actions whose agent is not connected, including those reloaded after a
// restart.
type Sweeper struct {
	store  store.Store
	queue  *queue.Queue
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Sweeper.
func New(st store.Store, q *queue.Queue, cfg Config, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Sweeper{
		store:  st,
		queue:  q,
		cfg:    cfg,
		logger: logger.With("component", "sweeper"),
		now:    time.Now,
	}
}

// Run sweeps once immediately and then on every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var pruneC <-chan time.Time
	if s.cfg.PruneInterval > 0 && s.cfg.Retention > 0 {
		pruneTicker := time.NewTicker(s.cfg.PruneInterval)
		defer pruneTicker.Stop()
		pruneC = pruneTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep failed", "error", err)
			}
		case <-pruneC:
			if _, err := s.Prune(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("prune failed", "error", err)
			}
		}
	}
}

// Sweep times out every open action whose deadline has passed and returns
// how many it expired. Actions already resolved by someone else are
// skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	open, err := s.store.ListOpenActions(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing open actions: %w", err)
	}

	now := s.now()
	expired := 0
	for _, a := range open {
		deadline, ok := a.Deadline()
		if !ok || now.Before(deadline) {
			continue
		}
		err := s.queue.Expire(ctx, a.ID)
		switch {
		case err == nil:
			expired++
			s.logger.Warn("action timed out",
				"action_id", a.ID,
				"agent_id", a.AgentID,
				"kind", a.Kind,
				"was", a.State,
			)
		case errors.Is(err, store.ErrStateConflict), errors.Is(err, store.ErrNotFound):
		default:
			return expired, fmt.Errorf("expiring action %s: %w", a.ID, err)
		}
	}
	return expired, nil
}

// Prune deletes terminal actions created before now minus the retention
// window.
func (s *Sweeper) Prune(ctx context.Context) (int64, error) {
	if s.cfg.Retention <= 0 {
		return 0, nil
	}
	n, err := s.store.DeleteResolvedActions(ctx, s.now().Add(-s.cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("pruning actions: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned resolved actions", "count", n)
	}
	return n, nil
}
