package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cipherpoll/server/internal/cipherpoll/store"
)

// EventPruner periodically deletes audit events older than a configurable
// retention period. It runs as a background goroutine and is safe to stop
// via its context or the Stop method.
//
// A retention of 0 disables pruning entirely.
type EventPruner struct {
	events    store.EventStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
	started   bool
	done      chan struct{}
}

// PrunerConfig holds the parameters for NewEventPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of audit history to keep.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int
}

// NewEventPruner creates a pruner but does not start it.
// Call Start to begin the background loop.
func NewEventPruner(events store.EventStore, cfg PrunerConfig, logger *slog.Logger) *EventPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &EventPruner{
		events:    events,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins the background pruning loop. It runs an immediate prune on
// startup, then repeats on the configured interval. The loop exits when ctx
// is cancelled or Stop is called.
func (p *EventPruner) Start(ctx context.Context) {
	p.started = true

	if p.retention <= 0 {
		p.logger.Info("event pruner disabled", "retention_days", 0)
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("event pruner started",
		"retention_days", int(p.retention.Hours()/24),
		"interval_hours", int(p.interval.Hours()))
}

// Stop signals the pruner to exit and waits for it to finish. A no-op if
// Start was never called.
func (p *EventPruner) Stop() {
	if !p.started {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *EventPruner) loop(ctx context.Context) {
	defer close(p.done)

	// Run immediately on startup to clean up any backlog.
	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *EventPruner) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.retention)
	deleted, err := p.events.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("event prune failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("event prune", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
}
