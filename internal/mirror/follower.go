package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/permagit/permagit/internal/journal"
)

const defaultBatchSize = 200

// Follower keeps a replica caught up with a journal.
type Follower struct {
	// Journal is the event log to follow.
	Journal journal.Journal
	// Replica receives the replayed events.
	Replica *Replica
	// Logger receives catch-up progress. Defaults to slog.Default.
	Logger *slog.Logger
	// PollInterval is the delay between catch-up rounds in Run.
	PollInterval time.Duration
	// BatchSize bounds events loaded per round trip.
	BatchSize int
}

func (f *Follower) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func (f *Follower) batchSize() int {
	if f.BatchSize > 0 {
		return f.BatchSize
	}
	return defaultBatchSize
}

// CatchUp applies all events past the replica's last sequence and returns
// how many it applied.
func (f *Follower) CatchUp(ctx context.Context) (int, error) {
	if f.Journal == nil {
		return 0, fmt.Errorf("journal is required")
	}
	if f.Replica == nil {
		return 0, fmt.Errorf("replica is required")
	}

	applied := 0
	for {
		events, err := f.Journal.ListEvents(ctx, f.Replica.Repo(), f.Replica.LastSeq(), f.batchSize())
		if err != nil {
			return applied, fmt.Errorf("list events: %w", err)
		}
		if len(events) == 0 {
			return applied, nil
		}
		for _, evt := range events {
			if err := f.Replica.Apply(evt); err != nil {
				return applied, fmt.Errorf("apply event seq=%d: %w", evt.Seq, err)
			}
			applied++
		}
	}
}

// Run catches up and then polls the journal until the context is canceled.
func (f *Follower) Run(ctx context.Context) error {
	interval := f.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		applied, err := f.CatchUp(ctx)
		if err != nil {
			return err
		}
		if applied > 0 {
			f.logger().Info("mirror caught up",
				"repo", f.Replica.Repo(),
				"applied", applied,
				"last_seq", f.Replica.LastSeq(),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
