// Package mirror parses mirror command flags and runs the journal mirror.
package mirror

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/permagit/permagit/internal/journal"
	journalsqlite "github.com/permagit/permagit/internal/journal/sqlite"
	"github.com/permagit/permagit/internal/mirror"
	entrypoint "github.com/permagit/permagit/internal/platform/cmd"
)

// Config holds mirror command configuration.
type Config struct {
	JournalPath  string        `env:"PERMAGIT_MIRROR_JOURNAL_PATH" envDefault:"permagit.db"`
	Follow       bool          `env:"PERMAGIT_MIRROR_FOLLOW"`
	PollInterval time.Duration `env:"PERMAGIT_MIRROR_POLL_INTERVAL" envDefault:"2s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "Path to the journal database")
	fs.BoolVar(&cfg.Follow, "follow", cfg.Follow, "Keep polling the journal after the initial replay")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Delay between journal polls in follow mode")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run verifies the journal, replays every repository into a replica, and
// optionally follows the journal for new events.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMirror, func(ctx context.Context) error {
		store, err := journalsqlite.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()

		logger := slog.Default()
		followers := make(map[string]*mirror.Follower)

		if err := catchUpAll(ctx, store, followers, logger); err != nil {
			return err
		}
		if !cfg.Follow {
			return nil
		}

		interval := cfg.PollInterval
		if interval <= 0 {
			interval = 2 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			if err := catchUpAll(ctx, store, followers, logger); err != nil {
				return err
			}
		}
	})
}

// catchUpAll replays outstanding events for every repository in the journal,
// verifying the hash chain of repositories seen for the first time.
func catchUpAll(ctx context.Context, store journal.Journal, followers map[string]*mirror.Follower, logger *slog.Logger) error {
	repos, err := store.Repos(ctx)
	if err != nil {
		return fmt.Errorf("list repos: %w", err)
	}
	for _, repo := range repos {
		follower, ok := followers[repo]
		if !ok {
			if err := journal.Verify(ctx, store, repo); err != nil {
				return fmt.Errorf("verify journal %s: %w", repo, err)
			}
			follower = &mirror.Follower{
				Journal: store,
				Replica: mirror.NewReplica(repo),
				Logger:  logger,
			}
			followers[repo] = follower
		}
		applied, err := follower.CatchUp(ctx)
		if err != nil {
			return fmt.Errorf("catch up %s: %w", repo, err)
		}
		if applied > 0 {
			logger.Info("replica caught up",
				"repo", repo,
				"applied", applied,
				"last_seq", follower.Replica.LastSeq(),
				"objects", follower.Replica.ObjectsLength(),
				"refs", follower.Replica.RefsLength(),
			)
		}
	}
	return nil
}
