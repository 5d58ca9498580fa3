// Package runtime is the execution environment the ledger core relies on.
// It owns the lifetime of every repository ledger, applies one call at a
// time, and commits each call atomically: the call's state change and its
// journaled events land together or not at all. The core itself holds no
// locks and performs no I/O; this package is the sole serialization point.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/permagit/permagit/internal/errors"
	"github.com/permagit/permagit/internal/event"
	"github.com/permagit/permagit/internal/journal"
	"github.com/permagit/permagit/internal/ledger"
	"github.com/permagit/permagit/internal/platform/id"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/permagit/permagit/internal/runtime"

// Runtime hosts named repository ledgers over a shared event journal.
type Runtime struct {
	mu      sync.Mutex
	journal journal.Journal
	repos   map[string]*ledger.Ledger
	logger  *slog.Logger
	now     func() time.Time
	tracer  trace.Tracer
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		r.now = now
	}
}

// New creates a runtime backed by the given journal.
func New(j journal.Journal, opts ...Option) *Runtime {
	r := &Runtime{
		journal: j,
		repos:   make(map[string]*ledger.Ledger),
		logger:  slog.Default(),
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRepo registers a new repository ledger with the deploying principal
// granted both Admin and Pusher.
func (r *Runtime) CreateRepo(ctx context.Context, repo string, deployer ledger.Principal) error {
	_, span := r.tracer.Start(ctx, "runtime.CreateRepo",
		trace.WithAttributes(attribute.String("repo", repo)))
	defer span.End()

	if repo == "" {
		return apperrors.New(apperrors.CodeRepoNameEmpty, "repository name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.repos[repo]; ok {
		return apperrors.WithMetadata(
			apperrors.CodeRepoExists,
			fmt.Sprintf("repository %s already exists", repo),
			map[string]string{"Repo": repo},
		)
	}
	r.repos[repo] = ledger.New(deployer)
	r.logger.Info("repository created", "repo", repo, "deployer", string(deployer))
	return nil
}

// Repos lists the registered repository names.
func (r *Runtime) Repos() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	repos := make([]string, 0, len(r.repos))
	for repo := range r.repos {
		repos = append(repos, repo)
	}
	return repos
}

func repoNotFound(repo string) error {
	return apperrors.WithMetadata(
		apperrors.CodeRepoNotFound,
		fmt.Sprintf("repository %s not found", repo),
		map[string]string{"Repo": repo},
	)
}

// apply runs one mutating call against a clone of the repository ledger,
// journals the produced events, and swaps the clone in on success. A failed
// call - core rejection or journal error - leaves the published state and
// the journal untouched.
func (r *Runtime) apply(ctx context.Context, operation, repo string, op func(l *ledger.Ledger) ([]event.Event, error)) error {
	callID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("new call id: %w", err)
	}

	ctx, span := r.tracer.Start(ctx, operation,
		trace.WithAttributes(
			attribute.String("repo", repo),
			attribute.String("call_id", callID),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.repos[repo]
	if !ok {
		return repoNotFound(repo)
	}

	work := current.Clone()
	events, err := op(work)
	if err != nil {
		span.RecordError(err)
		r.logger.Debug("call rejected", "operation", operation, "repo", repo, "call_id", callID, "error", err)
		return err
	}

	if len(events) > 0 {
		timestamp := r.now().UTC()
		for i := range events {
			events[i].Repo = repo
			events[i].Timestamp = timestamp
		}
		if _, err := r.journal.AppendBatch(ctx, events); err != nil {
			span.RecordError(err)
			return fmt.Errorf("journal events: %w", err)
		}
	}

	r.repos[repo] = work
	r.logger.Info("call committed", "operation", operation, "repo", repo, "call_id", callID, "events", len(events))
	return nil
}

// query reads from the repository ledger under the runtime lock.
func (r *Runtime) query(repo string, op func(l *ledger.Ledger)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.repos[repo]
	if !ok {
		return repoNotFound(repo)
	}
	op(current)
	return nil
}

// Role management

// GrantPusherRole grants Pusher to target. Caller must hold Admin.
func (r *Runtime) GrantPusherRole(ctx context.Context, repo string, caller, target ledger.Principal) error {
	return r.apply(ctx, "runtime.GrantPusherRole", repo, func(l *ledger.Ledger) ([]event.Event, error) {
		return l.GrantPusherRole(caller, target)
	})
}

// RevokePusherRole revokes Pusher from target. Caller must hold Admin.
func (r *Runtime) RevokePusherRole(ctx context.Context, repo string, caller, target ledger.Principal) error {
	return r.apply(ctx, "runtime.RevokePusherRole", repo, func(l *ledger.Ledger) ([]event.Event, error) {
		return l.RevokePusherRole(caller, target)
	})
}

// GrantAdminRole grants Admin to target. Caller must hold Admin.
func (r *Runtime) GrantAdminRole(ctx context.Context, repo string, caller, target ledger.Principal) error {
	return r.apply(ctx, "runtime.GrantAdminRole", repo, func(l *ledger.Ledger) ([]event.Event, error) {
		return l.GrantAdminRole(caller, target)
	})
}

// RevokeAdminRole revokes Admin from target. Caller must hold Admin.
func (r *Runtime) RevokeAdminRole(ctx context.Context, repo string, caller, target ledger.Principal) error {
	return r.apply(ctx, "runtime.RevokeAdminRole", repo, func(l *ledger.Ledger) ([]event.Event, error) {
		return l.RevokeAdminRole(caller, target)
	})
}

// HasPusherRole reports whether the principal holds Pusher.
func (r *Runtime) HasPusherRole(repo string, p ledger.Principal) (bool, error) {
	var has bool
	err := r.query(repo, func(l *ledger.Ledger) {
		has = l.HasPusherRole(p)
	})
	return has, err
}

// HasAdminRole reports whether the principal holds Admin.
func (r *Runtime) HasAdminRole(repo string, p ledger.Principal) (bool, error) {
	var has bool
	err := r.query(repo, func(l *ledger.Ledger) {
		has = l.HasAdminRole(p)
	})
	return has, err
}

// Objects

// SaveObject records a content-addressed object. Caller must hold Pusher.
func (r *Runtime) SaveObject(ctx context.Context, repo string, caller ledger.Principal, key string, locator []byte) error {
	return r.apply(ctx, "runtime.SaveObject", repo, func(l *ledger.Ledger) ([]event.Event, error) {
		return l.SaveObject(caller, key, locator)
	})
}

// SaveObjects records a batch of objects atomically. Caller must hold Pusher.
func (r *Runtime) SaveObjects(ctx context.Context, repo string, caller ledger.Principal, keys []string, locators [][]byte) error {
	return r.apply(ctx, "runtime.SaveObjects", repo, func(l *ledger.Ledger) ([]event.Event, error) {
		return l.SaveObjects(caller, keys, locators)
	})
}

// ObjectExists reports whether the key has been saved.
func (r *Runtime) ObjectExists(repo, key string) (bool, error) {
	var exists bool
	err := r.query(repo, func(l *ledger.Ledger) {
		exists = l.ObjectExists(key)
	})
	return exists, err
}

// Object returns the record for key; ok is false when the key is absent.
func (r *Runtime) Object(repo, key string) (ledger.ObjectRecord, bool, error) {
	var (
		record ledger.ObjectRecord
		ok     bool
	)
	err := r.query(repo, func(l *ledger.Ledger) {
		record, ok = l.Object(key)
	})
	return record, ok, err
}

// ObjectByPosition returns the record at the given insertion position.
func (r *Runtime) ObjectByPosition(repo string, pos int) (ledger.ObjectRecord, error) {
	var (
		record ledger.ObjectRecord
		opErr  error
	)
	err := r.query(repo, func(l *ledger.Ledger) {
		record, opErr = l.ObjectByPosition(pos)
	})
	if err != nil {
		return ledger.ObjectRecord{}, err
	}
	return record, opErr
}

// CheckObjects reports existence for each key.
func (r *Runtime) CheckObjects(repo string, keys []string) ([]bool, error) {
	var results []bool
	err := r.query(repo, func(l *ledger.Ledger) {
		results = l.CheckObjects(keys)
	})
	return results, err
}

// ObjectsLength returns the number of distinct keys ever saved.
func (r *Runtime) ObjectsLength(repo string) (int, error) {
	var length int
	err := r.query(repo, func(l *ledger.Ledger) {
		length = l.ObjectsLength()
	})
	return length, err
}

// Refs

// UpsertRef inserts or updates a named pointer. Caller must hold Pusher.
func (r *Runtime) UpsertRef(ctx context.Context, repo string, caller ledger.Principal, name string, data []byte) error {
	return r.apply(ctx, "runtime.UpsertRef", repo, func(l *ledger.Ledger) ([]event.Event, error) {
		return l.UpsertRef(caller, name, data)
	})
}

// UpsertRefs applies a batch of upserts atomically. Caller must hold Pusher.
func (r *Runtime) UpsertRefs(ctx context.Context, repo string, caller ledger.Principal, names []string, dataItems [][]byte) error {
	return r.apply(ctx, "runtime.UpsertRefs", repo, func(l *ledger.Ledger) ([]event.Event, error) {
		return l.UpsertRefs(caller, names, dataItems)
	})
}

// Ref returns the record for name; ok is false when the name is absent.
func (r *Runtime) Ref(repo, name string) (ledger.RefRecord, bool, error) {
	var (
		record ledger.RefRecord
		ok     bool
	)
	err := r.query(repo, func(l *ledger.Ledger) {
		record, ok = l.Ref(name)
	})
	return record, ok, err
}

// RefByPosition returns the record at the given creation position.
func (r *Runtime) RefByPosition(repo string, pos int) (ledger.RefRecord, error) {
	var (
		record ledger.RefRecord
		opErr  error
	)
	err := r.query(repo, func(l *ledger.Ledger) {
		record, opErr = l.RefByPosition(pos)
	})
	if err != nil {
		return ledger.RefRecord{}, err
	}
	return record, opErr
}

// RefsLength returns the number of distinct ref names ever created.
func (r *Runtime) RefsLength(repo string) (int, error) {
	var length int
	err := r.query(repo, func(l *ledger.Ledger) {
		length = l.RefsLength()
	})
	return length, err
}

// Config

// UpdateConfig replaces the configuration blob. Caller must hold Pusher.
func (r *Runtime) UpdateConfig(ctx context.Context, repo string, caller ledger.Principal, config []byte) error {
	return r.apply(ctx, "runtime.UpdateConfig", repo, func(l *ledger.Ledger) ([]event.Event, error) {
		return l.UpdateConfig(caller, config)
	})
}

// Config returns the current configuration blob, empty if never set.
func (r *Runtime) Config(repo string) ([]byte, error) {
	var config []byte
	err := r.query(repo, func(l *ledger.Ledger) {
		config = l.Config()
	})
	return config, err
}
