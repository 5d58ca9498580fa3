// Package sqlite provides the SQLite-backed event journal.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/permagit/permagit/internal/event"
	"github.com/permagit/permagit/internal/journal"
	"github.com/permagit/permagit/internal/journal/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists the event journal in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite journal and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// applyMigrations executes embedded migrations at most once per file.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range sqlFiles {
		var applied int
		err := sqlDB.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE name = ?", file).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied > 0 {
			continue
		}
		raw, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := sqlDB.Exec(string(raw)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		if _, err := sqlDB.Exec(
			"INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)",
			file, toMillis(time.Now()),
		); err != nil {
			return fmt.Errorf("record migration %s: %w", file, err)
		}
	}
	return nil
}

// Append implements journal.Journal.
func (s *Store) Append(ctx context.Context, evt event.Event) (event.Event, error) {
	stored, err := s.AppendBatch(ctx, []event.Event{evt})
	if err != nil {
		return event.Event{}, err
	}
	return stored[0], nil
}

// AppendBatch implements journal.Journal. All events must belong to the same
// repository. Sequence numbers are allocated contiguously and chain hashes
// link each event to its predecessor, including the last previously stored
// event for the first item of the batch.
func (s *Store) AppendBatch(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("journal is not configured")
	}

	// Validate all events before opening a transaction.
	validated := make([]event.Event, len(events))
	for i, evt := range events {
		v, err := journal.ValidateForAppend(evt)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if i > 0 && v.Repo != validated[0].Repo {
			return nil, fmt.Errorf("event %d: repo mismatch in batch", i)
		}
		validated[i] = v
	}
	repo := validated[0].Repo

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO event_seq (repo, next_seq) VALUES (?, 1)", repo,
	); err != nil {
		return nil, fmt.Errorf("init event seq: %w", err)
	}

	var baseSeq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT next_seq FROM event_seq WHERE repo = ?", repo,
	).Scan(&baseSeq); err != nil {
		return nil, fmt.Errorf("get event seq: %w", err)
	}

	// Load the previous chain hash for linking the first event in the batch.
	prevChainHash := ""
	if baseSeq > 1 {
		if err := tx.QueryRowContext(ctx,
			"SELECT chain_hash FROM events WHERE repo = ? AND seq = ?",
			repo, baseSeq-1,
		).Scan(&prevChainHash); err != nil {
			return nil, fmt.Errorf("load previous event: %w", err)
		}
	}

	stored := make([]event.Event, len(validated))
	for i, evt := range validated {
		sealed, err := journal.Seal(evt, uint64(baseSeq)+uint64(i), prevChainHash)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (
			    repo, seq, event_hash, prev_event_hash, chain_hash,
			    timestamp, event_type, actor, entity_type, entity_id, payload_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sealed.Repo,
			int64(sealed.Seq),
			sealed.Hash,
			sealed.PrevHash,
			sealed.ChainHash,
			toMillis(sealed.Timestamp),
			string(sealed.Type),
			sealed.Actor,
			sealed.EntityType,
			sealed.EntityID,
			sealed.PayloadJSON,
		); err != nil {
			return nil, fmt.Errorf("append event %d: %w", i, err)
		}
		prevChainHash = sealed.ChainHash
		stored[i] = sealed
	}

	nextSeq := baseSeq + int64(len(validated))
	if _, err := tx.ExecContext(ctx,
		"UPDATE event_seq SET next_seq = ? WHERE repo = ?", nextSeq, repo,
	); err != nil {
		return nil, fmt.Errorf("update event seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return stored, nil
}

const eventColumns = "repo, seq, event_hash, prev_event_hash, chain_hash, timestamp, event_type, actor, entity_type, entity_id, payload_json"

func scanEvent(scan func(dest ...any) error) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		timestamp int64
		eventType string
	)
	if err := scan(
		&evt.Repo,
		&seq,
		&evt.Hash,
		&evt.PrevHash,
		&evt.ChainHash,
		&timestamp,
		&eventType,
		&evt.Actor,
		&evt.EntityType,
		&evt.EntityID,
		&evt.PayloadJSON,
	); err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(seq)
	evt.Timestamp = fromMillis(timestamp)
	evt.Type = event.Type(eventType)
	return evt, nil
}

// ListEvents implements journal.Journal.
func (s *Store) ListEvents(ctx context.Context, repo string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("journal is not configured")
	}
	if strings.TrimSpace(repo) == "" {
		return nil, fmt.Errorf("repo is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE repo = ? AND seq > ? ORDER BY seq ASC LIMIT ?",
		repo, int64(afterSeq), int64(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// GetEventBySeq implements journal.Journal.
func (s *Store) GetEventBySeq(ctx context.Context, repo string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("journal is not configured")
	}
	if strings.TrimSpace(repo) == "" {
		return event.Event{}, fmt.Errorf("repo is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE repo = ? AND seq = ?",
		repo, int64(seq),
	)
	evt, err := scanEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, journal.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event by seq: %w", err)
	}
	return evt, nil
}

// LatestSeq implements journal.Journal.
func (s *Store) LatestSeq(ctx context.Context, repo string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("journal is not configured")
	}
	if strings.TrimSpace(repo) == "" {
		return 0, fmt.Errorf("repo is required")
	}

	var seq sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM events WHERE repo = ?", repo,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get latest seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// Repos implements journal.Journal.
func (s *Store) Repos(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("journal is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, "SELECT DISTINCT repo FROM events ORDER BY repo")
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer rows.Close()

	var repos []string
	for rows.Next() {
		var repo string
		if err := rows.Scan(&repo); err != nil {
			return nil, fmt.Errorf("scan repo: %w", err)
		}
		repos = append(repos, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repos: %w", err)
	}
	return repos, nil
}
