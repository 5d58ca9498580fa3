package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/permagit/permagit/internal/event"
	"github.com/permagit/permagit/internal/journal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func newTestEvent(repo, entityID string) event.Event {
	return event.Event{
		Repo:        repo,
		Type:        event.TypeObjectSaved,
		Actor:       "alice",
		EntityType:  event.EntityTypeObject,
		EntityID:    entityID,
		PayloadJSON: []byte(`{"key":"` + entityID + `"}`),
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := store.Append(context.Background(), newTestEvent("demo", "a")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening must not rerun migrations or lose data.
	store, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer store.Close()

	seq, err := store.LatestSeq(context.Background(), "demo")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected seq 1 after reopen, got %d", seq)
	}
}

func TestAppendBatchSealsAndChains(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first, err := store.Append(ctx, newTestEvent("demo", "a"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.Seq != 1 || first.Hash == "" || first.PrevHash != "" {
		t.Fatalf("unexpected first event: %+v", first)
	}

	batch, err := store.AppendBatch(ctx, []event.Event{
		newTestEvent("demo", "b"),
		newTestEvent("demo", "c"),
	})
	if err != nil {
		t.Fatalf("append batch: %v", err)
	}
	if batch[0].Seq != 2 || batch[1].Seq != 3 {
		t.Fatalf("expected seqs 2 and 3, got %d and %d", batch[0].Seq, batch[1].Seq)
	}
	// The first element of the batch links to the last stored event.
	if batch[0].PrevHash != first.ChainHash {
		t.Fatal("batch must chain onto the stored tail")
	}
	if batch[1].PrevHash != batch[0].ChainHash {
		t.Fatal("batch elements must chain onto each other")
	}

	if err := journal.Verify(ctx, store, "demo"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestAppendBatchRejectsMixedRepos(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.AppendBatch(ctx, []event.Event{
		newTestEvent("demo", "a"),
		newTestEvent("other", "b"),
	})
	if err == nil {
		t.Fatal("expected error for mixed repo batch")
	}
	repos, err := store.Repos(ctx)
	if err != nil {
		t.Fatalf("repos: %v", err)
	}
	if len(repos) != 0 {
		t.Fatalf("rejected batch must store nothing, got repos %v", repos)
	}
}

func TestSequencesAreIndependentPerRepo(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Append(ctx, newTestEvent("alpha", "a")); err != nil {
			t.Fatalf("append alpha: %v", err)
		}
	}
	beta, err := store.Append(ctx, newTestEvent("beta", "b"))
	if err != nil {
		t.Fatalf("append beta: %v", err)
	}
	if beta.Seq != 1 {
		t.Fatalf("expected beta to start at seq 1, got %d", beta.Seq)
	}
	if beta.PrevHash != "" {
		t.Fatal("beta chain must not link into alpha")
	}
}

func TestListEventsPaging(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if _, err := store.Append(ctx, newTestEvent("demo", id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	page, err := store.ListEvents(ctx, "demo", 1, 2)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 2 || page[1].Seq != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page[0].EntityID != "b" {
		t.Fatalf("expected entity b, got %s", page[0].EntityID)
	}

	page, err = store.ListEvents(ctx, "demo", 5, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("expected empty page, got %d events", len(page))
	}

	if _, err := store.ListEvents(ctx, "demo", 0, 0); err == nil {
		t.Fatal("expected error for non-positive limit")
	}
	if _, err := store.ListEvents(ctx, "", 0, 1); err == nil {
		t.Fatal("expected error for blank repo")
	}
}

func TestGetEventBySeq(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	stored, err := store.Append(ctx, newTestEvent("demo", "a"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.GetEventBySeq(ctx, "demo", 1)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.Hash != stored.Hash || got.ChainHash != stored.ChainHash {
		t.Fatal("stored hashes must round-trip")
	}
	if !got.Timestamp.Equal(stored.Timestamp) {
		t.Fatalf("timestamp mismatch: %v vs %v", got.Timestamp, stored.Timestamp)
	}

	if _, err := store.GetEventBySeq(ctx, "demo", 99); !errors.Is(err, journal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestSeqAndRepos(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	seq, err := store.LatestSeq(ctx, "demo")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if seq != 0 {
		t.Fatalf("expected seq 0 for empty repo, got %d", seq)
	}

	for _, repo := range []string{"zeta", "alpha"} {
		if _, err := store.Append(ctx, newTestEvent(repo, "a")); err != nil {
			t.Fatalf("append %s: %v", repo, err)
		}
	}
	repos, err := store.Repos(ctx)
	if err != nil {
		t.Fatalf("repos: %v", err)
	}
	if len(repos) != 2 || repos[0] != "alpha" || repos[1] != "zeta" {
		t.Fatalf("unexpected repos: %v", repos)
	}
}
