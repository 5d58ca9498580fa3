// Package journal persists the ledger's event log for off-chain mirrors and
// indexers. Events are sequenced per repository and linked into a
// tamper-evident hash chain mirroring the total order the execution
// environment guarantees.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/permagit/permagit/internal/event"
)

// ErrNotFound indicates a requested event is missing.
var ErrNotFound = errors.New("event not found")

// Journal is the append-only event log store.
type Journal interface {
	// Append atomically appends an event and returns it with sequence and
	// hashes set.
	Append(ctx context.Context, evt event.Event) (event.Event, error)
	// AppendBatch atomically appends multiple events of one repository,
	// allocating contiguous sequence numbers.
	AppendBatch(ctx context.Context, events []event.Event) ([]event.Event, error)
	// ListEvents returns events with Seq > afterSeq ordered by sequence
	// ascending, at most limit entries.
	ListEvents(ctx context.Context, repo string, afterSeq uint64, limit int) ([]event.Event, error)
	// GetEventBySeq retrieves a specific event by sequence number.
	GetEventBySeq(ctx context.Context, repo string, seq uint64) (event.Event, error)
	// LatestSeq returns the latest sequence number for a repository,
	// zero when the repository has no events.
	LatestSeq(ctx context.Context, repo string) (uint64, error)
	// Repos lists the repositories with at least one event.
	Repos(ctx context.Context) ([]string, error)
}

// ValidateForAppend normalizes an event and rejects unusable ones before a
// store assigns it a sequence.
func ValidateForAppend(evt event.Event) (event.Event, error) {
	if evt.Repo == "" {
		return event.Event{}, fmt.Errorf("event repo is required")
	}
	if !evt.Type.IsValid() {
		return event.Event{}, fmt.Errorf("event type is required")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
	return evt, nil
}

// Seal assigns the sequence number and computes the content and chain hashes.
func Seal(evt event.Event, seq uint64, prevChainHash string) (event.Event, error) {
	evt.Seq = seq
	hash, err := event.EventHash(evt)
	if err != nil {
		return event.Event{}, fmt.Errorf("compute event hash: %w", err)
	}
	evt.Hash = hash
	chainHash, err := event.ChainHash(evt, prevChainHash)
	if err != nil {
		return event.Event{}, fmt.Errorf("compute chain hash: %w", err)
	}
	evt.PrevHash = prevChainHash
	evt.ChainHash = chainHash
	return evt, nil
}

// verifyPageSize bounds how many events Verify loads per round trip.
const verifyPageSize = 200

// Verify recomputes the hash chain of a repository's events and reports the
// first gap, hash mismatch, or broken link.
func Verify(ctx context.Context, j Journal, repo string) error {
	var lastSeq uint64
	prevChainHash := ""
	for {
		events, err := j.ListEvents(ctx, repo, lastSeq, verifyPageSize)
		if err != nil {
			return fmt.Errorf("list events repo=%s: %w", repo, err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, evt := range events {
			if evt.Seq != lastSeq+1 {
				return fmt.Errorf("event sequence gap repo=%s expected=%d got=%d", repo, lastSeq+1, evt.Seq)
			}
			if evt.Seq == 1 && evt.PrevHash != "" {
				return fmt.Errorf("first event prev hash must be empty repo=%s", repo)
			}
			if evt.Seq > 1 && evt.PrevHash != prevChainHash {
				return fmt.Errorf("prev hash mismatch repo=%s seq=%d", repo, evt.Seq)
			}

			hash, err := event.EventHash(evt)
			if err != nil {
				return fmt.Errorf("compute event hash repo=%s seq=%d: %w", repo, evt.Seq, err)
			}
			if hash != evt.Hash {
				return fmt.Errorf("event hash mismatch repo=%s seq=%d", repo, evt.Seq)
			}

			chainHash, err := event.ChainHash(evt, prevChainHash)
			if err != nil {
				return fmt.Errorf("compute chain hash repo=%s seq=%d: %w", repo, evt.Seq, err)
			}
			if chainHash != evt.ChainHash {
				return fmt.Errorf("chain hash mismatch repo=%s seq=%d", repo, evt.Seq)
			}

			prevChainHash = evt.ChainHash
			lastSeq = evt.Seq
		}
	}
}
