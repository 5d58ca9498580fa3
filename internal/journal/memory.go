package journal

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/permagit/permagit/internal/event"
)

// Memory is an in-memory Journal for tests and ephemeral environments.
type Memory struct {
	mu     sync.Mutex
	events map[string][]event.Event
}

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{events: make(map[string][]event.Event)}
}

// Append implements Journal.
func (m *Memory) Append(ctx context.Context, evt event.Event) (event.Event, error) {
	stored, err := m.AppendBatch(ctx, []event.Event{evt})
	if err != nil {
		return event.Event{}, err
	}
	return stored[0], nil
}

// AppendBatch implements Journal. All events must belong to the same
// repository; sequence numbers are allocated contiguously.
func (m *Memory) AppendBatch(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	validated := make([]event.Event, len(events))
	for i, evt := range events {
		v, err := ValidateForAppend(evt)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if i > 0 && v.Repo != validated[0].Repo {
			return nil, fmt.Errorf("event %d: repo mismatch in batch", i)
		}
		validated[i] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo := validated[0].Repo
	stored := m.events[repo]
	baseSeq := uint64(len(stored)) + 1
	prevChainHash := ""
	if len(stored) > 0 {
		prevChainHash = stored[len(stored)-1].ChainHash
	}

	sealed := make([]event.Event, len(validated))
	for i, evt := range validated {
		s, err := Seal(evt, baseSeq+uint64(i), prevChainHash)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		sealed[i] = s
		prevChainHash = s.ChainHash
	}

	m.events[repo] = append(stored, sealed...)
	return sealed, nil
}

// ListEvents implements Journal.
func (m *Memory) ListEvents(ctx context.Context, repo string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.events[repo]
	if afterSeq >= uint64(len(stored)) {
		return nil, nil
	}
	end := afterSeq + uint64(limit)
	if end > uint64(len(stored)) {
		end = uint64(len(stored))
	}
	page := make([]event.Event, end-afterSeq)
	copy(page, stored[afterSeq:end])
	return page, nil
}

// GetEventBySeq implements Journal.
func (m *Memory) GetEventBySeq(ctx context.Context, repo string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.events[repo]
	if seq == 0 || seq > uint64(len(stored)) {
		return event.Event{}, ErrNotFound
	}
	return stored[seq-1], nil
}

// LatestSeq implements Journal.
func (m *Memory) LatestSeq(ctx context.Context, repo string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return uint64(len(m.events[repo])), nil
}

// Repos implements Journal.
func (m *Memory) Repos(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repos := make([]string, 0, len(m.events))
	for repo := range m.events {
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	return repos, nil
}
