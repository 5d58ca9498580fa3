// Package mirror rebuilds queryable repository state from the event journal.
// It is the off-chain consumer of the ledger's log: replaying the events of a
// repository in sequence order yields the same objects, refs, config, and
// role sets the ledger holds, without access to the ledger itself.
package mirror

import (
	"encoding/json"
	"fmt"
	"strconv"

	apperrors "github.com/permagit/permagit/internal/errors"
	"github.com/permagit/permagit/internal/event"
)

// ObjectRow is the replica's read model for a saved object.
type ObjectRow struct {
	Key       string
	Locator   []byte
	Submitter string
}

// RefRow is the replica's read model for a ref.
type RefRow struct {
	Name      string
	Data      []byte
	Active    bool
	Submitter string
}

// Replica is a single repository's replayed state. It is not safe for
// concurrent use; callers serialize access the same way the ledger's
// environment does.
type Replica struct {
	repo    string
	lastSeq uint64

	objects     []ObjectRow
	objectIndex map[string]int
	refs        []RefRow
	refIndex    map[string]int
	config      []byte
	admins      map[string]struct{}
	pushers     map[string]struct{}
}

// NewReplica creates an empty replica for one repository.
func NewReplica(repo string) *Replica {
	return &Replica{
		repo:        repo,
		objectIndex: make(map[string]int),
		refIndex:    make(map[string]int),
		admins:      make(map[string]struct{}),
		pushers:     make(map[string]struct{}),
	}
}

// Repo returns the repository this replica mirrors.
func (r *Replica) Repo() string {
	return r.repo
}

// LastSeq returns the sequence number of the last applied event.
func (r *Replica) LastSeq() uint64 {
	return r.lastSeq
}

// Apply replays one journal event into the read models. Events at or below
// the last applied sequence are skipped so replay is idempotent; a sequence
// above lastSeq+1 is a gap and fails without mutation. Unknown event types
// advance the sequence untouched so newer journals stay replayable.
func (r *Replica) Apply(evt event.Event) error {
	if evt.Repo != r.repo {
		return fmt.Errorf("event repo %q does not match replica repo %q", evt.Repo, r.repo)
	}
	if evt.Seq <= r.lastSeq {
		return nil
	}
	if evt.Seq != r.lastSeq+1 {
		return apperrors.WithMetadata(
			apperrors.CodeSequenceGap,
			fmt.Sprintf("event sequence gap: expected %d, got %d", r.lastSeq+1, evt.Seq),
			map[string]string{"Seq": strconv.FormatUint(evt.Seq, 10)},
		)
	}

	switch evt.Type {
	case event.TypeObjectSaved:
		var payload event.ObjectSavedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("unmarshal object saved seq=%d: %w", evt.Seq, err)
		}
		r.applyObjectSaved(payload)
	case event.TypeRefUpserted:
		var payload event.RefUpsertedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("unmarshal ref upserted seq=%d: %w", evt.Seq, err)
		}
		r.applyRefUpserted(payload)
	case event.TypeConfigUpdated:
		var payload event.ConfigUpdatedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("unmarshal config updated seq=%d: %w", evt.Seq, err)
		}
		r.config = payload.Config
	case event.TypeRoleChanged:
		var payload event.RoleChangedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("unmarshal role changed seq=%d: %w", evt.Seq, err)
		}
		r.applyRoleChanged(payload)
	}

	r.lastSeq = evt.Seq
	return nil
}

func (r *Replica) applyObjectSaved(payload event.ObjectSavedPayload) {
	// First writer wins, same as the ledger.
	if _, ok := r.objectIndex[payload.Key]; ok {
		return
	}
	r.objectIndex[payload.Key] = len(r.objects)
	r.objects = append(r.objects, ObjectRow{
		Key:       payload.Key,
		Locator:   payload.Locator,
		Submitter: payload.Submitter,
	})
}

func (r *Replica) applyRefUpserted(payload event.RefUpsertedPayload) {
	row := RefRow{
		Name:      payload.Name,
		Data:      payload.Data,
		Active:    true,
		Submitter: payload.Submitter,
	}
	if pos, ok := r.refIndex[payload.Name]; ok {
		r.refs[pos] = row
		return
	}
	r.refIndex[payload.Name] = len(r.refs)
	r.refs = append(r.refs, row)
}

func (r *Replica) applyRoleChanged(payload event.RoleChangedPayload) {
	var members map[string]struct{}
	switch payload.Role {
	case "admin":
		members = r.admins
	case "pusher":
		members = r.pushers
	default:
		return
	}
	if payload.Granted {
		members[payload.Principal] = struct{}{}
	} else {
		delete(members, payload.Principal)
	}
}

// Object returns the replayed record for key, or the zero row when absent.
func (r *Replica) Object(key string) (ObjectRow, bool) {
	pos, ok := r.objectIndex[key]
	if !ok {
		return ObjectRow{}, false
	}
	return copyObjectRow(r.objects[pos]), true
}

// ObjectByPosition returns the replayed record at the given position.
func (r *Replica) ObjectByPosition(pos int) (ObjectRow, bool) {
	if pos < 0 || pos >= len(r.objects) {
		return ObjectRow{}, false
	}
	return copyObjectRow(r.objects[pos]), true
}

// ObjectsLength returns the number of replayed objects.
func (r *Replica) ObjectsLength() int {
	return len(r.objects)
}

// Ref returns the replayed record for name, or the zero row when absent.
func (r *Replica) Ref(name string) (RefRow, bool) {
	pos, ok := r.refIndex[name]
	if !ok {
		return RefRow{}, false
	}
	return copyRefRow(r.refs[pos]), true
}

// RefByPosition returns the replayed record at the given position.
func (r *Replica) RefByPosition(pos int) (RefRow, bool) {
	if pos < 0 || pos >= len(r.refs) {
		return RefRow{}, false
	}
	return copyRefRow(r.refs[pos]), true
}

// RefsLength returns the number of replayed refs.
func (r *Replica) RefsLength() int {
	return len(r.refs)
}

// Config returns a copy of the replayed configuration blob, empty if never set.
func (r *Replica) Config() []byte {
	return cloneBytes(r.config)
}

func copyObjectRow(row ObjectRow) ObjectRow {
	row.Locator = cloneBytes(row.Locator)
	return row
}

func copyRefRow(row RefRow) RefRow {
	row.Data = cloneBytes(row.Data)
	return row
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	copied := make([]byte, len(b))
	copy(copied, b)
	return copied
}

// HasAdminRole reports whether the principal holds Admin in the replayed state.
func (r *Replica) HasAdminRole(principal string) bool {
	_, ok := r.admins[principal]
	return ok
}

// HasPusherRole reports whether the principal holds Pusher in the replayed state.
func (r *Replica) HasPusherRole(principal string) bool {
	_, ok := r.pushers[principal]
	return ok
}
