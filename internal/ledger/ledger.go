package ledger

import (
	"fmt"
	"strconv"

	apperrors "github.com/permagit/permagit/internal/errors"
	"github.com/permagit/permagit/internal/event"
)

// Ledger composes the four stores of one repository behind a single
// capability-checked operation set. Every mutating operation checks the
// caller's role first, mutates exactly one store, and returns the events
// describing the accepted mutation. The caller's environment owns the
// Ledger's lifetime and is the sole serialization point.
type Ledger struct {
	roles   accessRegistry
	objects objectLedger
	refs    refLedger
	config  []byte
}

// New creates a repository ledger with the deploying principal granted
// both Admin and Pusher.
func New(deployer Principal) *Ledger {
	return &Ledger{
		roles:   newAccessRegistry(deployer),
		objects: newObjectLedger(),
		refs:    newRefLedger(),
	}
}

// Clone returns a deep copy of the ledger. The execution environment applies
// each call against a clone and swaps it in on success so a failed call can
// never leave partial state behind.
func (l *Ledger) Clone() *Ledger {
	return &Ledger{
		roles:   l.roles.clone(),
		objects: l.objects.clone(),
		refs:    l.refs.clone(),
		config:  cloneBytes(l.config),
	}
}

// guard verifies the caller currently holds the required role.
func (l *Ledger) guard(role Role, caller Principal) error {
	if l.roles.has(role, caller) {
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodeUnauthorized,
		fmt.Sprintf("caller %s does not hold the %s role", caller, role),
		map[string]string{"Role": role.String()},
	)
}

// Role management

// GrantAdminRole grants Admin to target. Requires the caller to hold Admin.
func (l *Ledger) GrantAdminRole(caller, target Principal) ([]event.Event, error) {
	return l.setRole(caller, RoleAdmin, target, true)
}

// RevokeAdminRole revokes Admin from target. Requires the caller to hold
// Admin. The sole Admin may revoke itself; doing so permanently disables
// role management for this repository.
func (l *Ledger) RevokeAdminRole(caller, target Principal) ([]event.Event, error) {
	return l.setRole(caller, RoleAdmin, target, false)
}

// GrantPusherRole grants Pusher to target. Requires the caller to hold Admin.
func (l *Ledger) GrantPusherRole(caller, target Principal) ([]event.Event, error) {
	return l.setRole(caller, RolePusher, target, true)
}

// RevokePusherRole revokes Pusher from target. Requires the caller to hold Admin.
func (l *Ledger) RevokePusherRole(caller, target Principal) ([]event.Event, error) {
	return l.setRole(caller, RolePusher, target, false)
}

func (l *Ledger) setRole(caller Principal, role Role, target Principal, granted bool) ([]event.Event, error) {
	if err := l.guard(RoleAdmin, caller); err != nil {
		return nil, err
	}
	if !l.roles.set(role, target, granted) {
		// Target already has (or lacks) the role: succeed without an event.
		return nil, nil
	}
	evt, err := event.NewRoleChanged(string(caller), role.String(), string(target), granted)
	if err != nil {
		return nil, err
	}
	return []event.Event{evt}, nil
}

// HasAdminRole reports whether the principal holds Admin. Unrestricted query.
func (l *Ledger) HasAdminRole(p Principal) bool {
	return l.roles.has(RoleAdmin, p)
}

// HasPusherRole reports whether the principal holds Pusher. Unrestricted query.
func (l *Ledger) HasPusherRole(p Principal) bool {
	return l.roles.has(RolePusher, p)
}

// Objects

// SaveObject records a content-addressed object. Requires Pusher. Saving an
// existing key is a silent no-op: no mutation, no event, normal return.
func (l *Ledger) SaveObject(caller Principal, key string, locator []byte) ([]event.Event, error) {
	if err := l.guard(RolePusher, caller); err != nil {
		return nil, err
	}
	_, inserted, err := l.objects.save(key, locator, caller)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	evt, err := event.NewObjectSaved(string(caller), key, locator)
	if err != nil {
		return nil, err
	}
	return []event.Event{evt}, nil
}

// SaveObjects applies SaveObject element-wise in one atomic call. The arrays
// must have equal lengths and every key must be non-empty; both are validated
// before anything mutates, so a rejected batch has zero effect. Each
// element's idempotency is independent.
func (l *Ledger) SaveObjects(caller Principal, keys []string, locators [][]byte) ([]event.Event, error) {
	if err := l.guard(RolePusher, caller); err != nil {
		return nil, err
	}
	if len(keys) != len(locators) {
		return nil, lengthMismatch(len(keys), len(locators))
	}
	for _, key := range keys {
		if key == "" {
			return nil, ErrObjectKeyEmpty
		}
	}
	var events []event.Event
	for i, key := range keys {
		_, inserted, err := l.objects.save(key, locators[i], caller)
		if err != nil {
			return nil, err
		}
		if !inserted {
			continue
		}
		evt, err := event.NewObjectSaved(string(caller), key, locators[i])
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

// ObjectExists reports whether the key has been saved. Unrestricted query.
func (l *Ledger) ObjectExists(key string) bool {
	return l.objects.exists(key)
}

// Object returns the record for key, or the zero record when absent.
// Absence is a normal state, not an error.
func (l *Ledger) Object(key string) (ObjectRecord, bool) {
	return l.objects.get(key)
}

// ObjectByPosition returns the record at the given insertion position.
func (l *Ledger) ObjectByPosition(pos int) (ObjectRecord, error) {
	record, ok := l.objects.at(pos)
	if !ok {
		return ObjectRecord{}, outOfRange(pos, l.objects.len())
	}
	return record, nil
}

// CheckObjects reports existence for each key. Unrestricted query.
func (l *Ledger) CheckObjects(keys []string) []bool {
	results := make([]bool, len(keys))
	for i, key := range keys {
		results[i] = l.objects.exists(key)
	}
	return results
}

// ObjectsLength returns the number of distinct keys ever saved.
func (l *Ledger) ObjectsLength() int {
	return l.objects.len()
}

// Refs

// UpsertRef inserts or updates a named pointer. Requires Pusher. A new name
// is appended and assigned the next position; an existing name is overwritten
// in place at its original position. Every successful call emits an event.
func (l *Ledger) UpsertRef(caller Principal, name string, data []byte) ([]event.Event, error) {
	if err := l.guard(RolePusher, caller); err != nil {
		return nil, err
	}
	_, created, err := l.refs.upsert(name, data, caller)
	if err != nil {
		return nil, err
	}
	evt, err := event.NewRefUpserted(string(caller), name, data, created)
	if err != nil {
		return nil, err
	}
	return []event.Event{evt}, nil
}

// UpsertRefs applies UpsertRef element-wise in one atomic call. The arrays
// must have equal lengths and every name must be non-empty; a rejected batch
// applies nothing.
func (l *Ledger) UpsertRefs(caller Principal, names []string, dataItems [][]byte) ([]event.Event, error) {
	if err := l.guard(RolePusher, caller); err != nil {
		return nil, err
	}
	if len(names) != len(dataItems) {
		return nil, lengthMismatch(len(names), len(dataItems))
	}
	for _, name := range names {
		if name == "" {
			return nil, ErrRefNameEmpty
		}
	}
	events := make([]event.Event, 0, len(names))
	for i, name := range names {
		_, created, err := l.refs.upsert(name, dataItems[i], caller)
		if err != nil {
			return nil, err
		}
		evt, err := event.NewRefUpserted(string(caller), name, dataItems[i], created)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

// Ref returns the record for name, or the zero record when absent.
func (l *Ledger) Ref(name string) (RefRecord, bool) {
	return l.refs.get(name)
}

// RefByPosition returns the record at the given creation position.
func (l *Ledger) RefByPosition(pos int) (RefRecord, error) {
	record, ok := l.refs.at(pos)
	if !ok {
		return RefRecord{}, outOfRange(pos, l.refs.len())
	}
	return record, nil
}

// RefsLength returns the number of distinct ref names ever created.
func (l *Ledger) RefsLength() int {
	return l.refs.len()
}

// Config

// UpdateConfig replaces the configuration blob unconditionally. Requires
// Pusher, not Admin. No history is kept.
func (l *Ledger) UpdateConfig(caller Principal, config []byte) ([]event.Event, error) {
	if err := l.guard(RolePusher, caller); err != nil {
		return nil, err
	}
	evt, err := event.NewConfigUpdated(string(caller), config)
	if err != nil {
		return nil, err
	}
	l.config = cloneBytes(config)
	return []event.Event{evt}, nil
}

// Config returns the current configuration blob, empty if never set.
func (l *Ledger) Config() []byte {
	return cloneBytes(l.config)
}

func lengthMismatch(left, right int) error {
	return apperrors.WithMetadata(
		apperrors.CodeLengthMismatch,
		fmt.Sprintf("batch arrays have unequal lengths: %d vs %d", left, right),
		map[string]string{
			"Left":  strconv.Itoa(left),
			"Right": strconv.Itoa(right),
		},
	)
}

func outOfRange(pos, length int) error {
	return apperrors.WithMetadata(
		apperrors.CodeOutOfRange,
		fmt.Sprintf("position %d is out of range for sequence of length %d", pos, length),
		map[string]string{
			"Position": strconv.Itoa(pos),
			"Length":   strconv.Itoa(length),
		},
	)
}
