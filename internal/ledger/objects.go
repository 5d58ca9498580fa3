package ledger

import (
	apperrors "github.com/permagit/permagit/internal/errors"
)

// ObjectRecord is an immutable content-addressed object entry. The key is a
// content hash chosen by the caller; the locator is an opaque pointer into
// external content storage and is never interpreted here.
type ObjectRecord struct {
	Key       string
	Locator   []byte
	Submitter Principal
}

var (
	// ErrObjectKeyEmpty indicates a missing object key.
	ErrObjectKeyEmpty = apperrors.New(apperrors.CodeObjectKeyEmpty, "object key is required")
)

// objectLedger is the append-only, idempotent object store.
// Once a key is recorded its locator and submitter are immutable:
// first writer wins, duplicate saves are silent no-ops.
type objectLedger struct {
	objects orderedMap[ObjectRecord]
}

func newObjectLedger() objectLedger {
	return objectLedger{objects: newOrderedMap[ObjectRecord]()}
}

// save records the object on first sight and reports whether it inserted.
// A duplicate key leaves the stored record untouched.
func (l *objectLedger) save(key string, locator []byte, submitter Principal) (ObjectRecord, bool, error) {
	if key == "" {
		return ObjectRecord{}, false, ErrObjectKeyEmpty
	}
	if existing, ok := l.objects.get(key); ok {
		return existing, false, nil
	}
	record := ObjectRecord{
		Key:       key,
		Locator:   cloneBytes(locator),
		Submitter: submitter,
	}
	l.objects.insert(key, record)
	return record, true, nil
}

func (l *objectLedger) exists(key string) bool {
	return l.objects.has(key)
}

func (l *objectLedger) get(key string) (ObjectRecord, bool) {
	return l.objects.get(key)
}

func (l *objectLedger) at(pos int) (ObjectRecord, bool) {
	return l.objects.at(pos)
}

func (l *objectLedger) len() int {
	return l.objects.len()
}

func (l *objectLedger) clone() objectLedger {
	return objectLedger{objects: l.objects.clone()}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	copied := make([]byte, len(b))
	copy(copied, b)
	return copied
}
