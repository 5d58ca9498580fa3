package ledger

import (
	apperrors "github.com/permagit/permagit/internal/errors"
)

// RefRecord is a mutable named pointer. Data and Submitter change on every
// successful upsert; Active is set true at first creation and no operation
// in scope resets it.
type RefRecord struct {
	Name      string
	Data      []byte
	Active    bool
	Submitter Principal
}

var (
	// ErrRefNameEmpty indicates a missing ref name.
	ErrRefNameEmpty = apperrors.New(apperrors.CodeRefNameEmpty, "ref name is required")
)

// refLedger stores refs in creation order. A name's position is assigned at
// first creation and stays fixed across any number of updates.
type refLedger struct {
	refs orderedMap[RefRecord]
}

func newRefLedger() refLedger {
	return refLedger{refs: newOrderedMap[RefRecord]()}
}

// upsert inserts or overwrites the ref and reports whether it created it.
func (l *refLedger) upsert(name string, data []byte, submitter Principal) (RefRecord, bool, error) {
	if name == "" {
		return RefRecord{}, false, ErrRefNameEmpty
	}
	record := RefRecord{
		Name:      name,
		Data:      cloneBytes(data),
		Active:    true,
		Submitter: submitter,
	}
	if l.refs.has(name) {
		l.refs.update(name, record)
		return record, false, nil
	}
	l.refs.insert(name, record)
	return record, true, nil
}

func (l *refLedger) get(name string) (RefRecord, bool) {
	return l.refs.get(name)
}

func (l *refLedger) at(pos int) (RefRecord, bool) {
	return l.refs.at(pos)
}

func (l *refLedger) len() int {
	return l.refs.len()
}

func (l *refLedger) clone() refLedger {
	return refLedger{refs: l.refs.clone()}
}
