// Package event defines the ordered notifications the repository ledger
// emits for accepted mutations. Events are produced by the core, stamped
// and sequenced by the journal, and consumed by off-chain mirrors and
// indexers; the core never reads its own log.
package event

import (
	"strings"
	"time"
)

// Type identifies the type of a ledger event.
type Type string

// Object ledger events.
const (
	// TypeObjectSaved records the first successful save of a content-addressed object.
	// Duplicate saves are silent no-ops and emit nothing.
	TypeObjectSaved Type = "object.saved"
)

// Ref ledger events.
const (
	// TypeRefUpserted records a ref insert or update. Unlike object saves,
	// every successful upsert emits an event.
	TypeRefUpserted Type = "ref.upserted"
)

// Config events.
const (
	// TypeConfigUpdated records an overwrite of the configuration blob.
	TypeConfigUpdated Type = "config.updated"
)

// Access control events.
const (
	// TypeRoleChanged records a role grant or revocation that changed the
	// role set. No-op grants and revocations emit nothing.
	TypeRoleChanged Type = "role.changed"
)

// Entity types affected by events.
const (
	EntityTypeObject = "object"
	EntityTypeRef    = "ref"
	EntityTypeConfig = "config"
	EntityTypeRole   = "role"
)

// Event represents an immutable entry in the ledger's event log.
type Event struct {
	// Repo is the repository this event belongs to. Stamped by the
	// execution environment before the event reaches the journal.
	Repo string
	// Seq is the event sequence number within the repository (starts at 1).
	// Assigned by the journal on append.
	Seq uint64
	// Hash is the content-addressed identity of the event (SHA-256).
	// Assigned by the journal on append.
	Hash string
	// PrevHash is the chain hash of the preceding event (empty for Seq 1).
	PrevHash string
	// ChainHash links this event to its predecessor for tamper evidence.
	ChainHash string
	// Timestamp is when the event was accepted.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// Actor is the principal whose call produced the event.
	Actor string
	// EntityType is the type of entity affected (object, ref, config, role).
	EntityType string
	// EntityID identifies the affected entity (object key, ref name, ...).
	EntityID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "object", "ref").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
