package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hashEnvelope is the canonical serialization used for event hashing.
// Field order is fixed here so hashes cannot drift between layers.
type hashEnvelope struct {
	Repo        string          `json:"repo"`
	Seq         uint64          `json:"seq"`
	TimestampMS int64           `json:"timestamp_ms"`
	Type        string          `json:"type"`
	Actor       string          `json:"actor"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// EventHash computes the content hash for a single event.
func EventHash(evt Event) (string, error) {
	envelope := hashEnvelope{
		Repo:        evt.Repo,
		Seq:         evt.Seq,
		TimestampMS: evt.Timestamp.UnixMilli(),
		Type:        string(evt.Type),
		Actor:       evt.Actor,
		EntityType:  evt.EntityType,
		EntityID:    evt.EntityID,
		Payload:     evt.PayloadJSON,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("marshal hash envelope: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash computes the SHA-256 hash that links an event to its predecessor.
// The previous chain hash is empty for the first event of a repository.
func ChainHash(evt Event, prevChainHash string) (string, error) {
	eventHash := evt.Hash
	if eventHash == "" {
		var err error
		eventHash, err = EventHash(evt)
		if err != nil {
			return "", err
		}
	}
	sum := sha256.Sum256([]byte(prevChainHash + "\n" + eventHash))
	return hex.EncodeToString(sum[:]), nil
}
