package event

import (
	"encoding/json"
	"fmt"
)

// ObjectSavedPayload carries the recorded object for TypeObjectSaved.
type ObjectSavedPayload struct {
	Key       string `json:"key"`
	Locator   []byte `json:"locator"`
	Submitter string `json:"submitter"`
}

// RefUpsertedPayload carries the ref state written by TypeRefUpserted.
// Created distinguishes first creation from in-place updates.
type RefUpsertedPayload struct {
	Name      string `json:"name"`
	Data      []byte `json:"data"`
	Submitter string `json:"submitter"`
	Created   bool   `json:"created"`
}

// ConfigUpdatedPayload carries the new configuration blob.
type ConfigUpdatedPayload struct {
	Config    []byte `json:"config"`
	Submitter string `json:"submitter"`
}

// RoleChangedPayload carries a role set change.
type RoleChangedPayload struct {
	Role      string `json:"role"`
	Principal string `json:"principal"`
	Granted   bool   `json:"granted"`
}

// NewObjectSaved builds an object.saved event for an accepted first-time save.
func NewObjectSaved(actor, key string, locator []byte) (Event, error) {
	payload, err := json.Marshal(ObjectSavedPayload{
		Key:       key,
		Locator:   locator,
		Submitter: actor,
	})
	if err != nil {
		return Event{}, fmt.Errorf("marshal object saved payload: %w", err)
	}
	return Event{
		Type:        TypeObjectSaved,
		Actor:       actor,
		EntityType:  EntityTypeObject,
		EntityID:    key,
		PayloadJSON: payload,
	}, nil
}

// NewRefUpserted builds a ref.upserted event.
func NewRefUpserted(actor, name string, data []byte, created bool) (Event, error) {
	payload, err := json.Marshal(RefUpsertedPayload{
		Name:      name,
		Data:      data,
		Submitter: actor,
		Created:   created,
	})
	if err != nil {
		return Event{}, fmt.Errorf("marshal ref upserted payload: %w", err)
	}
	return Event{
		Type:        TypeRefUpserted,
		Actor:       actor,
		EntityType:  EntityTypeRef,
		EntityID:    name,
		PayloadJSON: payload,
	}, nil
}

// NewConfigUpdated builds a config.updated event.
func NewConfigUpdated(actor string, config []byte) (Event, error) {
	payload, err := json.Marshal(ConfigUpdatedPayload{
		Config:    config,
		Submitter: actor,
	})
	if err != nil {
		return Event{}, fmt.Errorf("marshal config updated payload: %w", err)
	}
	return Event{
		Type:        TypeConfigUpdated,
		Actor:       actor,
		EntityType:  EntityTypeConfig,
		EntityID:    EntityTypeConfig,
		PayloadJSON: payload,
	}, nil
}

// NewRoleChanged builds a role.changed event for an effective grant or revocation.
func NewRoleChanged(actor, role, principal string, granted bool) (Event, error) {
	payload, err := json.Marshal(RoleChangedPayload{
		Role:      role,
		Principal: principal,
		Granted:   granted,
	})
	if err != nil {
		return Event{}, fmt.Errorf("marshal role changed payload: %w", err)
	}
	return Event{
		Type:        TypeRoleChanged,
		Actor:       actor,
		EntityType:  EntityTypeRole,
		EntityID:    principal,
		PayloadJSON: payload,
	}, nil
}
