package ledger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	apperrors "github.com/permagit/permagit/internal/errors"
	"github.com/permagit/permagit/internal/event"
	"github.com/permagit/permagit/internal/ledger"
)

const (
	deployer = ledger.Principal("alice")
	pusher   = ledger.Principal("bob")
	outsider = ledger.Principal("mallory")
)

func newLedgerWithPusher(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(deployer)
	if _, err := l.GrantPusherRole(deployer, pusher); err != nil {
		t.Fatalf("grant pusher: %v", err)
	}
	return l
}

func TestNewSeedsDeployerRoles(t *testing.T) {
	l := ledger.New(deployer)
	if !l.HasAdminRole(deployer) {
		t.Fatal("deployer should hold admin")
	}
	if !l.HasPusherRole(deployer) {
		t.Fatal("deployer should hold pusher")
	}
	if l.HasAdminRole(outsider) || l.HasPusherRole(outsider) {
		t.Fatal("outsider should hold no roles")
	}
}

func TestGrantRequiresAdmin(t *testing.T) {
	l := newLedgerWithPusher(t)

	// Pusher alone is not enough for role management.
	if _, err := l.GrantPusherRole(pusher, outsider); !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := l.GrantAdminRole(outsider, outsider); !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if l.HasPusherRole(outsider) {
		t.Fatal("failed grant must not change the role set")
	}
}

func TestGrantEmitsEventOnlyOnChange(t *testing.T) {
	l := ledger.New(deployer)

	events, err := l.GrantPusherRole(deployer, pusher)
	if err != nil {
		t.Fatalf("grant pusher: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != event.TypeRoleChanged {
		t.Fatalf("expected role.changed, got %s", events[0].Type)
	}
	var payload event.RoleChangedPayload
	if err := json.Unmarshal(events[0].PayloadJSON, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Role != "pusher" || payload.Principal != string(pusher) || !payload.Granted {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	// Re-granting an already held role succeeds without an event.
	events, err = l.GrantPusherRole(deployer, pusher)
	if err != nil {
		t.Fatalf("re-grant pusher: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for no-op grant, got %d", len(events))
	}

	// Revoking an absent role is likewise a silent success.
	events, err = l.RevokeAdminRole(deployer, outsider)
	if err != nil {
		t.Fatalf("revoke absent admin: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for no-op revoke, got %d", len(events))
	}
}

func TestRevokePusherRole(t *testing.T) {
	l := newLedgerWithPusher(t)

	events, err := l.RevokePusherRole(deployer, pusher)
	if err != nil {
		t.Fatalf("revoke pusher: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if l.HasPusherRole(pusher) {
		t.Fatal("pusher role should be revoked")
	}
	if _, err := l.SaveObject(pusher, "abc", []byte("loc")); !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("revoked pusher should be unauthorized, got %v", err)
	}
}

func TestSoleAdminMayRevokeItself(t *testing.T) {
	l := ledger.New(deployer)

	events, err := l.RevokeAdminRole(deployer, deployer)
	if err != nil {
		t.Fatalf("self revoke: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if l.HasAdminRole(deployer) {
		t.Fatal("admin role should be gone")
	}
	// Role management is now permanently locked out.
	if _, err := l.GrantAdminRole(deployer, deployer); !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized after self revoke, got %v", err)
	}
	// Pusher role survives independently.
	if !l.HasPusherRole(deployer) {
		t.Fatal("pusher role should survive admin self revoke")
	}
}

func TestSaveObjectFirstWriterWins(t *testing.T) {
	l := newLedgerWithPusher(t)

	events, err := l.SaveObject(pusher, "sha256:abc", []byte("locator-1"))
	if err != nil {
		t.Fatalf("save object: %v", err)
	}
	if len(events) != 1 || events[0].Type != event.TypeObjectSaved {
		t.Fatalf("expected one object.saved event, got %+v", events)
	}

	// A duplicate save is a silent no-op: no error, no event, no mutation.
	events, err = l.SaveObject(deployer, "sha256:abc", []byte("locator-2"))
	if err != nil {
		t.Fatalf("duplicate save: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for duplicate save, got %d", len(events))
	}

	record, ok := l.Object("sha256:abc")
	if !ok {
		t.Fatal("object should exist")
	}
	if !bytes.Equal(record.Locator, []byte("locator-1")) {
		t.Fatalf("first locator must win, got %q", record.Locator)
	}
	if record.Submitter != pusher {
		t.Fatalf("first submitter must win, got %q", record.Submitter)
	}
	if l.ObjectsLength() != 1 {
		t.Fatalf("expected 1 object, got %d", l.ObjectsLength())
	}
}

func TestSaveObjectRequiresKey(t *testing.T) {
	l := newLedgerWithPusher(t)
	if _, err := l.SaveObject(pusher, "", []byte("loc")); !apperrors.IsCode(err, apperrors.CodeObjectKeyEmpty) {
		t.Fatalf("expected object key empty, got %v", err)
	}
}

func TestSaveObjectsBatch(t *testing.T) {
	l := newLedgerWithPusher(t)

	if _, err := l.SaveObject(pusher, "k1", []byte("v1")); err != nil {
		t.Fatalf("seed object: %v", err)
	}

	keys := []string{"k1", "k2", "k3"}
	locators := [][]byte{[]byte("dup"), []byte("v2"), []byte("v3")}
	events, err := l.SaveObjects(pusher, keys, locators)
	if err != nil {
		t.Fatalf("save objects: %v", err)
	}
	// k1 already exists, so only k2 and k3 emit events.
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if l.ObjectsLength() != 3 {
		t.Fatalf("expected 3 objects, got %d", l.ObjectsLength())
	}
	record, _ := l.Object("k1")
	if !bytes.Equal(record.Locator, []byte("v1")) {
		t.Fatalf("duplicate element must not overwrite, got %q", record.Locator)
	}
}

func TestSaveObjectsLengthMismatchLeavesStateUntouched(t *testing.T) {
	l := newLedgerWithPusher(t)

	_, err := l.SaveObjects(pusher, []string{"a", "b"}, [][]byte{[]byte("x")})
	if !apperrors.IsCode(err, apperrors.CodeLengthMismatch) {
		t.Fatalf("expected length mismatch, got %v", err)
	}
	meta := apperrors.GetMetadata(err)
	if meta["Left"] != "2" || meta["Right"] != "1" {
		t.Fatalf("unexpected metadata: %v", meta)
	}
	if l.ObjectsLength() != 0 {
		t.Fatal("rejected batch must apply nothing")
	}
}

func TestSaveObjectsEmptyKeyRejectsWholeBatch(t *testing.T) {
	l := newLedgerWithPusher(t)

	_, err := l.SaveObjects(pusher, []string{"a", "", "c"}, [][]byte{[]byte("1"), []byte("2"), []byte("3")})
	if !apperrors.IsCode(err, apperrors.CodeObjectKeyEmpty) {
		t.Fatalf("expected object key empty, got %v", err)
	}
	if l.ObjectsLength() != 0 {
		t.Fatal("rejected batch must apply nothing, including earlier valid elements")
	}
}

func TestObjectQueries(t *testing.T) {
	l := newLedgerWithPusher(t)
	for _, key := range []string{"k1", "k2", "k3"} {
		if _, err := l.SaveObject(pusher, key, []byte("loc-"+key)); err != nil {
			t.Fatalf("save %s: %v", key, err)
		}
	}

	if !l.ObjectExists("k2") || l.ObjectExists("nope") {
		t.Fatal("existence check mismatch")
	}

	if _, ok := l.Object("nope"); ok {
		t.Fatal("absent key must report not found, not an error")
	}

	record, err := l.ObjectByPosition(1)
	if err != nil {
		t.Fatalf("object by position: %v", err)
	}
	if record.Key != "k2" {
		t.Fatalf("expected k2 at position 1, got %s", record.Key)
	}

	if _, err := l.ObjectByPosition(3); !apperrors.IsCode(err, apperrors.CodeOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if _, err := l.ObjectByPosition(-1); !apperrors.IsCode(err, apperrors.CodeOutOfRange) {
		t.Fatalf("expected out of range for negative position, got %v", err)
	}

	got := l.CheckObjects([]string{"k1", "missing", "k3"})
	want := []bool{true, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("check objects mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestUpsertRefKeepsPosition(t *testing.T) {
	l := newLedgerWithPusher(t)

	events, err := l.UpsertRef(pusher, "refs/heads/main", []byte("commit-1"))
	if err != nil {
		t.Fatalf("upsert ref: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	var payload event.RefUpsertedPayload
	if err := json.Unmarshal(events[0].PayloadJSON, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !payload.Created {
		t.Fatal("first upsert should be a creation")
	}

	if _, err := l.UpsertRef(pusher, "refs/tags/v1", []byte("tag-1")); err != nil {
		t.Fatalf("upsert second ref: %v", err)
	}

	// Updating the first ref must not move it.
	events, err = l.UpsertRef(deployer, "refs/heads/main", []byte("commit-2"))
	if err != nil {
		t.Fatalf("update ref: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("update must still emit an event, got %d", len(events))
	}
	if err := json.Unmarshal(events[0].PayloadJSON, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Created {
		t.Fatal("update should not report creation")
	}

	record, err := l.RefByPosition(0)
	if err != nil {
		t.Fatalf("ref by position: %v", err)
	}
	if record.Name != "refs/heads/main" {
		t.Fatalf("expected main at position 0, got %s", record.Name)
	}
	if !bytes.Equal(record.Data, []byte("commit-2")) {
		t.Fatalf("expected updated data, got %q", record.Data)
	}
	if record.Submitter != deployer {
		t.Fatalf("submitter should track the latest writer, got %q", record.Submitter)
	}
	if !record.Active {
		t.Fatal("ref should be active")
	}
	if l.RefsLength() != 2 {
		t.Fatalf("expected 2 refs, got %d", l.RefsLength())
	}
}

func TestUpsertRefsBatchValidation(t *testing.T) {
	l := newLedgerWithPusher(t)

	if _, err := l.UpsertRefs(pusher, []string{"a"}, nil); !apperrors.IsCode(err, apperrors.CodeLengthMismatch) {
		t.Fatalf("expected length mismatch, got %v", err)
	}
	_, err := l.UpsertRefs(pusher, []string{"a", ""}, [][]byte{[]byte("1"), []byte("2")})
	if !apperrors.IsCode(err, apperrors.CodeRefNameEmpty) {
		t.Fatalf("expected ref name empty, got %v", err)
	}
	if l.RefsLength() != 0 {
		t.Fatal("rejected batch must apply nothing")
	}

	events, err := l.UpsertRefs(pusher, []string{"a", "b"}, [][]byte{[]byte("1"), []byte("2")})
	if err != nil {
		t.Fatalf("upsert refs: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if l.RefsLength() != 2 {
		t.Fatalf("expected 2 refs, got %d", l.RefsLength())
	}
}

func TestUpdateConfig(t *testing.T) {
	l := newLedgerWithPusher(t)

	if len(l.Config()) != 0 {
		t.Fatal("config should start empty")
	}

	if _, err := l.UpdateConfig(outsider, []byte("nope")); !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	events, err := l.UpdateConfig(pusher, []byte("first"))
	if err != nil {
		t.Fatalf("update config: %v", err)
	}
	if len(events) != 1 || events[0].Type != event.TypeConfigUpdated {
		t.Fatalf("expected one config.updated event, got %+v", events)
	}

	// The config is overwritten wholesale, no history.
	if _, err := l.UpdateConfig(pusher, []byte("second")); err != nil {
		t.Fatalf("second update: %v", err)
	}
	if !bytes.Equal(l.Config(), []byte("second")) {
		t.Fatalf("expected latest config, got %q", l.Config())
	}

	// Returned slice is a copy, mutating it must not leak back.
	cfg := l.Config()
	cfg[0] = 'X'
	if !bytes.Equal(l.Config(), []byte("second")) {
		t.Fatal("config must not be aliased by the returned slice")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l := newLedgerWithPusher(t)
	if _, err := l.SaveObject(pusher, "k1", []byte("v1")); err != nil {
		t.Fatalf("save object: %v", err)
	}
	if _, err := l.UpdateConfig(pusher, []byte("cfg")); err != nil {
		t.Fatalf("update config: %v", err)
	}

	work := l.Clone()
	if _, err := work.SaveObject(pusher, "k2", []byte("v2")); err != nil {
		t.Fatalf("save on clone: %v", err)
	}
	if _, err := work.RevokePusherRole(deployer, pusher); err != nil {
		t.Fatalf("revoke on clone: %v", err)
	}
	if _, err := work.UpdateConfig(deployer, []byte("new")); err != nil {
		t.Fatalf("config on clone: %v", err)
	}

	if l.ObjectsLength() != 1 {
		t.Fatalf("original object count changed: %d", l.ObjectsLength())
	}
	if !l.HasPusherRole(pusher) {
		t.Fatal("original roles changed through clone")
	}
	if !bytes.Equal(l.Config(), []byte("cfg")) {
		t.Fatal("original config changed through clone")
	}
	if work.ObjectsLength() != 2 {
		t.Fatalf("clone object count: %d", work.ObjectsLength())
	}
}
