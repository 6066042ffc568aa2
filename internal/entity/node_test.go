package entity_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"notesync/internal/entity"
)

func TestBuildCreateActionRejectsSyncedNode(t *testing.T) {
	list := entity.NewTaskList(3, "Groceries")
	if err := list.AssignRemoteID("list-1"); err != nil {
		t.Fatalf("AssignRemoteID returned error: %v", err)
	}
	if _, err := list.BuildCreateAction(1); !errors.Is(err, entity.ErrAlreadyCreated) {
		t.Fatalf("expected ErrAlreadyCreated, got %v", err)
	}
}

func TestAssignRemoteIDIsOneTime(t *testing.T) {
	task := entity.NewTask(7, "list-1", "Milk", "")
	if err := task.AssignRemoteID("task-1"); err != nil {
		t.Fatalf("first assign failed: %v", err)
	}
	if err := task.AssignRemoteID("task-1"); err != nil {
		t.Fatalf("repeat assign of same id should be a no-op, got %v", err)
	}
	if err := task.AssignRemoteID("task-2"); !errors.Is(err, entity.ErrRemoteIDConflict) {
		t.Fatalf("expected ErrRemoteIDConflict, got %v", err)
	}
	if task.RemoteID != "task-1" {
		t.Fatalf("remote id changed to %q", task.RemoteID)
	}
	if err := entity.NewTask(8, "", "", "").AssignRemoteID("  "); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestTaskCreateActionCarriesPlacement(t *testing.T) {
	task := entity.NewTask(7, "list-1", "Milk", `{"body":"2 litres"}`)
	task.PriorSiblingID = "task-0"
	task.Index = 4

	action, err := task.BuildCreateAction(12)
	if err != nil {
		t.Fatalf("BuildCreateAction returned error: %v", err)
	}
	if action.ActionType != entity.ActionCreate || action.ActionID != 12 {
		t.Fatalf("unexpected action header: %+v", action)
	}
	if action.ListID != "list-1" || action.ParentID != "list-1" || action.DestParentType != entity.EntityGroup {
		t.Fatalf("unexpected placement: %+v", action)
	}
	if action.PriorSiblingID != "task-0" || action.Index == nil || *action.Index != 4 {
		t.Fatalf("unexpected ordering hints: %+v", action)
	}
	delta := action.EntityDelta
	if delta.EntityType != entity.EntityTask || delta.Name == nil || *delta.Name != "Milk" {
		t.Fatalf("unexpected delta: %+v", delta)
	}
	if delta.Completed != nil {
		t.Fatal("expected completed to be omitted when false")
	}
}

func TestTaskListCreateActionOmitsTaskFields(t *testing.T) {
	action, err := entity.NewTaskList(1, "Work").BuildCreateAction(1)
	if err != nil {
		t.Fatalf("BuildCreateAction returned error: %v", err)
	}
	raw, err := json.Marshal(action)
	if err != nil {
		t.Fatalf("marshal action: %v", err)
	}
	text := string(raw)
	for _, key := range []string{`"list_id"`, `"parent_id"`, `"dest_parent_type"`, `"notes"`} {
		if strings.Contains(text, key) {
			t.Fatalf("unexpected key %s in %s", key, text)
		}
	}
	if !strings.Contains(text, `"entity_type":"GROUP"`) {
		t.Fatalf("expected GROUP entity type in %s", text)
	}
}

func TestBuildUpdateActionSerializesOnlyChangedFields(t *testing.T) {
	task := entity.NewTask(7, "list-1", "Milk", "old")
	if err := task.AssignRemoteID("task-1"); err != nil {
		t.Fatalf("AssignRemoteID returned error: %v", err)
	}
	if task.Changed() {
		t.Fatal("expected fresh node to have no changes")
	}
	task.SetNotes("new")
	task.SetName("Milk")

	action, err := task.BuildUpdateAction(2)
	if err != nil {
		t.Fatalf("BuildUpdateAction returned error: %v", err)
	}
	if action.ID != "task-1" || action.ActionType != entity.ActionUpdate {
		t.Fatalf("unexpected action: %+v", action)
	}
	delta := action.EntityDelta
	if delta.Name != nil {
		t.Fatal("expected unchanged name to be omitted")
	}
	if delta.Notes == nil || *delta.Notes != "new" {
		t.Fatalf("expected notes change, got %+v", delta)
	}
	if delta.Deleted != nil {
		t.Fatal("expected deleted omitted for live node")
	}
}

func TestDeletionIsUpdateWithDeletedFlag(t *testing.T) {
	list := entity.NewTaskList(1, "Old")
	if _, err := list.BuildUpdateAction(1); !errors.Is(err, entity.ErrNotCreated) {
		t.Fatalf("expected ErrNotCreated, got %v", err)
	}
	if err := list.AssignRemoteID("list-9"); err != nil {
		t.Fatalf("AssignRemoteID returned error: %v", err)
	}
	list.MarkDeleted()
	action, err := list.BuildUpdateAction(5)
	if err != nil {
		t.Fatalf("BuildUpdateAction returned error: %v", err)
	}
	if action.ActionType != entity.ActionUpdate {
		t.Fatalf("expected update action, got %s", action.ActionType)
	}
	if action.EntityDelta.Deleted == nil || !*action.EntityDelta.Deleted {
		t.Fatalf("expected deleted=true, got %+v", action.EntityDelta)
	}
}

func TestApplyRemoteSnapshotKeepsLocalID(t *testing.T) {
	task := entity.NewTask(42, "list-1", "Local", "local body")
	task.SetCompleted(true)
	err := task.ApplyRemoteSnapshot(entity.Snapshot{
		ID:           "task-7",
		Name:         "Remote",
		Notes:        "remote body",
		LastModified: 1700,
		ListID:       "list-2",
	})
	if err != nil {
		t.Fatalf("ApplyRemoteSnapshot returned error: %v", err)
	}
	if task.LocalID != 42 {
		t.Fatalf("local id changed to %d", task.LocalID)
	}
	if task.RemoteID != "task-7" || task.Name != "Remote" || task.Notes != "remote body" || task.ListID != "list-2" {
		t.Fatalf("snapshot not applied: %+v", task)
	}
	if task.Completed || task.Changed() {
		t.Fatalf("expected snapshot to reset local changes: %+v", task)
	}
	if err := task.ApplyRemoteSnapshot(entity.Snapshot{ID: "task-8"}); !errors.Is(err, entity.ErrRemoteIDConflict) {
		t.Fatalf("expected conflict for foreign snapshot, got %v", err)
	}
}

func TestMetaNodeDispatch(t *testing.T) {
	meta := entity.NewMeta("meta-list", `{"folders":{},"sync_point":0}`)
	action, err := meta.BuildCreateAction(1)
	if err != nil {
		t.Fatalf("BuildCreateAction returned error: %v", err)
	}
	if *action.EntityDelta.Name != entity.MetaNoteName || action.ListID != "meta-list" {
		t.Fatalf("unexpected meta create: %+v", action)
	}
	if err := meta.AssignRemoteID("meta-task"); err != nil {
		t.Fatalf("AssignRemoteID returned error: %v", err)
	}
	meta.SetName("renamed")
	meta.SetNotes(`{"folders":{"1":"a"},"sync_point":3}`)
	update, err := meta.BuildUpdateAction(2)
	if err != nil {
		t.Fatalf("BuildUpdateAction returned error: %v", err)
	}
	if update.EntityDelta.Name != nil {
		t.Fatal("meta updates never carry a name")
	}
	if update.EntityDelta.Notes == nil {
		t.Fatal("expected meta notes in update")
	}
}

func TestUnknownKindFails(t *testing.T) {
	node := &entity.Node{Kind: entity.Kind(99)}
	if _, err := node.BuildCreateAction(1); !errors.Is(err, entity.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestGetAllActionSerializesFalseGetDeleted(t *testing.T) {
	getDeleted := false
	raw, err := json.Marshal(entity.Action{ActionType: entity.ActionGetAll, ActionID: 1, ListID: "l", GetDeleted: &getDeleted})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"get_deleted":false`) {
		t.Fatalf("expected explicit get_deleted=false in %s", raw)
	}
}
