package notes_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"notesync/internal/notes"
	"notesync/internal/subrecord"
	"notesync/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth returned error: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", health.SchemaVersion)
	}
	if store.Path() != cfg.DatabasePath() {
		t.Fatalf("store path = %q, want %q", store.Path(), cfg.DatabasePath())
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	store, err := notes.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath returned error: %v", err)
	}
	if _, err := store.SetSchemaVersionForTest(context.Background(), 99); err != nil {
		t.Fatalf("set schema version: %v", err)
	}
	store.Close()

	if _, err := notes.OpenPath(path); !errors.Is(err, notes.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestLocalEditsBumpVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	folder := testsupport.NewFolder(t, store, "Groceries")
	note := testsupport.NewNote(t, store, folder.ID, "Milk", "2 litres")
	if !note.LocalModified || note.Version != 1 || note.Synced() {
		t.Fatalf("unexpected new note state: %+v", note)
	}

	if err := store.EditNote(ctx, note.ID, "Milk", "3 litres"); err != nil {
		t.Fatalf("EditNote returned error: %v", err)
	}
	if err := store.SetNoteData(ctx, note.ID, "call_note", "call the shop", 42, "555-0100"); err != nil {
		t.Fatalf("SetNoteData returned error: %v", err)
	}
	got := testsupport.MustGet(t, store, note.ID)
	if got.Version != 3 || got.Body != "3 litres" {
		t.Fatalf("expected version 3 with new body, got %+v", got)
	}
	data, err := store.DataForNote(ctx, note.ID)
	if err != nil {
		t.Fatalf("DataForNote returned error: %v", err)
	}
	if data == nil || data.MimeType != "call_note" || data.Data3 != "555-0100" {
		t.Fatalf("unexpected data: %+v", data)
	}

	if err := store.SetNoteData(ctx, note.ID, "", "updated", 0, ""); err != nil {
		t.Fatalf("SetNoteData update returned error: %v", err)
	}
	data, _ = store.DataForNote(ctx, note.ID)
	if data.Content != "updated" || data.MimeType != "text_note" {
		t.Fatalf("expected upserted data, got %+v", data)
	}
}

func TestCreateNoteRequiresLiveFolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.CreateNote(ctx, 404, "orphan", ""); !errors.Is(err, notes.ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent, got %v", err)
	}
	folder := testsupport.NewFolder(t, store, "Old")
	if err := store.DeleteFolder(ctx, folder.ID); err != nil {
		t.Fatalf("DeleteFolder returned error: %v", err)
	}
	if _, err := store.CreateNote(ctx, folder.ID, "late", ""); !errors.Is(err, notes.ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent for deleted folder, got %v", err)
	}
	if err := store.EditNote(ctx, 12345, "x", "y"); !errors.Is(err, notes.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteFolderCascadesSoftDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	folder := testsupport.NewFolder(t, store, "Work")
	note := testsupport.NewNote(t, store, folder.ID, "Report", "")
	if err := store.DeleteFolder(ctx, folder.ID); err != nil {
		t.Fatalf("DeleteFolder returned error: %v", err)
	}
	if got := testsupport.MustGet(t, store, note.ID); !got.Deleted || got.Version != 2 {
		t.Fatalf("expected soft-deleted note with bumped version, got %+v", got)
	}
	live, err := store.Folders(ctx, false)
	if err != nil {
		t.Fatalf("Folders returned error: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected no live folders, got %d", len(live))
	}
	all, _ := store.Folders(ctx, true)
	if len(all) != 1 {
		t.Fatalf("expected deleted folder to be listed, got %d", len(all))
	}
}

func TestEngineWritesKeepVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	folder, err := store.MaterializeFolder(ctx, "Remote", "list-1")
	if err != nil {
		t.Fatalf("MaterializeFolder returned error: %v", err)
	}
	if folder.LocalModified || folder.Version != 0 || folder.RemoteID != "list-1" {
		t.Fatalf("unexpected materialized folder: %+v", folder)
	}
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	note, err := store.MaterializeNote(ctx, folder.ID, notes.RemoteNote{
		Title: "Milk", Body: "2 litres", RemoteID: "task-1", SyncID: 10, ModifiedAt: modified,
	})
	if err != nil {
		t.Fatalf("MaterializeNote returned error: %v", err)
	}
	if !note.ModifiedAt.Equal(modified) || note.SyncID != 10 {
		t.Fatalf("unexpected materialized note: %+v", note)
	}

	applied, err := store.ApplyRemoteNote(ctx, note.ID, note.Version, folder.ID, notes.RemoteNote{Title: "Oat milk", SyncID: 11})
	if err != nil || !applied {
		t.Fatalf("ApplyRemoteNote = %v, %v", applied, err)
	}
	if err := store.SetSyncID(ctx, note.ID, 12); err != nil {
		t.Fatalf("SetSyncID returned error: %v", err)
	}
	got := testsupport.MustGet(t, store, note.ID)
	if got.Version != 0 || got.Title != "Oat milk" || got.SyncID != 12 || got.LocalModified {
		t.Fatalf("engine writes changed guard state: %+v", got)
	}

	byRemote, err := store.NoteByRemoteID(ctx, "task-1")
	if err != nil || byRemote == nil || byRemote.ID != note.ID {
		t.Fatalf("NoteByRemoteID = %+v, %v", byRemote, err)
	}
	missing, err := store.NoteByRemoteID(ctx, "task-404")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown remote id, got %+v, %v", missing, err)
	}
}

func TestGuardedWritesRespectVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	folder := testsupport.NewFolder(t, store, "Inbox")
	note := testsupport.NewNote(t, store, folder.ID, "Draft", "")
	stale := note.Version
	if err := store.EditNote(ctx, note.ID, "Draft", "more"); err != nil {
		t.Fatalf("EditNote returned error: %v", err)
	}

	tests := []struct {
		name string
		op   func() (bool, error)
	}{
		{"clear local modified", func() (bool, error) { return store.ClearLocalModified(ctx, note.ID, stale) }},
		{"apply remote", func() (bool, error) {
			return store.ApplyRemoteNote(ctx, note.ID, stale, folder.ID, notes.RemoteNote{Title: "remote"})
		}},
		{"delete", func() (bool, error) { return store.DeleteGuarded(ctx, note.ID, stale) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := tc.op()
			if err != nil {
				t.Fatalf("returned error: %v", err)
			}
			if ok {
				t.Fatal("expected stale guard to reject the write")
			}
		})
	}

	current := testsupport.MustGet(t, store, note.ID)
	if current.Body != "more" || !current.LocalModified {
		t.Fatalf("guarded writes leaked through: %+v", current)
	}
	ok, err := store.ClearLocalModified(ctx, note.ID, current.Version)
	if err != nil || !ok {
		t.Fatalf("ClearLocalModified with current version = %v, %v", ok, err)
	}
}

func TestDeleteGuardedFolderRemovesNotes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	folder := testsupport.NewFolder(t, store, "Trip")
	note := testsupport.NewNote(t, store, folder.ID, "Passport", "")
	if err := store.SetNoteData(ctx, note.ID, "", "renew", 0, ""); err != nil {
		t.Fatalf("SetNoteData returned error: %v", err)
	}
	markSynced(t, store, note.ID)

	if ok, err := store.DeleteGuarded(ctx, folder.ID, folder.Version+1); err != nil || ok {
		t.Fatalf("expected stale folder delete to be rejected, got %v %v", ok, err)
	}
	if got := testsupport.MustGet(t, store, note.ID); got == nil {
		t.Fatal("note removed despite rejected guard")
	}

	ok, err := store.DeleteGuarded(ctx, folder.ID, folder.Version)
	if err != nil || !ok {
		t.Fatalf("DeleteGuarded = %v, %v", ok, err)
	}
	if got, _ := store.Get(ctx, note.ID); got != nil {
		t.Fatalf("expected note removed with folder, got %+v", got)
	}
	if data, _ := store.DataForNote(ctx, note.ID); data != nil {
		t.Fatalf("expected sub-record removed by cascade, got %+v", data)
	}
}

func TestDeleteGuardedFolderKeepsEditedNotes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	folder := testsupport.NewFolder(t, store, "Trip")
	synced := testsupport.NewNote(t, store, folder.ID, "Passport", "")
	markSynced(t, store, synced.ID)
	edited := testsupport.NewNote(t, store, folder.ID, "Visa", "")
	markSynced(t, store, edited.ID)
	if err := store.EditNote(ctx, edited.ID, "Visa", "apply by May"); err != nil {
		t.Fatalf("EditNote returned error: %v", err)
	}

	ok, err := store.DeleteGuarded(ctx, folder.ID, folder.Version)
	if err != nil {
		t.Fatalf("DeleteGuarded returned error: %v", err)
	}
	if ok {
		t.Fatal("expected folder with an edited note to be kept")
	}
	if got, _ := store.Get(ctx, synced.ID); got != nil {
		t.Fatalf("expected synced note removed, got %+v", got)
	}
	if got := testsupport.MustGet(t, store, edited.ID); got.Body != "apply by May" {
		t.Fatalf("edited note changed: %+v", got)
	}
	testsupport.MustGet(t, store, folder.ID)

	markSynced(t, store, edited.ID)
	ok, err = store.DeleteGuarded(ctx, folder.ID, folder.Version)
	if err != nil || !ok {
		t.Fatalf("DeleteGuarded after sync = %v, %v", ok, err)
	}
}

func markSynced(t *testing.T, store *notes.Store, id int64) {
	t.Helper()
	current := testsupport.MustGet(t, store, id)
	if ok, err := store.ClearLocalModified(context.Background(), id, current.Version); err != nil || !ok {
		t.Fatalf("ClearLocalModified = %v, %v", ok, err)
	}
}

func TestSubrecordGuardAgainstConcurrentEdit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	folder := testsupport.NewFolder(t, store, "Calls")
	note := testsupport.NewNote(t, store, folder.ID, "Dentist", "")
	for i := 0; i < 3; i++ {
		if err := store.EditNote(ctx, note.ID, "Dentist", "v"); err != nil {
			t.Fatalf("EditNote returned error: %v", err)
		}
	}
	if err := store.SetNoteData(ctx, note.ID, "call_note", "old", 0, ""); err != nil {
		t.Fatalf("SetNoteData returned error: %v", err)
	}
	current := testsupport.MustGet(t, store, note.ID)
	if current.Version != 5 {
		t.Fatalf("expected version 5, got %d", current.Version)
	}
	row, _ := store.DataForNote(ctx, note.ID)

	tracker := subrecord.Load(row.ID, subrecord.Values{MimeType: row.MimeType, Content: row.Content}, nil)
	tracker.SetContent("from remote")
	guard := current.Version

	if err := store.EditNote(ctx, note.ID, "Dentist", "edited meanwhile"); err != nil {
		t.Fatalf("EditNote returned error: %v", err)
	}

	outcome, err := tracker.Commit(ctx, store, note.ID, &guard)
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if outcome != subrecord.OutcomeGuardRejected || !tracker.Pending() {
		t.Fatalf("expected rejected commit with retained diff, got %s pending=%v", outcome, tracker.Pending())
	}
	if data, _ := store.DataForNote(ctx, note.ID); data.Content != "old" {
		t.Fatalf("sub-record changed despite guard: %q", data.Content)
	}

	guard = testsupport.MustGet(t, store, note.ID).Version
	if guard != 6 {
		t.Fatalf("expected version 6 after concurrent edit, got %d", guard)
	}
	outcome, err = tracker.Commit(ctx, store, note.ID, &guard)
	if err != nil || outcome != subrecord.OutcomeUpdated {
		t.Fatalf("expected retried commit to update, got %s %v", outcome, err)
	}
	if data, _ := store.DataForNote(ctx, note.ID); data.Content != "from remote" {
		t.Fatalf("expected retried content, got %q", data.Content)
	}
}

func TestCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	folder := testsupport.NewFolder(t, store, "A")
	testsupport.NewNote(t, store, folder.ID, "one", "")
	gone := testsupport.NewNote(t, store, folder.ID, "two", "")
	if err := store.DeleteNote(ctx, gone.ID); err != nil {
		t.Fatalf("DeleteNote returned error: %v", err)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts returned error: %v", err)
	}
	want := notes.Counts{Folders: 1, Notes: 1, PendingSync: 3, Unsynced: 2, PendingDelete: 1}
	if counts != want {
		t.Fatalf("Counts = %+v, want %+v", counts, want)
	}
}
