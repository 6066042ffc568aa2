package testsupport

import (
	"context"
	"testing"

	"notesync/internal/config"
	"notesync/internal/notes"
)

// MustOpenStore opens a notes.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *notes.Store {
	t.Helper()

	store, err := notes.Open(cfg)
	if err != nil {
		t.Fatalf("notes.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewFolder creates a local folder for tests.
func NewFolder(t testing.TB, store *notes.Store, name string) *notes.Note {
	t.Helper()

	folder, err := store.CreateFolder(context.Background(), name)
	if err != nil {
		t.Fatalf("store.CreateFolder: %v", err)
	}
	return folder
}

// NewNote creates a local note for tests.
func NewNote(t testing.TB, store *notes.Store, folderID int64, title, body string) *notes.Note {
	t.Helper()

	note, err := store.CreateNote(context.Background(), folderID, title, body)
	if err != nil {
		t.Fatalf("store.CreateNote: %v", err)
	}
	return note
}

// MustGet loads a row that must exist.
func MustGet(t testing.TB, store *notes.Store, id int64) *notes.Note {
	t.Helper()

	note, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if note == nil {
		t.Fatalf("row %d not found", id)
	}
	return note
}
