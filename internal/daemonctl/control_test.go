package daemonctl_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"notesync/internal/daemonctl"
	"notesync/internal/testsupport"
)

func TestBuildStatusSnapshotOffline(t *testing.T) {
	fake := testsupport.NewFakeRemote(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(fake))
	store := testsupport.MustOpenStore(t, cfg)
	folder := testsupport.NewFolder(t, store, "Groceries")
	testsupport.NewNote(t, store, folder.ID, "Milk", "")
	testsupport.NewNote(t, store, folder.ID, "Eggs", "")

	snap, err := daemonctl.BuildStatusSnapshot(context.Background(), filepath.Join(t.TempDir(), "absent.sock"), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot returned error: %v", err)
	}
	if snap.Reachable {
		t.Fatal("expected daemon to be unreachable")
	}
	if snap.Status.Counts.Folders != 1 || snap.Status.Counts.Notes != 2 || snap.Status.Counts.Unsynced != 3 {
		t.Fatalf("unexpected offline counts: %+v", snap.Status.Counts)
	}
	if len(snap.Checks) == 0 {
		t.Fatal("expected preflight checks")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemonctl.StopAndTerminate(filepath.Join(t.TempDir(), "absent.sock"), cfg, time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}
