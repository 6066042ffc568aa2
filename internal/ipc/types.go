package ipc

import "time"

// SyncStartRequest asks the daemon for a session outside its schedule.
type SyncStartRequest struct {
	// Wait blocks the call until the session finishes.
	Wait bool `json:"wait"`
}

// SyncStartResponse reports whether a session was started.
type SyncStartResponse struct {
	Started bool          `json:"started"`
	Message string        `json:"message"`
	Result  *SessionResult `json:"result,omitempty"`
}

// SyncCancelRequest requests cancellation of the active session.
type SyncCancelRequest struct{}

// SyncCancelResponse reports whether a session was running.
type SyncCancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// SessionStats mirrors the per-session change counters.
type SessionStats struct {
	RemoteCreates int `json:"remote_creates"`
	RemoteUpdates int `json:"remote_updates"`
	RemoteDeletes int `json:"remote_deletes"`
	RemoteMoves   int `json:"remote_moves"`
	LocalCreates  int `json:"local_creates"`
	LocalUpdates  int `json:"local_updates"`
	LocalDeletes  int `json:"local_deletes"`
	Deferred      int `json:"deferred"`
	FetchedLists  int `json:"fetched_lists"`
	SkippedLists  int `json:"skipped_lists"`
}

// SessionResult describes a finished session.
type SessionResult struct {
	SessionID  string       `json:"session_id"`
	State      string       `json:"state"`
	Error      string       `json:"error,omitempty"`
	Stats      SessionStats `json:"stats"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// NoteCounts summarizes the local store.
type NoteCounts struct {
	Folders       int `json:"folders"`
	Notes         int `json:"notes"`
	PendingSync   int `json:"pending_sync"`
	Unsynced      int `json:"unsynced"`
	PendingDelete int `json:"pending_delete"`
}

// StatusResponse represents combined daemon and session status.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LockPath     string         `json:"lock_path"`
	DatabasePath string         `json:"database_path"`
	Syncing      bool           `json:"syncing"`
	SessionID    string         `json:"session_id,omitempty"`
	Step         string         `json:"step,omitempty"`
	Progress     string         `json:"progress,omitempty"`
	StartedAt    time.Time      `json:"started_at,omitempty"`
	NextSync     time.Time      `json:"next_sync,omitempty"`
	LastResult   *SessionResult `json:"last_result,omitempty"`
	Counts       NoteCounts     `json:"counts"`
	CountsError  string         `json:"counts_error,omitempty"`
}

// LogTailRequest fetches log lines.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Match      string `json:"match"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
}

// LogTailResponse returns log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// DatabaseHealthRequest fetches database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse mirrors notes.DatabaseHealth.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	SchemaVersion    int    `json:"schema_version"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalRows        int    `json:"total_rows"`
	Error            string `json:"error,omitempty"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse reports whether the request was accepted.
type ShutdownResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}
