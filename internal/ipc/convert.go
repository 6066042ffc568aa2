package ipc

import (
	"notesync/internal/daemon"
	"notesync/internal/syncer"
)

// FromResult converts a session result to its wire form.
func FromResult(result *syncer.Result) *SessionResult {
	if result == nil {
		return nil
	}
	out := &SessionResult{
		SessionID:  result.SessionID,
		State:      result.State.String(),
		Stats:      SessionStats(result.Stats),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if result.Err != nil {
		out.Error = result.Err.Error()
	}
	return out
}

func fromStatus(status daemon.Status, resp *StatusResponse) {
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockFilePath
	resp.DatabasePath = status.DatabasePath
	resp.Syncing = status.Sync.Running
	resp.SessionID = status.Sync.SessionID
	resp.Step = status.Sync.Step
	resp.Progress = status.Sync.Progress
	resp.StartedAt = status.Sync.StartedAt
	resp.NextSync = status.NextSync
	resp.LastResult = FromResult(status.Sync.LastResult)
	resp.Counts = NoteCounts(status.Counts)
	resp.CountsError = status.CountsError
}
