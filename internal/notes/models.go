package notes

import (
	"time"
)

// Kind classifies a row in the notes table.
type Kind int

const (
	KindNote   Kind = 0
	KindFolder Kind = 1
	KindSystem Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindNote:
		return "note"
	case KindFolder:
		return "folder"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// RootFolderID is the parent of every folder.
const RootFolderID int64 = 0

// Note is one row of the notes table: a folder or a note.
type Note struct {
	ID            int64
	ParentID      int64
	Kind          Kind
	Title         string
	Body          string
	CreatedAt     time.Time
	ModifiedAt    time.Time
	LocalModified bool
	Version       int64
	RemoteID      string
	SyncID        int64
	Deleted       bool
}

// IsFolder reports whether the row is a folder.
func (n *Note) IsFolder() bool { return n != nil && n.Kind == KindFolder }

// Synced reports whether the row has a remote identity.
func (n *Note) Synced() bool { return n != nil && n.RemoteID != "" }

// Data is a note's structured sub-record.
type Data struct {
	ID       int64
	NoteID   int64
	MimeType string
	Content  string
	Data1    int64
	Data3    string
}

// RemoteNote carries the fields materialized from a remote task.
type RemoteNote struct {
	Title      string
	Body       string
	RemoteID   string
	SyncID     int64
	ModifiedAt time.Time
}

// Counts summarizes the store for status output.
type Counts struct {
	Folders       int
	Notes         int
	PendingSync   int
	Unsynced      int
	PendingDelete int
}

// DatabaseHealth captures diagnostic information about the notes database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalRows        int
	Error            string
}
