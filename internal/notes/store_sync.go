package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"notesync/internal/subrecord"
)

// Engine API. Nothing here bumps version: the counter only tracks local
// edits, so a guard captured before an engine write still holds after it.

// Get returns a row by id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*Note, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", id)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note %d: %w", id, err)
	}
	return note, nil
}

// Folders lists folders ordered by id.
func (s *Store) Folders(ctx context.Context, includeDeleted bool) ([]Note, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + noteColumns + " FROM notes WHERE type = ?"
	if !includeDeleted {
		query += " AND deleted = 0"
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY id", int(KindFolder))
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return collectNotes(rows)
}

// NotesInFolder lists the notes of a folder, deleted ones included.
func (s *Store) NotesInFolder(ctx context.Context, folderID int64) ([]Note, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE parent_id = ? AND type = ? ORDER BY id",
		folderID, int(KindNote),
	)
	if err != nil {
		return nil, fmt.Errorf("list notes in folder %d: %w", folderID, err)
	}
	return collectNotes(rows)
}

// NoteByRemoteID returns the row bound to a remote id, or nil.
func (s *Store) NoteByRemoteID(ctx context.Context, remoteID string) (*Note, error) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE remote_id = ?", remoteID)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note by remote id %q: %w", remoteID, err)
	}
	return note, nil
}

// DataForNote returns the note's sub-record, or nil when it has none.
func (s *Store) DataForNote(ctx context.Context, noteID int64) (*Data, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+dataColumns+" FROM note_data WHERE note_id = ?", noteID)
	data, err := scanData(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get data for note %d: %w", noteID, err)
	}
	return data, nil
}

// MaterializeFolder creates a folder that already exists remotely.
func (s *Store) MaterializeFolder(ctx context.Context, name, remoteID string) (*Note, error) {
	now := s.timestamp()
	id, err := s.insert(ctx,
		`INSERT INTO notes (parent_id, type, title, created_at, modified_at, local_modified, version, remote_id)
		 VALUES (?, ?, ?, ?, ?, 0, 0, ?)`,
		RootFolderID, int(KindFolder), name, now, now, nullableString(remoteID),
	)
	if err != nil {
		return nil, fmt.Errorf("materialize folder %q: %w", name, err)
	}
	return s.Get(ctx, id)
}

// MaterializeNote creates a note from a remote task.
func (s *Store) MaterializeNote(ctx context.Context, folderID int64, remote RemoteNote) (*Note, error) {
	created := s.timestamp()
	modified := created
	if !remote.ModifiedAt.IsZero() {
		modified = formatTime(remote.ModifiedAt)
	}
	id, err := s.insert(ctx,
		`INSERT INTO notes (parent_id, type, title, body, created_at, modified_at, local_modified, version, remote_id, sync_id)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		folderID, int(KindNote), remote.Title, remote.Body, created, modified,
		nullableString(remote.RemoteID), remote.SyncID,
	)
	if err != nil {
		return nil, fmt.Errorf("materialize note %q: %w", remote.RemoteID, err)
	}
	return s.Get(ctx, id)
}

// ApplyRemoteNote overwrites a note with remote content while its version
// still equals version. It reports whether the row was written.
func (s *Store) ApplyRemoteNote(ctx context.Context, id, version, folderID int64, remote RemoteNote) (bool, error) {
	modified := s.timestamp()
	if !remote.ModifiedAt.IsZero() {
		modified = formatTime(remote.ModifiedAt)
	}
	n, err := s.execRows(ctx,
		`UPDATE notes SET title = ?, body = ?, parent_id = ?, sync_id = ?, modified_at = ?, local_modified = 0, deleted = 0
		 WHERE id = ? AND version = ?`,
		remote.Title, remote.Body, folderID, remote.SyncID, modified, id, version,
	)
	if err != nil {
		return false, fmt.Errorf("apply remote note %d: %w", id, err)
	}
	return n > 0, nil
}

// ApplyRemoteFolderName renames a folder from remote while its version still
// equals version.
func (s *Store) ApplyRemoteFolderName(ctx context.Context, id, version int64, name string) (bool, error) {
	n, err := s.execRows(ctx,
		`UPDATE notes SET title = ?, modified_at = ? WHERE id = ? AND type = ? AND version = ?`,
		name, s.timestamp(), id, int(KindFolder), version,
	)
	if err != nil {
		return false, fmt.Errorf("apply remote folder name %d: %w", id, err)
	}
	return n > 0, nil
}

// SetRemoteID records the remote identity of a row. An empty id clears it.
func (s *Store) SetRemoteID(ctx context.Context, id int64, remoteID string) error {
	if _, err := s.execRows(ctx, "UPDATE notes SET remote_id = ? WHERE id = ?", nullableString(remoteID), id); err != nil {
		return fmt.Errorf("set remote id for %d: %w", id, err)
	}
	return nil
}

// SetSyncID records the remote last_modified seen at the last sync.
func (s *Store) SetSyncID(ctx context.Context, id, syncID int64) error {
	if _, err := s.execRows(ctx, "UPDATE notes SET sync_id = ? WHERE id = ?", syncID, id); err != nil {
		return fmt.Errorf("set sync id for %d: %w", id, err)
	}
	return nil
}

// ClearLocalModified marks a row as pushed while its version still equals
// version.
func (s *Store) ClearLocalModified(ctx context.Context, id, version int64) (bool, error) {
	n, err := s.execRows(ctx, "UPDATE notes SET local_modified = 0 WHERE id = ? AND version = ?", id, version)
	if err != nil {
		return false, fmt.Errorf("clear local modified %d: %w", id, err)
	}
	return n > 0, nil
}

// DeleteGuarded removes a row while its version still equals version. For a
// folder it first removes the notes holding no unsynced local edit, and the
// folder row itself only goes once no note is left in it.
func (s *Store) DeleteGuarded(ctx context.Context, id, version int64) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		deleted = false
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM notes WHERE parent_id = ? AND type = ? AND (deleted = 1 OR local_modified = 0)
			 AND EXISTS (SELECT 1 FROM notes f WHERE f.id = ? AND f.type = ? AND f.version = ?)`,
			id, int(KindNote), id, int(KindFolder), version,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM notes WHERE id = ? AND version = ?
			 AND NOT EXISTS (SELECT 1 FROM notes c WHERE c.parent_id = ?)`,
			id, version, id,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("guarded delete %d: %w", id, err)
	}
	return deleted, nil
}

// PurgeNote removes a note and its sub-record unconditionally.
func (s *Store) PurgeNote(ctx context.Context, id int64) error {
	if _, err := s.execRows(ctx, "DELETE FROM notes WHERE id = ? AND type = ?", id, int(KindNote)); err != nil {
		return fmt.Errorf("purge note %d: %w", id, err)
	}
	return nil
}

// InsertData creates a sub-record owned by noteID.
func (s *Store) InsertData(ctx context.Context, noteID int64, values subrecord.Values) (int64, error) {
	now := s.timestamp()
	id, err := s.insert(ctx,
		`INSERT INTO note_data (note_id, mime_type, content, data1, data3, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		noteID, values.MimeType, values.Content, values.Data1, values.Data3, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert note data: %w", err)
	}
	return id, nil
}

// UpdateData writes the given sub-record columns.
func (s *Store) UpdateData(ctx context.Context, dataID int64, values subrecord.Values, fields subrecord.Fields) (int64, error) {
	query, args := dataUpdate(dataID, values, fields, s.timestamp())
	n, err := s.execRows(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update note data %d: %w", dataID, err)
	}
	return n, nil
}

// UpdateDataGuarded writes the given sub-record columns only while the owning
// note's version equals noteVersion.
func (s *Store) UpdateDataGuarded(ctx context.Context, dataID int64, values subrecord.Values, fields subrecord.Fields, noteVersion int64) (int64, error) {
	query, args := dataUpdate(dataID, values, fields, s.timestamp())
	query += " AND note_id IN (SELECT id FROM notes WHERE version = ?)"
	args = append(args, noteVersion)
	n, err := s.execRows(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("guarded update note data %d: %w", dataID, err)
	}
	return n, nil
}

func dataUpdate(dataID int64, values subrecord.Values, fields subrecord.Fields, now string) (string, []any) {
	cols := fields.Columns()
	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		sets = append(sets, col+" = ?")
	}
	sets = append(sets, "modified_at = ?")
	args := append(values.Args(fields), now, dataID)
	return "UPDATE note_data SET " + strings.Join(sets, ", ") + " WHERE id = ?", args
}
