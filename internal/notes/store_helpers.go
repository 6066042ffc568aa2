package notes

import (
	"database/sql"
	"errors"
	"time"
)

const noteColumns = "id, parent_id, type, title, body, created_at, modified_at, local_modified, version, remote_id, sync_id, deleted"

const dataColumns = "id, note_id, mime_type, content, data1, data3"

func scanNote(scanner interface{ Scan(dest ...any) error }) (*Note, error) {
	var (
		note          Note
		kind          int
		createdRaw    sql.NullString
		modifiedRaw   sql.NullString
		localModified int
		remoteID      sql.NullString
		deleted       int
	)
	if err := scanner.Scan(
		&note.ID,
		&note.ParentID,
		&kind,
		&note.Title,
		&note.Body,
		&createdRaw,
		&modifiedRaw,
		&localModified,
		&note.Version,
		&remoteID,
		&note.SyncID,
		&deleted,
	); err != nil {
		return nil, err
	}
	note.Kind = Kind(kind)
	note.LocalModified = localModified != 0
	note.RemoteID = remoteID.String
	note.Deleted = deleted != 0
	if created, err := parseTimeString(createdRaw.String); err == nil {
		note.CreatedAt = created
	}
	if modified, err := parseTimeString(modifiedRaw.String); err == nil {
		note.ModifiedAt = modified
	}
	return &note, nil
}

func scanData(scanner interface{ Scan(dest ...any) error }) (*Data, error) {
	var data Data
	if err := scanner.Scan(&data.ID, &data.NoteID, &data.MimeType, &data.Content, &data.Data1, &data.Data3); err != nil {
		return nil, err
	}
	return &data, nil
}

func collectNotes(rows *sql.Rows) ([]Note, error) {
	defer rows.Close()
	var out []Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *note)
	}
	return out, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
