package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Local-edit API. Every write here marks the row as locally modified and
// bumps its version, which is the counter the sync engine guards on.

// CreateFolder adds a top-level folder.
func (s *Store) CreateFolder(ctx context.Context, name string) (*Note, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("folder name is required")
	}
	now := s.timestamp()
	id, err := s.insert(ctx,
		`INSERT INTO notes (parent_id, type, title, created_at, modified_at, local_modified, version)
		 VALUES (?, ?, ?, ?, ?, 1, 1)`,
		RootFolderID, int(KindFolder), name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert folder: %w", err)
	}
	return s.Get(ctx, id)
}

// RenameFolder changes a folder title.
func (s *Store) RenameFolder(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("folder name is required")
	}
	return s.touch(ctx, id, KindFolder, "title = ?", name)
}

// DeleteFolder soft-deletes a folder and every note inside it.
func (s *Store) DeleteFolder(ctx context.Context, id int64) error {
	now := s.timestamp()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE notes SET deleted = 1, local_modified = 1, version = version + 1, modified_at = ?
			 WHERE id = ? AND type = ?`,
			now, id, int(KindFolder),
		)
		if err != nil {
			return fmt.Errorf("delete folder: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("folder %d: %w", id, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE notes SET deleted = 1, local_modified = 1, version = version + 1, modified_at = ?
			 WHERE parent_id = ? AND deleted = 0`,
			now, id,
		); err != nil {
			return fmt.Errorf("delete folder notes: %w", err)
		}
		return nil
	})
}

// CreateNote adds a note to a live folder.
func (s *Store) CreateNote(ctx context.Context, folderID int64, title, body string) (*Note, error) {
	if err := s.requireLiveFolder(ctx, folderID); err != nil {
		return nil, err
	}
	now := s.timestamp()
	id, err := s.insert(ctx,
		`INSERT INTO notes (parent_id, type, title, body, created_at, modified_at, local_modified, version)
		 VALUES (?, ?, ?, ?, ?, ?, 1, 1)`,
		folderID, int(KindNote), strings.TrimSpace(title), body, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	return s.Get(ctx, id)
}

// EditNote replaces a note's title and body.
func (s *Store) EditNote(ctx context.Context, id int64, title, body string) error {
	return s.touch(ctx, id, KindNote, "title = ?, body = ?", strings.TrimSpace(title), body)
}

// MoveNote places a note in another live folder.
func (s *Store) MoveNote(ctx context.Context, id, folderID int64) error {
	if err := s.requireLiveFolder(ctx, folderID); err != nil {
		return err
	}
	return s.touch(ctx, id, KindNote, "parent_id = ?", folderID)
}

// DeleteNote soft-deletes a note so the deletion can be pushed.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	return s.touch(ctx, id, KindNote, "deleted = 1")
}

// SetNoteData creates or updates the note's sub-record as a local edit.
func (s *Store) SetNoteData(ctx context.Context, noteID int64, mimeType, content string, data1 int64, data3 string) error {
	if mimeType == "" {
		mimeType = "text_note"
	}
	now := s.timestamp()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE notes SET local_modified = 1, version = version + 1, modified_at = ?
			 WHERE id = ? AND type = ? AND deleted = 0`,
			now, noteID, int(KindNote),
		)
		if err != nil {
			return fmt.Errorf("touch note: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("note %d: %w", noteID, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO note_data (note_id, mime_type, content, data1, data3, created_at, modified_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(note_id) DO UPDATE SET
			   mime_type = excluded.mime_type,
			   content = excluded.content,
			   data1 = excluded.data1,
			   data3 = excluded.data3,
			   modified_at = excluded.modified_at`,
			noteID, mimeType, content, data1, data3, now, now,
		); err != nil {
			return fmt.Errorf("upsert note data: %w", err)
		}
		return nil
	})
}

func (s *Store) touch(ctx context.Context, id int64, kind Kind, set string, args ...any) error {
	query := fmt.Sprintf(
		`UPDATE notes SET %s, local_modified = 1, version = version + 1, modified_at = ?
		 WHERE id = ? AND type = ?`, set)
	args = append(args, s.timestamp(), id, int(kind))
	n, err := s.execRows(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}

func (s *Store) requireLiveFolder(ctx context.Context, folderID int64) error {
	folder, err := s.Get(ctx, folderID)
	if err != nil {
		return err
	}
	if folder == nil || !folder.IsFolder() || folder.Deleted {
		return fmt.Errorf("%w: %d", ErrInvalidParent, folderID)
	}
	return nil
}
