package notes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Counts aggregates note state for status output.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	ctx = ensureContext(ctx)
	var counts Counts
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type = ? AND deleted = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = ? AND deleted = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN local_modified = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN remote_id IS NULL AND deleted = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted = 1 THEN 1 ELSE 0 END), 0)
		FROM notes`,
		int(KindFolder), int(KindNote),
	)
	if err := row.Scan(&counts.Folders, &counts.Notes, &counts.PendingSync, &counts.Unsynced, &counts.PendingDelete); err != nil {
		return Counts{}, fmt.Errorf("count notes: %w", err)
	}
	return counts, nil
}

// CheckHealth returns diagnostic information about the notes database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("notes database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat notes database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("notes database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("notes database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping notes database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = integrity == "ok"
	if !health.IntegrityCheck {
		health.Error = integrity
	}

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM notes").Scan(&health.TotalRows); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count rows: %w", err)
	}
	return health, nil
}
