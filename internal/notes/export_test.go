package notes

import "context"

// SetSchemaVersionForTest overwrites the recorded schema version.
func (s *Store) SetSchemaVersionForTest(ctx context.Context, version int) (int64, error) {
	return s.execRows(ctx, "UPDATE schema_version SET version = ?", version)
}
