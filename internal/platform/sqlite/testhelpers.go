package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// NewMemoryDB opens a private in-memory database for tests.
func NewMemoryDB(ctx context.Context) (*sql.DB, error) {
	opts := DefaultOptions()
	opts.WALMode = false
	return Open(ctx, MemoryPath, opts)
}

// NewTestDB creates a temporary file-backed database with a unique name.
// The caller should clean up with CleanupTestDB.
func NewTestDB(ctx context.Context) (*sql.DB, string, error) {
	tmpFile, err := os.CreateTemp("", "test_db_*.sqlite")
	if err != nil {
		return nil, "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := Open(ctx, tmpPath, DefaultOptions())
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, "", err
	}

	return db, tmpPath, nil
}

// CleanupTestDB closes a test database and removes its file.
func CleanupTestDB(db *sql.DB, dbPath string) error {
	if db != nil {
		_ = db.Close()
	}
	if dbPath != "" && dbPath != MemoryPath {
		return os.Remove(dbPath)
	}
	return nil
}
