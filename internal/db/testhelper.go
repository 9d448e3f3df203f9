package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestSQLite gives a test a fully migrated metastore in t.TempDir().
// It returns the write/read pool pair; cleanup closes both. Tests that
// never exercise concurrent reads can just use writeDB.
func OpenTestSQLite(t *testing.T) (writeDB, readDB *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.sqlite")

	writeDB, readDB, err := OpenSQLitePair(path, 4)
	if err != nil {
		t.Fatalf("open test metastore: %v", err)
	}
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	if err := RunMigrations(writeDB); err != nil {
		t.Fatalf("migrate test metastore: %v", err)
	}

	return writeDB, readDB
}
