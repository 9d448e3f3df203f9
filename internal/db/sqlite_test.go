package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite("ignored.sqlite", "readwrite", 0)
	require.Error(t, err)
}

func TestOpenSQLitePair_RunsAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.sqlite")

	writeDB, readDB, err := OpenSQLitePair(path, 2)
	require.NoError(t, err)
	defer writeDB.Close() //nolint:errcheck
	defer readDB.Close()  //nolint:errcheck

	require.NoError(t, RunMigrations(writeDB))

	// Migrations are idempotent.
	require.NoError(t, RunMigrations(writeDB))

	// A migrated table is visible through the read pool.
	var n int
	err = readDB.QueryRow(`SELECT COUNT(*) FROM assets`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN("meta.sqlite", "write")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_txlock=immediate")

	dsn = buildDSN("meta.sqlite", "read")
	assert.NotContains(t, dsn, "_txlock")
}
