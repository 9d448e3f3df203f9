// Package db opens the SQLite catalog metastore and applies its migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// DSN parameters applied to every metastore connection.
const (
	busyTimeoutMillis = "5000"
	synchronousLevel  = "NORMAL"
	journalMode       = "WAL"
)

// OpenSQLite opens a connection pool for the catalog metastore at path.
//
// The metastore is a single SQLite file, so writes must be serialized:
// mode "write" pins the pool to one connection and takes the write lock
// eagerly (_txlock=immediate), while mode "read" allows maxOpen
// concurrent readers (0 means 4). WAL journaling, a 5s busy timeout and
// foreign-key enforcement are always on.
func OpenSQLite(path string, mode string, maxOpen int) (*sql.DB, error) {
	if mode != "read" && mode != "write" {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be \"read\" or \"write\"", mode)
	}

	dsn := buildDSN(path, mode)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metastore (%s): %w", mode, err)
	}

	switch mode {
	case "write":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case "read":
		if maxOpen <= 0 {
			maxOpen = 4
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping metastore (%s): %w", mode, err)
	}

	return db, nil
}

// OpenSQLitePair opens the write pool and the read pool for the same
// metastore file. Ledger transactions go through the single-connection
// write pool; catalog queries fan out over the read pool, which WAL
// keeps unblocked while a write is in flight.
//
// readMaxOpen sizes the read pool (0 defaults to 4).
func OpenSQLitePair(path string, readMaxOpen int) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = OpenSQLite(path, "write", 0)
	if err != nil {
		return nil, nil, err
	}

	readDB, err = OpenSQLite(path, "read", readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, err
	}

	return writeDB, readDB, nil
}

func buildDSN(path string, mode string) string {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeoutMillis)
	params.Set("_synchronous", synchronousLevel)
	params.Set("_foreign_keys", "on")

	if mode == "write" {
		params.Set("_txlock", "immediate")
	}

	return path + "?" + params.Encode()
}
