// Package lake wraps the DuckDB columnar store: table DDL derived from
// variable descriptors and appender-based row streaming. The lake carries
// its own snapshot semantics; this package only creates tables, appends
// rows, and reads them back.
package lake

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"datacat/internal/domain"
)

// Lake is a handle on the DuckDB lake database.
type Lake struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the lake database at path. An empty path opens
// an in-memory lake.
func Open(path string, logger *slog.Logger) (*Lake, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open lake: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping lake: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lake{db: db, logger: logger}, nil
}

// DB exposes the underlying connection for read-back queries.
func (l *Lake) DB() *sql.DB { return l.db }

// Close releases the lake connection.
func (l *Lake) Close() error { return l.db.Close() }

// Column describes one lake table column. Format carries the variable's
// declared parse layout for temporal values; Codes carries the vocabulary
// label-to-value map for category columns, so native enum labels can be
// translated to their small-integer code while streaming.
type Column struct {
	Name   string
	Type   domain.ValueType
	Format *string
	Codes  map[string]int64
}

// ColumnsForVariables derives the lake column list from persisted
// variables, in the given order. Vocabulary code maps are attached by the
// caller, which knows how to resolve vocabulary IDs.
func ColumnsForVariables(vars []domain.Variable) []Column {
	cols := make([]Column, len(vars))
	for i, v := range vars {
		cols[i] = Column{Name: v.Name, Type: v.ValueType, Format: v.Format}
	}
	return cols
}

// CodeMap inverts a vocabulary's items into a label-to-value map for
// category cell translation.
func CodeMap(items []domain.VocabularyItem) map[string]int64 {
	codes := make(map[string]int64, len(items))
	for _, item := range items {
		codes[item.Code] = item.Value
	}
	return codes
}

// duckType maps a canonical value type to its lake column type. Category
// columns store the small integer code; multiresponse stays a string
// because it holds separator-joined code lists.
func duckType(t domain.ValueType) string {
	switch t {
	case domain.TypeInteger:
		return "BIGINT"
	case domain.TypeFloat:
		return "DOUBLE"
	case domain.TypeDate:
		return "DATE"
	case domain.TypeDateTime:
		return "TIMESTAMP"
	case domain.TypeTime:
		return "TIME"
	case domain.TypeCategory:
		return "SMALLINT"
	default:
		return "VARCHAR"
	}
}

// EnsureSchema creates the named lake schema if it does not exist.
// Schemas are named for the owning study.
func (l *Lake) EnsureSchema(ctx context.Context, schema string) error {
	if err := validateIdentifier(schema); err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)); err != nil {
		return fmt.Errorf("create schema %q: %w", schema, err)
	}
	return nil
}

// CreateTable creates a lake table with one column per descriptor, in
// order. The table must not already exist.
func (l *Lake) CreateTable(ctx context.Context, schema, table string, cols []Column) error {
	if err := validateIdentifier(schema); err != nil {
		return err
	}
	if err := validateIdentifier(table); err != nil {
		return err
	}
	if len(cols) == 0 {
		return domain.ErrValidation("table %q needs at least one column", table)
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		if err := validateIdentifier(c.Name); err != nil {
			return err
		}
		defs[i] = fmt.Sprintf("%q %s", c.Name, duckType(c.Type))
	}

	ddl := fmt.Sprintf(`CREATE TABLE %q.%q (%s)`, schema, table, strings.Join(defs, ", "))
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s.%s: %w", schema, table, err)
	}

	l.logger.Debug("lake table created", "schema", schema, "table", table, "columns", len(cols))
	return nil
}

// DropTable removes a lake table. Used as the compensating action when a
// pipeline fails after table creation; a missing table is not an error.
func (l *Lake) DropTable(ctx context.Context, schema, table string) error {
	if err := validateIdentifier(schema); err != nil {
		return err
	}
	if err := validateIdentifier(table); err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q.%q`, schema, table)); err != nil {
		return fmt.Errorf("drop table %s.%s: %w", schema, table, err)
	}
	return nil
}

// RowSource yields rows one at a time in lake column order. It returns
// io.EOF (or sql.ErrNoRows from wrappers) via ok=false when exhausted.
type RowSource interface {
	// Next returns the next row, or ok=false when the source is drained.
	Next() (row []any, ok bool, err error)
}

// AppendRows streams rows from src into schema.table through a DuckDB
// appender, one row at a time, converting each value to the column's
// canonical type. The full result set is never materialized; memory is
// bounded by one row.
func (l *Lake) AppendRows(ctx context.Context, schema, table string, cols []Column, src RowSource) (int64, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire lake connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	var count int64
	err = conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}

		appender, err := duckdb.NewAppenderFromConn(driverConn, schema, table)
		if err != nil {
			return fmt.Errorf("create appender for %s.%s: %w", schema, table, err)
		}
		defer func() { _ = appender.Close() }()

		for {
			row, ok, err := src.Next()
			if err != nil {
				return fmt.Errorf("read source row %d: %w", count+1, err)
			}
			if !ok {
				break
			}
			if len(row) != len(cols) {
				return fmt.Errorf("row %d has %d values, want %d", count+1, len(row), len(cols))
			}

			converted := make([]driver.Value, len(row))
			for i, v := range row {
				cv, err := cols[i].Convert(v)
				if err != nil {
					return fmt.Errorf("column %q, row %d: %w", cols[i].Name, count+1, err)
				}
				converted[i] = cv
			}

			if err := appender.AppendRow(converted...); err != nil {
				return fmt.Errorf("append row %d to %s.%s: %w", count+1, schema, table, err)
			}
			count++
		}

		return appender.Flush()
	})
	if err != nil {
		return count, err
	}

	l.logger.Debug("rows appended", "schema", schema, "table", table, "rows", count)
	return count, nil
}

// CountRows returns the row count of a lake table.
func (l *Lake) CountRows(ctx context.Context, schema, table string) (int64, error) {
	if err := validateIdentifier(schema); err != nil {
		return 0, err
	}
	if err := validateIdentifier(table); err != nil {
		return 0, err
	}
	var n int64
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q.%q`, schema, table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", schema, table, err)
	}
	return n, nil
}

func validateIdentifier(name string) error {
	if name == "" {
		return domain.ErrValidation("identifier is required")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return domain.ErrValidation("identifier %q must not start with a digit", name)
			}
		default:
			return domain.ErrValidation("identifier %q contains invalid character %q", name, r)
		}
	}
	return nil
}
