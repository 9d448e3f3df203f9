// Package source abstracts the SQL engines datasets are ingested from.
// Each supported flavour supplies its own native-type mapping and its own
// mechanism for retrieving column comments, enum constraints, and foreign
// keys. Everything beyond executing the zero-row describe query is
// best-effort: missing metadata degrades to empty descriptor fields.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"datacat/internal/domain"
)

// Flavour identifies a source SQL engine.
type Flavour string

// Supported source flavours.
const (
	Postgres Flavour = "postgres"
	MySQL    Flavour = "mysql"
	SQLite   Flavour = "sqlite"
	DuckDB   Flavour = "duckdb"
)

// ParseFlavour normalizes a flavour tag.
func ParseFlavour(s string) (Flavour, error) {
	switch Flavour(strings.ToLower(strings.TrimSpace(s))) {
	case Postgres, Flavour("postgresql"), Flavour("pg"):
		return Postgres, nil
	case MySQL:
		return MySQL, nil
	case SQLite, Flavour("sqlite3"):
		return SQLite, nil
	case DuckDB:
		return DuckDB, nil
	}
	return "", domain.ErrValidation("unknown source flavour %q", s)
}

// Column is one column of a described result set.
type Column struct {
	Name       string
	NativeType string
}

// LookupRef is a foreign-key reference from a source column to a
// candidate lookup table.
type LookupRef struct {
	Table     string
	KeyColumn string
}

// SchemaProbe retrieves schema metadata from one source flavour.
//
// DescribeQuery is the only method whose failure is fatal to inference;
// the metadata methods degrade to empty results when the engine cannot
// answer.
type SchemaProbe interface {
	Flavour() Flavour
	// DescribeQuery executes the query in zero-row mode and returns the
	// result columns with their native type names. It must work for
	// arbitrary ad-hoc SELECTs, not just base tables.
	DescribeQuery(ctx context.Context, query string) ([]Column, error)
	// CanonicalType maps a native type name to its canonical value type.
	CanonicalType(native string) domain.ValueType
	// ColumnComment returns the column's comment, or "" when the engine
	// has none.
	ColumnComment(ctx context.Context, table, column string) (string, error)
	// EnumItems returns the members of a native enumerated type on the
	// column, or nil when the column is not enumerated.
	EnumItems(ctx context.Context, table, column string) ([]domain.VocabularyItem, error)
	// ForeignKeyRef returns the lookup reference the column points at,
	// or nil when the column has no foreign key.
	ForeignKeyRef(ctx context.Context, table, column string) (*LookupRef, error)
	// DB exposes the source connection for row reads (lookup items,
	// streaming).
	DB() *sql.DB
}

// DriverName returns the database/sql driver registered for a flavour.
func DriverName(f Flavour) (string, error) {
	switch f {
	case Postgres:
		return "postgres", nil
	case MySQL:
		return "mysql", nil
	case SQLite:
		return "sqlite3", nil
	case DuckDB:
		return "duckdb", nil
	}
	return "", domain.ErrValidation("unknown source flavour %q", f)
}

// Open opens a source connection for the given flavour and DSN and
// verifies it is reachable.
func Open(ctx context.Context, f Flavour, dsn string) (*sql.DB, error) {
	driver, err := DriverName(f)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", f, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s source: %w", f, err)
	}
	return db, nil
}

// ForFlavour returns the SchemaProbe implementation for a flavour over an
// already-open source connection.
func ForFlavour(f Flavour, db *sql.DB) (SchemaProbe, error) {
	switch f {
	case Postgres:
		return &postgresProbe{db: db}, nil
	case MySQL:
		return &mysqlProbe{db: db}, nil
	case SQLite:
		return &sqliteProbe{db: db}, nil
	case DuckDB:
		return &duckdbProbe{db: db}, nil
	}
	return nil, domain.ErrValidation("unknown source flavour %q", f)
}

// describeViaZeroRows wraps the query so it returns no rows and reads the
// driver's column type metadata. Shared by every flavour whose driver
// reports DatabaseTypeName.
func describeViaZeroRows(ctx context.Context, db *sql.DB, query string) ([]Column, error) {
	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS zero_probe WHERE 1=0", strings.TrimRight(strings.TrimSpace(query), ";"))
	rows, err := db.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("describe query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	cols := make([]Column, len(types))
	for i, ct := range types {
		cols[i] = Column{Name: ct.Name(), NativeType: ct.DatabaseTypeName()}
	}
	return cols, rows.Err()
}

// baseTableRe matches a single-table FROM clause: metadata probing of
// comments and constraints only applies when the query reads one base
// table.
var baseTableRe = regexp.MustCompile(`(?is)\bfrom\s+("?[a-zA-Z_][\w]*"?(?:\."?[a-zA-Z_][\w]*"?)?)`)

// BaseTable extracts the base table name from a single-table query, or ""
// when the query joins, nests, or otherwise defies naive extraction.
func BaseTable(query string) string {
	q := strings.TrimSpace(query)
	upper := strings.ToUpper(q)
	if strings.Contains(upper, " JOIN ") || strings.Count(upper, "FROM") != 1 {
		return ""
	}
	m := baseTableRe.FindStringSubmatch(q)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], `"`, "")
}

// canonicalFromMap resolves a native type name against a flavour's type
// table, falling back to string for anything unknown.
func canonicalFromMap(m map[string]domain.ValueType, native string) domain.ValueType {
	key := strings.ToUpper(strings.TrimSpace(native))
	// Strip length/precision suffixes such as VARCHAR(10) or DECIMAL(8,2).
	if i := strings.IndexByte(key, '('); i > 0 {
		key = strings.TrimSpace(key[:i])
	}
	if t, ok := m[key]; ok {
		return t
	}
	return domain.TypeString
}
