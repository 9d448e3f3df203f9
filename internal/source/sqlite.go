package source

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"datacat/internal/domain"
)

var sqliteTypes = map[string]domain.ValueType{
	"INT":       domain.TypeInteger,
	"INTEGER":   domain.TypeInteger,
	"TINYINT":   domain.TypeInteger,
	"SMALLINT":  domain.TypeInteger,
	"BIGINT":    domain.TypeInteger,
	"BOOLEAN":   domain.TypeInteger,
	"REAL":      domain.TypeFloat,
	"FLOAT":     domain.TypeFloat,
	"DOUBLE":    domain.TypeFloat,
	"NUMERIC":   domain.TypeFloat,
	"DATE":      domain.TypeDate,
	"DATETIME":  domain.TypeDateTime,
	"TIMESTAMP": domain.TypeDateTime,
	"TIME":      domain.TypeTime,
	"TEXT":      domain.TypeString,
	"CHAR":      domain.TypeString,
	"VARCHAR":   domain.TypeString,
	"CLOB":      domain.TypeString,
	"BLOB":      domain.TypeString,
}

// sqliteProbe probes an embedded SQLite source. SQLite has no column
// comments and no native enum type; both degrade to empty results.
type sqliteProbe struct {
	db *sql.DB
}

func (p *sqliteProbe) Flavour() Flavour { return SQLite }
func (p *sqliteProbe) DB() *sql.DB      { return p.db }

func (p *sqliteProbe) DescribeQuery(ctx context.Context, query string) ([]Column, error) {
	return describeViaZeroRows(ctx, p.db, query)
}

func (p *sqliteProbe) CanonicalType(native string) domain.ValueType {
	// Expression columns carry no declared type; treat them as strings.
	if native == "" {
		return domain.TypeString
	}
	return canonicalFromMap(sqliteTypes, native)
}

func (p *sqliteProbe) ColumnComment(_ context.Context, _, _ string) (string, error) {
	return "", nil
}

func (p *sqliteProbe) EnumItems(_ context.Context, _, _ string) ([]domain.VocabularyItem, error) {
	return nil, nil
}

func (p *sqliteProbe) ForeignKeyRef(ctx context.Context, table, column string) (*LookupRef, error) {
	if err := sqliteIdentOK(table); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT "table", "from", "to" FROM pragma_foreign_key_list(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var refTable, from string
		var to sql.NullString
		if err := rows.Scan(&refTable, &from, &to); err != nil {
			return nil, err
		}
		if from != column {
			continue
		}
		key := to.String
		if key == "" {
			// Omitted referenced column means the primary key.
			key, err = p.primaryKey(ctx, refTable)
			if err != nil {
				return nil, err
			}
		}
		return &LookupRef{Table: refTable, KeyColumn: key}, nil
	}
	return nil, rows.Err()
}

func (p *sqliteProbe) primaryKey(ctx context.Context, table string) (string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return "", err
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var name string
		var pk int
		if err := rows.Scan(&name, &pk); err != nil {
			return "", err
		}
		if pk == 1 {
			return name, nil
		}
	}
	return "", rows.Err()
}

func sqliteIdentOK(name string) error {
	for _, r := range name {
		if r == ';' || r == '\'' || r == '"' {
			return domain.ErrValidation("invalid table name %q", name)
		}
	}
	return nil
}
