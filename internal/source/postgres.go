package source

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // postgres driver

	"datacat/internal/domain"
)

// postgresTypes maps lib/pq DatabaseTypeName values (and common aliases)
// to canonical types.
var postgresTypes = map[string]domain.ValueType{
	"INT2":        domain.TypeInteger,
	"INT4":        domain.TypeInteger,
	"INT8":        domain.TypeInteger,
	"SMALLINT":    domain.TypeInteger,
	"INTEGER":     domain.TypeInteger,
	"BIGINT":      domain.TypeInteger,
	"BOOL":        domain.TypeInteger,
	"FLOAT4":      domain.TypeFloat,
	"FLOAT8":      domain.TypeFloat,
	"NUMERIC":     domain.TypeFloat,
	"DECIMAL":     domain.TypeFloat,
	"DATE":        domain.TypeDate,
	"TIMESTAMP":   domain.TypeDateTime,
	"TIMESTAMPTZ": domain.TypeDateTime,
	"TIME":        domain.TypeTime,
	"TIMETZ":      domain.TypeTime,
	"TEXT":        domain.TypeString,
	"VARCHAR":     domain.TypeString,
	"BPCHAR":      domain.TypeString,
	"UUID":        domain.TypeString,
}

type postgresProbe struct {
	db *sql.DB
}

func (p *postgresProbe) Flavour() Flavour { return Postgres }
func (p *postgresProbe) DB() *sql.DB      { return p.db }

func (p *postgresProbe) DescribeQuery(ctx context.Context, query string) ([]Column, error) {
	return describeViaZeroRows(ctx, p.db, query)
}

func (p *postgresProbe) CanonicalType(native string) domain.ValueType {
	return canonicalFromMap(postgresTypes, native)
}

func (p *postgresProbe) ColumnComment(ctx context.Context, table, column string) (string, error) {
	var comment sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT col_description(c.oid, a.attnum)
		FROM pg_class c
		JOIN pg_attribute a ON a.attrelid = c.oid
		WHERE c.relname = $1 AND a.attname = $2`, table, column).Scan(&comment)
	if err != nil {
		return "", err
	}
	return comment.String, nil
}

// EnumItems reads the members of a Postgres enum type on the column.
// Items are numbered by their declared sort order, starting at 1.
func (p *postgresProbe) EnumItems(ctx context.Context, table, column string) ([]domain.VocabularyItem, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT e.enumlabel
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_type t ON t.oid = a.atttypid
		JOIN pg_enum e ON e.enumtypid = t.oid
		WHERE c.relname = $1 AND a.attname = $2
		ORDER BY e.enumsortorder`, table, column)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var items []domain.VocabularyItem
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		items = append(items, domain.VocabularyItem{
			Value: int64(len(items) + 1),
			Code:  label,
		})
	}
	return items, rows.Err()
}

func (p *postgresProbe) ForeignKeyRef(ctx context.Context, table, column string) (*LookupRef, error) {
	var ref LookupRef
	err := p.db.QueryRowContext(ctx, `
		SELECT ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.constraint_schema = tc.constraint_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.constraint_schema = tc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_name = $1
			AND kcu.column_name = $2`, table, column).Scan(&ref.Table, &ref.KeyColumn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}
