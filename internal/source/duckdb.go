package source

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb driver

	"datacat/internal/domain"
)

var duckdbTypes = map[string]domain.ValueType{
	"TINYINT":                  domain.TypeInteger,
	"SMALLINT":                 domain.TypeInteger,
	"INTEGER":                  domain.TypeInteger,
	"BIGINT":                   domain.TypeInteger,
	"HUGEINT":                  domain.TypeInteger,
	"UTINYINT":                 domain.TypeInteger,
	"USMALLINT":                domain.TypeInteger,
	"UINTEGER":                 domain.TypeInteger,
	"UBIGINT":                  domain.TypeInteger,
	"BOOLEAN":                  domain.TypeInteger,
	"FLOAT":                    domain.TypeFloat,
	"DOUBLE":                   domain.TypeFloat,
	"DECIMAL":                  domain.TypeFloat,
	"DATE":                     domain.TypeDate,
	"TIMESTAMP":                domain.TypeDateTime,
	"TIMESTAMP WITH TIME ZONE": domain.TypeDateTime,
	"TIMESTAMPTZ":              domain.TypeDateTime,
	"TIME":                     domain.TypeTime,
	"ENUM":                     domain.TypeCategory,
	"VARCHAR":                  domain.TypeString,
	"UUID":                     domain.TypeString,
	"BLOB":                     domain.TypeString,
}

// duckdbProbe probes the lake engine itself, which can also serve as an
// ingestion source (e.g. re-deriving a dataset from an existing table).
type duckdbProbe struct {
	db *sql.DB
}

func (p *duckdbProbe) Flavour() Flavour { return DuckDB }
func (p *duckdbProbe) DB() *sql.DB      { return p.db }

func (p *duckdbProbe) DescribeQuery(ctx context.Context, query string) ([]Column, error) {
	return describeViaZeroRows(ctx, p.db, query)
}

func (p *duckdbProbe) CanonicalType(native string) domain.ValueType {
	// Enum declarations surface as ENUM('a', 'b').
	if strings.HasPrefix(strings.ToUpper(native), "ENUM") {
		return domain.TypeCategory
	}
	return canonicalFromMap(duckdbTypes, native)
}

func (p *duckdbProbe) ColumnComment(ctx context.Context, table, column string) (string, error) {
	var comment sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT comment FROM duckdb_columns()
		WHERE table_name = ? AND column_name = ?`, table, column).Scan(&comment)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return comment.String, nil
}

// EnumItems parses the member list out of the column's declared type,
// e.g. ENUM('never', 'former', 'current'). Members are numbered from 1
// in declaration order.
func (p *duckdbProbe) EnumItems(ctx context.Context, table, column string) ([]domain.VocabularyItem, error) {
	var dataType string
	err := p.db.QueryRowContext(ctx, `
		SELECT data_type FROM duckdb_columns()
		WHERE table_name = ? AND column_name = ?`, table, column).Scan(&dataType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseEnumMembers(dataType), nil
}

func (p *duckdbProbe) ForeignKeyRef(ctx context.Context, table, column string) (*LookupRef, error) {
	var ref LookupRef
	err := p.db.QueryRowContext(ctx, `
		SELECT ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_name = ?
			AND kcu.column_name = ?`, table, column).Scan(&ref.Table, &ref.KeyColumn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}
