package source

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver

	"datacat/internal/domain"
)

var mysqlTypes = map[string]domain.ValueType{
	"TINYINT":   domain.TypeInteger,
	"SMALLINT":  domain.TypeInteger,
	"MEDIUMINT": domain.TypeInteger,
	"INT":       domain.TypeInteger,
	"INTEGER":   domain.TypeInteger,
	"BIGINT":    domain.TypeInteger,
	"YEAR":      domain.TypeInteger,
	"FLOAT":     domain.TypeFloat,
	"DOUBLE":    domain.TypeFloat,
	"DECIMAL":   domain.TypeFloat,
	"DATE":      domain.TypeDate,
	"DATETIME":  domain.TypeDateTime,
	"TIMESTAMP": domain.TypeDateTime,
	"TIME":      domain.TypeTime,
	"ENUM":      domain.TypeCategory,
	"SET":       domain.TypeMultiResponse,
	"CHAR":      domain.TypeString,
	"VARCHAR":   domain.TypeString,
	"TEXT":      domain.TypeString,
	"TINYTEXT":  domain.TypeString,
	"LONGTEXT":  domain.TypeString,
}

type mysqlProbe struct {
	db *sql.DB
}

func (p *mysqlProbe) Flavour() Flavour { return MySQL }
func (p *mysqlProbe) DB() *sql.DB      { return p.db }

func (p *mysqlProbe) DescribeQuery(ctx context.Context, query string) ([]Column, error) {
	return describeViaZeroRows(ctx, p.db, query)
}

func (p *mysqlProbe) CanonicalType(native string) domain.ValueType {
	return canonicalFromMap(mysqlTypes, native)
}

func (p *mysqlProbe) ColumnComment(ctx context.Context, table, column string) (string, error) {
	var comment sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT COLUMN_COMMENT FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		table, column).Scan(&comment)
	if err != nil {
		return "", err
	}
	return comment.String, nil
}

// EnumItems parses the members out of a MySQL ENUM (or SET) column type
// declaration such as enum('never','former','current'). MySQL numbers
// enum members from 1 in declaration order.
func (p *mysqlProbe) EnumItems(ctx context.Context, table, column string) ([]domain.VocabularyItem, error) {
	var columnType string
	err := p.db.QueryRowContext(ctx, `
		SELECT COLUMN_TYPE FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		table, column).Scan(&columnType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseEnumMembers(columnType), nil
}

// parseEnumMembers extracts quoted members from "enum('a','b')" or
// "set('a','b')". Returns nil for any other declaration.
func parseEnumMembers(columnType string) []domain.VocabularyItem {
	lower := strings.ToLower(columnType)
	if !strings.HasPrefix(lower, "enum(") && !strings.HasPrefix(lower, "set(") {
		return nil
	}
	open := strings.IndexByte(columnType, '(')
	close_ := strings.LastIndexByte(columnType, ')')
	if open < 0 || close_ <= open {
		return nil
	}

	var items []domain.VocabularyItem
	for _, part := range strings.Split(columnType[open+1:close_], ",") {
		member := strings.Trim(strings.TrimSpace(part), "'")
		member = strings.ReplaceAll(member, "''", "'")
		if member == "" {
			continue
		}
		items = append(items, domain.VocabularyItem{
			Value: int64(len(items) + 1),
			Code:  member,
		})
	}
	return items
}

func (p *mysqlProbe) ForeignKeyRef(ctx context.Context, table, column string) (*LookupRef, error) {
	var ref LookupRef
	err := p.db.QueryRowContext(ctx, `
		SELECT REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL`,
		table, column).Scan(&ref.Table, &ref.KeyColumn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}
