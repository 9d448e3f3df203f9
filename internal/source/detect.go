package source

import (
	"context"
	"fmt"

	"datacat/internal/domain"
)

// CategorySpec is a detected controlled value set for a source column.
type CategorySpec struct {
	// Name becomes the vocabulary name (domain-scoped).
	Name        string
	Description string
	Items       []domain.VocabularyItem
}

// CategoryDetector is one strategy in the detection chain. Detectors
// return (nil, nil) when their signal is absent; errors are treated as
// best-effort misses by the inferrer, not failures.
type CategoryDetector interface {
	Name() string
	Detect(ctx context.Context, probe SchemaProbe, table, column string) (*CategorySpec, error)
}

// enumDetector recognizes native enumerated types (MySQL ENUM/SET,
// Postgres enum types, DuckDB ENUM).
type enumDetector struct{}

func (enumDetector) Name() string { return "native-enum" }

func (enumDetector) Detect(ctx context.Context, probe SchemaProbe, table, column string) (*CategorySpec, error) {
	items, err := probe.EnumItems(ctx, table, column)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &CategorySpec{Name: column, Items: items}, nil
}

// lookupDetector recognizes a foreign key pointing at a table small
// enough to be a code list. The referenced table's rows become the
// vocabulary items: value is the numeric key, code the first textual
// column, description the second when present.
type lookupDetector struct {
	threshold int
}

func (lookupDetector) Name() string { return "fk-lookup" }

func (d lookupDetector) Detect(ctx context.Context, probe SchemaProbe, table, column string) (*CategorySpec, error) {
	ref, err := probe.ForeignKeyRef(ctx, table, column)
	if err != nil || ref == nil {
		return nil, err
	}

	if err := identOK(ref.Table); err != nil {
		return nil, err
	}

	var count int64
	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, ref.Table)
	if err := probe.DB().QueryRowContext(ctx, countQ).Scan(&count); err != nil {
		return nil, err
	}
	if count == 0 || count > int64(d.threshold) {
		return nil, nil
	}

	items, err := readLookupItems(ctx, probe, ref)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &CategorySpec{Name: ref.Table, Items: items}, nil
}

// readLookupItems loads (value, code, description) triples from the
// referenced lookup table. Column roles are derived from the table's own
// schema: the referenced key must be integer-typed, the first other
// string column is the code, the next the description.
func readLookupItems(ctx context.Context, probe SchemaProbe, ref *LookupRef) ([]domain.VocabularyItem, error) {
	for _, name := range []string{ref.Table, ref.KeyColumn} {
		if err := identOK(name); err != nil {
			return nil, err
		}
	}

	cols, err := probe.DescribeQuery(ctx, fmt.Sprintf(`SELECT * FROM %s`, ref.Table))
	if err != nil {
		return nil, err
	}

	var codeCol, descCol string
	keyOK := false
	for _, c := range cols {
		t := probe.CanonicalType(c.NativeType)
		if c.Name == ref.KeyColumn {
			keyOK = t == domain.TypeInteger
			continue
		}
		if t != domain.TypeString {
			continue
		}
		switch {
		case codeCol == "":
			codeCol = c.Name
		case descCol == "":
			descCol = c.Name
		}
	}
	if !keyOK || codeCol == "" {
		// Not shaped like a code list.
		return nil, nil
	}

	sel := fmt.Sprintf(`SELECT %s, %s`, ref.KeyColumn, codeCol)
	if descCol != "" {
		sel += ", " + descCol
	}
	sel += fmt.Sprintf(` FROM %s ORDER BY %s`, ref.Table, ref.KeyColumn)

	rows, err := probe.DB().QueryContext(ctx, sel)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var items []domain.VocabularyItem
	for rows.Next() {
		var item domain.VocabularyItem
		var desc *string
		if descCol != "" {
			if err := rows.Scan(&item.Value, &item.Code, &desc); err != nil {
				return nil, err
			}
		} else {
			if err := rows.Scan(&item.Value, &item.Code); err != nil {
				return nil, err
			}
		}
		if desc != nil {
			item.Description = *desc
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// identOK rejects names that cannot be spliced into metadata SQL.
// Unquoted identifiers keep the probes portable across quoting dialects.
func identOK(name string) error {
	if name == "" {
		return domain.ErrValidation("identifier is required")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return domain.ErrValidation("identifier %q contains invalid character %q", name, r)
		}
	}
	return nil
}
