package repository

import (
	"context"
	"database/sql"

	"datacat/internal/domain"
)

// Compile-time check.
var _ domain.VariableRepository = (*VariableRepo)(nil)

// VariableRepo implements domain.VariableRepository using SQLite.
type VariableRepo struct {
	db *sql.DB
}

// NewVariableRepo creates a new VariableRepo.
func NewVariableRepo(db *sql.DB) *VariableRepo {
	return &VariableRepo{db: db}
}

// Upsert inserts the variable or updates the existing (domain, name) row
// in place, keeping its original ID. Variables are created lazily the
// first time a name appears in a domain and reused thereafter.
func (r *VariableRepo) Upsert(ctx context.Context, v *domain.Variable) (*domain.Variable, error) {
	if err := validateIdentifier(v.Name); err != nil {
		return nil, err
	}
	if !v.ValueType.Valid() {
		return nil, domain.ErrValidation("unknown value type %q", v.ValueType)
	}
	keyRole := v.KeyRole
	if keyRole == "" {
		keyRole = domain.KeyRoleNone
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO variables (id, domain_id, name, value_type, format, vocabulary_id, key_role, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (domain_id, name) DO UPDATE SET
			value_type    = excluded.value_type,
			format        = excluded.format,
			vocabulary_id = excluded.vocabulary_id,
			key_role      = excluded.key_role,
			description   = excluded.description`,
		domain.NewID(), v.DomainID, v.Name, string(v.ValueType),
		nullString(v.Format), nullString(v.VocabularyID), string(keyRole), v.Description)
	if err != nil {
		return nil, mapDBError(err)
	}

	return r.GetByName(ctx, v.DomainID, v.Name)
}

// GetByName returns a variable by its domain and name.
func (r *VariableRepo) GetByName(ctx context.Context, domainID, name string) (*domain.Variable, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, domain_id, name, value_type, format, vocabulary_id, key_role, description, created_at
		FROM variables WHERE domain_id = ? AND name = ?`, domainID, name)

	v, err := scanVariable(row.Scan)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("variable %q not found in domain", name)
		}
		return nil, err
	}
	return v, nil
}

// ListForDataset returns the variables attached to a dataset, in
// attachment order. This order is the lake table's column order.
func (r *VariableRepo) ListForDataset(ctx context.Context, datasetID string) ([]domain.Variable, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.id, v.domain_id, v.name, v.value_type, v.format, v.vocabulary_id, dv.key_role, v.description, v.created_at
		FROM dataset_variables dv
		JOIN variables v ON v.id = dv.variable_id
		WHERE dv.dataset_id = ?
		ORDER BY dv.rowid`, datasetID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Variable
	for rows.Next() {
		v, err := scanVariable(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func scanVariable(scan func(dest ...any) error) (*domain.Variable, error) {
	var v domain.Variable
	var valueType, keyRole, createdAt string
	var format, vocabID sql.NullString
	if err := scan(&v.ID, &v.DomainID, &v.Name, &valueType, &format, &vocabID, &keyRole, &v.Description, &createdAt); err != nil {
		return nil, mapDBError(err)
	}
	v.ValueType = domain.ValueType(valueType)
	v.KeyRole = domain.KeyRole(keyRole)
	v.Format = stringPtr(format)
	v.VocabularyID = stringPtr(vocabID)
	v.CreatedAt = parseTimestamp(createdAt)
	return &v, nil
}
