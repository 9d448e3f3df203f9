package repository

import (
	"context"
	"database/sql"

	"datacat/internal/domain"
)

// Compile-time check.
var _ domain.TransformationRepository = (*TransformationRepo)(nil)

// TransformationRepo implements the provenance ledger using SQLite.
// Transformations are immutable once recorded; only link rows are
// appended afterward, and only against versions that already exist
// (foreign keys reject dangling links).
type TransformationRepo struct {
	db *sql.DB
}

// NewTransformationRepo creates a new TransformationRepo.
func NewTransformationRepo(db *sql.DB) *TransformationRepo {
	return &TransformationRepo{db: db}
}

// Record inserts a new transformation. Source fields left unresolved are
// stored empty.
func (r *TransformationRepo) Record(ctx context.Context, t *domain.Transformation) (*domain.Transformation, error) {
	if !t.Type.Valid() {
		return nil, domain.ErrValidation("unknown transformation type %q", t.Type)
	}

	id := domain.NewID()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transformations (id, type, description, repo_url, commit_sha, script_path)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(t.Type), t.Description, t.Source.RepoURL, t.Source.CommitSHA, t.Source.ScriptPath)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.Get(ctx, id)
}

// LinkInput appends an input link from a transformation to a version.
func (r *TransformationRepo) LinkInput(ctx context.Context, transformationID, versionID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transformation_inputs (transformation_id, version_id) VALUES (?, ?)`,
		transformationID, versionID)
	return mapDBError(err)
}

// LinkOutput appends an output link from a transformation to a version.
// A version can be the output of at most one transformation.
func (r *TransformationRepo) LinkOutput(ctx context.Context, transformationID, versionID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transformation_outputs (transformation_id, version_id) VALUES (?, ?)`,
		transformationID, versionID)
	if err != nil {
		if _, ok := mapDBError(err).(*domain.ConflictError); ok {
			return domain.ErrConflict("version %q is already the output of a transformation", versionID)
		}
		return mapDBError(err)
	}
	return nil
}

// Get returns a transformation by its ID.
func (r *TransformationRepo) Get(ctx context.Context, id string) (*domain.Transformation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, description, repo_url, commit_sha, script_path, created_at
		FROM transformations WHERE id = ?`, id)
	t, err := scanTransformation(row.Scan)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("transformation %q not found", id)
		}
		return nil, err
	}
	return t, nil
}

// Inputs returns the version IDs a transformation consumed.
func (r *TransformationRepo) Inputs(ctx context.Context, transformationID string) ([]string, error) {
	return r.linkedVersions(ctx, "transformation_inputs", transformationID)
}

// Outputs returns the version IDs a transformation produced.
func (r *TransformationRepo) Outputs(ctx context.Context, transformationID string) ([]string, error) {
	return r.linkedVersions(ctx, "transformation_outputs", transformationID)
}

// ForVersion returns every transformation that consumed or produced the
// version, each with its full link sets resolved, ordered by creation.
func (r *TransformationRepo) ForVersion(ctx context.Context, versionID string) ([]domain.Lineage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT t.id, t.type, t.description, t.repo_url, t.commit_sha, t.script_path, t.created_at
		FROM transformations t
		LEFT JOIN transformation_inputs ti ON ti.transformation_id = t.id
		LEFT JOIN transformation_outputs to_ ON to_.transformation_id = t.id
		WHERE ti.version_id = ? OR to_.version_id = ?
		ORDER BY t.created_at, t.id`, versionID, versionID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var transformations []domain.Transformation
	for rows.Next() {
		t, err := scanTransformation(rows.Scan)
		if err != nil {
			return nil, err
		}
		transformations = append(transformations, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Lineage, 0, len(transformations))
	for _, t := range transformations {
		inputs, err := r.Inputs(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		outputs, err := r.Outputs(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Lineage{
			Transformation: t,
			InputVersions:  inputs,
			OutputVersions: outputs,
		})
	}
	return out, nil
}

func (r *TransformationRepo) linkedVersions(ctx context.Context, table, transformationID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT version_id FROM `+table+` WHERE transformation_id = ? ORDER BY rowid`, transformationID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanTransformation(scan func(dest ...any) error) (*domain.Transformation, error) {
	var t domain.Transformation
	var typ, createdAt string
	if err := scan(&t.ID, &typ, &t.Description, &t.Source.RepoURL, &t.Source.CommitSHA, &t.Source.ScriptPath, &createdAt); err != nil {
		return nil, mapDBError(err)
	}
	t.Type = domain.TransformationType(typ)
	t.CreatedAt = parseTimestamp(createdAt)
	return &t, nil
}
