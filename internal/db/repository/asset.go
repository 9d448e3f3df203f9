package repository

import (
	"context"
	"database/sql"
	"fmt"

	"datacat/internal/domain"
)

// Compile-time check.
var _ domain.AssetRepository = (*AssetRepo)(nil)

// AssetRepo implements the asset/version ledger using SQLite. The
// single-latest invariant is closed at the storage layer: demote and
// promote run in one immediate transaction, and the partial unique index
// on (asset_id) WHERE is_latest rejects any interleaving that would
// produce two latest rows.
type AssetRepo struct {
	db *sql.DB
}

// NewAssetRepo creates a new AssetRepo.
func NewAssetRepo(db *sql.DB) *AssetRepo {
	return &AssetRepo{db: db}
}

// CreateAsset inserts a new asset. Name collisions within a study are
// rejected with a conflict error.
func (r *AssetRepo) CreateAsset(ctx context.Context, a *domain.Asset) (*domain.Asset, error) {
	if err := validateIdentifier(a.Name); err != nil {
		return nil, err
	}
	if !a.Kind.Valid() {
		return nil, domain.ErrValidation("unknown asset kind %q", a.Kind)
	}
	if a.StudyID == "" {
		return nil, domain.ErrValidation("study is required")
	}

	id := domain.NewID()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO assets (id, study_id, name, kind, description) VALUES (?, ?, ?, ?, ?)`,
		id, a.StudyID, a.Name, string(a.Kind), a.Description)
	if err != nil {
		if _, ok := mapDBError(err).(*domain.ConflictError); ok {
			return nil, domain.ErrConflict("asset %q already exists in study %q", a.Name, a.StudyID)
		}
		return nil, mapDBError(err)
	}
	return r.GetAssetByID(ctx, id)
}

// GetAsset returns an asset by its (study, name) key.
func (r *AssetRepo) GetAsset(ctx context.Context, studyID, name string) (*domain.Asset, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, study_id, name, kind, description, created_at FROM assets WHERE study_id = ? AND name = ?`,
		studyID, name)
	a, err := scanAsset(row.Scan)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("asset %q not found in study %q", name, studyID)
		}
		return nil, err
	}
	return a, nil
}

// GetAssetByID returns an asset by its ID.
func (r *AssetRepo) GetAssetByID(ctx context.Context, id string) (*domain.Asset, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, study_id, name, kind, description, created_at FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row.Scan)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("asset %q not found", id)
		}
		return nil, err
	}
	return a, nil
}

// ListAssets returns all assets of a study, ordered by name.
func (r *AssetRepo) ListAssets(ctx context.Context, studyID string) ([]domain.Asset, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, study_id, name, kind, description, created_at FROM assets WHERE study_id = ? ORDER BY name`,
		studyID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CreateVersion inserts a new version and promotes it to latest. The
// previous latest is demoted in the same transaction, so a concurrent
// reader never observes zero or two latest rows for the asset.
func (r *AssetRepo) CreateVersion(ctx context.Context, assetID string, v domain.Version, note string) (*domain.AssetVersion, error) {
	if v.Major < 1 {
		return nil, domain.ErrValidation("version must be at least 1.0.0, got %s", v)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create version: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE asset_versions SET is_latest = 0 WHERE asset_id = ? AND is_latest = 1`, assetID); err != nil {
		return nil, mapDBError(err)
	}

	id := domain.NewID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO asset_versions (id, asset_id, major, minor, patch, is_latest, note) VALUES (?, ?, ?, ?, ?, 1, ?)`,
		id, assetID, v.Major, v.Minor, v.Patch, note)
	if err != nil {
		if _, ok := mapDBError(err).(*domain.ConflictError); ok {
			return nil, domain.ErrConflict("version %s already exists for asset %q", v, assetID)
		}
		return nil, mapDBError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create version: %w", err)
	}
	return r.GetVersion(ctx, id)
}

// GetVersion returns a version by its ID.
func (r *AssetRepo) GetVersion(ctx context.Context, versionID string) (*domain.AssetVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, asset_id, major, minor, patch, is_latest, note, doi, created_at
		FROM asset_versions WHERE id = ?`, versionID)
	av, err := scanVersion(row.Scan)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("asset version %q not found", versionID)
		}
		return nil, err
	}
	return av, nil
}

// GetLatest returns the single latest version of an asset.
func (r *AssetRepo) GetLatest(ctx context.Context, assetID string) (*domain.AssetVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, asset_id, major, minor, patch, is_latest, note, doi, created_at
		FROM asset_versions WHERE asset_id = ? AND is_latest = 1`, assetID)
	av, err := scanVersion(row.Scan)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("asset %q has no latest version", assetID)
		}
		return nil, err
	}
	return av, nil
}

// ListVersions returns every version of an asset ordered by
// (major, minor, patch).
func (r *AssetRepo) ListVersions(ctx context.Context, assetID string) ([]domain.AssetVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, asset_id, major, minor, patch, is_latest, note, doi, created_at
		FROM asset_versions WHERE asset_id = ?
		ORDER BY major, minor, patch`, assetID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.AssetVersion
	for rows.Next() {
		av, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *av)
	}
	return out, rows.Err()
}

// UpdateVersionNote rewrites the mutable note field of a version. The
// version triple itself is immutable (schema trigger).
func (r *AssetRepo) UpdateVersionNote(ctx context.Context, versionID, note string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE asset_versions SET note = ? WHERE id = ?`, note, versionID)
	if err != nil {
		return mapDBError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound("asset version %q not found", versionID)
	}
	return nil
}

// SetLatest re-points the latest flag at an existing version of the asset.
func (r *AssetRepo) SetLatest(ctx context.Context, assetID, versionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set latest: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE asset_versions SET is_latest = 0 WHERE asset_id = ? AND is_latest = 1`, assetID); err != nil {
		return mapDBError(err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE asset_versions SET is_latest = 1 WHERE id = ? AND asset_id = ?`, versionID, assetID)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("version %q does not belong to asset %q", versionID, assetID)
	}

	return tx.Commit()
}

// RegisterDataset records the tabular specialization row for a version.
func (r *AssetRepo) RegisterDataset(ctx context.Context, d *domain.DataSet) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO datasets (version_id, schema_name, table_name) VALUES (?, ?, ?)`,
		d.VersionID, d.SchemaName, d.TableName)
	return mapDBError(err)
}

// GetDataset returns the dataset specialization of a version.
func (r *AssetRepo) GetDataset(ctx context.Context, versionID string) (*domain.DataSet, error) {
	var d domain.DataSet
	err := r.db.QueryRowContext(ctx,
		`SELECT version_id, schema_name, table_name FROM datasets WHERE version_id = ?`, versionID).
		Scan(&d.VersionID, &d.SchemaName, &d.TableName)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("no dataset registered for version %q", versionID)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return &d, nil
}

// RegisterDataFile records the BLOB specialization row for a version.
func (r *AssetRepo) RegisterDataFile(ctx context.Context, f *domain.DataFile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO datafiles (version_id, storage_uri, digest, compressed, encrypted) VALUES (?, ?, ?, ?, ?)`,
		f.VersionID, f.StorageURI, f.Digest, boolToInt(f.Compressed), boolToInt(f.Encrypted))
	return mapDBError(err)
}

// GetDataFile returns the file specialization of a version.
func (r *AssetRepo) GetDataFile(ctx context.Context, versionID string) (*domain.DataFile, error) {
	var f domain.DataFile
	var compressed, encrypted int64
	err := r.db.QueryRowContext(ctx,
		`SELECT version_id, storage_uri, digest, compressed, encrypted FROM datafiles WHERE version_id = ?`, versionID).
		Scan(&f.VersionID, &f.StorageURI, &f.Digest, &compressed, &encrypted)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("no data file registered for version %q", versionID)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	f.Compressed = compressed != 0
	f.Encrypted = encrypted != 0
	return &f, nil
}

// AttachVariable records a variable's membership in a dataset's schema,
// in call order. Attaching the same variable twice is a no-op.
func (r *AssetRepo) AttachVariable(ctx context.Context, datasetID, variableID string, role domain.KeyRole) error {
	if role == "" {
		role = domain.KeyRoleNone
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dataset_variables (dataset_id, variable_id, key_role) VALUES (?, ?, ?)`,
		datasetID, variableID, string(role))
	return mapDBError(err)
}

func scanAsset(scan func(dest ...any) error) (*domain.Asset, error) {
	var a domain.Asset
	var kind, createdAt string
	if err := scan(&a.ID, &a.StudyID, &a.Name, &kind, &a.Description, &createdAt); err != nil {
		return nil, mapDBError(err)
	}
	a.Kind = domain.AssetKind(kind)
	a.CreatedAt = parseTimestamp(createdAt)
	return &a, nil
}

func scanVersion(scan func(dest ...any) error) (*domain.AssetVersion, error) {
	var av domain.AssetVersion
	var isLatest int64
	var doi sql.NullString
	var createdAt string
	if err := scan(&av.ID, &av.AssetID, &av.Version.Major, &av.Version.Minor, &av.Version.Patch,
		&isLatest, &av.Note, &doi, &createdAt); err != nil {
		return nil, mapDBError(err)
	}
	av.IsLatest = isLatest != 0
	av.DOI = stringPtr(doi)
	av.CreatedAt = parseTimestamp(createdAt)
	return &av, nil
}
