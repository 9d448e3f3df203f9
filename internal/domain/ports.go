package domain

import "context"

// DomainRepository manages domain namespaces in the metastore.
type DomainRepository interface {
	// Ensure returns the domain with the given name and URI, creating it
	// on first use. A nil URI matches the single NULL-URI row per name.
	Ensure(ctx context.Context, name string, uri *string) (*Domain, error)
	GetByID(ctx context.Context, id string) (*Domain, error)
	GetByName(ctx context.Context, name string, uri *string) (*Domain, error)
}

// VariableRepository manages domain-scoped variable definitions.
type VariableRepository interface {
	// Upsert inserts the variable or, when (domain, name) already exists,
	// updates its type, format, vocabulary, and description in place and
	// returns the existing row's ID.
	Upsert(ctx context.Context, v *Variable) (*Variable, error)
	GetByName(ctx context.Context, domainID, name string) (*Variable, error)
	ListForDataset(ctx context.Context, datasetID string) ([]Variable, error)
}

// VocabularyRepository manages controlled value sets.
type VocabularyRepository interface {
	// Ensure is an idempotent upsert keyed on (domainID, name): an existing
	// vocabulary keeps its ID but has its description replaced and its item
	// set fully rewritten (delete-then-reinsert, not merge).
	Ensure(ctx context.Context, domainID, name, description string, items []VocabularyItem) (string, error)
	GetByID(ctx context.Context, id string) (*Vocabulary, error)
	GetByDomainAndName(ctx context.Context, domainID, name string) (*Vocabulary, error)
	// GetByName resolves a vocabulary by bare name and fails with an
	// AmbiguityError when the name exists in more than one domain.
	GetByName(ctx context.Context, name string) (*Vocabulary, error)
}

// AssetRepository is the asset/version ledger. Version-number immutability
// and single-latest promotion are enforced at this layer (and by the
// metastore schema), not by callers.
type AssetRepository interface {
	CreateAsset(ctx context.Context, a *Asset) (*Asset, error)
	GetAsset(ctx context.Context, studyID, name string) (*Asset, error)
	GetAssetByID(ctx context.Context, id string) (*Asset, error)
	ListAssets(ctx context.Context, studyID string) ([]Asset, error)

	// CreateVersion inserts a new version and promotes it to latest,
	// demoting the previous latest in the same transaction.
	CreateVersion(ctx context.Context, assetID string, v Version, note string) (*AssetVersion, error)
	GetVersion(ctx context.Context, versionID string) (*AssetVersion, error)
	GetLatest(ctx context.Context, assetID string) (*AssetVersion, error)
	ListVersions(ctx context.Context, assetID string) ([]AssetVersion, error)
	// UpdateVersionNote rewrites the mutable note field of a version.
	UpdateVersionNote(ctx context.Context, versionID, note string) error
	// SetLatest re-points the latest flag at an existing version,
	// demoting the current latest atomically.
	SetLatest(ctx context.Context, assetID, versionID string) error

	RegisterDataset(ctx context.Context, d *DataSet) error
	GetDataset(ctx context.Context, versionID string) (*DataSet, error)
	RegisterDataFile(ctx context.Context, f *DataFile) error
	GetDataFile(ctx context.Context, versionID string) (*DataFile, error)

	AttachVariable(ctx context.Context, datasetID, variableID string, role KeyRole) error
}

// TransformationRepository is the provenance ledger.
type TransformationRepository interface {
	Record(ctx context.Context, t *Transformation) (*Transformation, error)
	LinkInput(ctx context.Context, transformationID, versionID string) error
	LinkOutput(ctx context.Context, transformationID, versionID string) error
	Get(ctx context.Context, id string) (*Transformation, error)
	Inputs(ctx context.Context, transformationID string) ([]string, error)
	Outputs(ctx context.Context, transformationID string) ([]string, error)
	// ForVersion returns every transformation that consumed or produced
	// the given version, with its links resolved.
	ForVersion(ctx context.Context, versionID string) ([]Lineage, error)
}
