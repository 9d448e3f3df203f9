// Package ledger implements the asset and version lifecycle: creation,
// immutable version promotion, specialization rows, and variable
// attachment.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"datacat/internal/domain"
)

// LedgerService manages assets and their versions on top of the
// metastore repositories. All invariant enforcement (write-once version
// triples, single latest) lives in the storage layer; this service adds
// orchestration and defaults.
//
//nolint:revive // Name chosen for clarity across package boundaries
type LedgerService struct {
	assets domain.AssetRepository
	logger *slog.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(assets domain.AssetRepository, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{assets: assets, logger: logger}
}

// CreateAsset creates an asset and its initial 1.0.0 version, which
// becomes latest. The asset name must be unused within the study.
func (s *LedgerService) CreateAsset(ctx context.Context, studyID, name string, kind domain.AssetKind, description, note string) (*domain.Asset, *domain.AssetVersion, error) {
	if studyID == "" || name == "" {
		return nil, nil, domain.ErrValidation("study and asset name are required")
	}
	if !kind.Valid() {
		return nil, nil, domain.ErrValidation("unknown asset kind %q", kind)
	}

	asset, err := s.assets.CreateAsset(ctx, &domain.Asset{
		StudyID:     studyID,
		Name:        name,
		Kind:        kind,
		Description: description,
	})
	if err != nil {
		return nil, nil, err
	}

	version, err := s.assets.CreateVersion(ctx, asset.ID, domain.Version{Major: 1}, note)
	if err != nil {
		return nil, nil, fmt.Errorf("create initial version: %w", err)
	}

	s.logger.Info("asset created",
		"asset_id", asset.ID, "study_id", studyID, "name", name, "kind", kind)
	return asset, version, nil
}

// NewVersion adds a version to an existing asset and promotes it to
// latest. A nil explicit version patch-bumps the current latest.
func (s *LedgerService) NewVersion(ctx context.Context, assetID string, explicit *domain.Version, note string) (*domain.AssetVersion, error) {
	var v domain.Version
	if explicit != nil {
		v = *explicit
	} else {
		latest, err := s.assets.GetLatest(ctx, assetID)
		if err != nil {
			return nil, err
		}
		v = latest.Version.NextPatch()
	}

	version, err := s.assets.CreateVersion(ctx, assetID, v, note)
	if err != nil {
		return nil, err
	}
	s.logger.Info("version created",
		"asset_id", assetID, "version_id", version.ID, "version", v.String())
	return version, nil
}

// GetAsset resolves an asset by study and name.
func (s *LedgerService) GetAsset(ctx context.Context, studyID, name string) (*domain.Asset, error) {
	return s.assets.GetAsset(ctx, studyID, name)
}

// ListAssets returns every asset of a study.
func (s *LedgerService) ListAssets(ctx context.Context, studyID string) ([]domain.Asset, error) {
	return s.assets.ListAssets(ctx, studyID)
}

// GetLatest returns the asset's current latest version.
func (s *LedgerService) GetLatest(ctx context.Context, assetID string) (*domain.AssetVersion, error) {
	return s.assets.GetLatest(ctx, assetID)
}

// GetVersion returns a version by ID.
func (s *LedgerService) GetVersion(ctx context.Context, versionID string) (*domain.AssetVersion, error) {
	return s.assets.GetVersion(ctx, versionID)
}

// ListVersions returns an asset's versions ordered by version triple.
func (s *LedgerService) ListVersions(ctx context.Context, assetID string) ([]domain.AssetVersion, error) {
	return s.assets.ListVersions(ctx, assetID)
}

// RegisterDataset attaches the tabular specialization to a version of a
// dataset asset.
func (s *LedgerService) RegisterDataset(ctx context.Context, versionID, schemaName, tableName string) (*domain.DataSet, error) {
	d := &domain.DataSet{VersionID: versionID, SchemaName: schemaName, TableName: tableName}
	if err := s.assets.RegisterDataset(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// RegisterFile attaches the file specialization to a version, computing
// the SHA-256 digest of the file at path.
func (s *LedgerService) RegisterFile(ctx context.Context, versionID, path string) (*domain.DataFile, error) {
	digest, err := fileDigest(path)
	if err != nil {
		return nil, domain.ErrValidation("digest %s: %v", path, err)
	}

	f := &domain.DataFile{
		VersionID:  versionID,
		StorageURI: path,
		Digest:     digest,
	}
	if err := s.assets.RegisterDataFile(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Info("file registered", "version_id", versionID, "uri", path, "digest", digest)
	return f, nil
}

// GetDataset returns the tabular specialization of a version.
func (s *LedgerService) GetDataset(ctx context.Context, versionID string) (*domain.DataSet, error) {
	return s.assets.GetDataset(ctx, versionID)
}

// GetDataFile returns the file specialization of a version.
func (s *LedgerService) GetDataFile(ctx context.Context, versionID string) (*domain.DataFile, error) {
	return s.assets.GetDataFile(ctx, versionID)
}

// UpdateVersionNote rewrites a version's note. The note is the only
// descriptive field that stays mutable after creation.
func (s *LedgerService) UpdateVersionNote(ctx context.Context, versionID, note string) error {
	return s.assets.UpdateVersionNote(ctx, versionID, note)
}

// SetLatest re-points the asset's latest flag at an existing version.
func (s *LedgerService) SetLatest(ctx context.Context, assetID, versionID string) error {
	return s.assets.SetLatest(ctx, assetID, versionID)
}

// AttachVariable records a variable's membership in a dataset version's
// schema. Attachment order fixes the lake column order.
func (s *LedgerService) AttachVariable(ctx context.Context, datasetVersionID, variableID string, role domain.KeyRole) error {
	return s.assets.AttachVariable(ctx, datasetVersionID, variableID, role)
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
