// Package ingest implements the ingestion pipeline: schema inference
// against a SQL source, variable persistence, asset versioning, and
// row streaming into the lake.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"datacat/internal/domain"
	"datacat/internal/lake"
	"datacat/internal/service/ledger"
	"datacat/internal/source"
)

// IngestService orchestrates one ingestion run end to end. The pipeline
// is a linear sequence of steps; everything before lake table creation
// fails clean, everything after compensates by dropping the table and
// marking the provisional version.
//
//nolint:revive // Name chosen for clarity across package boundaries
type IngestService struct {
	ledger          *ledger.LedgerService
	domains         domain.DomainRepository
	variables       domain.VariableRepository
	vocabs          domain.VocabularyRepository
	transforms      domain.TransformationRepository
	lake            *lake.Lake
	lookupThreshold int
	logger          *slog.Logger
}

// NewIngestService creates a new IngestService.
func NewIngestService(
	ledgerSvc *ledger.LedgerService,
	domains domain.DomainRepository,
	variables domain.VariableRepository,
	vocabs domain.VocabularyRepository,
	transforms domain.TransformationRepository,
	lk *lake.Lake,
	lookupThreshold int,
	logger *slog.Logger,
) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		ledger:          ledgerSvc,
		domains:         domains,
		variables:       variables,
		vocabs:          vocabs,
		transforms:      transforms,
		lake:            lk,
		lookupThreshold: lookupThreshold,
		logger:          logger,
	}
}

// Request describes one ingestion run.
type Request struct {
	StudyID     string
	AssetName   string
	Description string
	Note        string

	// DomainName scopes the variables and vocabularies the run creates.
	DomainName string
	DomainURI  *string

	// Query is executed against the source twice: once with a zero-row
	// wrapper for inference, once in full for streaming.
	Query string

	// Replace versions an existing asset instead of creating a new one.
	// Version pins the new version triple; nil patch-bumps the latest.
	Replace bool
	Version *domain.Version

	// Source identifies the script that triggered the run, best-effort.
	Source domain.SourceRef
}

// Result reports what an ingestion run produced.
type Result struct {
	Asset          *domain.Asset
	Version        *domain.AssetVersion
	Dataset        *domain.DataSet
	Variables      []domain.Variable
	Rows           int64
	Transformation *domain.Transformation
}

// Ingest runs the pipeline against the given source probe. On failure
// after the lake table exists, the table is dropped and the provisional
// version's note is rewritten to record the failing step; in replace
// mode the previous latest version is re-promoted.
func (s *IngestService) Ingest(ctx context.Context, probe source.SchemaProbe, req Request) (*Result, error) {
	if req.StudyID == "" || req.AssetName == "" || req.Query == "" || req.DomainName == "" {
		return nil, domain.ErrValidation("study, asset name, domain, and query are required")
	}

	log := s.logger.With("study_id", req.StudyID, "asset", req.AssetName)

	// Step 1: infer the canonical schema from the source.
	log.Info("ingest: inferring schema", "flavour", probe.Flavour())
	dom, err := s.domains.Ensure(ctx, req.DomainName, req.DomainURI)
	if err != nil {
		return nil, err
	}
	inferrer := source.NewInferrer(probe, s.vocabs, s.lookupThreshold, s.logger)
	descriptors, err := inferrer.InferSchema(ctx, dom.ID, req.Query)
	if err != nil {
		return nil, err
	}

	// Step 2: persist one variable per column in result order.
	vars := make([]domain.Variable, 0, len(descriptors))
	for _, d := range descriptors {
		v, err := s.variables.Upsert(ctx, &domain.Variable{
			DomainID:     dom.ID,
			Name:         d.Name,
			ValueType:    d.ValueType,
			Format:       d.Format,
			VocabularyID: d.VocabularyID,
			KeyRole:      domain.KeyRoleNone,
			Description:  d.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("persist variable %q: %w", d.Name, err)
		}
		vars = append(vars, *v)
	}

	// Step 3: create or version the asset.
	asset, version, prevLatest, err := s.resolveVersion(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Info("ingest: version created", "version", version.Version.String())

	dataset, err := s.ledger.RegisterDataset(ctx, version.ID,
		lake.SchemaName(req.StudyID), lake.TableName(req.AssetName, version.Version))
	if err != nil {
		return nil, err
	}
	for _, v := range vars {
		if err := s.ledger.AttachVariable(ctx, version.ID, v.ID, v.KeyRole); err != nil {
			return nil, fmt.Errorf("attach variable %q: %w", v.Name, err)
		}
	}

	// Step 4: create the lake table. From here on, failures compensate.
	cols := lake.ColumnsForVariables(vars)
	for i, v := range vars {
		if v.VocabularyID == nil {
			continue
		}
		voc, err := s.vocabs.GetByID(ctx, *v.VocabularyID)
		if err != nil {
			return nil, fmt.Errorf("load vocabulary for %q: %w", v.Name, err)
		}
		cols[i].Codes = lake.CodeMap(voc.Items)
	}
	if err := s.lake.EnsureSchema(ctx, dataset.SchemaName); err != nil {
		return nil, s.compensate(ctx, version, prevLatest, dataset, "create lake schema", err)
	}
	if err := s.lake.CreateTable(ctx, dataset.SchemaName, dataset.TableName, cols); err != nil {
		return nil, s.compensate(ctx, version, prevLatest, dataset, "create lake table", err)
	}

	// Step 5: stream source rows through the appender.
	log.Info("ingest: streaming rows", "table", dataset.SchemaName+"."+dataset.TableName)
	rows, err := s.streamRows(ctx, probe.DB(), req.Query, dataset, cols)
	if err != nil {
		return nil, s.compensate(ctx, version, prevLatest, dataset, "stream rows", err)
	}

	// Step 6: record provenance.
	transformation, err := s.recordProvenance(ctx, version.ID, req)
	if err != nil {
		return nil, s.compensate(ctx, version, prevLatest, dataset, "record provenance", err)
	}

	log.Info("ingest: complete", "rows", rows, "version", version.Version.String())
	return &Result{
		Asset:          asset,
		Version:        version,
		Dataset:        dataset,
		Variables:      vars,
		Rows:           rows,
		Transformation: transformation,
	}, nil
}

// resolveVersion creates the asset (fresh ingest) or patch-bumps it
// (replace). prevLatest is non-nil only in replace mode, for re-promotion
// on failure.
func (s *IngestService) resolveVersion(ctx context.Context, req Request) (*domain.Asset, *domain.AssetVersion, *domain.AssetVersion, error) {
	if !req.Replace {
		asset, version, err := s.ledger.CreateAsset(ctx, req.StudyID, req.AssetName,
			domain.KindDataset, req.Description, req.Note)
		if err != nil {
			return nil, nil, nil, err
		}
		return asset, version, nil, nil
	}

	asset, err := s.ledger.GetAsset(ctx, req.StudyID, req.AssetName)
	if err != nil {
		return nil, nil, nil, err
	}
	if asset.Kind != domain.KindDataset {
		return nil, nil, nil, domain.ErrValidation("asset %q is not a dataset", req.AssetName)
	}
	prevLatest, err := s.ledger.GetLatest(ctx, asset.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	version, err := s.ledger.NewVersion(ctx, asset.ID, req.Version, req.Note)
	if err != nil {
		return nil, nil, nil, err
	}
	return asset, version, prevLatest, nil
}

func (s *IngestService) streamRows(ctx context.Context, src *sql.DB, query string, dataset *domain.DataSet, cols []lake.Column) (int64, error) {
	rows, err := src.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("query source: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	count, err := s.lake.AppendRows(ctx, dataset.SchemaName, dataset.TableName,
		cols, &sqlRowSource{rows: rows, width: len(cols)})
	if err != nil {
		return count, err
	}
	return count, rows.Err()
}

func (s *IngestService) recordProvenance(ctx context.Context, versionID string, req Request) (*domain.Transformation, error) {
	t, err := s.transforms.Record(ctx, &domain.Transformation{
		Type:        domain.TransformIngest,
		Description: fmt.Sprintf("ingest %s into %s/%s", firstLine(req.Query), req.StudyID, req.AssetName),
		Source:      req.Source,
	})
	if err != nil {
		return nil, err
	}
	if err := s.transforms.LinkOutput(ctx, t.ID, versionID); err != nil {
		return nil, err
	}
	return t, nil
}

// compensate undoes the lake side of a failed run: the table is dropped,
// the provisional version keeps its row but its note records the failing
// step, and in replace mode the previous latest is re-promoted.
func (s *IngestService) compensate(ctx context.Context, version, prevLatest *domain.AssetVersion, dataset *domain.DataSet, op string, cause error) error {
	s.logger.Error("ingest failed, compensating", "op", op, "error", cause)

	var errs []error
	if err := s.lake.DropTable(ctx, dataset.SchemaName, dataset.TableName); err != nil {
		errs = append(errs, fmt.Errorf("drop lake table: %w", err))
	}
	if err := s.ledger.UpdateVersionNote(ctx, version.ID, "ingest failed: "+op); err != nil {
		errs = append(errs, fmt.Errorf("mark failed version: %w", err))
	}
	if prevLatest != nil {
		if err := s.ledger.SetLatest(ctx, version.AssetID, prevLatest.ID); err != nil {
			errs = append(errs, fmt.Errorf("re-promote previous latest: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{cause}, errs...)...)
	}
	return cause
}

func firstLine(q string) string {
	q = strings.TrimSpace(q)
	if i := strings.IndexByte(q, '\n'); i >= 0 {
		q = q[:i] + " ..."
	}
	return q
}

// sqlRowSource adapts *sql.Rows to the lake's RowSource.
type sqlRowSource struct {
	rows  *sql.Rows
	width int
}

func (s *sqlRowSource) Next() ([]any, bool, error) {
	if !s.rows.Next() {
		return nil, false, s.rows.Err()
	}
	row := make([]any, s.width)
	ptrs := make([]any, s.width)
	for i := range row {
		ptrs[i] = &row[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return nil, false, err
	}
	return row, true, nil
}
