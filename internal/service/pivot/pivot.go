// Package pivot implements the EAV pivot transform: long-format
// (record, field_name, value) exports are reshaped into wide dataset
// versions, cast per declared variable type, and materialized in the
// lake.
package pivot

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"datacat/internal/domain"
	"datacat/internal/lake"
	"datacat/internal/service/ledger"
)

// PivotService turns an EAV DataFile version into a new wide dataset
// version. Reading, pivoting, and casting all happen before any ledger
// or lake write, so a malformed export fails without side effects.
//
//nolint:revive // Name chosen for clarity across package boundaries
type PivotService struct {
	ledger     *ledger.LedgerService
	domains    domain.DomainRepository
	variables  domain.VariableRepository
	transforms domain.TransformationRepository
	lake       *lake.Lake
	logger     *slog.Logger
}

// NewPivotService creates a new PivotService.
func NewPivotService(
	ledgerSvc *ledger.LedgerService,
	domains domain.DomainRepository,
	variables domain.VariableRepository,
	transforms domain.TransformationRepository,
	lk *lake.Lake,
	logger *slog.Logger,
) *PivotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PivotService{
		ledger:     ledgerSvc,
		domains:    domains,
		variables:  variables,
		transforms: transforms,
		lake:       lk,
		logger:     logger,
	}
}

// Request describes one pivot run.
type Request struct {
	// FileVersionID is the DataFile version holding the EAV export.
	FileVersionID string

	// StudyID and AssetName identify the target dataset asset; it is
	// created on first run and patch-bumped on later ones.
	StudyID     string
	AssetName   string
	Description string
	Note        string

	// DomainName scopes the variables the pivoted columns resolve
	// against. Fields without a declared variable become string
	// variables in this domain.
	DomainName string
	DomainURI  *string

	Source domain.SourceRef
}

// Result reports what a pivot run produced.
type Result struct {
	Asset          *domain.Asset
	Version        *domain.AssetVersion
	Dataset        *domain.DataSet
	Records        int64
	Fields         []string
	Transformation *domain.Transformation
}

// multiValueSeparator joins multi-valued field occurrences, in source
// row order.
const multiValueSeparator = ", "

// Pivot runs the transform.
func (s *PivotService) Pivot(ctx context.Context, req Request) (*Result, error) {
	if req.FileVersionID == "" || req.StudyID == "" || req.AssetName == "" || req.DomainName == "" {
		return nil, domain.ErrValidation("file version, study, asset name, and domain are required")
	}

	log := s.logger.With("study_id", req.StudyID, "asset", req.AssetName)

	file, err := s.ledger.GetDataFile(ctx, req.FileVersionID)
	if err != nil {
		return nil, err
	}

	long, err := readLongFile(file.StorageURI)
	if err != nil {
		return nil, err
	}
	log.Info("pivot: export read",
		"uri", file.StorageURI, "records", len(long.records), "fields", len(long.fields))

	dom, err := s.domains.Ensure(ctx, req.DomainName, req.DomainURI)
	if err != nil {
		return nil, err
	}
	vars, err := s.resolveVariables(ctx, dom.ID, long.recordType(), long.fields)
	if err != nil {
		return nil, err
	}

	cols, rows, err := castWide(long, vars)
	if err != nil {
		return nil, err
	}

	// All parsing succeeded; now touch the ledger and the lake.
	asset, version, err := s.targetVersion(ctx, req)
	if err != nil {
		return nil, err
	}
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

	if err := s.lake.EnsureSchema(ctx, dataset.SchemaName); err != nil {
		return nil, s.compensate(ctx, version, dataset, "create lake schema", err)
	}
	if err := s.lake.CreateTable(ctx, dataset.SchemaName, dataset.TableName, cols); err != nil {
		return nil, s.compensate(ctx, version, dataset, "create lake table", err)
	}
	count, err := s.lake.AppendRows(ctx, dataset.SchemaName, dataset.TableName,
		cols, &sliceRowSource{rows: rows})
	if err != nil {
		return nil, s.compensate(ctx, version, dataset, "materialize", err)
	}

	transformation, err := s.transforms.Record(ctx, &domain.Transformation{
		Type:        domain.TransformTransform,
		Description: fmt.Sprintf("pivot %s into %s/%s", file.StorageURI, req.StudyID, req.AssetName),
		Source:      req.Source,
	})
	if err != nil {
		return nil, s.compensate(ctx, version, dataset, "record provenance", err)
	}
	if err := s.transforms.LinkInput(ctx, transformation.ID, req.FileVersionID); err != nil {
		return nil, s.compensate(ctx, version, dataset, "record provenance", err)
	}
	if err := s.transforms.LinkOutput(ctx, transformation.ID, version.ID); err != nil {
		return nil, s.compensate(ctx, version, dataset, "record provenance", err)
	}

	log.Info("pivot: complete", "records", count, "version", version.Version.String())
	return &Result{
		Asset:          asset,
		Version:        version,
		Dataset:        dataset,
		Records:        count,
		Fields:         long.fields,
		Transformation: transformation,
	}, nil
}

// targetVersion creates the dataset asset on first run and patch-bumps
// it afterwards.
func (s *PivotService) targetVersion(ctx context.Context, req Request) (*domain.Asset, *domain.AssetVersion, error) {
	asset, err := s.ledger.GetAsset(ctx, req.StudyID, req.AssetName)
	if err != nil {
		var nf *domain.NotFoundError
		if !errors.As(err, &nf) {
			return nil, nil, err
		}
		return s.ledger.CreateAsset(ctx, req.StudyID, req.AssetName,
			domain.KindDataset, req.Description, req.Note)
	}
	if asset.Kind != domain.KindDataset {
		return nil, nil, domain.ErrValidation("asset %q is not a dataset", req.AssetName)
	}
	version, err := s.ledger.NewVersion(ctx, asset.ID, nil, req.Note)
	if err != nil {
		return nil, nil, err
	}
	return asset, version, nil
}

func (s *PivotService) compensate(ctx context.Context, version *domain.AssetVersion, dataset *domain.DataSet, op string, cause error) error {
	s.logger.Error("pivot failed, compensating", "op", op, "error", cause)
	if err := s.lake.DropTable(ctx, dataset.SchemaName, dataset.TableName); err != nil {
		s.logger.Error("drop lake table during compensation", "error", err)
	}
	if err := s.ledger.UpdateVersionNote(ctx, version.ID, "pivot failed: "+op); err != nil {
		s.logger.Error("mark failed version", "error", err)
	}
	return cause
}

// resolveVariables returns one persisted variable per pivoted column,
// record first. Fields without a declared variable are created as
// strings; the record column is the primary key, typed to match the
// export's record IDs.
func (s *PivotService) resolveVariables(ctx context.Context, domainID string, recordType domain.ValueType, fields []string) ([]domain.Variable, error) {
	vars := make([]domain.Variable, 0, len(fields)+1)

	record, err := s.ensureVariable(ctx, domainID, recordColumn, recordType, domain.KeyRolePrimary)
	if err != nil {
		return nil, err
	}
	vars = append(vars, *record)

	for _, f := range fields {
		v, err := s.variables.GetByName(ctx, domainID, f)
		if err != nil {
			var nf *domain.NotFoundError
			if !errors.As(err, &nf) {
				return nil, err
			}
			v, err = s.ensureVariable(ctx, domainID, f, domain.TypeString, domain.KeyRoleNone)
			if err != nil {
				return nil, err
			}
		}
		vars = append(vars, *v)
	}
	return vars, nil
}

func (s *PivotService) ensureVariable(ctx context.Context, domainID, name string, t domain.ValueType, role domain.KeyRole) (*domain.Variable, error) {
	return s.variables.Upsert(ctx, &domain.Variable{
		DomainID:  domainID,
		Name:      name,
		ValueType: t,
		KeyRole:   role,
	})
}

const recordColumn = "record"

// longFile is a parsed EAV export: per-record field occurrences in
// source row order, plus the global field order of first appearance.
type longFile struct {
	records        []string                       // record IDs in output order
	numericRecords bool                           // every record ID parses as an integer
	fields         []string                       // field names, first appearance
	values         map[string]map[string][]string // record -> field -> values
}

// recordType is the value type of the pivoted record column: integer
// when every record ID is numeric, string otherwise.
func (lf *longFile) recordType() domain.ValueType {
	if lf.numericRecords {
		return domain.TypeInteger
	}
	return domain.TypeString
}

// readLongFile parses a delimited EAV export. The header must contain
// record, field_name, and value columns; extra columns are ignored.
func readLongFile(path string) (*longFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.ErrValidation("open export %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, domain.ErrValidation("read export header: %v", err)
	}
	recordIdx, fieldIdx, valueIdx := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "record":
			recordIdx = i
		case "field_name":
			fieldIdx = i
		case "value":
			valueIdx = i
		}
	}
	if recordIdx < 0 || fieldIdx < 0 || valueIdx < 0 {
		return nil, domain.ErrValidation("export header must contain record, field_name, value")
	}

	lf := &longFile{values: make(map[string]map[string][]string)}
	seenField := make(map[string]bool)
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.ErrValidation("read export line %d: %v", line, err)
		}
		if len(row) <= recordIdx || len(row) <= fieldIdx || len(row) <= valueIdx {
			return nil, domain.ErrValidation("export line %d is short", line)
		}

		record := strings.TrimSpace(row[recordIdx])
		field := strings.TrimSpace(row[fieldIdx])
		if record == "" || field == "" {
			return nil, domain.ErrValidation("export line %d lacks record or field_name", line)
		}

		if _, ok := lf.values[record]; !ok {
			lf.values[record] = make(map[string][]string)
			lf.records = append(lf.records, record)
		}
		if !seenField[field] {
			seenField[field] = true
			lf.fields = append(lf.fields, field)
		}
		// Append order is source row order; multi-value aggregation
		// depends on it being preserved.
		lf.values[record][field] = append(lf.values[record][field], row[valueIdx])
	}

	lf.numericRecords = sortRecords(lf.records)
	return lf, nil
}

// sortRecords orders record IDs numerically when every ID parses as an
// integer, lexicographically otherwise, and reports which ordering was
// used.
func sortRecords(records []string) bool {
	numeric := make(map[string]int64, len(records))
	allNumeric := true
	for _, r := range records {
		n, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			allNumeric = false
			break
		}
		numeric[r] = n
	}
	sort.Slice(records, func(i, j int) bool {
		if allNumeric {
			return numeric[records[i]] < numeric[records[j]]
		}
		return records[i] < records[j]
	})
	return allNumeric
}

// castWide pivots the long file into lake columns and rows. Category
// columns degrade gracefully and keep the raw text in a shadow column;
// every other typed column fails hard on a bad value.
func castWide(lf *longFile, vars []domain.Variable) ([]lake.Column, [][]any, error) {
	// vars[0] is the record column, the rest line up with lf.fields.
	cols := []lake.Column{{Name: recordColumn, Type: vars[0].ValueType}}
	for _, v := range vars[1:] {
		cols = append(cols, lake.Column{Name: v.Name, Type: v.ValueType})
		if v.ValueType == domain.TypeCategory {
			cols = append(cols, lake.Column{Name: v.Name + "_raw", Type: domain.TypeString})
		}
	}

	rows := make([][]any, 0, len(lf.records))
	for _, record := range lf.records {
		row := make([]any, 0, len(cols))

		rec, err := castCell(record, vars[0], record)
		if err != nil {
			return nil, nil, err
		}
		row = append(row, rec)

		for _, v := range vars[1:] {
			raw := joinValues(lf.values[record][v.Name])
			if raw == nil {
				row = append(row, nil)
				if v.ValueType == domain.TypeCategory {
					row = append(row, nil)
				}
				continue
			}

			if v.ValueType == domain.TypeCategory {
				// Best-effort code parse; the raw text is never lost.
				code, err := lake.ConvertValue(*raw, domain.TypeCategory, nil)
				if err != nil {
					code = nil
				}
				row = append(row, code, *raw)
				continue
			}

			cell, err := castCell(*raw, v, record)
			if err != nil {
				return nil, nil, err
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	return cols, rows, nil
}

// joinValues aggregates a field's occurrences for one record: absent
// fields are nil, single values pass through, multiple values join with
// the fixed separator in source row order.
func joinValues(values []string) *string {
	switch len(values) {
	case 0:
		return nil
	case 1:
		return &values[0]
	}
	joined := strings.Join(values, multiValueSeparator)
	return &joined
}

func castCell(raw string, v domain.Variable, record string) (any, error) {
	if raw == "" && v.ValueType != domain.TypeString {
		return nil, nil
	}
	cell, err := lake.ConvertValue(raw, v.ValueType, v.Format)
	if err != nil {
		return nil, domain.ErrValidation("record %s, column %q: %v", record, v.Name, err)
	}
	return cell, nil
}

// sliceRowSource adapts materialized rows to the lake's RowSource.
type sliceRowSource struct {
	rows [][]any
	pos  int
}

func (s *sliceRowSource) Next() ([]any, bool, error) {
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}
