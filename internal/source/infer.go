package source

import (
	"context"
	"fmt"
	"log/slog"

	"datacat/internal/domain"
)

// Inferrer turns a source query into canonical variable descriptors: the
// zero-row describe, native-type mapping, and the category detection
// chain, with vocabularies persisted through the vocabulary store.
type Inferrer struct {
	probe     SchemaProbe
	vocabs    domain.VocabularyRepository
	detectors []CategoryDetector
	logger    *slog.Logger
}

// NewInferrer creates an Inferrer with the standard detector chain:
// native enum first, foreign keys to tables at or below lookupThreshold
// rows second.
func NewInferrer(probe SchemaProbe, vocabs domain.VocabularyRepository, lookupThreshold int, logger *slog.Logger) *Inferrer {
	if lookupThreshold <= 0 {
		lookupThreshold = 250
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inferrer{
		probe:  probe,
		vocabs: vocabs,
		detectors: []CategoryDetector{
			enumDetector{},
			lookupDetector{threshold: lookupThreshold},
		},
		logger: logger,
	}
}

// InferSchema describes the query without fetching data and returns one
// descriptor per result column. Failure of the describe itself is fatal;
// comment and constraint probing is best-effort and leaves fields empty.
// Detected vocabularies are created in (or reused from) the given domain.
func (in *Inferrer) InferSchema(ctx context.Context, domainID, query string) ([]domain.VariableDescriptor, error) {
	cols, err := in.probe.DescribeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("infer schema (%s): %w", in.probe.Flavour(), err)
	}
	if len(cols) == 0 {
		return nil, domain.ErrValidation("query yields no columns")
	}

	// Constraint and comment metadata only resolve against a single base
	// table; ad-hoc joins still get types, just no extras.
	table := BaseTable(query)

	descriptors := make([]domain.VariableDescriptor, 0, len(cols))
	for _, col := range cols {
		d := domain.VariableDescriptor{
			Name:       col.Name,
			NativeType: col.NativeType,
			ValueType:  in.probe.CanonicalType(col.NativeType),
		}

		if table != "" {
			if comment, err := in.probe.ColumnComment(ctx, table, col.Name); err == nil {
				d.Description = comment
			} else {
				in.logger.Debug("column comment unavailable",
					"table", table, "column", col.Name, "error", err)
			}

			if spec := in.detectCategory(ctx, table, col.Name, d.ValueType); spec != nil {
				vocabID, err := in.vocabs.Ensure(ctx, domainID, spec.Name, spec.Description, spec.Items)
				if err != nil {
					return nil, fmt.Errorf("ensure vocabulary %q: %w", spec.Name, err)
				}
				d.VocabularyID = &vocabID
				if d.ValueType != domain.TypeMultiResponse {
					d.ValueType = domain.TypeCategory
				}
			}
		}

		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// detectCategory runs the detector chain in priority order. Detector
// errors are best-effort misses: logged and skipped, never fatal.
func (in *Inferrer) detectCategory(ctx context.Context, table, column string, vt domain.ValueType) *CategorySpec {
	// Only scalar columns are candidates; temporal and float columns are
	// never categorical.
	switch vt {
	case domain.TypeInteger, domain.TypeString, domain.TypeCategory, domain.TypeMultiResponse:
	default:
		return nil
	}

	for _, det := range in.detectors {
		spec, err := det.Detect(ctx, in.probe, table, column)
		if err != nil {
			in.logger.Debug("category detector failed",
				"detector", det.Name(), "table", table, "column", column, "error", err)
			continue
		}
		if spec != nil {
			in.logger.Debug("category detected",
				"detector", det.Name(), "table", table, "column", column, "items", len(spec.Items))
			return spec
		}
	}
	return nil
}
