package domain

import "time"

// TransformationType classifies a recorded unit of provenance and fixes
// the expected input/output cardinality by caller contract:
//
//	ingest      zero inputs, one or more outputs
//	transform   one or more inputs, one or more outputs
//	entity      dataset-version inputs, entity-record outputs (not linked)
//	export      one or more inputs, zero outputs
//	repository  one or more inputs, zero outputs
type TransformationType string

// Transformation types.
const (
	TransformIngest     TransformationType = "ingest"
	TransformTransform  TransformationType = "transform"
	TransformEntity     TransformationType = "entity"
	TransformExport     TransformationType = "export"
	TransformRepository TransformationType = "repository"
)

// Valid reports whether t is a known transformation type.
func (t TransformationType) Valid() bool {
	switch t {
	case TransformIngest, TransformTransform, TransformEntity,
		TransformExport, TransformRepository:
		return true
	}
	return false
}

// SourceRef captures where the code that produced a transformation lives.
// All fields are best-effort; a transformation is recorded even when none
// could be resolved.
type SourceRef struct {
	RepoURL    string
	CommitSHA  string
	ScriptPath string
}

// Transformation is an immutable provenance record. Input/output links
// are appended after creation and never removed.
type Transformation struct {
	ID          string
	Type        TransformationType
	Description string
	Source      SourceRef
	CreatedAt   time.Time
}

// Lineage pairs a transformation with the version IDs it consumed and
// produced, for provenance read-back.
type Lineage struct {
	Transformation Transformation
	InputVersions  []string
	OutputVersions []string
}
