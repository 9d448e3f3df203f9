package domain

import (
	"fmt"
	"time"
)

// AssetKind distinguishes tabular datasets from opaque files.
type AssetKind string

// Asset kinds.
const (
	KindDataset AssetKind = "dataset"
	KindFile    AssetKind = "file"
)

// Valid reports whether k is a known asset kind.
func (k AssetKind) Valid() bool {
	return k == KindDataset || k == KindFile
}

// Asset is a named digital object owned by a study. Names are unique
// within a study. An asset is created once and never deleted while
// versions reference it.
type Asset struct {
	ID          string
	StudyID     string
	Name        string
	Kind        AssetKind
	Description string
	CreatedAt   time.Time
}

// Version is a semantic (major, minor, patch) triple. The zero value is
// not a valid version; version 1.0.0 is the first.
type Version struct {
	Major int
	Minor int
	Patch int
}

// String renders the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// NextPatch returns the version with the patch component incremented.
func (v Version) NextPatch() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
}

// Compare orders versions by (major, minor, patch). It returns -1, 0, or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return sign(v.Major - o.Major)
	case v.Minor != o.Minor:
		return sign(v.Minor - o.Minor)
	default:
		return sign(v.Patch - o.Patch)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// AssetVersion is one immutable revision of an asset. The version triple
// is write-once; only IsLatest, Note, and DOI may change after creation.
// At most one version per asset has IsLatest set.
type AssetVersion struct {
	ID        string
	AssetID   string
	Version   Version
	IsLatest  bool
	Note      string
	DOI       *string
	CreatedAt time.Time
}

// DataSet is the tabular specialization of an asset version. It exists
// iff the owning asset's kind is KindDataset, and names the lake table
// the version's rows live in.
type DataSet struct {
	VersionID  string
	SchemaName string // lake schema, named for the owning study
	TableName  string
}

// DataFile is the BLOB specialization of an asset version. Digest is a
// hex SHA-256 of the stored bytes.
type DataFile struct {
	VersionID  string
	StorageURI string
	Digest     string
	Compressed bool
	Encrypted  bool
}

// DatasetVariable records a variable's membership in a dataset's schema.
type DatasetVariable struct {
	DatasetID  string
	VariableID string
	KeyRole    KeyRole
}
