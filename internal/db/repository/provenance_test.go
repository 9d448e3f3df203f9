package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	internaldb "datacat/internal/db"
	"datacat/internal/domain"
)

func setupProvenanceRepo(t *testing.T) (*TransformationRepo, *AssetRepo) {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	return NewTransformationRepo(writeDB), NewAssetRepo(writeDB)
}

func makeVersion(t *testing.T, assets *AssetRepo, study, name string, kind domain.AssetKind) *domain.AssetVersion {
	t.Helper()
	ctx := context.Background()
	a, err := assets.CreateAsset(ctx, &domain.Asset{StudyID: study, Name: name, Kind: kind})
	require.NoError(t, err)
	v, err := assets.CreateVersion(ctx, a.ID, domain.Version{Major: 1}, "")
	require.NoError(t, err)
	return v
}

func TestTransformation_RecordAndLink(t *testing.T) {
	transforms, assets := setupProvenanceRepo(t)
	ctx := context.Background()

	fileV := makeVersion(t, assets, "study1", "survey_export", domain.KindFile)
	dsV := makeVersion(t, assets, "study1", "survey_wide", domain.KindDataset)

	rec, err := transforms.Record(ctx, &domain.Transformation{
		Type:        domain.TransformTransform,
		Description: "pivot survey export to wide",
		Source: domain.SourceRef{
			RepoURL:    "https://git.example.org/etl.git",
			CommitSHA:  "abc123",
			ScriptPath: "pipelines/pivot.go",
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	require.NoError(t, transforms.LinkInput(ctx, rec.ID, fileV.ID))
	require.NoError(t, transforms.LinkOutput(ctx, rec.ID, dsV.ID))

	inputs, err := transforms.Inputs(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{fileV.ID}, inputs)

	outputs, err := transforms.Outputs(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{dsV.ID}, outputs)
}

func TestTransformation_EmptySourceRefIsFine(t *testing.T) {
	transforms, _ := setupProvenanceRepo(t)

	rec, err := transforms.Record(context.Background(), &domain.Transformation{
		Type:        domain.TransformIngest,
		Description: "ingest deaths from clinical source",
	})
	require.NoError(t, err)
	assert.Empty(t, rec.Source.RepoURL)
	assert.Empty(t, rec.Source.CommitSHA)
}

func TestTransformation_InvalidType(t *testing.T) {
	transforms, _ := setupProvenanceRepo(t)

	_, err := transforms.Record(context.Background(), &domain.Transformation{Type: "mystery"})
	require.Error(t, err)
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestTransformation_LinkRequiresExistingVersion(t *testing.T) {
	transforms, _ := setupProvenanceRepo(t)
	ctx := context.Background()

	rec, err := transforms.Record(ctx, &domain.Transformation{Type: domain.TransformExport})
	require.NoError(t, err)

	err = transforms.LinkInput(ctx, rec.ID, "no-such-version")
	require.Error(t, err)
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestTransformation_VersionIsOutputOfAtMostOne(t *testing.T) {
	transforms, assets := setupProvenanceRepo(t)
	ctx := context.Background()

	v := makeVersion(t, assets, "study1", "deaths", domain.KindDataset)

	first, err := transforms.Record(ctx, &domain.Transformation{Type: domain.TransformIngest})
	require.NoError(t, err)
	require.NoError(t, transforms.LinkOutput(ctx, first.ID, v.ID))

	second, err := transforms.Record(ctx, &domain.Transformation{Type: domain.TransformIngest})
	require.NoError(t, err)
	err = transforms.LinkOutput(ctx, second.ID, v.ID)
	require.Error(t, err)
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestTransformation_ForVersion(t *testing.T) {
	transforms, assets := setupProvenanceRepo(t)
	ctx := context.Background()

	fileV := makeVersion(t, assets, "study1", "survey_export", domain.KindFile)
	dsV := makeVersion(t, assets, "study1", "survey_wide", domain.KindDataset)

	ingest, err := transforms.Record(ctx, &domain.Transformation{Type: domain.TransformIngest})
	require.NoError(t, err)
	require.NoError(t, transforms.LinkOutput(ctx, ingest.ID, fileV.ID))

	pivot, err := transforms.Record(ctx, &domain.Transformation{Type: domain.TransformTransform})
	require.NoError(t, err)
	require.NoError(t, transforms.LinkInput(ctx, pivot.ID, fileV.ID))
	require.NoError(t, transforms.LinkOutput(ctx, pivot.ID, dsV.ID))

	// The file version shows up in both transformations.
	lineage, err := transforms.ForVersion(ctx, fileV.ID)
	require.NoError(t, err)
	require.Len(t, lineage, 2)

	// The dataset version traces back through the pivot only.
	lineage, err = transforms.ForVersion(ctx, dsV.ID)
	require.NoError(t, err)
	require.Len(t, lineage, 1)
	assert.Equal(t, pivot.ID, lineage[0].Transformation.ID)
	assert.Equal(t, []string{fileV.ID}, lineage[0].InputVersions)
	assert.Equal(t, []string{dsV.ID}, lineage[0].OutputVersions)
}
