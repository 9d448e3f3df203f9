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

func TestVariable_UpsertKeepsID(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	domains := NewDomainRepo(writeDB)
	variables := NewVariableRepo(writeDB)
	ctx := context.Background()

	d, err := domains.Ensure(ctx, "mortality", nil)
	require.NoError(t, err)

	first, err := variables.Upsert(ctx, &domain.Variable{
		DomainID:  d.ID,
		Name:      "age_at_death",
		ValueType: domain.TypeInteger,
	})
	require.NoError(t, err)

	// Re-inferring the same column with a refined type updates in place.
	format := "2006-01-02"
	second, err := variables.Upsert(ctx, &domain.Variable{
		DomainID:    d.ID,
		Name:        "age_at_death",
		ValueType:   domain.TypeDate,
		Format:      &format,
		Description: "date of death",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.TypeDate, second.ValueType)
	require.NotNil(t, second.Format)
	assert.Equal(t, "2006-01-02", *second.Format)
}

func TestVariable_UpsertRejectsUnknownType(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	domains := NewDomainRepo(writeDB)
	variables := NewVariableRepo(writeDB)
	ctx := context.Background()

	d, err := domains.Ensure(ctx, "mortality", nil)
	require.NoError(t, err)

	_, err = variables.Upsert(ctx, &domain.Variable{
		DomainID: d.ID, Name: "x", ValueType: "varchar",
	})
	require.Error(t, err)
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestVariable_ListForDatasetPreservesOrder(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	domains := NewDomainRepo(writeDB)
	variables := NewVariableRepo(writeDB)
	assets := NewAssetRepo(writeDB)
	ctx := context.Background()

	d, err := domains.Ensure(ctx, "mortality", nil)
	require.NoError(t, err)

	a, err := assets.CreateAsset(ctx, &domain.Asset{StudyID: "study1", Name: "deaths", Kind: domain.KindDataset})
	require.NoError(t, err)
	v, err := assets.CreateVersion(ctx, a.ID, domain.Version{Major: 1}, "")
	require.NoError(t, err)
	require.NoError(t, assets.RegisterDataset(ctx, &domain.DataSet{
		VersionID: v.ID, SchemaName: "study1", TableName: "deaths",
	}))

	// Attachment order defines lake column order; names sort differently
	// on purpose.
	for i, name := range []string{"record", "cause", "age_at_death"} {
		role := domain.KeyRoleNone
		if i == 0 {
			role = domain.KeyRolePrimary
		}
		variable, err := variables.Upsert(ctx, &domain.Variable{
			DomainID: d.ID, Name: name, ValueType: domain.TypeInteger,
		})
		require.NoError(t, err)
		require.NoError(t, assets.AttachVariable(ctx, v.ID, variable.ID, role))
	}

	list, err := variables.ListForDataset(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "record", list[0].Name)
	assert.Equal(t, domain.KeyRolePrimary, list[0].KeyRole)
	assert.Equal(t, "cause", list[1].Name)
	assert.Equal(t, "age_at_death", list[2].Name)
}
