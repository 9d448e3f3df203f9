package pivot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datacat/internal/db"
	"datacat/internal/db/repository"
	"datacat/internal/domain"
	"datacat/internal/lake"
	"datacat/internal/service/ledger"
)

type testEnv struct {
	svc        *PivotService
	ledger     *ledger.LedgerService
	domains    *repository.DomainRepo
	variables  *repository.VariableRepo
	transforms *repository.TransformationRepo
	lake       *lake.Lake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	lk, err := lake.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lk.Close() })

	writeDB, _ := db.OpenTestSQLite(t)
	ledgerSvc := ledger.NewLedgerService(repository.NewAssetRepo(writeDB), nil)
	domains := repository.NewDomainRepo(writeDB)
	variables := repository.NewVariableRepo(writeDB)
	transforms := repository.NewTransformationRepo(writeDB)

	return &testEnv{
		svc:        NewPivotService(ledgerSvc, domains, variables, transforms, lk, nil),
		ledger:     ledgerSvc,
		domains:    domains,
		variables:  variables,
		transforms: transforms,
		lake:       lk,
	}
}

// registerExport writes an EAV export file and registers it as a file
// asset version, returning the version ID.
func (e *testEnv) registerExport(t *testing.T, content string) string {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, version, err := e.ledger.CreateAsset(ctx, "study7", "export_"+filepath.Base(t.TempDir()),
		domain.KindFile, "survey export", "")
	require.NoError(t, err)
	_, err = e.ledger.RegisterFile(ctx, version.ID, path)
	require.NoError(t, err)
	return version.ID
}

func (e *testEnv) declareVariable(t *testing.T, name string, vt domain.ValueType) {
	t.Helper()
	dom, err := e.domains.Ensure(context.Background(), "survey", nil)
	require.NoError(t, err)
	_, err = e.variables.Upsert(context.Background(), &domain.Variable{
		DomainID:  dom.ID,
		Name:      name,
		ValueType: vt,
	})
	require.NoError(t, err)
}

func TestPivotRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	fileVersion := e.registerExport(t,
		"record,field_name,value\n2,a,y\n1,a,x\n")

	res, err := e.svc.Pivot(ctx, Request{
		FileVersionID: fileVersion,
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Records)
	assert.Equal(t, []string{"a"}, res.Fields)

	// One row per record, ordered by record, column a carried over.
	rows, err := e.lake.DB().QueryContext(ctx,
		"SELECT record, a FROM study7."+res.Dataset.TableName+" ORDER BY record")
	require.NoError(t, err)
	defer rows.Close()

	var got []string
	for rows.Next() {
		var record int64
		var a string
		require.NoError(t, rows.Scan(&record, &a))
		got = append(got, a)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"x", "y"}, got)
}

func TestPivotNonNumericRecordIDs(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	fileVersion := e.registerExport(t,
		"record,field_name,value\nA2,a,y\nA1,a,x\n")

	res, err := e.svc.Pivot(ctx, Request{
		FileVersionID: fileVersion,
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Records)

	// Record IDs that are not integers keep the record column textual
	// and order lexicographically.
	rows, err := e.lake.DB().QueryContext(ctx,
		"SELECT record, a FROM study7."+res.Dataset.TableName+" ORDER BY record")
	require.NoError(t, err)
	defer rows.Close()

	var records, values []string
	for rows.Next() {
		var record, a string
		require.NoError(t, rows.Scan(&record, &a))
		records = append(records, record)
		values = append(values, a)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"A1", "A2"}, records)
	assert.Equal(t, []string{"x", "y"}, values)
}

func TestPivotMultiValueAggregation(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	fileVersion := e.registerExport(t,
		"record,field_name,value\n1,b,p\n1,b,q\n2,b,solo\n")

	res, err := e.svc.Pivot(ctx, Request{
		FileVersionID: fileVersion,
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	require.NoError(t, err)

	var b string
	err = e.lake.DB().QueryRowContext(ctx,
		"SELECT b FROM study7."+res.Dataset.TableName+" WHERE record = 1").Scan(&b)
	require.NoError(t, err)
	assert.Equal(t, "p, q", b)

	err = e.lake.DB().QueryRowContext(ctx,
		"SELECT b FROM study7."+res.Dataset.TableName+" WHERE record = 2").Scan(&b)
	require.NoError(t, err)
	assert.Equal(t, "solo", b)
}

func TestPivotTypedCasts(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	e.declareVariable(t, "age", domain.TypeInteger)
	e.declareVariable(t, "weight", domain.TypeFloat)

	fileVersion := e.registerExport(t,
		"record,field_name,value\n1,age,44\n1,weight,81.5\n2,age,39\n")

	res, err := e.svc.Pivot(ctx, Request{
		FileVersionID: fileVersion,
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	require.NoError(t, err)

	var age int64
	var weight float64
	err = e.lake.DB().QueryRowContext(ctx,
		"SELECT age, weight FROM study7."+res.Dataset.TableName+" WHERE record = 1").Scan(&age, &weight)
	require.NoError(t, err)
	assert.Equal(t, int64(44), age)
	assert.InDelta(t, 81.5, weight, 1e-9)

	// Record 2 never reported a weight: NULL, not zero.
	var weight2 *float64
	err = e.lake.DB().QueryRowContext(ctx,
		"SELECT weight FROM study7."+res.Dataset.TableName+" WHERE record = 2").Scan(&weight2)
	require.NoError(t, err)
	assert.Nil(t, weight2)
}

func TestPivotCategoryKeepsRawShadow(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	e.declareVariable(t, "smoker", domain.TypeCategory)

	fileVersion := e.registerExport(t,
		"record,field_name,value\n1,smoker,2\n2,smoker,unsure\n")

	res, err := e.svc.Pivot(ctx, Request{
		FileVersionID: fileVersion,
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	require.NoError(t, err)

	var code *int64
	var raw string
	err = e.lake.DB().QueryRowContext(ctx,
		"SELECT smoker, smoker_raw FROM study7."+res.Dataset.TableName+" WHERE record = 1").Scan(&code, &raw)
	require.NoError(t, err)
	require.NotNil(t, code)
	assert.Equal(t, int64(2), *code)
	assert.Equal(t, "2", raw)

	// A non-numeric category value degrades: NULL code, raw preserved.
	err = e.lake.DB().QueryRowContext(ctx,
		"SELECT smoker, smoker_raw FROM study7."+res.Dataset.TableName+" WHERE record = 2").Scan(&code, &raw)
	require.NoError(t, err)
	assert.Nil(t, code)
	assert.Equal(t, "unsure", raw)
}

func TestPivotHardFailOnTypedColumn(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	e.declareVariable(t, "age", domain.TypeInteger)

	fileVersion := e.registerExport(t,
		"record,field_name,value\n1,age,forty-four\n")

	_, err := e.svc.Pivot(ctx, Request{
		FileVersionID: fileVersion,
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), `"age"`)
}

func TestPivotProvenanceLinks(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	fileVersion := e.registerExport(t,
		"record,field_name,value\n1,a,x\n")

	res, err := e.svc.Pivot(ctx, Request{
		FileVersionID: fileVersion,
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Transformation)
	assert.Equal(t, domain.TransformTransform, res.Transformation.Type)

	inputs, err := e.transforms.Inputs(ctx, res.Transformation.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{fileVersion}, inputs)

	outputs, err := e.transforms.Outputs(ctx, res.Transformation.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{res.Version.ID}, outputs)
}

func TestPivotRepeatRunBumpsVersion(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	content := "record,field_name,value\n1,a,x\n"
	first, err := e.svc.Pivot(ctx, Request{
		FileVersionID: e.registerExport(t, content),
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	require.NoError(t, err)

	second, err := e.svc.Pivot(ctx, Request{
		FileVersionID: e.registerExport(t, content),
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	require.NoError(t, err)

	assert.Equal(t, first.Asset.ID, second.Asset.ID)
	assert.Equal(t, domain.Version{Major: 1, Patch: 1}, second.Version.Version)
	assert.True(t, second.Version.IsLatest)
}

func TestPivotTableCreateFailureCompensates(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	content := "record,field_name,value\n1,a,x\n"
	first, err := e.svc.Pivot(ctx, Request{
		FileVersionID: e.registerExport(t, content),
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	require.NoError(t, err)

	// Occupy the next version's table so its DDL fails.
	require.NoError(t, e.lake.CreateTable(ctx, "study7", "survey_wide_v1_0_1",
		[]lake.Column{{Name: "x", Type: domain.TypeInteger}}))

	_, err = e.svc.Pivot(ctx, Request{
		FileVersionID: e.registerExport(t, content),
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	require.Error(t, err)

	// The failed version keeps its row but carries the failure note.
	versions, err := e.ledger.ListVersions(ctx, first.Asset.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	for _, v := range versions {
		if v.ID == first.Version.ID {
			continue
		}
		assert.Equal(t, "pivot failed: create lake table", v.Note)
	}
}

func TestPivotRejectsMissingHeader(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	fileVersion := e.registerExport(t, "id,name\n1,x\n")

	_, err := e.svc.Pivot(ctx, Request{
		FileVersionID: fileVersion,
		StudyID:       "study7",
		AssetName:     "survey_wide",
		DomainName:    "survey",
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}
