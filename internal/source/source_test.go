package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datacat/internal/domain"
)

func TestParseFlavour(t *testing.T) {
	for in, want := range map[string]Flavour{
		"postgres": Postgres,
		"POSTGRES": Postgres,
		"mysql":    MySQL,
		"sqlite":   SQLite,
		"duckdb":   DuckDB,
	} {
		got, err := ParseFlavour(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseFlavour("oracle")
	require.Error(t, err)
}

func TestBaseTable(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT * FROM deaths", "deaths"},
		{"select record, cause from deaths where cause = 1", "deaths"},
		{`SELECT * FROM "deaths"`, "deaths"},
		{"SELECT * FROM public.deaths", "public.deaths"},
		{"SELECT d.*, c.label FROM deaths d JOIN causes c ON c.id = d.cause", ""},
		{"SELECT * FROM deaths, causes", "deaths"},
		{"SELECT 1", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, BaseTable(tc.query), tc.query)
	}
}

func TestParseEnumMembers(t *testing.T) {
	items := parseEnumMembers("enum('low','medium','high')")
	require.Len(t, items, 3)
	assert.Equal(t, domain.VocabularyItem{Value: 1, Code: "low"}, items[0])
	assert.Equal(t, domain.VocabularyItem{Value: 3, Code: "high"}, items[2])

	items = parseEnumMembers("set('a','b')")
	require.Len(t, items, 2)

	assert.Nil(t, parseEnumMembers("varchar(20)"))
	assert.Nil(t, parseEnumMembers("enum"))
}

func TestCanonicalTypeMappings(t *testing.T) {
	pg := &postgresProbe{}
	assert.Equal(t, domain.TypeInteger, pg.CanonicalType("INT8"))
	assert.Equal(t, domain.TypeFloat, pg.CanonicalType("NUMERIC"))
	assert.Equal(t, domain.TypeDateTime, pg.CanonicalType("TIMESTAMPTZ"))
	assert.Equal(t, domain.TypeString, pg.CanonicalType("UNKNOWN_TYPE"))

	my := &mysqlProbe{}
	assert.Equal(t, domain.TypeCategory, my.CanonicalType("ENUM"))
	assert.Equal(t, domain.TypeMultiResponse, my.CanonicalType("SET"))
	assert.Equal(t, domain.TypeString, my.CanonicalType("VARCHAR(255)"))

	sq := &sqliteProbe{}
	assert.Equal(t, domain.TypeInteger, sq.CanonicalType("INTEGER"))
	assert.Equal(t, domain.TypeString, sq.CanonicalType(""))

	dk := &duckdbProbe{}
	assert.Equal(t, domain.TypeInteger, dk.CanonicalType("BIGINT"))
	assert.Equal(t, domain.TypeCategory, dk.CanonicalType("ENUM('a', 'b')"))
}

func TestIdentOK(t *testing.T) {
	require.NoError(t, identOK("causes"))
	require.NoError(t, identOK("lookup_2024"))
	require.Error(t, identOK("causes; DROP TABLE x"))
	require.Error(t, identOK(`bad"name`))
	require.Error(t, identOK(""))
}
