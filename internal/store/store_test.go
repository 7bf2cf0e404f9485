package store

import (
	"testing"

	"geoenrich/internal/spatial"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNearestColumnList(t *testing.T) {
	tbl := Table{Schema: "public", Name: "parcels", Geometry: "the_geom"}
	q := BuildNearest(tbl, spatial.Coordinate{X: 1.5, Y: -2, SRID: 4326}, 3, []string{"name", " code"})
	assert.Equal(t,
		`SELECT DISTINCT "name", "code", ST_Distance("the_geom", ST_SetSRID(ST_MakePoint($1, $2), $3)) AS distance FROM "public"."parcels" ORDER BY distance LIMIT $4`,
		q.SQL)
	assert.Equal(t, []any{1.5, -2.0, 4326, 3}, q.Args)
}

func TestBuildNearestFullRow(t *testing.T) {
	for _, cols := range [][]string{nil, {"*"}} {
		q := BuildNearest(Table{Schema: "s", Name: "t"}, spatial.Coordinate{X: 0, Y: 0, SRID: 3857}, 1, cols)
		assert.Equal(t,
			`SELECT DISTINCT *, ST_Distance("geom", ST_SetSRID(ST_MakePoint($1, $2), $3)) AS distance FROM "s"."t" ORDER BY distance LIMIT $4`,
			q.SQL)
	}
}

func TestBuildNearestQuotesIdentifiers(t *testing.T) {
	q := BuildNearest(Table{Schema: "s", Name: `bad"name`}, spatial.Coordinate{}, 1, []string{`x"; DROP TABLE t; --`})
	assert.Contains(t, q.SQL, `"x""; DROP TABLE t; --"`)
	assert.Contains(t, q.SQL, `"s"."bad""name"`)
}

func TestParseURL(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"jdbc", "jdbc:postgresql://localhost:5432/gis?currentSchema=parcels,public"},
		{"postgres", "postgres://localhost:5432/gis?currentSchema=parcels,public&sslmode=require"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tg, err := ParseURL(tc.raw, "alice", "secret")
			require.NoError(t, err)
			assert.Equal(t, "parcels", tg.Table.Name)
			assert.Equal(t, "public", tg.Table.Schema)
			assert.Contains(t, tg.DSN, "dbname=gis")
			assert.Contains(t, tg.DSN, "host=localhost")
			assert.Contains(t, tg.DSN, "user=alice")
			assert.Contains(t, tg.DSN, "password=secret")
			assert.NotContains(t, tg.DSN, "currentSchema")
		})
	}
}

func TestParseURLKeepsExplicitSSLMode(t *testing.T) {
	tg, err := ParseURL("postgres://h/db?currentSchema=a,b&sslmode=require", "", "")
	require.NoError(t, err)
	assert.Contains(t, tg.DSN, "sslmode=require")
	assert.NotContains(t, tg.DSN, "user=")
}

func TestParseURLMalformed(t *testing.T) {
	for _, raw := range []string{
		"postgres://localhost:5432/gis",
		"postgres://localhost:5432/gis?currentSchema=parcels",
		"postgres://localhost:5432/gis?currentSchema=,public",
		"mysql://localhost/gis?currentSchema=a,b",
	} {
		_, err := ParseURL(raw, "", "")
		assert.ErrorIs(t, err, ErrMalformedURL, raw)
	}
}
