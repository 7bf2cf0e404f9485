package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) (dir, input, layer string) {
	t.Helper()
	dir = t.TempDir()
	input = filepath.Join(dir, "in.csv")
	layer = filepath.Join(dir, "layer.geojson")
	require.NoError(t, os.WriteFile(input, []byte("id,x,y\n"), 0o644))
	require.NoError(t, os.WriteFile(layer, []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))
	return dir, input, layer
}

func shapefileYAML(input, layer, extra string) string {
	return strings.Join([]string{
		"input_file: " + input,
		"output_file: out.csv",
		`delimiter: ","`,
		"header: s",
		"column_x: 1",
		"column_y: 2",
		"intersect:",
		"  type: shapefile",
		"  data: name, code",
		"  shapefile:",
		"    path: " + layer,
		extra,
	}, "\n")
}

func noEnv(string) (string, bool) { return "", false }

func TestParseAppliesDefaults(t *testing.T) {
	_, input, layer := fixture(t)
	c, err := Parse([]byte(shapefileYAML(input, layer, "")), noEnv)
	require.NoError(t, err)

	p := c.SearchParameters()
	assert.Equal(t, 2.0, p.InitialStep)
	assert.Equal(t, 2.0, p.StepGrowth)
	assert.Equal(t, 100, p.MaxAttempts)
	assert.Equal(t, 1, p.TargetCandidates)
	assert.Equal(t, 50.0, p.MaxSearchDistance)
	assert.Equal(t, 1, p.ProbeLimit)
	assert.Equal(t, 4326, c.CoordinateType)
	assert.Equal(t, 1, c.Workers)
	assert.Equal(t, time.Hour, c.Cache.TTL)
	assert.True(t, c.HasHeader())
	assert.True(t, c.CacheShapes())
	assert.Equal(t, []string{"name", "code"}, c.Columns())
}

func TestParseExplicitParameters(t *testing.T) {
	_, input, layer := fixture(t)
	extra := strings.Join([]string{
		"    cache: false",
		"  parameters:",
		"    increase: 3",
		"    attempts: 10",
		"    candidates: 2",
		"    max_distance: 12.5",
		"    probe_limit: 0",
		"cache:",
		"  lru_size: 128",
		"  ttl: 5m",
	}, "\n")
	c, err := Parse([]byte(shapefileYAML(input, layer, extra)), noEnv)
	require.NoError(t, err)
	p := c.SearchParameters()
	assert.Equal(t, 3.0, p.InitialStep)
	assert.Equal(t, 3.0, p.StepGrowth)
	assert.Equal(t, 10, p.MaxAttempts)
	assert.Equal(t, 2, p.TargetCandidates)
	assert.Equal(t, 12.5, p.MaxSearchDistance)
	assert.Equal(t, 0, p.ProbeLimit)
	assert.False(t, c.CacheShapes())
	assert.Equal(t, 128, c.Cache.LRUSize)
	assert.Equal(t, 5*time.Minute, c.Cache.TTL)
}

func TestParseEnvOverrides(t *testing.T) {
	_, input, _ := fixture(t)
	doc := strings.Join([]string{
		"input_file: " + input,
		"output_file: out.csv",
		`delimiter: "|"`,
		"header: N",
		"intersect:",
		"  type: database",
		"  data: '*'",
		"  database:",
		"    url: postgres://h/db?currentSchema=t,s",
	}, "\n")
	env := map[string]string{
		"GEOENRICH_DB_USER":     "alice",
		"GEOENRICH_DB_PASSWORD": "secret",
		"GEOENRICH_WORKERS":     "4",
		"GEOENRICH_REDIS_ADDR":  "127.0.0.1:6379",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	c, err := Parse([]byte(doc), lookup)
	require.NoError(t, err)
	assert.Equal(t, "alice", c.Intersect.Database.Username)
	assert.Equal(t, "secret", c.Intersect.Database.Password)
	assert.Equal(t, 4, c.Workers)
	assert.Equal(t, "127.0.0.1:6379", c.Cache.RedisAddr)
	assert.False(t, c.HasHeader())

	_, err = Parse([]byte(doc), noEnv)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "database connection")

	env["GEOENRICH_WORKERS"] = "many"
	_, err = Parse([]byte(doc), lookup)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseRejectsInvalid(t *testing.T) {
	dir, input, layer := fixture(t)
	base := shapefileYAML(input, layer, "")
	cases := []struct {
		name string
		doc  string
		msg  string
	}{
		{"unknown_field", base + "\nbogus: 1", "parse yaml"},
		{"missing_input", strings.Replace(base, input, filepath.Join(dir, "nope.csv"), 1), "input_file"},
		{"input_is_dir", strings.Replace(base, input, dir, 1), "input_file"},
		{"empty_delimiter", strings.Replace(base, `delimiter: ","`, `delimiter: ""`, 1), "delimiter"},
		{"bad_header", strings.Replace(base, "header: s", "header: X", 1), "header"},
		{"bad_type", strings.Replace(base, "type: shapefile", "type: wfs", 1), "intersect type"},
		{"empty_data", strings.Replace(base, "data: name, code", "data: ''", 1), "intersect data"},
		{"missing_layer", strings.Replace(base, layer, filepath.Join(dir, "none.shp"), 1), "shapefile path"},
		{"negative_candidates", base + "\n  parameters:\n    candidates: -1", "candidates"},
		{"bad_workers", base + "\nworkers: -2", "workers"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc), noEnv)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, ErrInvalid)
}
