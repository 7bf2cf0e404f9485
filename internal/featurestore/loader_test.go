package featurestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingsToMultiPolygonAssignsHoles(t *testing.T) {
	// 外环顺时针，洞逆时针，随后第二个外环
	points := []shp.Point{
		{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0},
		{X: 4, Y: 4}, {X: 6, Y: 4}, {X: 6, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 4},
		{X: 20, Y: 20}, {X: 20, Y: 30}, {X: 30, Y: 30}, {X: 30, Y: 20}, {X: 20, Y: 20},
	}
	mp := ringsToMultiPolygon([]int32{0, 5, 10}, points)
	require.Len(t, mp, 2)
	assert.Len(t, mp[0], 2, "hole attached to first outer ring")
	assert.Len(t, mp[1], 1)

	assert.True(t, planar.MultiPolygonContains(mp, orb.Point{2, 2}))
	assert.False(t, planar.MultiPolygonContains(mp, orb.Point{5, 5}))
	assert.True(t, planar.MultiPolygonContains(mp, orb.Point{25, 25}))
}

func TestRingsToMultiPolygonClosesOpenRings(t *testing.T) {
	points := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}}
	mp := ringsToMultiPolygon([]int32{0}, points)
	require.Len(t, mp, 1)
	ring := mp[0][0]
	assert.Equal(t, ring[0], ring[len(ring)-1])
}

func TestRingsToMultiPolygonSkipsDegenerateParts(t *testing.T) {
	points := []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}
	assert.Empty(t, ringsToMultiPolygon([]int32{0}, points))
	assert.Empty(t, ringsToMultiPolygon([]int32{5}, points))
}

func writeShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parcels.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 16), shp.StringField("CODE", 8)}))
	rows := []struct {
		name, code string
		ring       []shp.Point
	}{
		{"A", "01", []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}},
		{"B", "02", []shp.Point{{X: 20, Y: 20}, {X: 20, Y: 30}, {X: 30, Y: 30}, {X: 30, Y: 20}, {X: 20, Y: 20}}},
	}
	for _, r := range rows {
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{r.ring}))
		n := int(w.Write(&poly))
		require.NoError(t, w.WriteAttribute(n, 0, r.name))
		require.NoError(t, w.WriteAttribute(n, 1, r.code))
	}
	w.Close()
	return path
}

func TestLoadShapefile(t *testing.T) {
	path := writeShapefile(t)
	for _, cached := range []bool{false, true} {
		s, err := Load(path, cached)
		require.NoError(t, err)
		require.Equal(t, 2, s.Len())

		hits := s.Contains(orb.Point{5, 5})
		require.Len(t, hits, 1)
		assert.Equal(t, "A", hits[0].Attribute("NAME"))
		assert.Equal(t, "01", hits[0].Attribute("CODE"))

		hits = s.Contains(orb.Point{25, 25})
		require.Len(t, hits, 1)
		assert.Equal(t, "B", hits[0].Attribute("NAME"))

		assert.Empty(t, s.Contains(orb.Point{15, 15}))
	}
}

func TestLoadTruncatedShapefileFails(t *testing.T) {
	path := writeShapefile(t)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-8))

	_, err = Load(path, true)
	assert.Error(t, err)
}
