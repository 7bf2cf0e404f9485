package featurestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"geoenrich/internal/logger"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrUnsupportedFormat = errors.New("unsupported layer format")

// 文档注释：加载面图层
// 背景：按扩展名选择读取方式：.shp 走 ESRI Shapefile，.geojson/.json 走 GeoJSON（FeatureCollection 或单个 Feature）。
// 约束：非面几何被跳过；cached 为真时构建 R-Tree。加载失败视为配置错误，由调用方终止启动。
func Load(path string, cached bool) (*Store, error) {
	t0 := time.Now()
	name := filepath.Base(path)
	logger.L().Info("layer_load_begin", "file", name, "cache", cached)
	var (
		features []*Feature
		err      error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		features, err = readShapefile(path)
	case ".geojson", ".json":
		features, err = readGeoJSON(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	s := New(name, features, cached)
	logger.L().Info("layer_load_done", "file", name, "features", s.Len(), "indexed", s.Cached(), "ms", time.Since(t0).Milliseconds())
	return s, nil
}

func readGeoJSON(path string) ([]*Feature, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, err
	}
	var raw []*geojson.Feature
	switch strings.ToLower(head.Type) {
	case "featurecollection":
		fc, err := geojson.UnmarshalFeatureCollection(b)
		if err != nil {
			return nil, err
		}
		raw = fc.Features
	case "feature":
		f, err := geojson.UnmarshalFeature(b)
		if err != nil {
			return nil, err
		}
		raw = []*geojson.Feature{f}
	default:
		return nil, fmt.Errorf("%w: geojson type %q", ErrUnsupportedFormat, head.Type)
	}
	out := make([]*Feature, 0, len(raw))
	for i, f := range raw {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			logger.L().Debug("layer_feature_skip", "index", i, "geometry", geometryName(f.Geometry))
			continue
		}
		out = append(out, &Feature{Props: map[string]any(f.Properties), Geom: mp})
	}
	return out, nil
}

func readShapefile(path string) ([]*Feature, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	fields := r.Fields()
	var out []*Feature
	for r.Next() {
		n, shape := r.Shape()
		var mp orb.MultiPolygon
		switch p := shape.(type) {
		case *shp.Polygon:
			mp = ringsToMultiPolygon(p.Parts, p.Points)
		case *shp.PolygonZ:
			mp = ringsToMultiPolygon(p.Parts, p.Points)
		case *shp.PolygonM:
			mp = ringsToMultiPolygon(p.Parts, p.Points)
		default:
			logger.L().Debug("layer_feature_skip", "index", n)
			continue
		}
		props := make(map[string]any, len(fields))
		for k, f := range fields {
			props[f.String()] = strings.Trim(r.ReadAttribute(n, k), " \x00")
		}
		out = append(out, &Feature{Props: props, Geom: mp})
	}
	// Next 在读取失败与文件结束时都返回 false，截断的文件不能当作部分图层加载
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// 文档注释：Shapefile 环组装
// 背景：Shapefile 面以部件（环）序列存储，外环顺时针、洞逆时针；洞归属到最近的前一个外环。
func ringsToMultiPolygon(parts []int32, points []shp.Point) orb.MultiPolygon {
	var mp orb.MultiPolygon
	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || start >= end || end > len(points) {
			continue
		}
		ring := make(orb.Ring, 0, end-start+1)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		if len(ring) < 4 {
			continue
		}
		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			mp[len(mp)-1] = append(mp[len(mp)-1], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	return mp
}

func geometryName(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}
