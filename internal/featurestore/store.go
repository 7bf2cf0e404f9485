// 包 featurestore：面图层的只读内存存储，提供点包含查询
package featurestore

import (
	"encoding/binary"
	"math"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// 文档注释：要素存储
// 背景：启动时加载一次，之后只读，所有 worker 无锁并发查询。
// 约束：cached 为真时构建 R-Tree 加速候选过滤；否则按包围盒线性过滤。
type Store struct {
	name        string
	features    []*Feature
	tree        *rtreego.Rtree
	fingerprint string
}

// New：由已解析的要素构建存储；要素 ID 按切片顺序重新编号
func New(name string, features []*Feature, cached bool) *Store {
	s := &Store{name: name, features: features}
	for i, f := range features {
		f.ID = i
		if len(f.Geom) > 0 {
			f.Bound = f.Geom.Bound()
		}
	}
	if cached && len(features) > 0 {
		s.tree = rtreego.NewTree(2, 25, 50)
		for _, f := range features {
			s.tree.Insert(indexed{f: f})
		}
	}
	s.fingerprint = computeFingerprint(name, features)
	return s
}

func (s *Store) Name() string { return s.name }
func (s *Store) Len() int     { return len(s.features) }
func (s *Store) Cached() bool { return s.tree != nil }

// Fingerprint：图层内容摘要，用于匹配缓存键，图层变化后旧缓存自然失效
func (s *Store) Fingerprint() string { return s.fingerprint }

// Feature：按 ID 取要素
func (s *Store) Feature(id int) (*Feature, bool) {
	if id < 0 || id >= len(s.features) {
		return nil, false
	}
	return s.features[id], true
}

// 文档注释：点包含查询
// 背景：返回几何包含该点的全部要素（边界上的点视为包含），结果按 ID 升序，保证确定性。
func (s *Store) Contains(pt orb.Point) []*Feature {
	if s.tree != nil {
		return s.containsIndexed(pt)
	}
	var out []*Feature
	for _, f := range s.features {
		if f.Bound.Contains(pt) && planar.MultiPolygonContains(f.Geom, pt) {
			out = append(out, f)
		}
	}
	return out
}

func (s *Store) containsIndexed(pt orb.Point) []*Feature {
	const tol = 1e-12
	rect, err := rtreego.NewRect(rtreego.Point{pt[0] - tol, pt[1] - tol}, []float64{2 * tol, 2 * tol})
	if err != nil {
		return nil
	}
	var out []*Feature
	for _, sp := range s.tree.SearchIntersect(rect) {
		f := sp.(indexed).f
		if planar.MultiPolygonContains(f.Geom, pt) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// computeFingerprint：覆盖名称、要素数与全部环顶点，几何改动即使包围盒不变也会改变指纹
func computeFingerprint(name string, features []*Feature) string {
	h := xxhash.New()
	_, _ = h.WriteString(name)
	var buf [8]byte
	putUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	putUint(uint64(len(features)))
	for _, f := range features {
		putUint(uint64(len(f.Geom)))
		for _, poly := range f.Geom {
			putUint(uint64(len(poly)))
			for _, ring := range poly {
				putUint(uint64(len(ring)))
				for _, pt := range ring {
					putUint(math.Float64bits(pt[0]))
					putUint(math.Float64bits(pt[1]))
				}
			}
		}
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
