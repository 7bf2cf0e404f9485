package spatial

import (
	"time"

	"geoenrich/internal/featurestore"
	"geoenrich/internal/metrics"

	"github.com/paulmach/orb"
)

// stepUnit：InitialStep 的换算系数（配置单位 → 度）
const stepUnit = 0.00001

// Index：引擎依赖的只读要素索引
type Index interface {
	Contains(pt orb.Point) []*featurestore.Feature
	Feature(id int) (*featurestore.Feature, bool)
	Fingerprint() string
}

// Cache：匹配结果缓存（仅保存要素 ID）
type Cache interface {
	Get(key string) ([]int, bool)
	Set(key string, ids []int)
}

// Engine：扩展搜索引擎，构造后只读，可被多个 worker 并发调用
type Engine struct {
	idx    Index
	params Parameters
	cache  Cache
	prefix string
}

func NewEngine(idx Index, params Parameters) *Engine {
	return &Engine{idx: idx, params: params, prefix: idx.Fingerprint() + "|" + params.Fingerprint() + "|"}
}

// WithCache：挂接匹配缓存；c 为 nil 时不缓存
func (e *Engine) WithCache(c Cache) *Engine {
	e.cache = c
	return e
}

func (e *Engine) Parameters() Parameters { return e.params }

// 文档注释：坐标搜索
// 背景：先做精确包含判定；未达到目标数量时按轮扩大窗口并以网格密集采样，窗口每轮增加一个步长，采样间距为 step/lap。
// 约束：第 k 轮采样点数约为 (2k+1)^2，后期轮次代价按平方增长；TargetCandidates 是提前结束阈值，不是硬上限。
// 结果对同一索引与参数是确定的。
func (e *Engine) Search(c Coordinate) *MatchSet {
	t0 := time.Now()
	if m, ok := e.cached(c); ok {
		return m
	}
	p := e.params
	m := newMatchSet()
	e.probe(c.X, c.Y, m)
	if m.Len() < p.TargetCandidates {
		inc := stepUnit * p.InitialStep
		step := inc
		lap := 1.0
		distance := 0.0
		for i := 1; i < p.MaxAttempts; i++ {
			if m.Len() >= p.TargetCandidates || distance >= p.MaxSearchDistance {
				break
			}
			m.Attempts++
			e.lattice(c, step, lap, m)
			distance += p.StepGrowth
			step += inc
			lap++
		}
	}
	metrics.SearchAttempts.Observe(float64(m.Attempts))
	metrics.SearchDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	if e.cache != nil {
		e.cache.Set(e.prefix+c.Key(), m.IDs())
	}
	return m
}

// lattice：在 [c-step, c+step] 方形窗口内按 step/lap 间距逐点探测；step 为 0 时退化为中心点
// 约束：坐标量级过大导致间距小于浮点精度时，累加不再前进，该轴只探测当前值
func (e *Engine) lattice(c Coordinate, step, lap float64, m *MatchSet) {
	if step <= 0 {
		e.probe(c.X, c.Y, m)
		return
	}
	d := step / lap
	for x := c.X - step; x <= c.X+step; {
		for y := c.Y - step; y <= c.Y+step; {
			e.probe(x, y, m)
			if m.Len() >= e.params.TargetCandidates {
				return
			}
			ny := y + d
			if ny == y {
				break
			}
			y = ny
		}
		nx := x + d
		if nx == x {
			break
		}
		x = nx
	}
}

// probe：单点包含判定，最多取 ProbeLimit 个命中（按要素 ID 顺序）
func (e *Engine) probe(x, y float64, m *MatchSet) {
	m.Probes++
	hits := e.idx.Contains(orb.Point{x, y})
	if lim := e.params.ProbeLimit; lim > 0 && len(hits) > lim {
		hits = hits[:lim]
	}
	for _, f := range hits {
		m.add(f)
	}
}

func (e *Engine) cached(c Coordinate) (*MatchSet, bool) {
	if e.cache == nil {
		return nil, false
	}
	ids, ok := e.cache.Get(e.prefix + c.Key())
	if !ok {
		return nil, false
	}
	m := newMatchSet()
	for _, id := range ids {
		f, ok := e.idx.Feature(id)
		if !ok {
			return nil, false
		}
		m.add(f)
	}
	m.Cached = true
	return m, true
}
