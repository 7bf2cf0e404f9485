// 包 spatial：坐标、搜索参数与扩展搜索引擎
package spatial

import (
	"errors"
	"fmt"
	"strconv"

	"geoenrich/internal/featurestore"

	"github.com/paulmach/orb"
)

// DefaultSRID：未配置坐标系时使用 WGS84
const DefaultSRID = 4326

// Coordinate：一次查询的输入点（不可变值）
type Coordinate struct {
	X    float64
	Y    float64
	SRID int
}

func (c Coordinate) Point() orb.Point { return orb.Point{c.X, c.Y} }

// Key：坐标的无损文本表示，用作缓存键的一部分
func (c Coordinate) Key() string {
	return strconv.FormatFloat(c.X, 'g', -1, 64) + ":" + strconv.FormatFloat(c.Y, 'g', -1, 64)
}

// 文档注释：扩展搜索参数
// 背景：启动时加载一次，所有 worker 只读共享。
// 约束：InitialStep 同时决定首轮窗口与每轮窗口增量（单位 0.00001 度）；StepGrowth 累加到距离并与 MaxSearchDistance 比较；
// ProbeLimit 为单个探测点最多贡献的要素数，0 表示不限。
type Parameters struct {
	InitialStep       float64
	StepGrowth        float64
	MaxAttempts       int
	TargetCandidates  int
	MaxSearchDistance float64
	ProbeLimit        int
}

var ErrInvalidParameters = errors.New("invalid search parameters")

// DefaultParameters：与历史配置保持一致的默认值
func DefaultParameters() Parameters {
	return Parameters{
		InitialStep:       2,
		StepGrowth:        2,
		MaxAttempts:       100,
		TargetCandidates:  1,
		MaxSearchDistance: 50,
		ProbeLimit:        1,
	}
}

func (p Parameters) Validate() error {
	switch {
	case p.InitialStep < 0:
		return fmt.Errorf("%w: increase must be >= 0", ErrInvalidParameters)
	case p.StepGrowth < 0:
		return fmt.Errorf("%w: growth must be >= 0", ErrInvalidParameters)
	case p.MaxAttempts < 1:
		return fmt.Errorf("%w: attempts must be >= 1", ErrInvalidParameters)
	case p.TargetCandidates < 1:
		return fmt.Errorf("%w: candidates must be >= 1", ErrInvalidParameters)
	case p.MaxSearchDistance < 0:
		return fmt.Errorf("%w: max_distance must be >= 0", ErrInvalidParameters)
	case p.ProbeLimit < 0:
		return fmt.Errorf("%w: probe_limit must be >= 0", ErrInvalidParameters)
	}
	return nil
}

// Fingerprint：参数摘要，参数不同的运行不共享缓存结果
func (p Parameters) Fingerprint() string {
	return fmt.Sprintf("%g/%g/%d/%d/%g/%d", p.InitialStep, p.StepGrowth, p.MaxAttempts, p.TargetCandidates, p.MaxSearchDistance, p.ProbeLimit)
}

// 文档注释：匹配集合
// 背景：一次搜索内单调增长，按要素 ID 去重并保留插入顺序，行输出后即丢弃。
// Attempts 为进入扩展循环的轮数，Probes 为包含探测次数；Cached 表示结果来自匹配缓存。
type MatchSet struct {
	features []*featurestore.Feature
	seen     map[int]struct{}
	Attempts int
	Probes   int
	Cached   bool
}

func newMatchSet() *MatchSet { return &MatchSet{seen: make(map[int]struct{})} }

func (m *MatchSet) Len() int { return len(m.features) }

// Features：按加入顺序返回
func (m *MatchSet) Features() []*featurestore.Feature { return m.features }

// IDs：要素 ID 列表（加入顺序）
func (m *MatchSet) IDs() []int {
	out := make([]int, len(m.features))
	for i, f := range m.features {
		out[i] = f.ID
	}
	return out
}

func (m *MatchSet) add(f *featurestore.Feature) {
	if _, ok := m.seen[f.ID]; ok {
		return
	}
	m.seen[f.ID] = struct{}{}
	m.features = append(m.features, f)
}
