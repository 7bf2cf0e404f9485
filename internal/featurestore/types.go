package featurestore

import (
	"fmt"
	"strconv"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// 文档注释：图层要素（面）
// 背景：一条矢量记录，几何统一为 MultiPolygon，属性保持数据源原始类型。
// 约束：ID 为加载顺序（从 0 起），在同一 Store 内唯一，作为去重与排序依据。
type Feature struct {
	ID    int
	Props map[string]any
	Geom  orb.MultiPolygon
	Bound orb.Bound
}

// Attribute：按列名读取属性并格式化为文本；缺失或空值返回空串
func (f *Feature) Attribute(name string) string {
	v, ok := f.Props[name]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// indexed：R-Tree 条目包装
type indexed struct {
	f *Feature
}

// Bounds 实现 rtreego.Spatial；退化为线或点的包围盒补最小边长
func (e indexed) Bounds() rtreego.Rect {
	const epsilon = 1e-9
	w := e.f.Bound.Max[0] - e.f.Bound.Min[0]
	h := e.f.Bound.Max[1] - e.f.Bound.Min[1]
	if w < epsilon {
		w = epsilon
	}
	if h < epsilon {
		h = epsilon
	}
	rect, _ := rtreego.NewRect(rtreego.Point{e.f.Bound.Min[0], e.f.Bound.Min[1]}, []float64{w, h})
	return rect
}
