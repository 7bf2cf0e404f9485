package store

import (
	"strings"

	"geoenrich/internal/spatial"

	"github.com/lib/pq"
)

// DefaultGeometryColumn：未配置时的几何列名
const DefaultGeometryColumn = "geom"

// Query：参数化查询文本与绑定参数
type Query struct {
	SQL  string
	Args []any
}

// AllColumns：整行投影标记
const AllColumns = "*"

// 文档注释：构造"最近 N 行"查询
// 背景：按 ST_Distance 升序取前 limit 行，SELECT DISTINCT 去掉完全相同的行；distance 恒为最后一列。
// 约束：标识符统一用 pq.QuoteIdentifier 引用（大小写敏感）；坐标、SRID 与 limit 走绑定参数 $1..$4；
// columns 为空或仅含 "*" 时整行投影。不做 schema 校验，非法列名在执行时报错。
func BuildNearest(t Table, c spatial.Coordinate, limit int, columns []string) Query {
	geom := t.Geometry
	if geom == "" {
		geom = DefaultGeometryColumn
	}
	dist := "ST_Distance(" + pq.QuoteIdentifier(geom) + ", ST_SetSRID(ST_MakePoint($1, $2), $3))"
	var b strings.Builder
	b.WriteString("SELECT DISTINCT ")
	if isFullRow(columns) {
		b.WriteString(AllColumns)
	} else {
		for i, col := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pq.QuoteIdentifier(strings.TrimSpace(col)))
		}
	}
	b.WriteString(", ")
	b.WriteString(dist)
	b.WriteString(" AS distance FROM ")
	if t.Schema != "" {
		b.WriteString(pq.QuoteIdentifier(t.Schema))
		b.WriteString(".")
	}
	b.WriteString(pq.QuoteIdentifier(t.Name))
	b.WriteString(" ORDER BY distance LIMIT $4")
	return Query{SQL: b.String(), Args: []any{c.X, c.Y, c.SRID, limit}}
}

func isFullRow(columns []string) bool {
	if len(columns) == 0 {
		return true
	}
	return len(columns) == 1 && strings.TrimSpace(columns[0]) == AllColumns
}
