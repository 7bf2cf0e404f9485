package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"geoenrich/internal/spatial"
)

// ErrMalformedCoordinate：坐标列缺失或不是数字
var ErrMalformedCoordinate = errors.New("malformed coordinate")

// Parser：按分隔符拆分输入行并读取坐标列（0 起）
// 约束：分隔符始终按字面量处理，"|" 不会被当作正则
type Parser struct {
	Delimiter string
	ColumnX   int
	ColumnY   int
	SRID      int
}

func (p Parser) Parse(line string) (spatial.Coordinate, error) {
	fields := strings.Split(line, p.Delimiter)
	x, err := p.axis(fields, p.ColumnX, "x")
	if err != nil {
		return spatial.Coordinate{}, err
	}
	y, err := p.axis(fields, p.ColumnY, "y")
	if err != nil {
		return spatial.Coordinate{}, err
	}
	return spatial.Coordinate{X: x, Y: y, SRID: p.SRID}, nil
}

func (p Parser) axis(fields []string, col int, name string) (float64, error) {
	if col < 0 || col >= len(fields) {
		return 0, fmt.Errorf("%w: invalid position of %s coordinate (column %d, %d fields)", ErrMalformedCoordinate, name, col, len(fields))
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[col]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s coordinate %q", ErrMalformedCoordinate, name, fields[col])
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite %s coordinate %q", ErrMalformedCoordinate, name, fields[col])
	}
	return v, nil
}

// 文档注释：空间模式输出
// 背景：每个匹配要素一行，下标从 0 计，条件为 下标 <= target，因此最多输出 target+1 行（沿用历史输出行为）。
// 约束：匹配集合为空时输出一行，属性部分为 len(columns)-1 个分隔符，保证列数对齐。
func FormatMatches(line, delim string, columns []string, target int, m *spatial.MatchSet) []string {
	if m == nil || m.Len() == 0 {
		return []string{line + delim + strings.Repeat(delim, max(len(columns)-1, 0))}
	}
	var out []string
	vals := make([]string, len(columns))
	for i, f := range m.Features() {
		if i > target {
			break
		}
		for j, col := range columns {
			vals[j] = f.Attribute(col)
		}
		out = append(out, line+delim+strings.Join(vals, delim))
	}
	return out
}

// FormatRows：关系模式输出，每个返回行一行；无结果不输出
func FormatRows(line, delim string, rows [][]string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, line+delim+strings.Join(r, delim))
	}
	return out
}

// HeaderLine：输入表头追加属性名
func HeaderLine(header, delim string, columns []string) string {
	return header + delim + strings.Join(columns, delim)
}
