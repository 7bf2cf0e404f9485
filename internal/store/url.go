package store

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
)

// ErrMalformedURL：连接串缺少 currentSchema=table,schema 或无法解析
var ErrMalformedURL = errors.New("malformed database url")

// URLTemplate：连接串示例，用于错误提示
const URLTemplate = "postgres://host:port/database?currentSchema=table,schema"

// Table：查询目标表；Geometry 为几何列名
type Table struct {
	Schema   string
	Name     string
	Geometry string
}

// Target：解析后的连接目标，DSN 可直接交给 lib/pq
type Target struct {
	Table Table
	DSN   string
}

// 文档注释：解析数据库连接串
// 背景：沿用 currentSchema=table,schema 的约定同时携带目标表与 schema；兼容 jdbc:postgresql:// 前缀。
// 约束：currentSchema 必须包含逗号分隔的两段，否则返回 ErrMalformedURL；该参数在交给驱动前移除；
// 用户名与密码非空时覆盖 URL 中的凭据。
func ParseURL(raw, username, password string) (Target, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "jdbc:")
	if strings.HasPrefix(s, "postgresql://") {
		s = "postgres://" + strings.TrimPrefix(s, "postgresql://")
	}
	u, err := url.Parse(s)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	q := u.Query()
	cs := q.Get("currentSchema")
	parts := strings.Split(cs, ",")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Target{}, fmt.Errorf("%w: expected %s", ErrMalformedURL, URLTemplate)
	}
	q.Del("currentSchema")
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	if username != "" {
		if password != "" {
			u.User = url.UserPassword(username, password)
		} else {
			u.User = url.User(username)
		}
	}
	// lib/pq 只接受 postgres 协议，这里顺带校验 host/dbname
	dsn, err := pq.ParseURL(u.String())
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	return Target{
		Table: Table{Name: strings.TrimSpace(parts[0]), Schema: strings.TrimSpace(parts[1])},
		DSN:   dsn,
	}, nil
}
