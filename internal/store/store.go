// 包 store：PostGIS 数据访问层，执行"最近 N 行"查询并把结果转为文本行
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"geoenrich/internal/logger"
	"geoenrich/internal/metrics"
	"geoenrich/internal/spatial"

	_ "github.com/lib/pq"
)

// ErrQuery：单次查询失败，调用方记录后按空结果处理
var ErrQuery = errors.New("query failed")

// Store：数据库访问入口，持有连接池与目标表
type Store struct {
	db      *sql.DB
	table   Table
	timeout time.Duration
}

// Options：连接池与查询超时；零值使用默认
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
	QueryTimeout time.Duration
}

// Open：使用解析后的目标打开连接池
// 约束：连接池上限不低于 worker 数，保证每个 worker 独占一条连接执行语句
func Open(t Target, opt Options) (*Store, error) {
	db, err := sql.Open("postgres", t.DSN)
	if err != nil {
		return nil, err
	}
	maxOpen := opt.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 50
	}
	maxIdle := opt.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	return &Store{db: db, table: t.Table, timeout: opt.QueryTimeout}, nil
}

// Attach：包装已有连接池（测试与手工注入）
func Attach(db *sql.DB, t Table, timeout time.Duration) *Store {
	return &Store{db: db, table: t, timeout: timeout}
}

func (s *Store) DB() *sql.DB  { return s.db }
func (s *Store) Table() Table { return s.table }
func (s *Store) Close() error { return s.db.Close() }

// Ping：启动时确认连接可用
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// 文档注释：查询坐标附近的 limit 行
// 背景：结果按距离升序，尾部 distance 列被丢弃，NULL 转为空串。
// 约束：任何执行或扫描错误都包装为 ErrQuery 返回，不重试；已读取的部分行一并丢弃。
func (s *Store) NearestRows(ctx context.Context, c spatial.Coordinate, limit int, columns []string) ([][]string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	q := BuildNearest(s.table, c, limit, columns)
	t0 := time.Now()
	defer func() { metrics.QueryDurationMs.Observe(float64(time.Since(t0).Milliseconds())) }()
	logger.L().Debug("db_query_begin", "x", c.X, "y", c.Y, "limit", limit)
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	var out [][]string
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQuery, err)
		}
		rec := make([]string, 0, len(cols)-1)
		for _, v := range vals[:len(vals)-1] {
			rec = append(rec, v.String)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	logger.L().Debug("db_query_done", "rows", len(out))
	return out, nil
}
