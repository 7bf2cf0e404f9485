// 包 pipeline：批量增强主流程
//
// 职责：
// - N 个 worker 共享一个输入游标与一个输出，逐行解析坐标、查询、格式化并写出；
// - 模式二选一：空间模式走扩展搜索引擎，关系模式走最近 N 行查询；
// - 首错取消：坐标非法、读写失败或索引异常时记录首错并 cancel 整体，全部 worker 退出后返回该错误；
// - 查询失败（ErrQuery）只记录日志，该行按空结果处理。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"geoenrich/internal/logger"
	"geoenrich/internal/metrics"
	"geoenrich/internal/spatial"
	"geoenrich/internal/store"
)

var (
	ErrOutputWrite = errors.New("output write failed")
	ErrInputRead   = errors.New("input read failed")
	ErrIndex       = errors.New("feature index failure")
)

// AbortError：导致整体终止的行级错误；Line 为 1 起的输入行号
type AbortError struct {
	Line int64
	Err  error
}

func (e *AbortError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *AbortError) Unwrap() error { return e.Err }

// Searcher：空间模式依赖
type Searcher interface {
	Search(c spatial.Coordinate) *spatial.MatchSet
}

// RowSource：关系模式依赖
type RowSource interface {
	NearestRows(ctx context.Context, c spatial.Coordinate, limit int, columns []string) ([][]string, error)
}

// DefaultProgressEvery：进度日志间隔（行）
const DefaultProgressEvery = 1000

type Options struct {
	Workers       int
	Delimiter     string
	ColumnX       int
	ColumnY       int
	SRID          int
	Columns       []string
	Candidates    int
	ProgressEvery int
}

// Stats：一次运行的计数
type Stats struct {
	Rows     int64
	Lines    int64
	Empty    int64
	Failures int64
}

type Pipeline struct {
	opts     Options
	parser   Parser
	searcher Searcher
	rows     RowSource
	src      *LineSource
	sink     *Sink

	processed atomic.Int64
	lines     atomic.Int64
	empty     atomic.Int64
	failures  atomic.Int64
}

func newPipeline(opts Options, src *LineSource, sink *Sink) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	return &Pipeline{
		opts:   opts,
		parser: Parser{Delimiter: opts.Delimiter, ColumnX: opts.ColumnX, ColumnY: opts.ColumnY, SRID: opts.SRID},
		src:    src,
		sink:   sink,
	}
}

// NewSpatial：空间模式
func NewSpatial(opts Options, s Searcher, src *LineSource, sink *Sink) *Pipeline {
	p := newPipeline(opts, src, sink)
	p.searcher = s
	return p
}

// NewRelational：关系模式
func NewRelational(opts Options, r RowSource, src *LineSource, sink *Sink) *Pipeline {
	p := newPipeline(opts, src, sink)
	p.rows = r
	return p
}

// 文档注释：复制表头
// 背景：在 worker 启动前由调用方执行一次，读取输入首行并写出 表头+分隔符+属性名。
// 约束：输入为空时返回 false，不写任何内容。
func (p *Pipeline) WriteHeader() (bool, error) {
	h, n, ok, err := p.src.Next()
	if err != nil {
		return false, &AbortError{Line: n, Err: fmt.Errorf("%w: %v", ErrInputRead, err)}
	}
	if !ok {
		return false, nil
	}
	if err := p.sink.WriteLines(HeaderLine(h, p.opts.Delimiter, p.opts.Columns)); err != nil {
		return false, &AbortError{Line: n, Err: fmt.Errorf("%w: %v", ErrOutputWrite, err)}
	}
	return true, nil
}

// 文档注释：运行全部 worker 直到输入耗尽
// 约束：返回的 error 为首个致命错误（*AbortError 或 ctx 错误）；Stats 总是有效，反映已完成的行。
func (p *Pipeline) Run(parent context.Context) (Stats, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	t0 := time.Now()
	logger.L().Info("pipeline_start", "workers", p.opts.Workers, "mode", p.mode())
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := p.worker(ctx); err != nil {
				logger.L().Error("worker_abort", "worker", id, "err", err)
				fail(err)
			}
		}(i)
	}
	wg.Wait()

	st := p.stats()
	logger.L().Info("pipeline_done", "rows", st.Rows, "lines", st.Lines, "empty", st.Empty, "query_failures", st.Failures, "ms", time.Since(t0).Milliseconds())
	if firstErr != nil {
		return st, firstErr
	}
	if err := parent.Err(); err != nil {
		return st, err
	}
	return st, nil
}

func (p *Pipeline) mode() string {
	if p.searcher != nil {
		return "spatial"
	}
	return "relational"
}

func (p *Pipeline) stats() Stats {
	return Stats{Rows: p.processed.Load(), Lines: p.lines.Load(), Empty: p.empty.Load(), Failures: p.failures.Load()}
}

func (p *Pipeline) worker(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, n, ok, err := p.src.Next()
		if err != nil {
			return &AbortError{Line: n, Err: fmt.Errorf("%w: %v", ErrInputRead, err)}
		}
		if !ok {
			return nil
		}
		out, err := p.process(ctx, line)
		if err != nil {
			return &AbortError{Line: n, Err: err}
		}
		if len(out) > 0 {
			if err := p.sink.WriteLines(out...); err != nil {
				return &AbortError{Line: n, Err: fmt.Errorf("%w: %v", ErrOutputWrite, err)}
			}
			p.lines.Add(int64(len(out)))
			metrics.LinesWrittenTotal.Add(float64(len(out)))
		}
		metrics.RowsTotal.Inc()
		if c := p.processed.Add(1); c%int64(p.opts.ProgressEvery) == 0 {
			logger.L().Info("rows_progress", "processed", c)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, line string) ([]string, error) {
	c, err := p.parser.Parse(line)
	if err != nil {
		return nil, err
	}
	if p.searcher != nil {
		m, err := p.search(c)
		if err != nil {
			return nil, err
		}
		if m.Len() == 0 {
			p.empty.Add(1)
			metrics.EmptyResultsTotal.Inc()
		}
		return FormatMatches(line, p.opts.Delimiter, p.opts.Columns, p.opts.Candidates, m), nil
	}
	rows, err := p.rows.NearestRows(ctx, c, p.opts.Candidates, p.opts.Columns)
	if err != nil {
		if !errors.Is(err, store.ErrQuery) {
			return nil, err
		}
		p.failures.Add(1)
		metrics.QueryErrorsTotal.Inc()
		logger.L().Warn("db_query_error", "x", c.X, "y", c.Y, "err", err)
		rows = nil
	}
	if len(rows) == 0 {
		p.empty.Add(1)
		metrics.EmptyResultsTotal.Inc()
	}
	return FormatRows(line, p.opts.Delimiter, rows), nil
}

// search：索引实现出现 panic 时转为 ErrIndex，终止整体
func (p *Pipeline) search(c spatial.Coordinate) (m *spatial.MatchSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrIndex, r)
		}
	}()
	m = p.searcher.Search(c)
	if m == nil {
		return nil, fmt.Errorf("%w: nil match set", ErrIndex)
	}
	return m, nil
}
