package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"geoenrich/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoenrich_rows_total",
		Help: "Total number of input rows processed",
	})
	LinesWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoenrich_lines_written_total",
		Help: "Total number of output lines written",
	})
	EmptyResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoenrich_empty_results_total",
		Help: "Total number of rows without any match",
	})
	SearchAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geoenrich_search_attempts",
		Help:    "Expanding search attempts per coordinate",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})
	SearchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geoenrich_search_duration_ms",
		Help:    "Spatial search duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	QueryDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geoenrich_query_duration_ms",
		Help:    "Nearest-row database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	QueryErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoenrich_query_errors_total",
		Help: "Total nearest-row database query failures",
	})
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoenrich_match_cache_lookups_total",
		Help: "Match cache lookups by tier and result",
	}, []string{"tier", "result"})
)

func init() {
	prometheus.MustRegister(RowsTotal)
	prometheus.MustRegister(LinesWrittenTotal)
	prometheus.MustRegister(EmptyResultsTotal)
	prometheus.MustRegister(SearchAttempts)
	prometheus.MustRegister(SearchDurationMs)
	prometheus.MustRegister(QueryDurationMs)
	prometheus.MustRegister(QueryErrorsTotal)
	prometheus.MustRegister(CacheLookupsTotal)
}

// 文档注释：返回 Prometheus 指标处理器
func Handler() http.Handler { return promhttp.Handler() }

// 文档注释：启动可选的 /metrics 监听
// 背景：长时间批处理时供 Prometheus 抓取进度；addr 为空时不启动并返回 nil。
// 约束：监听失败只记录日志，不影响批处理主流程。
func Serve(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	s := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.L().Info("metrics_listening", "addr", addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("metrics_listen_error", "err", err)
		}
	}()
	return s
}

// Shutdown：关闭监听，s 为 nil 时忽略
func Shutdown(s *http.Server) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.L().Warn("metrics_shutdown_error", "err", err)
	}
}
