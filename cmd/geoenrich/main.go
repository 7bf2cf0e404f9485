package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geoenrich/internal/config"
	"geoenrich/internal/featurestore"
	"geoenrich/internal/logger"
	"geoenrich/internal/matchcache"
	"geoenrich/internal/metrics"
	"geoenrich/internal/migrate"
	"geoenrich/internal/pipeline"
	"geoenrich/internal/spatial"
	"geoenrich/internal/store"
	"geoenrich/internal/version"

	"github.com/joho/godotenv"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitMalformedDB = 99
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// 文档注释：命令行入口
// 背景：-c 指定 YAML 配置，-t 覆盖 worker 数；帮助、版本与缺少配置时只打印信息并以 0 退出。
// 约束：退出码 0 正常，1 配置/行级致命/IO 错误，99 数据库连接串格式错误。
func run(args []string, stdout io.Writer) int {
	_ = godotenv.Load(".env")

	fs := flag.NewFlagSet("geoenrich", flag.ContinueOnError)
	fs.SetOutput(stdout)
	var (
		flagConfig  string
		flagThreads int
		flagVersion bool
		flagHelp    bool
	)
	fs.StringVar(&flagConfig, "c", "", "YAML 配置文件路径")
	fs.StringVar(&flagConfig, "config", "", "YAML 配置文件路径")
	fs.IntVar(&flagThreads, "t", 0, "worker 数（覆盖配置）")
	fs.IntVar(&flagThreads, "thread", 0, "worker 数（覆盖配置）")
	fs.BoolVar(&flagVersion, "v", false, "打印版本")
	fs.BoolVar(&flagVersion, "version", false, "打印版本")
	fs.BoolVar(&flagHelp, "h", false, "打印帮助")
	fs.BoolVar(&flagHelp, "help", false, "打印帮助")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: geoenrich [-v] [-c config.yml] [-t threads] [-h]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	if flagHelp {
		fs.Usage()
		return exitOK
	}
	if flagVersion {
		fmt.Fprintln(stdout, "geoenrich", version.String())
		return exitOK
	}
	if flagConfig == "" {
		fmt.Fprintln(stdout, "missing configuration file, use -c <config.yml>")
		fs.Usage()
		return exitOK
	}

	l := logger.Setup()
	cfg, err := config.Load(flagConfig)
	if err != nil {
		l.Error("config_error", "path", flagConfig, "err", err)
		return exitFailure
	}
	if flagThreads > 0 {
		cfg.Workers = flagThreads
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, l, cfg)
}

func execute(ctx context.Context, l *slog.Logger, cfg *config.Config) int {
	t0 := time.Now()
	l.Info("run_start", "version", version.String(), "mode", cfg.Intersect.Type, "workers", cfg.Workers, "input", cfg.InputFile, "output", cfg.OutputFile)

	srv := metrics.Serve(cfg.MetricsAddr)
	defer metrics.Shutdown(srv)

	opts := pipeline.Options{
		Workers:    cfg.Workers,
		Delimiter:  cfg.Delimiter,
		ColumnX:    cfg.ColumnX,
		ColumnY:    cfg.ColumnY,
		SRID:       cfg.CoordinateType,
		Columns:    cfg.Columns(),
		Candidates: cfg.Intersect.Parameters.Candidates,
	}

	var searcher *spatial.Engine
	var rows *store.Store
	switch cfg.Intersect.Type {
	case config.ModeShapefile:
		fsStore, err := featurestore.Load(cfg.Intersect.Shapefile.Path, cfg.CacheShapes())
		if err != nil {
			l.Error("layer_load_error", "path", cfg.Intersect.Shapefile.Path, "err", err)
			return exitFailure
		}
		searcher = spatial.NewEngine(fsStore, cfg.SearchParameters())
		if c, closeFn := openMatchCache(l, cfg); c != nil {
			defer closeFn()
			searcher.WithCache(c)
		}
	case config.ModeDatabase:
		db := cfg.Intersect.Database
		target, err := store.ParseURL(db.URL, db.Username, db.Password)
		if err != nil {
			l.Error("db_url_invalid", "err", err, "template", store.URLTemplate)
			if errors.Is(err, store.ErrMalformedURL) {
				return exitMalformedDB
			}
			return exitFailure
		}
		target.Table.Geometry = db.GeometryColumn
		rows, err = store.Open(target, store.Options{MaxOpenConns: cfg.Workers * 2, MaxIdleConns: cfg.Workers, QueryTimeout: db.QueryTimeout})
		if err != nil {
			l.Error("db_open_error", "err", err)
			return exitFailure
		}
		defer func() {
			if err := rows.Close(); err != nil {
				l.Warn("db_close_error", "err", err)
			}
		}()
		if err := rows.Ping(ctx); err != nil {
			l.Error("db_connect_error", "err", err)
			return exitFailure
		}
		if db.EnsureIndex {
			if err := migrate.EnsureSpatialIndex(ctx, rows.DB(), target.Table); err != nil {
				l.Error("schema_error", "err", err)
				return exitFailure
			}
		}
	}

	in, err := os.Open(cfg.InputFile)
	if err != nil {
		l.Error("input_open_error", "path", cfg.InputFile, "err", err)
		return exitFailure
	}
	defer closeLogged(l, "input", in)
	out, err := os.Create(cfg.OutputFile)
	if err != nil {
		l.Error("output_open_error", "path", cfg.OutputFile, "err", err)
		return exitFailure
	}
	defer closeLogged(l, "output", out)

	src := pipeline.NewLineSource(in)
	sink := pipeline.NewSink(out)
	var p *pipeline.Pipeline
	if searcher != nil {
		p = pipeline.NewSpatial(opts, searcher, src, sink)
	} else {
		p = pipeline.NewRelational(opts, rows, src, sink)
	}

	if cfg.HasHeader() {
		ok, err := p.WriteHeader()
		if err != nil {
			l.Error("header_error", "err", err)
			return exitFailure
		}
		if !ok {
			l.Warn("input_empty", "path", cfg.InputFile)
		}
	}

	st, err := p.Run(ctx)
	if err != nil {
		l.Error("run_failed", "err", err, "rows", st.Rows)
		return exitFailure
	}
	l.Info("run_end", "rows", st.Rows, "lines", st.Lines, "empty", st.Empty, "query_failures", st.Failures, "elapsed_ms", time.Since(t0).Milliseconds())
	return exitOK
}

// openMatchCache：按配置组装两级缓存；未启用时返回 nil
func openMatchCache(l *slog.Logger, cfg *config.Config) (spatial.Cache, func()) {
	var local *matchcache.LRU
	if cfg.Cache.LRUSize > 0 {
		local = matchcache.NewLRU(cfg.Cache.LRUSize, cfg.Cache.TTL)
	}
	var remote *matchcache.Redis
	rc := matchcache.OpenRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if rc != nil {
		remote = matchcache.NewRedis(rc, cfg.Cache.TTL)
	}
	tc := matchcache.New(local, remote)
	if tc == nil {
		return nil, func() {}
	}
	l.Info("match_cache_enabled", "lru_size", cfg.Cache.LRUSize, "redis", rc != nil)
	return tc, func() {
		if rc == nil {
			return
		}
		if err := rc.Close(); err != nil {
			l.Warn("redis_close_error", "err", err)
		}
	}
}

func closeLogged(l *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		l.Warn("close_error", "resource", name, "err", err)
	}
}
