// 包 logger：统一初始化与获取日志器，避免各模块重复配置；通过环境变量控制日志级别与输出格式
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/rs/xid"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	runID         string
)

// Setup：初始化默认日志器
// 背景：集中化日志配置，每次运行附带 run_id，便于区分同一输出目录下的多次批处理
// 约束：输出目标固定为标准错误；不在此处管理文件句柄
func Setup() *slog.Logger {
	l := New(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	mu.Lock()
	runID = xid.New().String()
	defaultLogger = l.With("run_id", runID)
	mu.Unlock()
	return defaultLogger
}

// New：按级别与格式构造日志器（format 为 json 时输出 JSON，其余为文本）
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel：未识别的级别回退到 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Use：替换默认日志器（测试中注入丢弃输出的日志器）
func Use(l *slog.Logger) {
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// L：获取默认日志器；若未初始化则回退到 Setup
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return Setup()
	}
	return l
}

// RunID：当前运行标识；未调用 Setup 时为空
func RunID() string {
	mu.RLock()
	defer mu.RUnlock()
	return runID
}
