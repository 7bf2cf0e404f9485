package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// 文档注释：共享输入游标
// 背景：所有 worker 共用一个顺序读取器；Next 在内部加锁，每一行只交给一个 worker。
// 约束：行长度不设上限；行内容原样返回（去掉换行符与 \r），末行缺少换行符时同样返回；跨 worker 的处理顺序不保证。
type LineSource struct {
	mu   sync.Mutex
	r    *bufio.Reader
	line int64
	done bool
}

func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next：取下一行；ok=false 表示输入结束或读取失败（err 非空）
func (s *LineSource) Next() (text string, lineNo int64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return "", s.line, false, nil
	}
	t, err := s.r.ReadString('\n')
	if err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) {
			return "", s.line + 1, false, err
		}
		if t == "" {
			return "", s.line, false, nil
		}
	}
	s.line++
	t = strings.TrimSuffix(t, "\n")
	t = strings.TrimSuffix(t, "\r")
	return t, s.line, true, nil
}

// 文档注释：共享输出
// 背景：一行输入对应的全部输出行在同一把锁内写入并 flush，不同 worker 的行不会交错。
type Sink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewSink(w io.Writer) *Sink { return &Sink{w: bufio.NewWriter(w)} }

// WriteLines：追加若干行（各自补换行）后立即 flush
func (s *Sink) WriteLines(lines ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lines {
		if _, err := s.w.WriteString(l); err != nil {
			return err
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
