package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger 包装 slog.Logger，统一管理输出资源的关闭
type Logger struct {
	*slog.Logger
	closers []io.Closer
}

// New 创建 Logger，输出到给定的一个或多个 writer
func New(level string, writers ...io.Writer) (*Logger, error) {
	if len(writers) == 0 {
		return nil, fmt.Errorf("必须提供至少一个日志输出")
	}
	var output io.Writer
	if len(writers) == 1 {
		output = writers[0]
	} else {
		output = io.MultiWriter(writers...)
	}
	var closers []io.Closer
	for _, w := range writers {
		if w == io.Writer(os.Stdout) || w == io.Writer(os.Stderr) {
			continue
		}
		if c, ok := w.(io.Closer); ok {
			closers = append(closers, c)
		}
	}
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return &Logger{
		Logger:  slog.New(handler),
		closers: closers,
	}, nil
}

// Close 关闭所有持有的 writer
func (l *Logger) Close() error {
	var lastErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// ParseLevel 解析日志级别字符串，未知取 info
func ParseLevel(level string) slog.Leveler {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
