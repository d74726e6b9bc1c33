package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Options 日志初始化选项
type Options struct {
	Level     string // debug/info/warn/error,默认info
	Output    string // console/file/both,默认console
	Format    string // text/json,默认text
	FilePath  string // Output包含file时的日志文件路径
	Colorize  bool   // 控制台输出是否着色(仅text格式)
	AddSource bool   // 是否附加调用位置
}

var (
	mu       sync.RWMutex
	level    = new(slog.LevelVar)
	instance = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
)

// Init 初始化全局日志器
func Init(opts Options) error {
	lv, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}

	var writers []io.Writer
	output := opts.Output
	if output == "" {
		output = "console"
	}

	if output == "console" || output == "both" {
		writers = append(writers, os.Stdout)
	}

	if output == "file" || output == "both" {
		if opts.FilePath == "" {
			return fmt.Errorf("file output requires file_path")
		}
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	out := io.MultiWriter(writers...)
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	mu.Lock()
	level.Set(lv)
	instance = slog.New(handler)
	mu.Unlock()

	return nil
}

// SetLevel 动态调整日志级别
func SetLevel(raw string) error {
	lv, err := parseLevel(raw)
	if err != nil {
		return err
	}
	level.Set(lv)
	return nil
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", raw)
	}
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Debug 输出debug日志,键值对参数自动脱敏
func Debug(msg string, args ...any) {
	get().Debug(msg, SanitizeArgs(args...)...)
}

// Info 输出info日志
func Info(msg string, args ...any) {
	get().Info(msg, SanitizeArgs(args...)...)
}

// Warn 输出warn日志
func Warn(msg string, args ...any) {
	get().Warn(msg, SanitizeArgs(args...)...)
}

// Error 输出error日志
func Error(msg string, args ...any) {
	get().Error(msg, SanitizeArgs(args...)...)
}
