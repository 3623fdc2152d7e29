package utils

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// MainLogFile 主日志文件名
	MainLogFile = "xhs_crawler.log"
	// ErrorLogFile 错误日志文件名
	ErrorLogFile = "xhs_crawler_error.log"
)

// Logger 全局日志器
var Logger zerolog.Logger

// LogConfig 日志配置
type LogConfig struct {
	Level      string // 日志级别: trace, debug, info, warn, error, fatal, panic
	LogDir     string // 日志目录
	MaxSize    int    // 单个日志文件最大大小(MB)
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留天数
	Compress   bool   // 是否压缩旧日志

	// Console 控制台输出,为空时使用 os.Stderr (标准输出留给爬取结果)
	Console io.Writer
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger 初始化全局日志: 控制台 + 滚动主日志 + 仅错误日志
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := config.Console
	if console == nil {
		console = os.Stderr
	}

	// MultiLevelWriter 调用 WriteLevel, 错误文件只收到 error 及以上
	out := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339},
		rotatingFile(config, MainLogFile),
		&FilteredWriter{Writer: rotatingFile(config, ErrorLogFile), MinLevel: zerolog.ErrorLevel},
	)

	Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	log.Logger = Logger

	Logger.Info().
		Str("level", level.String()).
		Str("log_dir", config.LogDir).
		Msg("日志系统初始化完成")
	return nil
}

func rotatingFile(config LogConfig, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(config.LogDir, name),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
}

// FilteredWriter 仅写入指定级别及以上的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 无级别信息时丢弃
func (w *FilteredWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// WriteLevel 带级别的写入
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level >= w.MinLevel && level < zerolog.NoLevel {
		return w.Writer.Write(p)
	}
	return len(p), nil
}

// 以下快捷方法供命令行输出使用, 组件内部直接使用 zerolog/log 结构化字段

func Info(msg string)                   { Logger.Info().Msg(msg) }
func Infof(format string, args ...any)  { Logger.Info().Msgf(format, args...) }
func Warn(msg string)                   { Logger.Warn().Msg(msg) }
func Warnf(format string, args ...any)  { Logger.Warn().Msgf(format, args...) }
func Errorf(format string, args ...any) { Logger.Error().Msgf(format, args...) }
func Debugf(format string, args ...any) { Logger.Debug().Msgf(format, args...) }
