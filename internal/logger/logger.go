package logger

import (
	"io"
	"os"
	"path/filepath"
	"runtime"

	"spectral/internal/config"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 定义日志接口
type Logger interface {
	// Debug 记录调试信息
	Debug(msg string, fields ...any)

	// Info 记录一般信息
	Info(msg string, fields ...any)

	// Warn 记录警告信息
	Warn(msg string, fields ...any)

	// Error 记录错误信息
	Error(msg string, fields ...any)

	// Err 记录错误信息
	Err(err error, msg string, fields ...any)

	// With 返回附带固定字段的子日志记录器
	With(fields ...any) Logger
}

// ZeroLogger 日志组件
type ZeroLogger struct {
	logger zerolog.Logger
}

// 文件日志轮转参数
const (
	fileMaxSizeMB  = 1
	fileMaxBackups = 3
	fileMaxAgeDays = 30
)

// New 按配置创建日志组件，没有可用输出时返回空记录器
func New(cfg *config.Config) *ZeroLogger {
	if cfg == nil {
		return Nop()
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.DebugLevel
	}

	var writers []io.Writer
	for _, name := range cfg.Log.Writer {
		switch name {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
		case "file":
			filename, err := FilePath(cfg)
			if err != nil {
				continue
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   filename,
				MaxSize:    fileMaxSizeMB,
				MaxAge:     fileMaxAgeDays,
				MaxBackups: fileMaxBackups,
				LocalTime:  true,
			})
		}
	}
	if len(writers) == 0 {
		return Nop()
	}

	zerolog.TimeFieldFormat = "2006-01-02 15:04:05.000"
	return &ZeroLogger{
		logger: zerolog.New(io.MultiWriter(writers...)).
			With().
			Caller().
			Timestamp().
			Logger().
			Level(level),
	}
}

// NewWithWriter 创建写入指定 writer 的日志组件，级别为 debug
func NewWithWriter(w io.Writer) *ZeroLogger {
	return &ZeroLogger{logger: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop 创建一个空的日志记录器
func Nop() *ZeroLogger { return &ZeroLogger{logger: zerolog.Nop()} }

// NewNop 以接口形式返回空日志记录器
func NewNop() Logger { return Nop() }

// Info 记录信息
func (z *ZeroLogger) Info(msg string, fields ...any) {
	z.logger.Info().CallerSkipFrame(1).Fields(fields).Msg(msg)
}

// Error 记录错误
func (z *ZeroLogger) Error(msg string, fields ...any) {
	z.logger.Error().CallerSkipFrame(1).Fields(fields).Msg(msg)
}

// Debug 记录调试信息
func (z *ZeroLogger) Debug(msg string, fields ...any) {
	z.logger.Debug().CallerSkipFrame(1).Fields(fields).Msg(msg)
}

// Warn 记录警告
func (z *ZeroLogger) Warn(msg string, fields ...any) {
	z.logger.Warn().CallerSkipFrame(1).Fields(fields).Msg(msg)
}

// Err 记录错误信息
func (z *ZeroLogger) Err(err error, msg string, fields ...any) {
	z.logger.Err(err).CallerSkipFrame(1).Fields(fields).Msg(msg)
}

// With 返回附带字段的子日志记录器
func (z *ZeroLogger) With(fields ...any) Logger {
	return &ZeroLogger{logger: z.logger.With().Fields(fields).Logger()}
}

// FilePath 日志文件路径，配置了 Log.Dir 时位于该目录下，否则位于平台数据目录
func FilePath(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.Log.Dir != "" {
		return filepath.Join(cfg.Log.Dir, "spectral.log"), nil
	}

	var baseDir string
	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(home, "Library", "Application Support")
	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(home, ".local", "share")
		}
	}
	return filepath.Join(baseDir, "spectral", "logs", "spectral.log"), nil
}
