package db

import (
	"context"
	"errors"
	"time"

	"spectral/internal/logger"

	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
)

// Logger 把 GORM 日志转发到项目日志
type Logger struct {
	log           logger.Logger
	LogLevel      glog.LogLevel
	SlowThreshold time.Duration
}

// NewLogger 创建 GORM 日志适配，默认只输出警告及以上
func NewLogger(l logger.Logger) *Logger {
	if l == nil {
		l = logger.NewNop()
	}
	return &Logger{
		log:           l.With("component", "gorm"),
		LogLevel:      glog.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// LogMode 实现 glog.Interface
func (l *Logger) LogMode(level glog.LogLevel) glog.Interface {
	next := *l
	next.LogLevel = level
	return &next
}

func (l *Logger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Info {
		l.log.Info(msg, data...)
	}
}

func (l *Logger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Warn {
		l.log.Warn(msg, data...)
	}
}

func (l *Logger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Error {
		l.log.Error(msg, data...)
	}
}

// Trace 记录 SQL 执行，未找到记录不算错误
func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= glog.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= glog.Error:
		sql, rows := fc()
		l.log.Err(err, "SQL执行错误", "sql", sql, "rows", rows, "elapsedMs", elapsed.Milliseconds())
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.LogLevel >= glog.Warn:
		sql, rows := fc()
		l.log.Warn("慢SQL查询", "sql", sql, "rows", rows, "elapsedMs", elapsed.Milliseconds())
	case l.LogLevel >= glog.Info:
		sql, rows := fc()
		l.log.Debug("SQL执行", "sql", sql, "rows", rows)
	}
}
