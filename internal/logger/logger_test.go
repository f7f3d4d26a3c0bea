package logger_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spectral/internal/config"
	"spectral/internal/logger"
)

func TestZeroLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(&buf)

	l.With("component", "network").Info("trace finalized", "id", "t_0001")
	out := buf.String()

	for _, want := range []string{`"component":"network"`, `"id":"t_0001"`, `"message":"trace finalized"`, `"level":"info"`} {
		if !strings.Contains(out, want) {
			t.Errorf("日志输出缺少 %s，实际: %s", want, out)
		}
	}
}

func TestZeroLoggerErr(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(&buf)

	l.Err(errors.New("boom"), "detach failed")
	if !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Errorf("Err 应输出 error 字段，实际: %s", buf.String())
	}
}

func TestNewWithoutWriters(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Log.Writer = nil

	// 没有输出目标时返回空记录器，调用不应 panic
	l := logger.New(cfg)
	l.Info("ignored")
	l.With("k", "v").Debug("ignored")

	var _ logger.Logger = logger.NewNop()
}

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Log.Writer = []string{"file"}
	cfg.Log.Dir = dir
	cfg.Log.Level = "warn"

	path, err := logger.FilePath(cfg)
	if err != nil {
		t.Fatalf("获取日志路径失败: %v", err)
	}
	if path != filepath.Join(dir, "spectral.log") {
		t.Errorf("日志路径应位于配置目录下，实际: %s", path)
	}

	l := logger.New(cfg)
	l.Info("below level")
	l.Warn("session detached", "target", "page-1")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if strings.Contains(string(data), "below level") {
		t.Error("低于配置级别的日志不应写入")
	}
	if !strings.Contains(string(data), `"target":"page-1"`) {
		t.Errorf("日志文件缺少字段，实际: %s", data)
	}
}
