package browser_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"spectral/internal/browser"
	"spectral/pkg/errx"
)

func TestLaunchArgs(t *testing.T) {
	args := browser.LaunchArgs(9333, "/tmp/profile", true, []string{"--lang=zh-CN"})

	for _, want := range []string{"--remote-debugging-port=9333", "--user-data-dir=/tmp/profile", "--headless=new", "--lang=zh-CN"} {
		if !slices.Contains(args, want) {
			t.Errorf("启动参数缺少 %s: %v", want, args)
		}
	}
	if args[len(args)-1] != "about:blank" {
		t.Errorf("最后一个参数应为初始页面，实际 %s", args[len(args)-1])
	}

	if slices.Contains(browser.LaunchArgs(9333, "/tmp/profile", false, nil), "--headless=new") {
		t.Error("非无头模式不应带 --headless")
	}
}

func TestFreePort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("占用端口失败: %v", err)
	}
	defer busy.Close()
	taken := busy.Addr().(*net.TCPAddr).Port

	got, err := browser.FreePort(taken)
	if err != nil {
		t.Fatalf("FreePort 失败: %v", err)
	}
	if got == taken || got == 0 {
		t.Errorf("首选端口被占用时应返回其他端口，实际 %d", got)
	}
}

func TestWaitReady(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" || hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := browser.WaitReady(ctx, srv.URL); err != nil {
		t.Fatalf("服务就绪后应返回 nil，实际: %v", err)
	}
}

func TestWaitReadyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := browser.WaitReady(ctx, srv.URL); err == nil {
		t.Fatal("始终未就绪时应返回错误")
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	_, err := browser.Launch(context.Background(), browser.Options{
		ExecPath: filepath.Join(t.TempDir(), "no-such-chrome"),
		DataDir:  t.TempDir(),
	})
	if !errx.Is(err, errx.CodeDevToolsUnreachable) {
		t.Errorf("可执行文件不存在应返回 %s，实际: %v", errx.CodeDevToolsUnreachable, err)
	}
}
