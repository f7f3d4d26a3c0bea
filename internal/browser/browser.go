// Package browser 启动一个开启远程调试端口的独立 Chrome 实例
package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"spectral/internal/logger"
	"spectral/pkg/errx"
)

const readyTimeout = 10 * time.Second

// Options 启动参数
type Options struct {
	ExecPath string
	// DataDir 用户数据目录，为空时使用临时目录并在关闭时删除
	DataDir  string
	Port     int
	Headless bool
	Args     []string
	Logger   logger.Logger
}

// Process 已启动的浏览器进程
type Process struct {
	DevToolsURL string

	cmd     *exec.Cmd
	dataDir string
	tempDir bool
	done    chan error
	log     logger.Logger
}

// Launch 启动浏览器并等待 DevTools 就绪
func Launch(ctx context.Context, opts Options) (*Process, error) {
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}

	exe := opts.ExecPath
	if exe == "" {
		exe = FindExecutable()
	}
	if exe == "" {
		return nil, errx.New(errx.CodeDevToolsUnreachable, "chrome executable not found")
	}

	port, err := FreePort(opts.Port)
	if err != nil {
		return nil, errx.Wrap(errx.CodeDevToolsUnreachable, err, "pick debugging port")
	}

	p := &Process{dataDir: opts.DataDir, done: make(chan error, 1), log: l}
	if p.dataDir == "" {
		dir, err := os.MkdirTemp("", "spectral-chrome-")
		if err != nil {
			return nil, fmt.Errorf("create user data dir: %w", err)
		}
		p.dataDir, p.tempDir = dir, true
	} else if err := os.MkdirAll(p.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create user data dir: %w", err)
	}

	// 进程生命周期不跟随 ctx，由 Close 结束
	p.cmd = exec.Command(exe, LaunchArgs(port, p.dataDir, opts.Headless, opts.Args)...)
	if err := p.cmd.Start(); err != nil {
		p.cleanup()
		return nil, errx.Wrap(errx.CodeDevToolsUnreachable, err, "start browser")
	}
	go func() { p.done <- p.cmd.Wait() }()

	p.DevToolsURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	waitCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := WaitReady(waitCtx, p.DevToolsURL); err != nil {
		_ = p.Close(2 * time.Second)
		return nil, errx.Wrap(errx.CodeDevToolsUnreachable, err, "devtools not ready")
	}

	l.Info("浏览器已启动", "exec", exe, "devtools", p.DevToolsURL, "pid", p.cmd.Process.Pid)
	return p, nil
}

// Close 结束浏览器进程并清理临时数据目录
func (p *Process) Close(timeout time.Duration) error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	defer p.cleanup()

	_ = p.cmd.Process.Kill()
	select {
	case <-time.After(timeout):
		return errors.New("browser stop timeout")
	case <-p.done:
		return nil
	}
}

func (p *Process) cleanup() {
	if !p.tempDir {
		return
	}
	if err := os.RemoveAll(p.dataDir); err != nil {
		p.log.Warn("清理浏览器数据目录失败", "dir", p.dataDir, "error", err)
	}
}

// FindExecutable 查找本机 Chrome/Chromium，找不到返回空串
func FindExecutable() string {
	for _, p := range candidatePaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func candidatePaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			filepath.Join(os.Getenv("ProgramFiles"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("ProgramFiles(x86)"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Google", "Chrome", "Application", "chrome.exe"),
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	default:
		return []string{"/usr/bin/google-chrome", "/usr/bin/chromium", "/snap/bin/chromium"}
	}
}

// FreePort 优先使用 preferred，被占用或为 0 时取随机空闲端口
func FreePort(preferred int) (int, error) {
	if preferred > 0 {
		if l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", preferred)); err == nil {
			_ = l.Close()
			return preferred, nil
		}
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// LaunchArgs 构造启动参数
func LaunchArgs(port int, dataDir string, headless bool, extra []string) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		fmt.Sprintf("--user-data-dir=%s", dataDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-renderer-backgrounding",
		"--disable-breakpad",
		"--disable-sync",
	}
	if runtime.GOOS == "linux" {
		args = append(args, "--disable-dev-shm-usage")
	}
	if headless {
		args = append(args, "--headless=new")
	}
	args = append(args, extra...)
	// 首个页面目标，附加时按 page 类型选中
	return append(args, "about:blank")
}

// WaitReady 轮询 /json/version 直到返回 200
func WaitReady(ctx context.Context, base string) error {
	cli := &http.Client{Timeout: 500 * time.Millisecond}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/json/version", nil)
		if err != nil {
			return err
		}
		if resp, err := cli.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
