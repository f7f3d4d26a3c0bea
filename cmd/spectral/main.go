package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spectral/internal/browser"
	"spectral/internal/bundle"
	"spectral/internal/config"
	"spectral/internal/handler"
	"spectral/internal/httpapi"
	"spectral/internal/interceptor"
	"spectral/internal/logger"
	"spectral/internal/manager"
	"spectral/internal/network"
	"spectral/internal/pool"
	"spectral/internal/regexutil"
	"spectral/internal/service"
	"spectral/internal/session"
	"spectral/internal/storage/db"
	"spectral/internal/storage/model"
	"spectral/internal/storage/repo"
	"spectral/internal/tracker"
	"spectral/internal/uicapture"
	"spectral/pkg/api"
	"spectral/pkg/domain"
)

func main() {
	cfg := config.Load()
	l := logger.New(cfg)

	if err := run(cfg, l); err != nil {
		l.Err(err, "服务异常退出")
		os.Exit(1)
	}
}

func run(cfg *config.Config, l logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.New(db.Options{Name: cfg.Sqlite.Db, Prefix: cfg.Sqlite.Prefix, Logger: db.NewLogger(l.With("component", "db"))})
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	if err := db.Migrate(gdb, model.All()...); err != nil {
		return err
	}
	settingsRepo := repo.NewSettingsRepo(gdb)
	exportRepo := repo.NewExportRepo(gdb)

	store := session.NewStore(settingsRepo.LoadSettings(ctx))

	exclude, err := regexutil.Compile(cfg.Capture.ExcludeURLs)
	if err != nil {
		l.Warn("部分 URL 排除规则无效，已忽略", "error", err)
	}

	devtoolsURL := cfg.Capture.DevToolsURL
	if cfg.Browser.Launch {
		proc, err := browser.Launch(ctx, browser.Options{
			ExecPath: cfg.Browser.ExecPath,
			DataDir:  cfg.Browser.DataDir,
			Port:     cfg.Browser.Port,
			Headless: cfg.Browser.Headless,
			Logger:   l.With("component", "browser"),
		})
		if err != nil {
			return err
		}
		defer proc.Close(5 * time.Second)
		devtoolsURL = proc.DevToolsURL
	}

	workers := pool.New(cfg.Capture.Concurrency, cfg.Capture.PendingCapacity, l.With("component", "pool"))
	workers.Start(ctx)
	defer workers.Stop()

	builder := network.New(store, workers, network.Options{
		WindowMS:     cfg.Capture.CorrelationWindowMS,
		FetchTimeout: time.Duration(cfg.Capture.BodyFetchTimeoutMS) * time.Millisecond,
		Exclude:      exclude,
	}, l.With("component", "network"))

	h := handler.New(handler.Config{
		Store:       store,
		Network:     builder,
		Tracker:     tracker.New(store, cfg.Capture.CorrelationWindowMS, l.With("component", "tracker")),
		Interceptor: interceptor.New(store, workers, l.With("component", "interceptor")),
		Logger:      l,
	})

	hub := uicapture.New(h, uicapture.Options{Rate: cfg.Server.UIRate, Burst: cfg.Server.UIBurst}, l.With("component", "uicapture"))
	defer hub.Close()

	mgr := manager.New(devtoolsURL, l.With("component", "manager"))
	defer mgr.DetachAll()

	control := api.NewService(service.Config{
		Store:     store,
		Handler:   h,
		Browser:   service.NewBrowser(mgr),
		UICapture: hub,
		Exporter:  bundle.NewExporter(cfg.ExportDir, l.With("component", "bundle")),
		Settings:  settingsRepo,
		History:   exportRepo,
		Logger:    l.With("component", "service"),
	})

	router := httpapi.NewServer(httpapi.Options{
		Service: control,
		UI:      hub,
		History: exportRepo,
		Metrics: &httpapi.Metrics{Status: control.Status, Pool: workers.Stats, Hub: hub.Stats},
		Logger:  l.With("component", "http"),
	})
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("控制接口已启动", "addr", cfg.Server.ListenAddr, "devtools", devtoolsURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	l.Info("正在关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if control.Status().State == domain.StateCapturing {
		if _, err := control.Stop(shutdownCtx); err != nil {
			l.Warn("停止捕获失败", "error", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}
