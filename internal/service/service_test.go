package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"spectral/internal/handler"
	"spectral/internal/interceptor"
	"spectral/internal/network"
	"spectral/internal/pool"
	"spectral/internal/protocol"
	"spectral/internal/service"
	"spectral/internal/session"
	"spectral/internal/tracker"
	"spectral/pkg/domain"
	"spectral/pkg/errx"
)

type fakeTarget struct {
	id        domain.TargetID
	enableErr error
	events    chan protocol.Event
	detached  chan struct{}
	once      sync.Once
}

func newFakeTarget(id domain.TargetID) *fakeTarget {
	return &fakeTarget{id: id, events: make(chan protocol.Event, 16), detached: make(chan struct{})}
}

func (t *fakeTarget) ID() domain.TargetID          { return t.id }
func (t *fakeTarget) Enable(context.Context) error { return t.enableErr }
func (t *fakeTarget) Close() error                 { return nil }

func (t *fakeTarget) externalDetach() {
	t.once.Do(func() { close(t.detached) })
}

func (t *fakeTarget) FetchBody(context.Context, string) ([]byte, error) {
	return []byte("ok"), nil
}

func (t *fakeTarget) ContinueRequest(context.Context, string, []byte) error {
	return nil
}

func (t *fakeTarget) FulfillRequest(context.Context, string, int, []domain.Header, []byte) error {
	return nil
}

func (t *fakeTarget) Consume(ctx context.Context, fn func(protocol.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.detached:
			return domain.ErrSessionDetached
		case ev := <-t.events:
			fn(ev)
		}
	}
}

type fakeBrowser struct {
	mu         sync.Mutex
	target     *fakeTarget
	resolveErr error
	attachErr  error
	detaches   int
}

func (b *fakeBrowser) ListTargets(context.Context) ([]domain.TargetInfo, error) {
	return []domain.TargetInfo{{ID: b.target.id, Type: "page"}}, nil
}

func (b *fakeBrowser) Resolve(_ context.Context, id domain.TargetID) (domain.TargetInfo, error) {
	if b.resolveErr != nil {
		return domain.TargetInfo{}, b.resolveErr
	}
	if id == "" {
		id = b.target.id
	}
	return domain.TargetInfo{ID: id, URL: "https://app.example.com/", Title: "App"}, nil
}

func (b *fakeBrowser) Attach(context.Context, domain.TargetInfo) (service.Target, error) {
	if b.attachErr != nil {
		return nil, b.attachErr
	}
	return b.target, nil
}

func (b *fakeBrowser) Detach(domain.TargetID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detaches++
	return errors.New("already gone")
}

func (b *fakeBrowser) detachCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.detaches
}

type fakeUI struct {
	mu          sync.Mutex
	activated   int
	deactivated int
}

func (u *fakeUI) Activate(context.Context, domain.TargetID) domain.UICaptureResult {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.activated++
	return domain.UICaptureUnreachable
}

func (u *fakeUI) Deactivate(context.Context, domain.TargetID) domain.UICaptureResult {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deactivated++
	return domain.UICaptureOK
}

type fakeExporter struct {
	err  error
	last *domain.Capture
}

func (e *fakeExporter) Export(_ context.Context, c *domain.Capture) (domain.ExportResult, error) {
	e.last = c
	if e.err != nil {
		return domain.ExportResult{}, e.err
	}
	return domain.ExportResult{CaptureID: "cap-1", Path: "/tmp/capture.zip"}, nil
}

type fakeHistory struct{ ids []string }

func (h *fakeHistory) RecordExport(_ context.Context, id, _ string, _ *domain.Capture) error {
	h.ids = append(h.ids, id)
	return nil
}

type fakeRepo struct{ saved []domain.Settings }

func (r *fakeRepo) SaveSettings(_ context.Context, s domain.Settings) error {
	r.saved = append(r.saved, s)
	return nil
}

type fixture struct {
	svc      *service.Service
	store    *session.Store
	browser  *fakeBrowser
	ui       *fakeUI
	exporter *fakeExporter
	repo     *fakeRepo
	history  *fakeHistory
}

func newFixture() *fixture {
	st := session.NewStore(domain.Settings{InjectTypename: true, InjectApqError: true})
	h := handler.New(handler.Config{
		Store:       st,
		Network:     network.New(st, pool.Inline{}, network.Options{}, nil),
		Tracker:     tracker.New(st, 2000, nil),
		Interceptor: interceptor.New(st, pool.Inline{}, nil),
	})
	f := &fixture{
		store:    st,
		browser:  &fakeBrowser{target: newFakeTarget("T1")},
		ui:       &fakeUI{},
		exporter: &fakeExporter{},
		repo:     &fakeRepo{},
		history:  &fakeHistory{},
	}
	f.svc = service.New(service.Config{
		Store:     st,
		Handler:   h,
		Browser:   f.browser,
		UICapture: f.ui,
		Exporter:  f.exporter,
		Settings:  f.repo,
		History:   f.history,
	})
	return f
}

// waitFor 轮询直到条件成立或超时
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("等待条件超时")
}

func TestStopWhileIdle(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Stop(context.Background())
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("期望 InvalidState，实际: %v", err)
	}
	if got := f.svc.Status().State; got != domain.StateIdle {
		t.Errorf("状态应保持 IDLE，实际 %s", got)
	}
}

func TestStartAndStop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.svc.Start(ctx, ""); err != nil {
		t.Fatalf("Start 失败: %v", err)
	}
	st := f.svc.Status()
	if st.State != domain.StateCapturing || st.TargetID != "T1" {
		t.Fatalf("启动后状态不符: %+v", st)
	}
	if f.ui.activated != 1 {
		t.Errorf("应尝试激活界面采集一次")
	}

	if err := f.svc.Start(ctx, "T1"); !errx.Is(err, errx.CodeInvalidState) {
		t.Errorf("重复启动应返回 INVALID_STATE，实际: %v", err)
	}

	f.svc.AddContext("T1", domain.ContextMessage{Action: "click"})

	stats, err := f.svc.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop 失败: %v", err)
	}
	if stats.ContextCount != 1 {
		t.Errorf("停止应返回最终统计，实际 %+v", stats)
	}
	if f.svc.Status().State != domain.StateIdle {
		t.Errorf("停止后应回到 IDLE")
	}
	if f.browser.detachCount() != 1 {
		t.Errorf("停止应断开目标，断开错误被忽略")
	}
	if f.ui.deactivated != 1 {
		t.Errorf("停止应关闭界面采集")
	}
	if f.svc.Status().ContextCount != 1 {
		t.Errorf("停止后记录应保留")
	}
}

func TestStartFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		wantCode errx.Code
		detached bool
	}{
		{
			name: "目标不存在",
			setup: func(f *fixture) {
				f.browser.resolveErr = errx.Wrap(errx.CodeTargetNotFound, domain.ErrTargetNotFound, "T9")
			},
			wantCode: errx.CodeTargetNotFound,
		},
		{
			name:     "附加失败",
			setup:    func(f *fixture) { f.browser.attachErr = errors.New("dial refused") },
			wantCode: errx.CodeAttachFailed,
			detached: true,
		},
		{
			name:     "开启网络域失败",
			setup:    func(f *fixture) { f.browser.target.enableErr = errors.New("boom") },
			wantCode: errx.CodeAttachFailed,
			detached: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			err := f.svc.Start(context.Background(), "")
			if !errx.Is(err, tt.wantCode) {
				t.Fatalf("期望错误码 %s，实际: %v", tt.wantCode, err)
			}
			st := f.svc.Status()
			if st.State != domain.StateIdle || st.TargetID != "" {
				t.Errorf("失败后应完全重置到 IDLE，实际 %+v", st)
			}
			if got := f.browser.detachCount() > 0; got != tt.detached {
				t.Errorf("断开调用 = %v, 期望 %v", got, tt.detached)
			}
		})
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("无记录", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Export(ctx)
		if !errors.Is(err, domain.ErrNothingToExport) || !errx.Is(err, errx.CodeNothingToExport) {
			t.Fatalf("期望 NothingToExport，实际: %v", err)
		}
		if f.svc.Status().State != domain.StateIdle {
			t.Errorf("状态应保持 IDLE")
		}
	})

	t.Run("捕获中导出先停止", func(t *testing.T) {
		f := newFixture()
		if err := f.svc.Start(ctx, ""); err != nil {
			t.Fatalf("Start 失败: %v", err)
		}
		f.svc.AddContext("T1", domain.ContextMessage{Action: "input"})

		res, err := f.svc.Export(ctx)
		if err != nil {
			t.Fatalf("Export 失败: %v", err)
		}
		if res.Path == "" || res.Stats.ContextCount != 1 {
			t.Errorf("导出结果不符: %+v", res)
		}
		if len(f.history.ids) != 1 || f.history.ids[0] != "cap-1" {
			t.Errorf("导出历史未登记: %v", f.history.ids)
		}
		if f.exporter.last.TargetID != "T1" || f.exporter.last.TargetURL != "https://app.example.com/" {
			t.Errorf("记录集缺少目标信息: %+v", f.exporter.last)
		}
		if f.browser.detachCount() != 1 {
			t.Errorf("导出前应先停止捕获")
		}
		st := f.svc.Status()
		if st.State != domain.StateIdle || st.ContextCount != 0 {
			t.Errorf("导出后应重置，实际 %+v", st)
		}
	})

	t.Run("导出失败仍重置", func(t *testing.T) {
		f := newFixture()
		f.exporter.err = errors.New("disk full")
		if err := f.svc.Start(ctx, ""); err != nil {
			t.Fatalf("Start 失败: %v", err)
		}
		f.svc.AddContext("T1", domain.ContextMessage{Action: "click"})
		if _, err := f.svc.Stop(ctx); err != nil {
			t.Fatalf("Stop 失败: %v", err)
		}

		_, err := f.svc.Export(ctx)
		if !errx.Is(err, errx.CodeExportFailed) {
			t.Fatalf("期望 EXPORT_FAILED，实际: %v", err)
		}
		if len(f.history.ids) != 0 {
			t.Errorf("失败的导出不应登记历史")
		}
		st := f.svc.Status()
		if st.State != domain.StateIdle || st.ContextCount != 0 {
			t.Errorf("导出失败后也应重置，实际 %+v", st)
		}
	})
}

func TestConsumeDispatchesEvents(t *testing.T) {
	f := newFixture()
	if err := f.svc.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start 失败: %v", err)
	}

	tg := f.browser.target
	tg.events <- protocol.Event{Target: "T1", Method: protocol.MethodWebSocketCreated,
		Params: &protocol.WebSocketCreated{RequestID: "w1", URL: "wss://app.example.com/live"}}

	waitFor(t, func() bool { return f.svc.Status().WsConnectionCount == 1 })
}

func TestExternalDetach(t *testing.T) {
	f := newFixture()
	if err := f.svc.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start 失败: %v", err)
	}
	f.svc.AddContext("T1", domain.ContextMessage{Action: "click"})

	f.browser.target.externalDetach()

	waitFor(t, func() bool {
		st := f.svc.Status()
		return st.State == domain.StateIdle && st.ContextCount == 0
	})
	f.ui.mu.Lock()
	defer f.ui.mu.Unlock()
	if f.ui.deactivated != 1 {
		t.Errorf("外部分离应关闭界面采集")
	}
}

func TestForceDetachWhileIdle(t *testing.T) {
	f := newFixture()
	f.svc.ForceDetach("inspector detached")
	if f.svc.Status().State != domain.StateIdle {
		t.Errorf("任意状态下强制分离都应回到 IDLE")
	}
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture()
	want := domain.Settings{InjectTypename: false, InjectApqError: true}

	if err := f.svc.UpdateSettings(context.Background(), want); err != nil {
		t.Fatalf("UpdateSettings 失败: %v", err)
	}
	if got := f.svc.Settings(); got != want {
		t.Errorf("设置未立即生效: %+v", got)
	}
	if len(f.repo.saved) != 1 || f.repo.saved[0] != want {
		t.Errorf("设置未持久化: %+v", f.repo.saved)
	}
}

func TestStatusElapsed(t *testing.T) {
	f := newFixture()
	now := time.UnixMilli(1_000_000)
	f.svc.SetClock(func() time.Time { return now })
	if err := f.svc.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start 失败: %v", err)
	}
	now = now.Add(1500 * time.Millisecond)

	st := f.svc.Status()
	if st.StartedAt != 1_000_000 || st.ElapsedMs != 1500 {
		t.Errorf("耗时计算不符: %+v", st)
	}
}
