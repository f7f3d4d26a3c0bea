package service

import (
	"context"
	"sync"
	"time"

	"spectral/internal/handler"
	"spectral/internal/logger"
	"spectral/internal/protocol"
	"spectral/internal/session"
	"spectral/pkg/domain"
	"spectral/pkg/errx"
)

// Target 已附加的调试会话
type Target interface {
	handler.Remote
	ID() domain.TargetID
	// Enable 订阅事件并开启网络域与请求拦截
	Enable(ctx context.Context) error
	// Consume 阻塞消费事件，会话分离或连接断开时返回
	Consume(ctx context.Context, fn func(protocol.Event)) error
	Close() error
}

// Browser 浏览器目标的解析与附加
type Browser interface {
	ListTargets(ctx context.Context) ([]domain.TargetInfo, error)
	Resolve(ctx context.Context, id domain.TargetID) (domain.TargetInfo, error)
	Attach(ctx context.Context, info domain.TargetInfo) (Target, error)
	Detach(id domain.TargetID) error
}

// UICapture 页面侧界面采集开关
type UICapture interface {
	Activate(ctx context.Context, target domain.TargetID) domain.UICaptureResult
	Deactivate(ctx context.Context, target domain.TargetID) domain.UICaptureResult
}

// Exporter 把记录集写成捕获包，返回捕获ID和输出位置
type Exporter interface {
	Export(ctx context.Context, c *domain.Capture) (domain.ExportResult, error)
}

// History 导出历史登记
type History interface {
	RecordExport(ctx context.Context, captureID, path string, c *domain.Capture) error
}

// SettingsRepo 拦截设置持久化
type SettingsRepo interface {
	SaveSettings(ctx context.Context, s domain.Settings) error
}

// Config 服务依赖
type Config struct {
	Store     *session.Store
	Handler   *handler.Handler
	Browser   Browser
	UICapture UICapture
	Exporter  Exporter
	Settings  SettingsRepo
	History   History
	Logger    logger.Logger
}

// attachment 当前附加的目标及其消费协程
type attachment struct {
	target Target
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Service 捕获生命周期，生命周期命令由 mu 串行化
type Service struct {
	mu       sync.Mutex
	store    *session.Store
	handler  *handler.Handler
	browser  Browser
	ui       UICapture
	exporter Exporter
	settings SettingsRepo
	history  History
	log      logger.Logger
	now      func() time.Time

	cur *attachment
}

// New 创建服务层实例
func New(cfg Config) *Service {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Service{
		store:    cfg.Store,
		handler:  cfg.Handler,
		browser:  cfg.Browser,
		ui:       cfg.UICapture,
		exporter: cfg.Exporter,
		settings: cfg.Settings,
		history:  cfg.History,
		log:      l,
		now:      time.Now,
	}
}

// SetClock 替换时间源
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) state() domain.CaptureState {
	return s.store.State()
}

func (s *Service) setState(st domain.CaptureState) {
	s.store.Do(func(ss *session.Session) { ss.State = st })
}

// Start 附加目标并开始捕获，target 为空时取第一个 page 目标
func (s *Service) Start(ctx context.Context, target domain.TargetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.state(); cur != domain.StateIdle {
		return domain.NewInvalidStateError("start", cur)
	}

	gen := s.store.Reset()
	s.setState(domain.StateAttaching)

	info, err := s.browser.Resolve(ctx, target)
	if err != nil {
		return s.abort(err, "解析目标失败", "")
	}
	s.store.Do(func(ss *session.Session) {
		ss.Target = info.ID
		ss.TargetURL = info.URL
		ss.TargetTitle = info.Title
	})

	s.activateUI(ctx, info.ID)

	t, err := s.browser.Attach(ctx, info)
	if err != nil {
		return s.abort(err, "附加目标失败", info.ID)
	}
	if err := t.Enable(ctx); err != nil {
		return s.abort(errx.Wrap(errx.CodeAttachFailed, err, "enable domains"), "开启网络捕获失败", info.ID)
	}

	startedAt := s.now().UnixMilli()
	s.store.Do(func(ss *session.Session) {
		ss.StartedAt = startedAt
		ss.State = domain.StateCapturing
	})

	runCtx, cancel := context.WithCancel(context.Background())
	a := &attachment{target: t, gen: gen, cancel: cancel, done: make(chan struct{})}
	s.cur = a
	go s.consume(runCtx, a)

	s.log.Info("开始捕获", "target", string(info.ID), "url", info.URL)
	return nil
}

// abort 启动失败时尽力断开并完全重置
func (s *Service) abort(err error, msg string, target domain.TargetID) error {
	s.log.Err(err, msg, "target", string(target))
	if target != "" {
		s.deactivateUI(context.Background(), target)
		if derr := s.browser.Detach(target); derr != nil {
			s.log.Debug("启动失败后断开目标出错", "target", string(target), "error", derr)
		}
	}
	s.store.Reset()
	if errx.CodeOf(err) == "" {
		return errx.Wrap(errx.CodeAttachFailed, err, msg)
	}
	return err
}

// consume 在独立协程中按到达顺序分发事件
func (s *Service) consume(ctx context.Context, a *attachment) {
	defer close(a.done)
	// 分发上下文不随停止取消，进行中的响应体获取可以完成
	dispatchCtx := context.WithoutCancel(ctx)
	err := a.target.Consume(ctx, func(ev protocol.Event) {
		s.handler.Dispatch(dispatchCtx, a.target, ev)
	})
	if ctx.Err() != nil {
		return
	}

	reason := "event stream ended"
	if err != nil {
		reason = err.Error()
	}
	s.forceDetach(a.gen, reason)
}

// Stop 停止捕获并返回最终统计，记录保留以便导出
func (s *Service) Stop(ctx context.Context) (domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.state(); cur != domain.StateCapturing {
		return domain.Stats{}, domain.NewInvalidStateError("stop", cur)
	}
	return s.stopLocked(ctx), nil
}

func (s *Service) stopLocked(ctx context.Context) domain.Stats {
	var (
		target domain.TargetID
		stats  domain.Stats
	)
	s.store.Do(func(ss *session.Session) { target = ss.Target })

	s.deactivateUI(ctx, target)
	s.detach()

	s.store.Do(func(ss *session.Session) {
		ss.State = domain.StateIdle
		stats = ss.Stats()
	})
	s.log.Info("停止捕获", "target", string(target), "traces", stats.TraceCount, "contexts", stats.ContextCount)
	return stats
}

// detach 取消消费协程并断开目标，错误忽略
func (s *Service) detach() {
	a := s.cur
	s.cur = nil
	if a == nil {
		return
	}
	a.cancel()
	if err := s.browser.Detach(a.target.ID()); err != nil {
		s.log.Debug("断开目标出错", "target", string(a.target.ID()), "error", err)
	}
}

// Export 导出当前记录集，无论成功与否都重置到 IDLE
func (s *Service) Export(ctx context.Context) (domain.ExportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state()
	if cur != domain.StateIdle && cur != domain.StateCapturing {
		return domain.ExportResult{}, domain.NewInvalidStateError("export", cur)
	}

	var stats domain.Stats
	s.store.Do(func(ss *session.Session) { stats = ss.Stats() })
	if stats.TraceCount == 0 && stats.ContextCount == 0 {
		return domain.ExportResult{}, errx.Wrap(errx.CodeNothingToExport, domain.ErrNothingToExport, "no traces or contexts captured")
	}

	if cur == domain.StateCapturing {
		s.stopLocked(ctx)
	}

	var capture *domain.Capture
	endedAt := s.now().UnixMilli()
	s.store.Do(func(ss *session.Session) {
		ss.State = domain.StateExporting
		capture = ss.Capture(endedAt)
	})

	res, err := s.exporter.Export(ctx, capture)
	s.store.Reset()
	if err != nil {
		s.log.Err(err, "导出失败")
		return domain.ExportResult{}, errx.Wrap(errx.CodeExportFailed, err, "write bundle")
	}
	res.Stats = capture.Stats()

	if s.history != nil {
		if err := s.history.RecordExport(ctx, res.CaptureID, res.Path, capture); err != nil {
			s.log.Warn("登记导出历史失败", "captureID", res.CaptureID, "error", err)
		}
	}
	s.log.Info("导出完成", "path", res.Path, "captureID", res.CaptureID, "traces", res.Stats.TraceCount)
	return res, nil
}

// ForceDetach 外部分离通知，无条件回到 IDLE
func (s *Service) ForceDetach(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceDetachLocked(reason)
}

// forceDetach 仅在分离的仍是当前会话时生效
func (s *Service) forceDetach(gen uint64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.gen != gen {
		return
	}
	s.forceDetachLocked(reason)
}

func (s *Service) forceDetachLocked(reason string) {
	var target domain.TargetID
	s.store.Do(func(ss *session.Session) { target = ss.Target })

	s.log.Warn("目标被外部分离", "target", string(target), "reason", reason)
	s.deactivateUI(context.Background(), target)
	s.detach()
	s.store.Reset()
}

// Status 当前状态快照
func (s *Service) Status() domain.Status {
	now := s.now().UnixMilli()
	var st domain.Status
	s.store.Do(func(ss *session.Session) {
		st = domain.Status{
			State:        ss.State,
			TargetID:     ss.Target,
			StartedAt:    ss.StartedAt,
			PendingCount: len(ss.Pending),
			Stats:        ss.Stats(),
		}
		if ss.State == domain.StateCapturing && ss.StartedAt > 0 {
			st.ElapsedMs = now - ss.StartedAt
		}
	})
	st.Settings = s.store.Settings()
	return st
}

// Settings 当前拦截设置
func (s *Service) Settings() domain.Settings {
	return s.store.Settings()
}

// UpdateSettings 立即生效并持久化拦截设置
func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) error {
	s.store.SetSettings(settings)
	s.log.Info("拦截设置已更新", "inject_typename", settings.InjectTypename, "inject_apq_error", settings.InjectApqError)
	if s.settings == nil {
		return nil
	}
	if err := s.settings.SaveSettings(ctx, settings); err != nil {
		s.log.Err(err, "保存拦截设置失败")
		return err
	}
	return nil
}

// Targets 列出浏览器中的 page 目标
func (s *Service) Targets(ctx context.Context) ([]domain.TargetInfo, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.browser.ListTargets(queryCtx)
}

// AddContext 记录一条界面交互
func (s *Service) AddContext(target domain.TargetID, msg domain.ContextMessage) (*domain.UIContext, bool) {
	return s.handler.AddContext(target, msg)
}

func (s *Service) activateUI(ctx context.Context, target domain.TargetID) {
	if s.ui == nil {
		return
	}
	if r := s.ui.Activate(ctx, target); r != domain.UICaptureOK {
		s.log.Warn("页面侧界面采集不可达", "target", string(target))
	}
}

func (s *Service) deactivateUI(ctx context.Context, target domain.TargetID) {
	if s.ui == nil || target == "" {
		return
	}
	if r := s.ui.Deactivate(ctx, target); r != domain.UICaptureOK {
		s.log.Debug("关闭页面侧界面采集时不可达", "target", string(target))
	}
}
