package manager

import (
	"context"
	"fmt"
	"sync"

	cdpadapter "spectral/internal/adapter/cdp"
	"spectral/internal/logger"
	"spectral/pkg/domain"
	"spectral/pkg/errx"

	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"
)

// Manager 负责解析浏览器目标并建立调试会话
type Manager struct {
	devtoolsURL     string
	writeBufferSize int
	log             logger.Logger
	mu              sync.RWMutex
	sessions        map[domain.TargetID]*cdpadapter.Session
}

// New 创建会话管理器
func New(devtoolsURL string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		devtoolsURL:     devtoolsURL,
		writeBufferSize: 16 * 1024 * 1024,
		log:             log,
		sessions:        make(map[domain.TargetID]*cdpadapter.Session),
	}
}

// ListTargets 列出当前浏览器中的所有 page 目标，并标记哪些已附加
func (m *Manager) ListTargets(ctx context.Context) ([]domain.TargetInfo, error) {
	targets, err := m.list(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t == nil || t.Type != "page" {
			continue
		}
		id := domain.TargetID(t.ID)
		out = append(out, domain.TargetInfo{
			ID:        id,
			Type:      string(t.Type),
			URL:       t.URL,
			Title:     t.Title,
			IsCurrent: m.sessions[id] != nil,
		})
	}
	return out, nil
}

// Resolve 按 ID 查找 page 目标，ID 为空时取第一个 page 目标
func (m *Manager) Resolve(ctx context.Context, id domain.TargetID) (domain.TargetInfo, error) {
	t, err := m.selectTarget(ctx, id)
	if err != nil {
		return domain.TargetInfo{}, err
	}
	return domain.TargetInfo{ID: domain.TargetID(t.ID), Type: string(t.Type), URL: t.URL, Title: t.Title}, nil
}

// Attach 连接目标的调试地址并创建会话
func (m *Manager) Attach(ctx context.Context, info domain.TargetInfo) (*cdpadapter.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[info.ID]; ok {
		return s, nil
	}

	t, err := m.selectTarget(ctx, info.ID)
	if err != nil {
		return nil, err
	}

	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL,
		rpcc.WithWriteBufferSize(m.writeBufferSize),
		rpcc.WithCompression())
	if err != nil {
		m.log.Err(err, "连接浏览器 DevTools 失败", "target", string(info.ID))
		return nil, errx.Wrap(errx.CodeAttachFailed, err, "dial target")
	}

	s := cdpadapter.NewSession(info.ID, conn, m.log)
	m.sessions[info.ID] = s
	m.log.Info("附加浏览器目标成功", "target", string(info.ID), "url", t.URL)
	return s, nil
}

// Detach 断开单个目标连接并释放资源
func (m *Manager) Detach(id domain.TargetID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// DetachAll 断开所有目标连接
func (m *Manager) DetachAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[domain.TargetID]*cdpadapter.Session)
	m.mu.Unlock()

	for id, s := range sessions {
		if err := s.Close(); err != nil {
			m.log.Warn("断开目标连接失败", "target", string(id), "error", err)
		}
	}
}

func (m *Manager) list(ctx context.Context) ([]*devtool.Target, error) {
	if m.devtoolsURL == "" {
		return nil, errx.Wrap(errx.CodeDevToolsUnreachable, domain.ErrDevToolsUnreachable, "devtools url empty")
	}
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		m.log.Err(err, "获取浏览器目标列表失败", "devtools", m.devtoolsURL)
		return nil, errx.Wrap(errx.CodeDevToolsUnreachable, fmt.Errorf("%w: %v", domain.ErrDevToolsUnreachable, err), m.devtoolsURL)
	}
	return targets, nil
}

// selectTarget 根据传入的 targetID 或默认策略选择目标
func (m *Manager) selectTarget(ctx context.Context, id domain.TargetID) (*devtool.Target, error) {
	targets, err := m.list(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range targets {
		if t == nil || t.Type != "page" {
			continue
		}
		if id == "" || string(t.ID) == string(id) {
			return t, nil
		}
	}

	if id == "" {
		return nil, errx.Wrap(errx.CodeTargetNotFound, domain.ErrTargetNotFound, "no page target")
	}
	return nil, errx.Wrap(errx.CodeTargetNotFound, domain.ErrTargetNotFound, string(id))
}
