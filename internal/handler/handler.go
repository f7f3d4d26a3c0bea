package handler

import (
	"context"
	"time"

	"spectral/internal/interceptor"
	"spectral/internal/logger"
	"spectral/internal/network"
	"spectral/internal/protocol"
	"spectral/internal/session"
	"spectral/internal/tracker"
	"spectral/pkg/domain"
)

// Remote 被调试会话提供的远程操作
type Remote interface {
	network.Fetcher
	interceptor.Forwarder
}

// Handler 事件分发器，只处理捕获中且来自当前目标的事件
type Handler struct {
	store       *session.Store
	network     *network.Builder
	tracker     *tracker.Tracker
	interceptor *interceptor.Interceptor
	log         logger.Logger
	now         func() time.Time
}

// Config 配置选项
type Config struct {
	Store       *session.Store
	Network     *network.Builder
	Tracker     *tracker.Tracker
	Interceptor *interceptor.Interceptor
	Logger      logger.Logger
}

// New 创建事件分发器
func New(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Handler{
		store:       cfg.Store,
		network:     cfg.Network,
		tracker:     cfg.Tracker,
		interceptor: cfg.Interceptor,
		log:         l,
		now:         time.Now,
	}
}

// SetClock 替换时间源
func (h *Handler) SetClock(now func() time.Time) { h.now = now }

// active 当前是否在捕获该目标
func (h *Handler) active(target domain.TargetID) bool {
	ok := false
	h.store.Do(func(s *session.Session) {
		ok = s.State == domain.StateCapturing && (target == "" || target == s.Target)
	})
	return ok
}

// Dispatch 路由一个协议事件
func (h *Handler) Dispatch(ctx context.Context, remote Remote, ev protocol.Event) {
	if !h.active(ev.Target) {
		// 被丢弃的暂停请求仍需放行，否则页面会挂起
		if paused, ok := ev.Params.(*protocol.RequestPaused); ok && remote != nil {
			h.interceptor.Passthrough(ctx, remote, paused, "not capturing")
		}
		return
	}

	switch p := ev.Params.(type) {
	case *protocol.RequestWillBeSent:
		h.network.OnRequestWillBeSent(p)
	case *protocol.ResponseReceived:
		h.network.OnResponseReceived(p)
	case *protocol.ExtraInfo:
		switch ev.Method {
		case protocol.MethodRequestExtraInfo:
			h.network.OnRequestExtraInfo(p)
		case protocol.MethodResponseExtraInfo:
			h.network.OnResponseExtraInfo(p)
		default:
			h.log.Debug("未知的线上头部事件", "method", ev.Method)
		}
	case *protocol.LoadingFinished:
		h.network.OnLoadingFinished(ctx, remote, p)
	case *protocol.LoadingFailed:
		h.network.OnLoadingFailed(p)
	case *protocol.WebSocketCreated:
		h.tracker.OnCreated(p)
	case *protocol.WebSocketHandshake:
		h.tracker.OnHandshake(p)
	case *protocol.WebSocketFrame:
		switch ev.Method {
		case protocol.MethodWebSocketFrameSent:
			h.tracker.OnFrame(p, domain.DirectionSend)
		case protocol.MethodWebSocketFrameReceived:
			h.tracker.OnFrame(p, domain.DirectionReceive)
		default:
			h.log.Debug("未知的帧事件", "method", ev.Method)
		}
	case *protocol.WebSocketClosed:
		h.tracker.OnClosed(p)
		h.network.Forget(p.RequestID)
	case *protocol.RequestPaused:
		if remote == nil {
			return
		}
		h.interceptor.Dispatch(ctx, remote, p)
	default:
		h.log.Debug("忽略未处理的事件", "method", ev.Method)
	}
}

// AddContext 接收一条界面交互消息，不在捕获中或目标不匹配时返回 false
func (h *Handler) AddContext(target domain.TargetID, msg domain.ContextMessage) (*domain.UIContext, bool) {
	ts := h.now().UnixMilli()
	if msg.Timestamp != nil && *msg.Timestamp > 0 {
		ts = *msg.Timestamp
	}

	var (
		ctx *domain.UIContext
		ok  bool
	)
	h.store.Do(func(s *session.Session) {
		if s.State != domain.StateCapturing || (target != "" && target != s.Target) {
			return
		}
		ctx = &domain.UIContext{
			ID:        s.NextContextID(),
			Timestamp: ts,
			Action:    msg.Action,
			Element:   msg.Element,
			Page:      msg.Page,
			Viewport:  msg.Viewport,
		}
		s.AddContext(ctx)
		ok = true
	})
	if ok {
		h.log.Debug("界面上下文已记录", "id", ctx.ID, "action", ctx.Action)
	}
	return ctx, ok
}
