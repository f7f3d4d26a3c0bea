// Package uicapture 与页面侧界面采集脚本通信
package uicapture

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"spectral/internal/logger"
	"spectral/pkg/domain"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// 消息类型
const (
	TypeHello   = "hello"
	TypeContext = "context"
	TypeCapture = "capture"
)

// ContextSink 接收界面交互消息
type ContextSink interface {
	AddContext(target domain.TargetID, msg domain.ContextMessage) (*domain.UIContext, bool)
}

// Options 每个客户端的接收限速
type Options struct {
	Rate  float64
	Burst int
}

// Stats 计数
type Stats struct {
	Clients  int   `json:"clients"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Dropped  int64 `json:"dropped"`
}

// CaptureCommand 推送给页面侧的开关命令
type CaptureCommand struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type client struct {
	id      string
	conn    net.Conn
	limiter *rate.Limiter
	writeMu sync.Mutex

	mu     sync.Mutex
	target domain.TargetID
}

func (c *client) Target() domain.TargetID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerText(c.conn, data)
}

// Hub 管理页面侧连接，实现界面采集开关
type Hub struct {
	sink ContextSink
	opts Options
	log  logger.Logger

	mu      sync.RWMutex
	clients map[string]*client
	active  map[domain.TargetID]bool

	accepted atomic.Int64
	rejected atomic.Int64
	dropped  atomic.Int64
}

// New 创建 Hub
func New(sink ContextSink, opts Options, l logger.Logger) *Hub {
	if l == nil {
		l = logger.NewNop()
	}
	if opts.Rate <= 0 {
		opts.Rate = 50
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	return &Hub{
		sink:    sink,
		opts:    opts,
		log:     l,
		clients: make(map[string]*client),
		active:  make(map[domain.TargetID]bool),
	}
}

// ServeHTTP 升级为 WebSocket，target 查询参数可预先声明所在目标
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.log.Warn("界面采集连接升级失败", "error", err)
		return
	}

	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(h.opts.Rate), h.opts.Burst),
	}
	h.register(c)
	if t := r.URL.Query().Get("target"); t != "" {
		h.announce(c, domain.TargetID(t))
	}

	go h.readLoop(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("界面采集客户端已连接", "client", c.id, "clients", n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	_ = c.conn.Close()
	h.log.Debug("界面采集客户端已断开", "client", c.id)
}

// announce 绑定客户端所在目标，目标已在采集时立即下发开启命令
func (h *Hub) announce(c *client, target domain.TargetID) {
	c.mu.Lock()
	c.target = target
	c.mu.Unlock()

	h.mu.RLock()
	on := h.active[target]
	h.mu.RUnlock()
	if on {
		if err := c.send(CaptureCommand{Type: TypeCapture, Enabled: true}); err != nil {
			h.log.Debug("下发采集命令失败", "client", c.id, "error", err)
		}
	}
}

func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	for {
		data, err := wsutil.ReadClientText(c.conn)
		if err != nil {
			return
		}
		h.handle(c, data)
	}
}

func (h *Hub) handle(c *client, data []byte) {
	if !gjson.ValidBytes(data) {
		h.dropped.Add(1)
		h.log.Debug("丢弃无法解析的界面消息", "client", c.id)
		return
	}

	switch gjson.GetBytes(data, "type").String() {
	case TypeHello:
		h.announce(c, domain.TargetID(gjson.GetBytes(data, "target").String()))
	case TypeContext:
		if !c.limiter.Allow() {
			h.dropped.Add(1)
			h.log.Warn("界面消息超过限速，已丢弃", "client", c.id)
			return
		}
		var msg domain.ContextMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.dropped.Add(1)
			h.log.Debug("丢弃格式错误的界面上下文", "client", c.id, "error", err)
			return
		}
		if _, ok := h.sink.AddContext(c.Target(), msg); ok {
			h.accepted.Add(1)
		} else {
			h.rejected.Add(1)
		}
	default:
		h.dropped.Add(1)
	}
}

// Activate 通知目标页面开始采集，没有在线客户端时返回 Unreachable
func (h *Hub) Activate(ctx context.Context, target domain.TargetID) domain.UICaptureResult {
	return h.toggle(ctx, target, true)
}

// Deactivate 通知目标页面停止采集
func (h *Hub) Deactivate(ctx context.Context, target domain.TargetID) domain.UICaptureResult {
	return h.toggle(ctx, target, false)
}

func (h *Hub) toggle(ctx context.Context, target domain.TargetID, enabled bool) domain.UICaptureResult {
	h.mu.Lock()
	if enabled {
		h.active[target] = true
	} else {
		delete(h.active, target)
	}
	targets := h.clientsFor(target)
	h.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if ctx.Err() != nil {
			break
		}
		if err := c.send(CaptureCommand{Type: TypeCapture, Enabled: enabled}); err != nil {
			h.log.Debug("下发采集命令失败", "client", c.id, "error", err)
			continue
		}
		sent++
	}
	if sent == 0 {
		return domain.UICaptureUnreachable
	}
	return domain.UICaptureOK
}

// clientsFor 需持有 h.mu
func (h *Hub) clientsFor(target domain.TargetID) []*client {
	out := make([]*client, 0, 1)
	for _, c := range h.clients {
		if t := c.Target(); target == "" || t == target {
			out = append(out, c)
		}
	}
	return out
}

// ClientCount 已声明该目标的客户端数
func (h *Hub) ClientCount(target domain.TargetID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsFor(target))
}

// Stats 当前计数
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return Stats{
		Clients:  n,
		Accepted: h.accepted.Load(),
		Rejected: h.rejected.Load(),
		Dropped:  h.dropped.Load(),
	}
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
}
