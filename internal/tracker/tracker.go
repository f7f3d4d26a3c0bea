// Package tracker 追踪 WebSocket 连接和帧
package tracker

import (
	"encoding/base64"
	"strings"
	"time"

	"spectral/internal/correlator"
	"spectral/internal/logger"
	"spectral/internal/protocol"
	"spectral/internal/session"
	"spectral/pkg/domain"
)

// opcodeBinary 二进制帧的协议操作码
const opcodeBinary = 2

const protocolHeader = "Sec-WebSocket-Protocol"

// Tracker WebSocket 追踪器
type Tracker struct {
	store  *session.Store
	window int64
	log    logger.Logger
	now    func() time.Time
}

// New 创建追踪器
func New(store *session.Store, windowMS int64, l logger.Logger) *Tracker {
	if l == nil {
		l = logger.NewNop()
	}
	if windowMS <= 0 {
		windowMS = correlator.DefaultWindowMS
	}
	return &Tracker{store: store, window: windowMS, log: l, now: time.Now}
}

// SetClock 替换时间源
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// OnCreated 连接建立，时间戳取接收时间
func (t *Tracker) OnCreated(ev *protocol.WebSocketCreated) {
	if ev == nil {
		return
	}
	ts := t.now().UnixMilli()
	t.store.Do(func(s *session.Session) {
		c := &domain.WsConnection{
			ID:          s.NextConnectionID(),
			Timestamp:   ts,
			URL:         ev.URL,
			Protocols:   []string{},
			Messages:    make([]*domain.WsMessage, 0),
			ContextRefs: correlator.FindContextRefs(s.Contexts, ts, t.window),
		}
		s.AddConnection(ev.RequestID, c)
		t.log.Debug("WebSocket 连接已建立", "id", c.ID, "url", c.URL)
	})
}

// OnHandshake 记录协商的子协议
func (t *Tracker) OnHandshake(ev *protocol.WebSocketHandshake) {
	if ev == nil {
		return
	}
	t.store.Do(func(s *session.Session) {
		c, ok := s.Connection(ev.RequestID)
		if !ok {
			return
		}
		value, ok := protocol.HeaderValue(ev.Headers, protocolHeader)
		if !ok {
			return
		}
		c.Protocols = splitProtocols(value)
	})
}

// OnFrame 记录一帧，发送与接收仅方向不同
func (t *Tracker) OnFrame(ev *protocol.WebSocketFrame, dir domain.Direction) {
	if ev == nil {
		return
	}
	t.store.Do(func(s *session.Session) {
		c, ok := s.Connection(ev.RequestID)
		if !ok {
			return
		}
		ts := s.Clock.ToEpochMs(ev.Timestamp, t.now())
		opcode, payload := decodeFrame(ev.Opcode, ev.PayloadData)
		m := &domain.WsMessage{
			ID:            protocol.MessageID(c.ID, len(c.Messages)+1),
			ConnectionRef: c.ID,
			Timestamp:     ts,
			Direction:     dir,
			Opcode:        opcode,
			Payload:       payload,
			ContextRefs:   correlator.FindContextRefs(s.Contexts, ts, t.window),
		}
		s.AddMessage(c, m)
	})
}

// OnClosed 连接保留到会话结束，便于导出
func (t *Tracker) OnClosed(ev *protocol.WebSocketClosed) {
	if ev == nil {
		return
	}
	t.log.Debug("WebSocket 连接已关闭", "requestID", ev.RequestID)
}

func decodeFrame(opcode int, data string) (domain.Opcode, []byte) {
	if opcode != opcodeBinary {
		return domain.OpcodeText, []byte(data)
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return domain.OpcodeBinary, []byte(data)
	}
	return domain.OpcodeBinary, decoded
}

func splitProtocols(value string) []string {
	out := make([]string, 0)
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
