package tracker_test

import (
	"reflect"
	"testing"
	"time"

	"spectral/internal/logger"
	"spectral/internal/protocol"
	"spectral/internal/session"
	"spectral/internal/tracker"
	"spectral/pkg/domain"
)

func newTracker() (*tracker.Tracker, *session.Store) {
	st := session.NewStore(domain.Settings{})
	tr := tracker.New(st, 2000, logger.NewNop())
	tr.SetClock(func() time.Time { return time.UnixMilli(10_000) })
	return tr, st
}

func TestConnectionLifecycle(t *testing.T) {
	tr, st := newTracker()
	st.Do(func(s *session.Session) {
		s.AddContext(&domain.UIContext{ID: s.NextContextID(), Timestamp: 9_000})
	})

	tr.OnCreated(&protocol.WebSocketCreated{RequestID: "w1", URL: "wss://example.com/live"})
	tr.OnHandshake(&protocol.WebSocketHandshake{
		RequestID: "w1",
		Headers:   []domain.Header{{Name: "sec-websocket-protocol", Value: "graphql-ws, json "}},
	})
	tr.OnFrame(&protocol.WebSocketFrame{RequestID: "w1", Opcode: 1, PayloadData: `{"type":"hello"}`}, domain.DirectionSend)
	tr.OnFrame(&protocol.WebSocketFrame{RequestID: "w1", Opcode: 2, PayloadData: "AAEC"}, domain.DirectionReceive)
	tr.OnClosed(&protocol.WebSocketClosed{RequestID: "w1"})

	st.Do(func(s *session.Session) {
		if len(s.Connections) != 1 {
			t.Fatalf("期望 1 个连接，实际 %d", len(s.Connections))
		}
		c := s.Connections[0]
		if c.ID != "ws_0001" {
			t.Errorf("连接编号 = %s", c.ID)
		}
		if !reflect.DeepEqual(c.Protocols, []string{"graphql-ws", "json"}) {
			t.Errorf("子协议解析错误: %v", c.Protocols)
		}
		if !reflect.DeepEqual(c.ContextRefs, []string{"c_0001"}) {
			t.Errorf("连接关联错误: %v", c.ContextRefs)
		}
		if c.MessageCount != 2 || len(c.Messages) != 2 || len(s.Messages) != 2 {
			t.Fatalf("帧数量错误: count=%d len=%d global=%d", c.MessageCount, len(c.Messages), len(s.Messages))
		}

		m1, m2 := c.Messages[0], c.Messages[1]
		if m1.ID != "ws_0001_m001" || m2.ID != "ws_0001_m002" {
			t.Errorf("帧编号错误: %s %s", m1.ID, m2.ID)
		}
		if m1.Direction != domain.DirectionSend || m1.Opcode != domain.OpcodeText || string(m1.Payload) != `{"type":"hello"}` {
			t.Errorf("文本帧错误: %+v", m1)
		}
		if m2.Direction != domain.DirectionReceive || m2.Opcode != domain.OpcodeBinary || !reflect.DeepEqual(m2.Payload, []byte{0, 1, 2}) {
			t.Errorf("二进制帧错误: %+v", m2)
		}
		if m2.ConnectionRef != "ws_0001" {
			t.Errorf("connection_ref 错误: %s", m2.ConnectionRef)
		}

		kinds := make([]domain.TimelineKind, 0)
		for _, e := range s.Timeline {
			kinds = append(kinds, e.Type)
		}
		want := []domain.TimelineKind{domain.TimelineContext, domain.TimelineWsOpen, domain.TimelineWsMessage, domain.TimelineWsMessage}
		if !reflect.DeepEqual(kinds, want) {
			t.Errorf("时间线错误: %v", kinds)
		}
	})
}

func TestOpcodeClassification(t *testing.T) {
	tests := []struct {
		name    string
		opcode  int
		payload string
		want    domain.Opcode
		body    string
	}{
		{"文本帧", 1, "hi", domain.OpcodeText, "hi"},
		{"二进制帧", 2, "aGk=", domain.OpcodeBinary, "hi"},
		{"二进制帧解码失败保留原文", 2, "%%", domain.OpcodeBinary, "%%"},
		{"未知操作码按文本处理", 9, "ping", domain.OpcodeText, "ping"},
		{"控制帧按文本处理", 8, "", domain.OpcodeText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, st := newTracker()
			tr.OnCreated(&protocol.WebSocketCreated{RequestID: "w1", URL: "wss://x"})
			tr.OnFrame(&protocol.WebSocketFrame{RequestID: "w1", Opcode: tt.opcode, PayloadData: tt.payload}, domain.DirectionReceive)
			st.Do(func(s *session.Session) {
				m := s.Messages[0]
				if m.Opcode != tt.want || string(m.Payload) != tt.body {
					t.Errorf("opcode=%s payload=%q, 期望 %s %q", m.Opcode, m.Payload, tt.want, tt.body)
				}
			})
		})
	}
}

func TestUnknownConnectionIgnored(t *testing.T) {
	tr, st := newTracker()
	tr.OnHandshake(&protocol.WebSocketHandshake{RequestID: "nope"})
	tr.OnFrame(&protocol.WebSocketFrame{RequestID: "nope", Opcode: 1, PayloadData: "x"}, domain.DirectionSend)

	st.Do(func(s *session.Session) {
		if len(s.Messages) != 0 || len(s.Timeline) != 0 {
			t.Errorf("未知连接的事件应被忽略")
		}
	})
}

func TestMessageIDsPerConnection(t *testing.T) {
	tr, st := newTracker()
	tr.OnCreated(&protocol.WebSocketCreated{RequestID: "w1", URL: "wss://a"})
	tr.OnCreated(&protocol.WebSocketCreated{RequestID: "w2", URL: "wss://b"})
	for _, id := range []string{"w1", "w2", "w1", "w2", "w1"} {
		tr.OnFrame(&protocol.WebSocketFrame{RequestID: id, Opcode: 1, PayloadData: "x"}, domain.DirectionSend)
	}

	st.Do(func(s *session.Session) {
		got := make([]string, 0)
		for _, m := range s.Messages {
			got = append(got, m.ID)
		}
		want := []string{"ws_0001_m001", "ws_0002_m001", "ws_0001_m002", "ws_0002_m002", "ws_0001_m003"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("帧编号 = %v, 期望 %v", got, want)
		}
	})
}
