package domain_test

import (
	"errors"
	"strings"
	"testing"

	"spectral/pkg/domain"
	"spectral/pkg/errx"
)

func TestTimingSum(t *testing.T) {
	tests := []struct {
		name   string
		timing domain.Timing
		want   float64
	}{
		{name: "全零", timing: domain.Timing{}, want: 0},
		{
			name:   "六段相加",
			timing: domain.Timing{DNSMs: 1, ConnectMs: 2, TLSMs: 3, SendMs: 4, WaitMs: 5, ReceiveMs: 6},
			want:   21,
		},
		{
			name:   "Total 字段不参与求和",
			timing: domain.Timing{DNSMs: 1, TotalMs: 100},
			want:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.timing.Sum(); got != tt.want {
				t.Errorf("Sum() = %v, 期望 %v", got, tt.want)
			}
		})
	}
}

func TestCaptureStats(t *testing.T) {
	c := &domain.Capture{
		Traces:      []*domain.Trace{{ID: "t_0001"}, {ID: "t_0002"}},
		Connections: []*domain.WsConnection{{ID: "ws_0001"}},
		Messages:    []*domain.WsMessage{{ID: "ws_0001_m001"}, {ID: "ws_0001_m002"}, {ID: "ws_0001_m003"}},
	}
	got := c.Stats()
	want := domain.Stats{TraceCount: 2, WsConnectionCount: 1, WsMessageCount: 3, ContextCount: 0}
	if got != want {
		t.Errorf("Stats() = %+v, 期望 %+v", got, want)
	}
}

func TestNewInvalidStateError(t *testing.T) {
	err := domain.NewInvalidStateError("stop", domain.StateIdle)

	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("错误链中应包含 ErrInvalidState")
	}
	if !errx.Is(err, errx.CodeInvalidState) {
		t.Errorf("错误码应为 %s", errx.CodeInvalidState)
	}
	if !strings.Contains(err.Error(), "IDLE") {
		t.Errorf("错误消息应包含当前状态，实际: %s", err.Error())
	}
}
