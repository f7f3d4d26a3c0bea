package httpapi

import (
	"bytes"
	"net/http"

	"spectral/internal/pool"
	"spectral/internal/uicapture"
	"spectral/pkg/domain"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const textContentType = "text/plain; version=0.0.4; charset=utf-8"

// Metrics 按需采样各组件计数并输出文本格式
type Metrics struct {
	Status func() domain.Status
	Pool   func() pool.Stats
	Hub    func() uicapture.Stats
}

var captureStates = []domain.CaptureState{
	domain.StateIdle,
	domain.StateAttaching,
	domain.StateCapturing,
	domain.StateExporting,
}

// Families 采集一次快照
func (m *Metrics) Families() []*dto.MetricFamily {
	var out []*dto.MetricFamily

	if m.Status != nil {
		st := m.Status()
		state := &dto.MetricFamily{
			Name: strPtr("spectral_capture_state"),
			Help: strPtr("Current capture lifecycle state."),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		for _, s := range captureStates {
			v := 0.0
			if st.State == s {
				v = 1
			}
			state.Metric = append(state.Metric, gaugeMetric(v, "state", string(s)))
		}
		out = append(out,
			state,
			gauge("spectral_capture_traces", "Finalized HTTP traces in the current session.", float64(st.TraceCount)),
			gauge("spectral_capture_ws_connections", "WebSocket connections in the current session.", float64(st.WsConnectionCount)),
			gauge("spectral_capture_ws_messages", "WebSocket frames in the current session.", float64(st.WsMessageCount)),
			gauge("spectral_capture_contexts", "UI contexts in the current session.", float64(st.ContextCount)),
			gauge("spectral_capture_pending_requests", "Requests awaiting completion.", float64(st.PendingCount)),
		)
	}

	if m.Pool != nil {
		ps := m.Pool()
		out = append(out,
			gauge("spectral_pool_queue_length", "Queued background tasks.", float64(ps.QueueLen)),
			gauge("spectral_pool_queue_capacity", "Background task queue capacity.", float64(ps.QueueCap)),
			counter("spectral_pool_submitted_total", "Submitted background tasks.", float64(ps.Submitted)),
			counter("spectral_pool_dropped_total", "Background tasks dropped on a full or stopped queue.", float64(ps.Dropped)),
			counter("spectral_pool_completed_total", "Completed background tasks.", float64(ps.Completed)),
			counter("spectral_pool_panics_total", "Background tasks that panicked.", float64(ps.Panicked)),
		)
	}

	if m.Hub != nil {
		hs := m.Hub()
		out = append(out,
			gauge("spectral_ui_clients", "Connected page-side UI capture clients.", float64(hs.Clients)),
			counter("spectral_ui_contexts_accepted_total", "UI context messages accepted.", float64(hs.Accepted)),
			counter("spectral_ui_contexts_rejected_total", "UI context messages rejected by the capture state.", float64(hs.Rejected)),
			counter("spectral_ui_contexts_dropped_total", "UI context messages dropped by rate limiting or decoding.", float64(hs.Dropped)),
		)
	}
	return out
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	for _, mf := range m.Families() {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", textContentType)
	_, _ = w.Write(buf.Bytes())
}

func strPtr(s string) *string { return &s }

func gaugeMetric(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: &v}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{Name: strPtr(labels[i]), Value: strPtr(labels[i+1])})
	}
	return m
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   strPtr(name),
		Help:   strPtr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{gaugeMetric(v)},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   strPtr(name),
		Help:   strPtr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: &v}}},
	}
}
