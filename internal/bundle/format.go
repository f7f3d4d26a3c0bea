// Package bundle 把捕获记录集写成可移植的 ZIP 捕获包
package bundle

import "spectral/pkg/domain"

// FormatVersion 捕获包格式版本
const FormatVersion = "1.0.0"

// CaptureMethod 记录来源
const CaptureMethod = "cdp"

// AppInfo 被捕获的应用
type AppInfo struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Title   string `json:"title"`
}

// Manifest manifest.json
type Manifest struct {
	FormatVersion string       `json:"format_version"`
	CaptureID     string       `json:"capture_id"`
	CreatedAt     string       `json:"created_at"`
	App           AppInfo      `json:"app"`
	DurationMs    int64        `json:"duration_ms"`
	Stats         domain.Stats `json:"stats"`
	CaptureMethod string       `json:"capture_method"`
}

// RequestMeta 请求部分的元数据，正文单独存放
type RequestMeta struct {
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Headers  []domain.Header `json:"headers"`
	BodyFile *string         `json:"body_file"`
	BodySize int             `json:"body_size"`
}

// ResponseMeta 响应部分的元数据，status 为 0 时也写出
type ResponseMeta struct {
	Status     int             `json:"status"`
	StatusText string          `json:"status_text"`
	Headers    []domain.Header `json:"headers"`
	BodyFile   *string         `json:"body_file"`
	BodySize   int             `json:"body_size"`
}

// TraceMeta traces/t_NNNN.json
type TraceMeta struct {
	ID          string           `json:"id"`
	Timestamp   int64            `json:"timestamp"`
	Type        string           `json:"type"`
	Request     RequestMeta      `json:"request"`
	Response    ResponseMeta     `json:"response"`
	Timing      domain.Timing    `json:"timing"`
	Initiator   domain.Initiator `json:"initiator"`
	ContextRefs []string         `json:"context_refs"`
}

// MessageMeta ws/ws_NNNN_mNNN.json
type MessageMeta struct {
	ID            string           `json:"id"`
	ConnectionRef string           `json:"connection_ref"`
	Timestamp     int64            `json:"timestamp"`
	Direction     domain.Direction `json:"direction"`
	Opcode        domain.Opcode    `json:"opcode"`
	PayloadFile   *string          `json:"payload_file"`
	PayloadSize   int              `json:"payload_size"`
	ContextRefs   []string         `json:"context_refs"`
}

// Timeline timeline.json
type Timeline struct {
	Events []domain.TimelineEntry `json:"events"`
}
