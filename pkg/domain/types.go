package domain

// TargetID 目标ID
type TargetID string

// CaptureState 捕获生命周期状态
type CaptureState string

const (
	StateIdle      CaptureState = "IDLE"
	StateAttaching CaptureState = "ATTACHING"
	StateCapturing CaptureState = "CAPTURING"
	StateExporting CaptureState = "EXPORTING"
)

// Settings 拦截器设置
type Settings struct {
	InjectTypename bool `json:"inject_typename"`
	InjectApqError bool `json:"inject_apq_error"`
}

// TargetInfo 目标信息
type TargetInfo struct {
	ID        TargetID `json:"id"`
	Type      string   `json:"type"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	IsCurrent bool     `json:"isCurrent"`
}

// Header 单个头部，保留原始顺序与大小写
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Timing 六段耗时，单位毫秒
type Timing struct {
	DNSMs     float64 `json:"dns_ms"`
	ConnectMs float64 `json:"connect_ms"`
	TLSMs     float64 `json:"tls_ms"`
	SendMs    float64 `json:"send_ms"`
	WaitMs    float64 `json:"wait_ms"`
	ReceiveMs float64 `json:"receive_ms"`
	TotalMs   float64 `json:"total_ms"`
}

// Sum 返回六段之和
func (t Timing) Sum() float64 {
	return t.DNSMs + t.ConnectMs + t.TLSMs + t.SendMs + t.WaitMs + t.ReceiveMs
}

// Initiator 请求发起者
type Initiator struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
	Line int    `json:"line,omitempty"`
}

// TraceRequest 请求部分
type TraceRequest struct {
	Method  string   `json:"method"`
	URL     string   `json:"url"`
	Headers []Header `json:"headers"`
	Body    []byte   `json:"-"`
}

// TraceResponse 响应部分
type TraceResponse struct {
	Status     int      `json:"status"`
	StatusText string   `json:"status_text"`
	Headers    []Header `json:"headers"`
	MimeType   string   `json:"mime_type,omitempty"`
	Body       []byte   `json:"-"`
}

// Trace 一次完整的 HTTP 交换，创建后不再修改
type Trace struct {
	ID          string        `json:"id"`
	Timestamp   int64         `json:"timestamp"`
	Request     TraceRequest  `json:"request"`
	Response    TraceResponse `json:"response"`
	Timing      Timing        `json:"timing"`
	Initiator   Initiator     `json:"initiator"`
	ContextRefs []string      `json:"context_refs"`
}

// Direction WebSocket 帧方向
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Opcode 帧类型
type Opcode string

const (
	OpcodeText   Opcode = "text"
	OpcodeBinary Opcode = "binary"
)

// WsMessage 单个 WebSocket 帧
type WsMessage struct {
	ID            string    `json:"id"`
	ConnectionRef string    `json:"connection_ref"`
	Timestamp     int64     `json:"timestamp"`
	Direction     Direction `json:"direction"`
	Opcode        Opcode    `json:"opcode"`
	Payload       []byte    `json:"-"`
	ContextRefs   []string  `json:"context_refs"`
}

// WsConnection 一条 WebSocket 连接
type WsConnection struct {
	ID                string       `json:"id"`
	Timestamp         int64        `json:"timestamp"`
	URL               string       `json:"url"`
	HandshakeTraceRef string       `json:"handshake_trace_ref,omitempty"`
	Protocols         []string     `json:"protocols"`
	MessageCount      int          `json:"message_count"`
	ContextRefs       []string     `json:"context_refs"`
	Messages          []*WsMessage `json:"-"`
}

// ElementInfo 被操作的元素
type ElementInfo struct {
	Selector   string            `json:"selector"`
	Tag        string            `json:"tag"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
	XPath      string            `json:"xpath"`
}

// PageInfo 页面信息
type PageInfo struct {
	URL     string         `json:"url"`
	Title   string         `json:"title"`
	Content map[string]any `json:"content,omitempty"`
}

// ViewportInfo 视口信息
type ViewportInfo struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	ScrollX int `json:"scroll_x"`
	ScrollY int `json:"scroll_y"`
}

// UIContext 一次界面交互快照
type UIContext struct {
	ID        string       `json:"id"`
	Timestamp int64        `json:"timestamp"`
	Action    string       `json:"action"`
	Element   ElementInfo  `json:"element"`
	Page      PageInfo     `json:"page"`
	Viewport  ViewportInfo `json:"viewport"`
}

// TimelineKind 时间线条目类型
type TimelineKind string

const (
	TimelineTrace     TimelineKind = "trace"
	TimelineWsOpen    TimelineKind = "ws_open"
	TimelineWsMessage TimelineKind = "ws_message"
	TimelineContext   TimelineKind = "context"
)

// TimelineEntry 时间线条目
type TimelineEntry struct {
	Timestamp int64        `json:"timestamp"`
	Type      TimelineKind `json:"type"`
	Ref       string       `json:"ref"`
}

// Stats 捕获统计
type Stats struct {
	TraceCount        int `json:"trace_count"`
	WsConnectionCount int `json:"ws_connection_count"`
	WsMessageCount    int `json:"ws_message_count"`
	ContextCount      int `json:"context_count"`
}

// Status 状态快照
type Status struct {
	State        CaptureState `json:"state"`
	TargetID     TargetID     `json:"target_id,omitempty"`
	StartedAt    int64        `json:"started_at,omitempty"`
	ElapsedMs    int64        `json:"elapsed_ms"`
	PendingCount int          `json:"pending_count"`
	Settings     Settings     `json:"settings"`
	Stats
}

// Capture 交给导出器的记录集
type Capture struct {
	TargetID    TargetID
	TargetURL   string
	TargetTitle string
	StartedAt   int64
	EndedAt     int64
	Traces      []*Trace
	Connections []*WsConnection
	Messages    []*WsMessage
	Contexts    []*UIContext
	Timeline    []TimelineEntry
}

// Stats 计算记录集统计
func (c *Capture) Stats() Stats {
	return Stats{
		TraceCount:        len(c.Traces),
		WsConnectionCount: len(c.Connections),
		WsMessageCount:    len(c.Messages),
		ContextCount:      len(c.Contexts),
	}
}

// ContextMessage 页面侧推送的界面交互消息，Timestamp 缺省时取接收时间
type ContextMessage struct {
	Action    string       `json:"action"`
	Element   ElementInfo  `json:"element"`
	Page      PageInfo     `json:"page"`
	Viewport  ViewportInfo `json:"viewport"`
	Timestamp *int64       `json:"timestamp,omitempty"`
}

// UICaptureResult 页面侧界面采集的激活结果，不作为错误返回
type UICaptureResult string

const (
	UICaptureOK          UICaptureResult = "OK"
	UICaptureUnreachable UICaptureResult = "UNREACHABLE"
)

// ExportResult 导出结果
type ExportResult struct {
	CaptureID string `json:"capture_id"`
	Path      string `json:"path"`
	Stats     Stats  `json:"stats"`
}
