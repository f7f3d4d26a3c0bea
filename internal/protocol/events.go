package protocol

import "spectral/pkg/domain"

// 事件方法名，与调试协议中的 domain.eventName 对应
const (
	MethodRequestWillBeSent          = "Network.requestWillBeSent"
	MethodResponseReceived           = "Network.responseReceived"
	MethodRequestExtraInfo           = "Network.requestWillBeSentExtraInfo"
	MethodResponseExtraInfo          = "Network.responseReceivedExtraInfo"
	MethodLoadingFinished            = "Network.loadingFinished"
	MethodLoadingFailed              = "Network.loadingFailed"
	MethodWebSocketCreated           = "Network.webSocketCreated"
	MethodWebSocketHandshakeResponse = "Network.webSocketHandshakeResponseReceived"
	MethodWebSocketFrameSent         = "Network.webSocketFrameSent"
	MethodWebSocketFrameReceived     = "Network.webSocketFrameReceived"
	MethodWebSocketClosed            = "Network.webSocketClosed"
	MethodRequestPaused              = "Fetch.requestPaused"
)

// Event 中立的协议事件
type Event struct {
	Target domain.TargetID
	Method string
	Params any
}

// ResourceTiming 连接阶段时间标记，RequestTime 为秒，其余为相对 RequestTime 的毫秒偏移
type ResourceTiming struct {
	RequestTime       float64
	DNSStart          float64
	DNSEnd            float64
	ConnectStart      float64
	ConnectEnd        float64
	SSLStart          float64
	SSLEnd            float64
	SendStart         float64
	SendEnd           float64
	ReceiveHeadersEnd float64
}

// RequestWillBeSent 请求开始
type RequestWillBeSent struct {
	RequestID    string
	URL          string
	Method       string
	Headers      []domain.Header
	PostData     []byte
	ResourceType string
	// Timestamp 单调时钟，秒
	Timestamp float64
	// WallTime 墙上时钟，秒；为 0 表示事件未携带
	WallTime  float64
	Initiator domain.Initiator
}

// ResponseReceived 响应头到达
type ResponseReceived struct {
	RequestID  string
	Status     int
	StatusText string
	Headers    []domain.Header
	MimeType   string
	Timestamp  float64
	Timing     *ResourceTiming
}

// ExtraInfo 线上实际发送或接收的头部
type ExtraInfo struct {
	RequestID string
	Headers   []domain.Header
}

// LoadingFinished 加载完成
type LoadingFinished struct {
	RequestID string
	Timestamp float64
}

// LoadingFailed 加载失败
type LoadingFailed struct {
	RequestID string
	ErrorText string
	Canceled  bool
}

// WebSocketCreated 连接建立
type WebSocketCreated struct {
	RequestID string
	URL       string
}

// WebSocketHandshake 握手响应
type WebSocketHandshake struct {
	RequestID string
	Timestamp float64
	Status    int
	Headers   []domain.Header
}

// WebSocketFrame 一个数据帧
type WebSocketFrame struct {
	RequestID   string
	Timestamp   float64
	Opcode      int
	PayloadData string
}

// WebSocketClosed 连接关闭
type WebSocketClosed struct {
	RequestID string
	Timestamp float64
}

// RequestPaused 被拦截暂停的请求
type RequestPaused struct {
	RequestID    string
	NetworkID    string
	URL          string
	Method       string
	Headers      []domain.Header
	PostData     []byte
	ResourceType string
}
