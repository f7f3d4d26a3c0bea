package session

import (
	"sync"

	"spectral/internal/protocol"
	"spectral/pkg/domain"
)

// Phase 待定请求所处阶段
type Phase int

const (
	PhaseStarted Phase = iota
	PhaseHeadersReceived
	PhaseFinished
)

// String 返回阶段名称
func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "started"
	case PhaseHeadersReceived:
		return "headers_received"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// PendingResponse 已到达的响应部分
type PendingResponse struct {
	Status     int
	StatusText string
	Headers    []domain.Header
	MimeType   string
	Timestamp  float64
}

// PendingRequest 尚未定型的请求，按协议请求ID索引
type PendingRequest struct {
	RequestID    string
	Phase        Phase
	Timestamp    int64
	Monotonic    float64
	Method       string
	URL          string
	Headers      []domain.Header
	Body         []byte
	ResourceType string
	Initiator    domain.Initiator
	Response     *PendingResponse
	Timing       domain.Timing
}

// PendingExtraInfo 早于基础事件到达的线上头部，两半各自独立消费
type PendingExtraInfo struct {
	RequestHeaders  []domain.Header
	ResponseHeaders []domain.Header
}

// Empty 两半是否都已消费
func (e *PendingExtraInfo) Empty() bool {
	return e.RequestHeaders == nil && e.ResponseHeaders == nil
}

// Session 一次捕获会话的全部状态，重置时整体替换
type Session struct {
	Generation  uint64
	State       domain.CaptureState
	Target      domain.TargetID
	TargetURL   string
	TargetTitle string
	StartedAt   int64
	Clock       protocol.Clock

	Pending map[string]*PendingRequest
	Extra   map[string]*PendingExtraInfo
	// Skipped 不生成 Trace 的请求ID，其线上头部直接丢弃
	Skipped map[string]struct{}

	Traces      []*domain.Trace
	Connections []*domain.WsConnection
	Messages    []*domain.WsMessage
	Contexts    []*domain.UIContext
	Timeline    []domain.TimelineEntry

	// 协议连接ID到连接记录
	connByRequest map[string]*domain.WsConnection

	traceSeq int
	connSeq  int
	ctxSeq   int
}

func newSession(gen uint64) *Session {
	return &Session{
		Generation:    gen,
		State:         domain.StateIdle,
		Pending:       make(map[string]*PendingRequest),
		Extra:         make(map[string]*PendingExtraInfo),
		Skipped:       make(map[string]struct{}),
		Traces:        make([]*domain.Trace, 0),
		Connections:   make([]*domain.WsConnection, 0),
		Messages:      make([]*domain.WsMessage, 0),
		Contexts:      make([]*domain.UIContext, 0),
		Timeline:      make([]domain.TimelineEntry, 0),
		connByRequest: make(map[string]*domain.WsConnection),
	}
}

// NextTraceID 分配下一个 Trace 编号
func (s *Session) NextTraceID() string {
	s.traceSeq++
	return protocol.TraceID(s.traceSeq)
}

// NextConnectionID 分配下一个连接编号
func (s *Session) NextConnectionID() string {
	s.connSeq++
	return protocol.ConnectionID(s.connSeq)
}

// NextContextID 分配下一个界面上下文编号
func (s *Session) NextContextID() string {
	s.ctxSeq++
	return protocol.ContextID(s.ctxSeq)
}

// AddTrace 追加 Trace 和时间线条目
func (s *Session) AddTrace(t *domain.Trace) {
	s.Traces = append(s.Traces, t)
	s.Timeline = append(s.Timeline, domain.TimelineEntry{Timestamp: t.Timestamp, Type: domain.TimelineTrace, Ref: t.ID})
}

// AddConnection 登记新连接
func (s *Session) AddConnection(requestID string, c *domain.WsConnection) {
	s.connByRequest[requestID] = c
	s.Connections = append(s.Connections, c)
	s.Timeline = append(s.Timeline, domain.TimelineEntry{Timestamp: c.Timestamp, Type: domain.TimelineWsOpen, Ref: c.ID})
}

// Connection 按协议连接ID查找
func (s *Session) Connection(requestID string) (*domain.WsConnection, bool) {
	c, ok := s.connByRequest[requestID]
	return c, ok
}

// AddMessage 追加帧到所属连接和全局列表
func (s *Session) AddMessage(c *domain.WsConnection, m *domain.WsMessage) {
	c.Messages = append(c.Messages, m)
	c.MessageCount = len(c.Messages)
	s.Messages = append(s.Messages, m)
	s.Timeline = append(s.Timeline, domain.TimelineEntry{Timestamp: m.Timestamp, Type: domain.TimelineWsMessage, Ref: m.ID})
}

// AddContext 追加界面上下文
func (s *Session) AddContext(c *domain.UIContext) {
	s.Contexts = append(s.Contexts, c)
	s.Timeline = append(s.Timeline, domain.TimelineEntry{Timestamp: c.Timestamp, Type: domain.TimelineContext, Ref: c.ID})
}

// Stats 当前统计
func (s *Session) Stats() domain.Stats {
	return domain.Stats{
		TraceCount:        len(s.Traces),
		WsConnectionCount: len(s.Connections),
		WsMessageCount:    len(s.Messages),
		ContextCount:      len(s.Contexts),
	}
}

// Capture 生成交给导出器的记录集，切片为副本
func (s *Session) Capture(endedAt int64) *domain.Capture {
	return &domain.Capture{
		TargetID:    s.Target,
		TargetURL:   s.TargetURL,
		TargetTitle: s.TargetTitle,
		StartedAt:   s.StartedAt,
		EndedAt:     endedAt,
		Traces:      append([]*domain.Trace(nil), s.Traces...),
		Connections: append([]*domain.WsConnection(nil), s.Connections...),
		Messages:    append([]*domain.WsMessage(nil), s.Messages...),
		Contexts:    append([]*domain.UIContext(nil), s.Contexts...),
		Timeline:    append([]domain.TimelineEntry(nil), s.Timeline...),
	}
}

// Store 会话状态的唯一持有者
type Store struct {
	mu       sync.Mutex
	sess     *Session
	gen      uint64
	settings domain.Settings
}

// NewStore 创建状态存储
func NewStore(settings domain.Settings) *Store {
	return &Store{sess: newSession(0), settings: settings}
}

// Do 在锁内访问当前会话
func (st *Store) Do(fn func(s *Session)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(st.sess)
}

// Reset 以全新会话替换当前会话，返回新的代号
func (st *Store) Reset() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.gen++
	st.sess = newSession(st.gen)
	return st.gen
}

// State 当前生命周期状态
func (st *Store) State() domain.CaptureState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sess.State
}

// Settings 当前拦截设置
func (st *Store) Settings() domain.Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.settings
}

// SetSettings 更新拦截设置，重置不影响该值
func (st *Store) SetSettings(s domain.Settings) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.settings = s
}
