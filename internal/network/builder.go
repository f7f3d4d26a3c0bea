// Package network 把请求、响应、线上头部和加载事件拼装成 Trace
package network

import (
	"context"
	"time"

	"spectral/internal/correlator"
	"spectral/internal/logger"
	"spectral/internal/pool"
	"spectral/internal/protocol"
	"spectral/internal/regexutil"
	"spectral/internal/session"
	"spectral/pkg/domain"
)

const resourceTypeWebSocket = "WebSocket"

// Fetcher 获取已完成请求的响应体
type Fetcher interface {
	FetchBody(ctx context.Context, requestID string) ([]byte, error)
}

// Options 构建器参数
type Options struct {
	WindowMS     int64
	FetchTimeout time.Duration
	// Exclude 命中的 URL 不生成 Trace
	Exclude *regexutil.Set
}

// Builder 网络 Trace 构建器
type Builder struct {
	store   *session.Store
	workers pool.Submitter
	opts    Options
	log     logger.Logger
	now     func() time.Time
}

// New 创建构建器
func New(store *session.Store, workers pool.Submitter, opts Options, l logger.Logger) *Builder {
	if l == nil {
		l = logger.NewNop()
	}
	if workers == nil {
		workers = pool.Inline{}
	}
	if opts.WindowMS <= 0 {
		opts.WindowMS = correlator.DefaultWindowMS
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &Builder{store: store, workers: workers, opts: opts, log: l, now: time.Now}
}

// SetClock 替换时间源
func (b *Builder) SetClock(now func() time.Time) { b.now = now }

// OnRequestWillBeSent 处理请求开始事件
func (b *Builder) OnRequestWillBeSent(ev *protocol.RequestWillBeSent) {
	if ev == nil {
		return
	}
	if ev.ResourceType == resourceTypeWebSocket || IsInternalURL(ev.URL) || b.opts.Exclude.Match(ev.URL) {
		b.store.Do(func(s *session.Session) {
			// 重定向到不跟踪的地址时前一跳一并丢弃
			delete(s.Pending, ev.RequestID)
			delete(s.Extra, ev.RequestID)
			s.Skipped[ev.RequestID] = struct{}{}
		})
		return
	}
	b.store.Do(func(s *session.Session) {
		delete(s.Skipped, ev.RequestID)
		s.Clock.Observe(ev.Timestamp, ev.WallTime)
		if _, exists := s.Pending[ev.RequestID]; exists {
			// 重定向复用同一请求ID，只保留最后一跳
			b.log.Debug("请求ID被复用，覆盖待定请求", "requestID", ev.RequestID, "url", ev.URL)
		}
		p := &session.PendingRequest{
			RequestID:    ev.RequestID,
			Phase:        session.PhaseStarted,
			Timestamp:    s.Clock.ToEpochMs(ev.Timestamp, b.now()),
			Monotonic:    ev.Timestamp,
			Method:       ev.Method,
			URL:          ev.URL,
			Headers:      protocol.CloneHeaders(ev.Headers),
			Body:         ev.PostData,
			ResourceType: ev.ResourceType,
			Initiator:    ev.Initiator,
		}
		s.Pending[ev.RequestID] = p
		mergeExtra(s, p)
	})
}

// OnResponseReceived 处理响应头事件
func (b *Builder) OnResponseReceived(ev *protocol.ResponseReceived) {
	if ev == nil {
		return
	}
	b.store.Do(func(s *session.Session) {
		p, ok := s.Pending[ev.RequestID]
		if !ok {
			return
		}
		p.Response = &session.PendingResponse{
			Status:     ev.Status,
			StatusText: ev.StatusText,
			Headers:    protocol.CloneHeaders(ev.Headers),
			MimeType:   ev.MimeType,
			Timestamp:  ev.Timestamp,
		}
		p.Timing = phaseTiming(ev.Timing)
		p.Phase = session.PhaseHeadersReceived
		mergeExtra(s, p)
	})
}

// OnRequestExtraInfo 处理线上请求头
func (b *Builder) OnRequestExtraInfo(ev *protocol.ExtraInfo) {
	if ev == nil {
		return
	}
	b.store.Do(func(s *session.Session) {
		if p, ok := s.Pending[ev.RequestID]; ok {
			p.Headers = protocol.CloneHeaders(ev.Headers)
			return
		}
		if _, skipped := s.Skipped[ev.RequestID]; skipped {
			return
		}
		bufferExtra(s, ev.RequestID).RequestHeaders = nonNil(ev.Headers)
	})
}

// OnResponseExtraInfo 处理线上响应头
func (b *Builder) OnResponseExtraInfo(ev *protocol.ExtraInfo) {
	if ev == nil {
		return
	}
	b.store.Do(func(s *session.Session) {
		if p, ok := s.Pending[ev.RequestID]; ok && p.Response != nil {
			p.Response.Headers = protocol.CloneHeaders(ev.Headers)
			return
		}
		if _, skipped := s.Skipped[ev.RequestID]; skipped {
			return
		}
		bufferExtra(s, ev.RequestID).ResponseHeaders = nonNil(ev.Headers)
	})
}

// OnLoadingFailed 丢弃该请求的全部待定状态
func (b *Builder) OnLoadingFailed(ev *protocol.LoadingFailed) {
	if ev == nil {
		return
	}
	b.store.Do(func(s *session.Session) { forget(s, ev.RequestID) })
}

// Forget 清除请求ID的全部构建状态，用于不会收到加载事件的请求
func (b *Builder) Forget(requestID string) {
	b.store.Do(func(s *session.Session) { forget(s, requestID) })
}

// OnLoadingFinished 过滤后异步获取响应体并定型 Trace
func (b *Builder) OnLoadingFinished(ctx context.Context, f Fetcher, ev *protocol.LoadingFinished) {
	if ev == nil {
		return
	}
	var (
		p   *session.PendingRequest
		gen uint64
	)
	b.store.Do(func(s *session.Session) {
		cur, ok := s.Pending[ev.RequestID]
		if !ok || cur.Response == nil || IsStaticAsset(cur.URL) || IsStaticMime(cur.Response.MimeType) {
			forget(s, ev.RequestID)
			return
		}
		cur.Phase = session.PhaseFinished
		p, gen = cur, s.Generation
	})
	if p == nil {
		return
	}

	task := func() {
		b.finalize(p, gen, b.fetchBody(ctx, f, ev.RequestID), ev.Timestamp)
	}
	if !b.workers.Submit(task) {
		b.log.Warn("响应体获取任务被拒绝，不带响应体定型", "requestID", ev.RequestID)
		b.finalize(p, gen, nil, ev.Timestamp)
	}
}

func (b *Builder) fetchBody(ctx context.Context, f Fetcher, requestID string) []byte {
	if f == nil {
		return nil
	}
	fctx, cancel := context.WithTimeout(ctx, b.opts.FetchTimeout)
	defer cancel()
	body, err := f.FetchBody(fctx, requestID)
	if err != nil {
		b.log.Debug("获取响应体失败", "requestID", requestID, "error", err)
		return nil
	}
	return body
}

// finalize 重新进入状态，待定请求在等待期间被移除或会话已重置时丢弃结果
func (b *Builder) finalize(p *session.PendingRequest, gen uint64, body []byte, finished float64) {
	b.store.Do(func(s *session.Session) {
		if s.Generation != gen {
			return
		}
		if cur, ok := s.Pending[p.RequestID]; !ok || cur != p {
			b.log.Debug("待定请求已不存在，丢弃迟到的响应体", "requestID", p.RequestID)
			return
		}

		timing := p.Timing
		timing.ReceiveMs = receiveMs(finished, p.Response.Timestamp)
		timing.TotalMs = timing.Sum()

		t := &domain.Trace{
			ID:        s.NextTraceID(),
			Timestamp: p.Timestamp,
			Request: domain.TraceRequest{
				Method:  p.Method,
				URL:     p.URL,
				Headers: nonNil(p.Headers),
				Body:    p.Body,
			},
			Response: domain.TraceResponse{
				Status:     p.Response.Status,
				StatusText: p.Response.StatusText,
				Headers:    nonNil(p.Response.Headers),
				MimeType:   p.Response.MimeType,
				Body:       body,
			},
			Timing:      timing,
			Initiator:   p.Initiator,
			ContextRefs: correlator.FindContextRefs(s.Contexts, p.Timestamp, b.opts.WindowMS),
		}
		s.AddTrace(t)
		forget(s, p.RequestID)
		b.log.Debug("Trace 已定型", "id", t.ID, "url", t.Request.URL, "status", t.Response.Status)
	})
}

func forget(s *session.Session, requestID string) {
	delete(s.Pending, requestID)
	delete(s.Extra, requestID)
	delete(s.Skipped, requestID)
}

// mergeExtra 把缓冲的线上头部合并进待定请求，每一半消费后单独清除
func mergeExtra(s *session.Session, p *session.PendingRequest) {
	e, ok := s.Extra[p.RequestID]
	if !ok {
		return
	}
	if e.RequestHeaders != nil {
		p.Headers = e.RequestHeaders
		e.RequestHeaders = nil
	}
	if e.ResponseHeaders != nil && p.Response != nil {
		p.Response.Headers = e.ResponseHeaders
		e.ResponseHeaders = nil
	}
	if e.Empty() {
		delete(s.Extra, p.RequestID)
	}
}

func bufferExtra(s *session.Session, requestID string) *session.PendingExtraInfo {
	e, ok := s.Extra[requestID]
	if !ok {
		e = &session.PendingExtraInfo{}
		s.Extra[requestID] = e
	}
	return e
}

func nonNil(h []domain.Header) []domain.Header {
	if h == nil {
		return []domain.Header{}
	}
	return protocol.CloneHeaders(h)
}
