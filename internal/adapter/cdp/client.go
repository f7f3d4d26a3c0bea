package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"spectral/internal/logger"
	"spectral/internal/protocol"
	"spectral/pkg/domain"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/inspector"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/rpcc"
)

// streams 一个会话订阅的全部事件流
type streams struct {
	willBeSent    network.RequestWillBeSentClient
	response      network.ResponseReceivedClient
	requestExtra  network.RequestWillBeSentExtraInfoClient
	responseExtra network.ResponseReceivedExtraInfoClient
	finished      network.LoadingFinishedClient
	failed        network.LoadingFailedClient
	wsCreated     network.WebSocketCreatedClient
	wsHandshake   network.WebSocketHandshakeResponseReceivedClient
	wsSent        network.WebSocketFrameSentClient
	wsReceived    network.WebSocketFrameReceivedClient
	wsClosed      network.WebSocketClosedClient
	paused        fetch.RequestPausedClient
	detached      inspector.DetachedClient
}

func (s *streams) all() []rpcc.Stream {
	return []rpcc.Stream{
		s.willBeSent, s.response, s.requestExtra, s.responseExtra,
		s.finished, s.failed, s.wsCreated, s.wsHandshake,
		s.wsSent, s.wsReceived, s.wsClosed, s.paused, s.detached,
	}
}

func (s *streams) close() {
	for _, st := range s.all() {
		if st != nil {
			_ = st.Close()
		}
	}
}

// Session 代表一个已附着的浏览器目标会话
type Session struct {
	id     domain.TargetID
	client *cdp.Client
	conn   *rpcc.Conn
	log    logger.Logger

	mu      sync.Mutex
	streams *streams
	closed  bool
}

// NewSession 在已建立的连接上创建会话
func NewSession(id domain.TargetID, conn *rpcc.Conn, l logger.Logger) *Session {
	if l == nil {
		l = logger.NewNop()
	}
	return &Session{
		id:     id,
		client: cdp.NewClient(conn),
		conn:   conn,
		log:    l.With("targetID", string(id)),
	}
}

// ID 返回目标ID
func (s *Session) ID() domain.TargetID { return s.id }

// Enable 先订阅事件流，再开启网络域与请求阶段拦截
func (s *Session) Enable(ctx context.Context) error {
	st, err := s.subscribe(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.streams = st
	s.mu.Unlock()

	if err := s.client.Network.Enable(ctx, nil); err != nil {
		return fmt.Errorf("enable network: %w", err)
	}
	if err := enableFetch(ctx, s.client); err != nil {
		return fmt.Errorf("enable fetch: %w", err)
	}
	s.log.Info("会话已开启网络捕获与请求拦截")
	return nil
}

func (s *Session) subscribe(ctx context.Context) (_ *streams, err error) {
	st := &streams{}
	defer func() {
		if err != nil {
			st.close()
		}
	}()

	c := s.client
	if st.willBeSent, err = c.Network.RequestWillBeSent(ctx); err != nil {
		return nil, err
	}
	if st.response, err = c.Network.ResponseReceived(ctx); err != nil {
		return nil, err
	}
	if st.requestExtra, err = c.Network.RequestWillBeSentExtraInfo(ctx); err != nil {
		return nil, err
	}
	if st.responseExtra, err = c.Network.ResponseReceivedExtraInfo(ctx); err != nil {
		return nil, err
	}
	if st.finished, err = c.Network.LoadingFinished(ctx); err != nil {
		return nil, err
	}
	if st.failed, err = c.Network.LoadingFailed(ctx); err != nil {
		return nil, err
	}
	if st.wsCreated, err = c.Network.WebSocketCreated(ctx); err != nil {
		return nil, err
	}
	if st.wsHandshake, err = c.Network.WebSocketHandshakeResponseReceived(ctx); err != nil {
		return nil, err
	}
	if st.wsSent, err = c.Network.WebSocketFrameSent(ctx); err != nil {
		return nil, err
	}
	if st.wsReceived, err = c.Network.WebSocketFrameReceived(ctx); err != nil {
		return nil, err
	}
	if st.wsClosed, err = c.Network.WebSocketClosed(ctx); err != nil {
		return nil, err
	}
	if st.paused, err = c.Fetch.RequestPaused(ctx); err != nil {
		return nil, err
	}
	if st.detached, err = c.Inspector.Detached(ctx); err != nil {
		return nil, err
	}

	// 同步后各流按协议到达顺序交付
	err = cdp.Sync(
		st.willBeSent, st.response, st.requestExtra, st.responseExtra,
		st.finished, st.failed,
		st.wsCreated, st.wsHandshake, st.wsSent, st.wsReceived, st.wsClosed,
		st.paused, st.detached,
	)
	if err != nil {
		return nil, fmt.Errorf("sync streams: %w", err)
	}
	return st, nil
}

// Consume 按到达顺序把事件交给 fn，直到 ctx 取消、会话被分离或事件流出错
func (s *Session) Consume(ctx context.Context, fn func(protocol.Event)) error {
	s.mu.Lock()
	st := s.streams
	s.mu.Unlock()
	if st == nil {
		return errors.New("cdp: session not enabled")
	}

	emit := func(method string, params any) {
		fn(protocol.Event{Target: s.id, Method: method, Params: params})
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.conn.Context().Done():
			return domain.ErrSessionDetached

		case <-st.willBeSent.Ready():
			var ev *network.RequestWillBeSentReply
			if ev, err = st.willBeSent.Recv(); err == nil {
				emit(protocol.MethodRequestWillBeSent, ToRequestWillBeSent(ev))
			}
		case <-st.response.Ready():
			var ev *network.ResponseReceivedReply
			if ev, err = st.response.Recv(); err == nil {
				emit(protocol.MethodResponseReceived, ToResponseReceived(ev))
			}
		case <-st.requestExtra.Ready():
			var ev *network.RequestWillBeSentExtraInfoReply
			if ev, err = st.requestExtra.Recv(); err == nil {
				emit(protocol.MethodRequestExtraInfo, ToRequestExtraInfo(ev))
			}
		case <-st.responseExtra.Ready():
			var ev *network.ResponseReceivedExtraInfoReply
			if ev, err = st.responseExtra.Recv(); err == nil {
				emit(protocol.MethodResponseExtraInfo, ToResponseExtraInfo(ev))
			}
		case <-st.finished.Ready():
			var ev *network.LoadingFinishedReply
			if ev, err = st.finished.Recv(); err == nil {
				emit(protocol.MethodLoadingFinished, ToLoadingFinished(ev))
			}
		case <-st.failed.Ready():
			var ev *network.LoadingFailedReply
			if ev, err = st.failed.Recv(); err == nil {
				emit(protocol.MethodLoadingFailed, ToLoadingFailed(ev))
			}
		case <-st.wsCreated.Ready():
			var ev *network.WebSocketCreatedReply
			if ev, err = st.wsCreated.Recv(); err == nil {
				emit(protocol.MethodWebSocketCreated, ToWebSocketCreated(ev))
			}
		case <-st.wsHandshake.Ready():
			var ev *network.WebSocketHandshakeResponseReceivedReply
			if ev, err = st.wsHandshake.Recv(); err == nil {
				emit(protocol.MethodWebSocketHandshakeResponse, ToWebSocketHandshake(ev))
			}
		case <-st.wsSent.Ready():
			var ev *network.WebSocketFrameSentReply
			if ev, err = st.wsSent.Recv(); err == nil {
				emit(protocol.MethodWebSocketFrameSent, ToWebSocketFrame(ev.RequestID, ev.Timestamp, ev.Response))
			}
		case <-st.wsReceived.Ready():
			var ev *network.WebSocketFrameReceivedReply
			if ev, err = st.wsReceived.Recv(); err == nil {
				emit(protocol.MethodWebSocketFrameReceived, ToWebSocketFrame(ev.RequestID, ev.Timestamp, ev.Response))
			}
		case <-st.wsClosed.Ready():
			var ev *network.WebSocketClosedReply
			if ev, err = st.wsClosed.Recv(); err == nil {
				emit(protocol.MethodWebSocketClosed, ToWebSocketClosed(ev))
			}
		case <-st.paused.Ready():
			var ev *fetch.RequestPausedReply
			if ev, err = st.paused.Recv(); err == nil {
				emit(protocol.MethodRequestPaused, ToRequestPaused(ev))
			}
		case <-st.detached.Ready():
			var ev *inspector.DetachedReply
			if ev, err = st.detached.Recv(); err == nil {
				s.log.Warn("目标已分离", "reason", ev.Reason)
				return domain.ErrSessionDetached
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Err(err, "接收事件失败")
			return err
		}
	}
}

// FetchBody 获取已完成请求的响应体
func (s *Session) FetchBody(ctx context.Context, requestID string) ([]byte, error) {
	reply, err := s.client.Network.GetResponseBody(ctx, network.NewGetResponseBodyArgs(network.RequestID(requestID)))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeBody(reply.Body, reply.Base64Encoded), nil
}

// Close 关闭事件流和连接，可重复调用
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.streams != nil {
		s.streams.close()
	}
	return s.conn.Close()
}
