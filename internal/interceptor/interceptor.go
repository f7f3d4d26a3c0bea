package interceptor

import (
	"context"
	"net/http"
	"strings"
	"time"

	"spectral/internal/graphql"
	"spectral/internal/logger"
	"spectral/internal/pool"
	"spectral/internal/protocol"
	"spectral/pkg/domain"
)

// Forwarder 放行或直接响应被暂停的请求
type Forwarder interface {
	// ContinueRequest 放行请求，postData 为 nil 时不修改请求体
	ContinueRequest(ctx context.Context, requestID string, postData []byte) error
	// FulfillRequest 不经网络直接返回响应
	FulfillRequest(ctx context.Context, requestID string, status int, headers []domain.Header, body []byte) error
}

// SettingsSource 提供当前拦截设置
type SettingsSource interface {
	Settings() domain.Settings
}

// Interceptor GraphQL 请求拦截器，任何异常都原样放行
type Interceptor struct {
	settings SettingsSource
	pool     pool.Submitter
	timeout  time.Duration
	log      logger.Logger
}

// New 创建拦截器
func New(settings SettingsSource, p pool.Submitter, l logger.Logger) *Interceptor {
	if l == nil {
		l = logger.NewNop()
	}
	if p == nil {
		p = pool.Inline{}
	}
	return &Interceptor{settings: settings, pool: p, timeout: 5 * time.Second, log: l}
}

// Dispatch 在工作池中处理暂停的请求，队列满时直接放行
func (i *Interceptor) Dispatch(ctx context.Context, f Forwarder, ev *protocol.RequestPaused) {
	if ev == nil || f == nil {
		return
	}
	submitted := i.pool.Submit(func() {
		i.Handle(ctx, f, ev)
	})
	if !submitted {
		i.Passthrough(ctx, f, ev, "并发队列已满")
	}
}

// Handle 同步处理一个暂停的请求
func (i *Interceptor) Handle(ctx context.Context, f Forwarder, ev *protocol.RequestPaused) {
	defer func() {
		if r := recover(); r != nil {
			i.log.Error("拦截处理 panic，原样放行", "requestID", ev.RequestID, "panic", r)
			i.Passthrough(ctx, f, ev, "panic")
		}
	}()

	if !strings.EqualFold(ev.Method, http.MethodPost) || len(ev.PostData) == 0 {
		i.forward(ctx, f, ev, nil)
		return
	}

	settings := i.settings.Settings()
	res, err := graphql.Process(ev.PostData, graphql.Options{
		InjectTypename: settings.InjectTypename,
		InjectApqError: settings.InjectApqError,
	})
	if err != nil {
		i.log.Debug("请求体无法解析，原样放行", "requestID", ev.RequestID, "url", ev.URL, "error", err)
		i.forward(ctx, f, ev, nil)
		return
	}

	switch res.Action {
	case graphql.ActionFulfill:
		i.log.Debug("拒绝持久化查询", "requestID", ev.RequestID, "url", ev.URL)
		ctx2, cancel := context.WithTimeout(ctx, i.timeout)
		defer cancel()
		headers := []domain.Header{{Name: "Content-Type", Value: "application/json"}}
		if err := f.FulfillRequest(ctx2, ev.RequestID, http.StatusOK, headers, res.Body); err != nil {
			i.log.Debug("直接响应失败，原样放行", "requestID", ev.RequestID, "error", err)
			i.Passthrough(ctx, f, ev, "fulfill failed")
		}
	case graphql.ActionModify:
		i.log.Debug("注入 __typename", "requestID", ev.RequestID, "url", ev.URL)
		i.forward(ctx, f, ev, res.Body)
	default:
		i.forward(ctx, f, ev, nil)
	}
}

// forward 放行，修改后的放行失败时退回原样放行
func (i *Interceptor) forward(ctx context.Context, f Forwarder, ev *protocol.RequestPaused, body []byte) {
	ctx2, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	err := f.ContinueRequest(ctx2, ev.RequestID, body)
	if err == nil {
		return
	}
	if body == nil {
		i.log.Debug("放行请求失败", "requestID", ev.RequestID, "error", err)
		return
	}
	i.Passthrough(ctx, f, ev, "continue with body failed")
}

// Passthrough 降级处理：原样放行，失败时只记录日志
func (i *Interceptor) Passthrough(ctx context.Context, f Forwarder, ev *protocol.RequestPaused, reason string) {
	i.log.Warn("执行降级策略：直接放行", "reason", reason, "requestID", ev.RequestID)
	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := f.ContinueRequest(ctx2, ev.RequestID, nil); err != nil {
		i.log.Debug("降级放行失败", "requestID", ev.RequestID, "error", err)
	}
}
