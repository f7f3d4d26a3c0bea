package cdp

import (
	"context"
	"time"

	"spectral/pkg/domain"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
)

// 放行命令超时
const commandTimeout = 5 * time.Second

// enableFetch 只在请求阶段拦截全部请求
func enableFetch(ctx context.Context, client *cdp.Client) error {
	p := "*"
	patterns := []fetch.RequestPattern{
		{URLPattern: &p, RequestStage: fetch.RequestStageRequest},
	}
	return client.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: patterns})
}

// ContinueRequest 放行请求，postData 非空时替换请求体
func (s *Session) ContinueRequest(ctx context.Context, requestID string, postData []byte) error {
	ctx2, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	args := &fetch.ContinueRequestArgs{RequestID: fetch.RequestID(requestID)}
	if postData != nil {
		args.PostData = postData
	}
	err := s.client.Fetch.ContinueRequest(ctx2, args)
	if err != nil {
		s.log.Err(err, "放行请求失败", "requestID", requestID)
	}
	return err
}

// FulfillRequest 不经网络直接以合成响应完成请求
func (s *Session) FulfillRequest(ctx context.Context, requestID string, status int, headers []domain.Header, body []byte) error {
	ctx2, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	args := &fetch.FulfillRequestArgs{
		RequestID:       fetch.RequestID(requestID),
		ResponseCode:    status,
		ResponseHeaders: ToHeaderEntries(headers),
		Body:            body,
	}
	err := s.client.Fetch.FulfillRequest(ctx2, args)
	if err != nil {
		s.log.Err(err, "合成响应失败", "requestID", requestID)
	}
	return err
}
