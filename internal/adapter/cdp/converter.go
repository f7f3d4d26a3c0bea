package cdp

import (
	"fmt"
	"math"

	"spectral/internal/protocol"
	"spectral/pkg/domain"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
)

// ToRequestWillBeSent 转换请求开始事件
func ToRequestWillBeSent(ev *network.RequestWillBeSentReply) *protocol.RequestWillBeSent {
	out := &protocol.RequestWillBeSent{
		RequestID:    string(ev.RequestID),
		URL:          ev.Request.URL,
		Method:       ev.Request.Method,
		Headers:      protocol.HeadersFromJSON(ev.Request.Headers),
		PostData:     requestBody(ev.Request),
		ResourceType: resourceType(ev.Type),
		Timestamp:    float64(ev.Timestamp),
		WallTime:     float64(ev.WallTime),
		Initiator:    toInitiator(ev.Initiator),
	}
	return out
}

// ToResponseReceived 转换响应头事件
func ToResponseReceived(ev *network.ResponseReceivedReply) *protocol.ResponseReceived {
	out := &protocol.ResponseReceived{
		RequestID:  string(ev.RequestID),
		Status:     ev.Response.Status,
		StatusText: ev.Response.StatusText,
		Headers:    protocol.HeadersFromJSON(ev.Response.Headers),
		MimeType:   ev.Response.MimeType,
		Timestamp:  float64(ev.Timestamp),
	}
	if t := ev.Response.Timing; t != nil {
		out.Timing = &protocol.ResourceTiming{
			RequestTime:       t.RequestTime,
			DNSStart:          t.DNSStart,
			DNSEnd:            t.DNSEnd,
			ConnectStart:      t.ConnectStart,
			ConnectEnd:        t.ConnectEnd,
			SSLStart:          t.SSLStart,
			SSLEnd:            t.SSLEnd,
			SendStart:         t.SendStart,
			SendEnd:           t.SendEnd,
			ReceiveHeadersEnd: t.ReceiveHeadersEnd,
		}
	}
	return out
}

// ToRequestExtraInfo 转换线上请求头事件
func ToRequestExtraInfo(ev *network.RequestWillBeSentExtraInfoReply) *protocol.ExtraInfo {
	return &protocol.ExtraInfo{RequestID: string(ev.RequestID), Headers: protocol.HeadersFromJSON(ev.Headers)}
}

// ToResponseExtraInfo 转换线上响应头事件
func ToResponseExtraInfo(ev *network.ResponseReceivedExtraInfoReply) *protocol.ExtraInfo {
	return &protocol.ExtraInfo{RequestID: string(ev.RequestID), Headers: protocol.HeadersFromJSON(ev.Headers)}
}

// ToLoadingFinished 转换加载完成事件
func ToLoadingFinished(ev *network.LoadingFinishedReply) *protocol.LoadingFinished {
	return &protocol.LoadingFinished{RequestID: string(ev.RequestID), Timestamp: float64(ev.Timestamp)}
}

// ToLoadingFailed 转换加载失败事件
func ToLoadingFailed(ev *network.LoadingFailedReply) *protocol.LoadingFailed {
	return &protocol.LoadingFailed{RequestID: string(ev.RequestID), ErrorText: ev.ErrorText}
}

// ToWebSocketCreated 转换连接建立事件
func ToWebSocketCreated(ev *network.WebSocketCreatedReply) *protocol.WebSocketCreated {
	return &protocol.WebSocketCreated{RequestID: string(ev.RequestID), URL: ev.URL}
}

// ToWebSocketHandshake 转换握手响应事件
func ToWebSocketHandshake(ev *network.WebSocketHandshakeResponseReceivedReply) *protocol.WebSocketHandshake {
	return &protocol.WebSocketHandshake{
		RequestID: string(ev.RequestID),
		Timestamp: float64(ev.Timestamp),
		Status:    ev.Response.Status,
		Headers:   protocol.HeadersFromJSON(ev.Response.Headers),
	}
}

// ToWebSocketFrame 转换帧事件
func ToWebSocketFrame(requestID network.RequestID, ts network.MonotonicTime, frame network.WebSocketFrame) *protocol.WebSocketFrame {
	return &protocol.WebSocketFrame{
		RequestID:   string(requestID),
		Timestamp:   float64(ts),
		Opcode:      int(math.Round(frame.Opcode)),
		PayloadData: frame.PayloadData,
	}
}

// ToWebSocketClosed 转换连接关闭事件
func ToWebSocketClosed(ev *network.WebSocketClosedReply) *protocol.WebSocketClosed {
	return &protocol.WebSocketClosed{RequestID: string(ev.RequestID), Timestamp: float64(ev.Timestamp)}
}

// ToRequestPaused 转换拦截暂停事件
func ToRequestPaused(ev *fetch.RequestPausedReply) *protocol.RequestPaused {
	return &protocol.RequestPaused{
		RequestID:    string(ev.RequestID),
		URL:          ev.Request.URL,
		Method:       ev.Request.Method,
		Headers:      protocol.HeadersFromJSON(ev.Request.Headers),
		PostData:     requestBody(ev.Request),
		ResourceType: resourceType(ev.ResourceType),
	}
}

// ToHeaderEntries 将有序头部转换为 CDP 头部条目
func ToHeaderEntries(headers []domain.Header) []fetch.HeaderEntry {
	entries := make([]fetch.HeaderEntry, 0, len(headers))
	for _, h := range headers {
		entries = append(entries, fetch.HeaderEntry{Name: h.Name, Value: h.Value})
	}
	return entries
}

// requestBody 优先使用 PostDataEntries，回退到 PostData
func requestBody(req network.Request) []byte {
	if len(req.PostDataEntries) > 0 {
		entries := make([]string, 0, len(req.PostDataEntries))
		for _, entry := range req.PostDataEntries {
			if entry.Bytes != nil {
				entries = append(entries, *entry.Bytes)
			}
		}
		if body := protocol.JoinPostDataEntries(entries); len(body) > 0 {
			return body
		}
	}
	if req.PostData != nil {
		return []byte(*req.PostData)
	}
	return nil
}

// resourceType 兼容值和指针两种可选字段形式
func resourceType(v any) string {
	switch t := v.(type) {
	case network.ResourceType:
		return string(t)
	case *network.ResourceType:
		if t != nil {
			return string(*t)
		}
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return ""
}

func toInitiator(in network.Initiator) domain.Initiator {
	out := domain.Initiator{Type: in.Type}
	if in.URL != nil {
		out.URL = *in.URL
	}
	if in.LineNumber != nil {
		out.Line = int(*in.LineNumber)
	}
	return out
}
