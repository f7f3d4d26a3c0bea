package cdp_test

import (
	"testing"

	cdpadapter "spectral/internal/adapter/cdp"
	"spectral/pkg/domain"

	"github.com/mafredri/cdp/protocol/network"
)

func strPtr(s string) *string { return &s }

func TestToHeaderEntries(t *testing.T) {
	headers := []domain.Header{
		{Name: "X-Trace", Value: "1"},
		{Name: "content-type", Value: "application/json"},
		{Name: "X-Trace", Value: "2"},
	}
	entries := cdpadapter.ToHeaderEntries(headers)
	if len(entries) != len(headers) {
		t.Fatalf("条目数 = %d, 期望 %d", len(entries), len(headers))
	}
	for i, h := range headers {
		if entries[i].Name != h.Name || entries[i].Value != h.Value {
			t.Errorf("第 %d 项 = %s:%s, 期望 %s:%s", i, entries[i].Name, entries[i].Value, h.Name, h.Value)
		}
	}

	if got := cdpadapter.ToHeaderEntries(nil); got == nil || len(got) != 0 {
		t.Errorf("空头部应返回空切片，实际 %v", got)
	}
}

func TestToWebSocketFrame(t *testing.T) {
	tests := []struct {
		name   string
		opcode float64
		want   int
	}{
		{name: "文本帧", opcode: 1, want: 1},
		{name: "二进制帧", opcode: 2, want: 2},
		{name: "浮点误差取整", opcode: 1.9999999, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := network.WebSocketFrame{Opcode: tt.opcode, PayloadData: "aGk="}
			got := cdpadapter.ToWebSocketFrame(network.RequestID("r1"), network.MonotonicTime(1.5), frame)
			if got.Opcode != tt.want {
				t.Errorf("Opcode = %d, 期望 %d", got.Opcode, tt.want)
			}
			if got.RequestID != "r1" || got.Timestamp != 1.5 {
				t.Errorf("RequestID/Timestamp = %s/%v", got.RequestID, got.Timestamp)
			}
			if got.PayloadData != "aGk=" {
				t.Errorf("PayloadData 应原样保留，实际 %q", got.PayloadData)
			}
		})
	}
}

func TestToRequestWillBeSentBody(t *testing.T) {
	tests := []struct {
		name string
		req  network.Request
		want string
	}{
		{
			name: "优先使用分段请求体",
			req: network.Request{
				PostData: strPtr("fallback"),
				PostDataEntries: []network.PostDataEntry{
					{Bytes: strPtr("eyJh")},
					{Bytes: strPtr("IjoxfQ==")},
				},
			},
			want: `{"a":1}`,
		},
		{
			name: "分段为空时回退 PostData",
			req: network.Request{
				PostData:        strPtr("plain"),
				PostDataEntries: []network.PostDataEntry{{}},
			},
			want: "plain",
		},
		{name: "无请求体", req: network.Request{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.URL = "https://example.com/api"
			tt.req.Method = "POST"
			got := cdpadapter.ToRequestWillBeSent(&network.RequestWillBeSentReply{RequestID: "r1", Request: tt.req})
			if string(got.PostData) != tt.want {
				t.Errorf("PostData = %q, 期望 %q", got.PostData, tt.want)
			}
			if got.URL != tt.req.URL || got.Method != "POST" {
				t.Errorf("URL/Method = %s %s", got.Method, got.URL)
			}
		})
	}
}

func TestToRequestWillBeSentHeadersAndInitiator(t *testing.T) {
	line := 42.0
	ev := &network.RequestWillBeSentReply{
		RequestID: "r2",
		Request: network.Request{
			URL:     "https://example.com/",
			Method:  "GET",
			Headers: network.Headers(`{"B":"2","a":"1"}`),
		},
		Initiator: network.Initiator{Type: "script", URL: strPtr("https://example.com/app.js"), LineNumber: &line},
	}
	got := cdpadapter.ToRequestWillBeSent(ev)

	if len(got.Headers) != 2 || got.Headers[0].Name != "B" || got.Headers[1].Name != "a" {
		t.Errorf("头部应保留原始顺序与大小写，实际 %+v", got.Headers)
	}
	want := domain.Initiator{Type: "script", URL: "https://example.com/app.js", Line: 42}
	if got.Initiator != want {
		t.Errorf("Initiator = %+v, 期望 %+v", got.Initiator, want)
	}
}
