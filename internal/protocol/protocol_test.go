package protocol_test

import (
	"reflect"
	"testing"
	"time"

	"spectral/internal/protocol"
	"spectral/pkg/domain"
)

func TestIDs(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"trace", protocol.TraceID(1), "t_0001"},
		{"trace 四位以上", protocol.TraceID(12345), "t_12345"},
		{"connection", protocol.ConnectionID(7), "ws_0007"},
		{"message", protocol.MessageID("ws_0001", 3), "ws_0001_m003"},
		{"context", protocol.ContextID(42), "c_0042"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("期望 %s，实际 %s", tt.want, tt.got)
			}
		})
	}
}

func TestClock(t *testing.T) {
	now := time.UnixMilli(999_000)
	var c protocol.Clock

	if got := c.ToEpochMs(1.5, now); got != now.UnixMilli() {
		t.Errorf("偏移未确定时应使用当前时间，实际 %d", got)
	}

	c.Observe(10, 0)
	if c.Fixed() {
		t.Fatalf("没有墙上时钟时不应确定偏移")
	}

	c.Observe(10, 1_700_000_000)
	c.Observe(20, 5)
	if !c.Fixed() {
		t.Fatalf("偏移应已确定")
	}
	if got := c.ToEpochMs(12.5, now); got != 1_700_000_002_500 {
		t.Errorf("换算结果错误: %d", got)
	}
}

func TestHeadersFromJSON(t *testing.T) {
	raw := []byte(`{"Content-Type":"application/json","X-B":"2","x-a":"1"}`)
	got := protocol.HeadersFromJSON(raw)
	want := []domain.Header{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "X-B", Value: "2"},
		{Name: "x-a", Value: "1"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("头部顺序或内容错误: %+v", got)
	}

	if v, ok := protocol.HeaderValue(got, "content-type"); !ok || v != "application/json" {
		t.Errorf("HeaderValue 应大小写不敏感")
	}

	if got := protocol.HeadersFromJSON([]byte(`not json`)); len(got) != 0 {
		t.Errorf("非法 JSON 应返回空列表")
	}
}

func TestBodyDecoding(t *testing.T) {
	if got := string(protocol.JoinPostDataEntries([]string{"aGVs", "bG8="})); got != "hello" {
		t.Errorf("分段解码错误: %q", got)
	}
	if got := string(protocol.JoinPostDataEntries([]string{"%%%"})); got != "%%%" {
		t.Errorf("解码失败应保留原文: %q", got)
	}
	if got := string(protocol.DecodeBody("aGk=", true)); got != "hi" {
		t.Errorf("base64 响应体解码错误: %q", got)
	}
	if got := string(protocol.DecodeBody("plain", false)); got != "plain" {
		t.Errorf("文本响应体应原样返回: %q", got)
	}
}
