package interceptor_test

import (
	"context"
	"errors"
	"testing"

	"spectral/internal/interceptor"
	"spectral/internal/pool"
	"spectral/internal/protocol"
	"spectral/pkg/domain"

	"github.com/tidwall/gjson"
)

type call struct {
	kind   string
	id     string
	status int
	body   []byte
}

type fakeForwarder struct {
	calls       []call
	continueErr func(body []byte) error
	fulfillErr  error
}

func (f *fakeForwarder) ContinueRequest(_ context.Context, id string, body []byte) error {
	f.calls = append(f.calls, call{kind: "continue", id: id, body: body})
	if f.continueErr != nil {
		return f.continueErr(body)
	}
	return nil
}

func (f *fakeForwarder) FulfillRequest(_ context.Context, id string, status int, _ []domain.Header, body []byte) error {
	f.calls = append(f.calls, call{kind: "fulfill", id: id, status: status, body: body})
	return f.fulfillErr
}

type staticSettings domain.Settings

func (s staticSettings) Settings() domain.Settings { return domain.Settings(s) }

type rejecting struct{}

func (rejecting) Submit(func()) bool { return false }

var allOn = staticSettings{InjectTypename: true, InjectApqError: true}

func paused(method, body string) *protocol.RequestPaused {
	ev := &protocol.RequestPaused{RequestID: "interception-1", Method: method, URL: "https://api.example.com/graphql"}
	if body != "" {
		ev.PostData = []byte(body)
	}
	return ev
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name     string
		ev       *protocol.RequestPaused
		wantKind string
		wantBody string
	}{
		{"GET 原样放行", paused("GET", ""), "continue", ""},
		{"无请求体原样放行", paused("POST", ""), "continue", ""},
		{"非 JSON 原样放行", paused("POST", "a=1&b=2"), "continue", ""},
		{"无需改动原样放行", paused("POST", `{"query":"{ __typename }"}`), "continue", ""},
		{"注入后放行", paused("POST", `{"query":"{ a { b } }"}`), "continue", `{"query":"{ a { b  __typename }  __typename }"}`},
		{"持久化查询直接响应", paused("POST", `{"extensions":{"persistedQuery":{"sha256Hash":"x"}}}`), "fulfill", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeForwarder{}
			i := interceptor.New(allOn, pool.Inline{}, nil)
			i.Dispatch(context.Background(), f, tt.ev)

			if len(f.calls) != 1 {
				t.Fatalf("期望 1 次调用，实际 %d", len(f.calls))
			}
			c := f.calls[0]
			if c.kind != tt.wantKind || c.id != "interception-1" {
				t.Errorf("调用 = %+v, 期望 %s", c, tt.wantKind)
			}
			if tt.wantKind == "continue" && string(c.body) != tt.wantBody {
				t.Errorf("放行请求体 = %q, 期望 %q", c.body, tt.wantBody)
			}
			if tt.wantKind == "fulfill" {
				if c.status != 200 {
					t.Errorf("状态码 = %d", c.status)
				}
				if gjson.GetBytes(c.body, "errors.0.extensions.code").String() != "PERSISTED_QUERY_NOT_FOUND" {
					t.Errorf("响应体错误: %s", c.body)
				}
			}
		})
	}
}

func TestFailOpen(t *testing.T) {
	t.Run("改写放行失败后原样放行", func(t *testing.T) {
		f := &fakeForwarder{continueErr: func(body []byte) error {
			if body != nil {
				return errors.New("invalid postData")
			}
			return nil
		}}
		i := interceptor.New(allOn, pool.Inline{}, nil)
		i.Handle(context.Background(), f, paused("POST", `{"query":"{ a }"}`))

		if len(f.calls) != 2 || f.calls[1].body != nil {
			t.Fatalf("应先尝试改写后退回原样放行: %+v", f.calls)
		}
	})

	t.Run("直接响应失败后原样放行", func(t *testing.T) {
		f := &fakeForwarder{fulfillErr: errors.New("target closed")}
		i := interceptor.New(allOn, pool.Inline{}, nil)
		i.Handle(context.Background(), f, paused("POST", `{"extensions":{"persistedQuery":{}}}`))

		if len(f.calls) != 2 || f.calls[1].kind != "continue" {
			t.Fatalf("直接响应失败应退回放行: %+v", f.calls)
		}
	})

	t.Run("放行本身失败被吞掉", func(t *testing.T) {
		f := &fakeForwarder{continueErr: func([]byte) error { return errors.New("session detached") }}
		i := interceptor.New(allOn, pool.Inline{}, nil)
		i.Handle(context.Background(), f, paused("POST", `{"query":"{ a }"}`))
		// 不 panic 即可
	})

	t.Run("队列满时直接放行", func(t *testing.T) {
		f := &fakeForwarder{}
		i := interceptor.New(allOn, rejecting{}, nil)
		i.Dispatch(context.Background(), f, paused("POST", `{"query":"{ a }"}`))

		if len(f.calls) != 1 || f.calls[0].body != nil {
			t.Fatalf("队列满时应原样放行: %+v", f.calls)
		}
	})
}

func TestSettingsRespected(t *testing.T) {
	f := &fakeForwarder{}
	i := interceptor.New(staticSettings{}, pool.Inline{}, nil)
	i.Handle(context.Background(), f, paused("POST", `{"extensions":{"persistedQuery":{}}}`))
	i.Handle(context.Background(), f, paused("POST", `{"query":"{ a }"}`))

	for _, c := range f.calls {
		if c.kind != "continue" || c.body != nil {
			t.Errorf("设置全部关闭时应原样放行: %+v", c)
		}
	}
}
