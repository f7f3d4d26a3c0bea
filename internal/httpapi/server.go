package httpapi

import (
	"context"
	"net/http"

	"spectral/internal/logger"
	"spectral/internal/storage/model"
	"spectral/pkg/api"
	"spectral/pkg/domain"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// History 导出历史查询
type History interface {
	ListRecent(ctx context.Context, targetID string, page, limit int) ([]*model.ExportRecord, int64, error)
}

// Options 服务器依赖
type Options struct {
	Service api.Service
	// UI 页面侧界面采集的 WebSocket 入口，挂载到 /ws/ui
	UI      http.Handler
	History History
	Metrics *Metrics
	Logger  logger.Logger
}

// NewServer 创建控制接口
func NewServer(opts Options) http.Handler {
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(l))
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Spectral Capture API", "1.0.0")
	humaAPI := humachi.New(router, cfg)

	registerCaptureHandlers(humaAPI, opts.Service)
	registerSettingsHandlers(humaAPI, opts.Service)
	registerContextHandlers(humaAPI, opts.Service)
	if opts.History != nil {
		registerHistoryHandlers(humaAPI, opts.History)
	}

	if opts.Metrics != nil {
		router.Get("/metrics", opts.Metrics.ServeHTTP)
	}
	if opts.UI != nil {
		router.Get("/ws/ui", opts.UI.ServeHTTP)
	}
	return router
}

func registerCaptureHandlers(a huma.API, svc api.Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(a, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type targetsOutput struct {
		Body struct {
			Targets []domain.TargetInfo `json:"targets"`
		}
	}
	huma.Register(a, huma.Operation{OperationID: "list-targets", Method: http.MethodGet, Path: "/api/v1/targets", Summary: "List page targets", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct{}) (*targetsOutput, error) {
			targets, err := svc.Targets(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &targetsOutput{}
			out.Body.Targets = targets
			return out, nil
		})

	type startInput struct {
		Body *struct {
			TargetID string `json:"target_id,omitempty" doc:"Page target id. Omit to use the first page target."`
		}
	}
	type statusOutput struct {
		Body domain.Status
	}
	huma.Register(a, huma.Operation{OperationID: "start-capture", Method: http.MethodPost, Path: "/api/v1/capture/start", Summary: "Attach and start capturing", Tags: []string{"Capture"}},
		func(ctx context.Context, input *startInput) (*statusOutput, error) {
			var target domain.TargetID
			if input.Body != nil {
				target = domain.TargetID(input.Body.TargetID)
			}
			if err := svc.Start(ctx, target); err != nil {
				return nil, mapErr(err)
			}
			return &statusOutput{Body: svc.Status()}, nil
		})

	type stopOutput struct {
		Body domain.Stats
	}
	huma.Register(a, huma.Operation{OperationID: "stop-capture", Method: http.MethodPost, Path: "/api/v1/capture/stop", Summary: "Stop capturing", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct{}) (*stopOutput, error) {
			stats, err := svc.Stop(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stopOutput{Body: stats}, nil
		})

	type exportOutput struct {
		Body domain.ExportResult
	}
	huma.Register(a, huma.Operation{OperationID: "export-capture", Method: http.MethodPost, Path: "/api/v1/capture/export", Summary: "Write the capture bundle", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct{}) (*exportOutput, error) {
			res, err := svc.Export(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &exportOutput{Body: res}, nil
		})

	huma.Register(a, huma.Operation{OperationID: "capture-status", Method: http.MethodGet, Path: "/api/v1/capture/status", Summary: "Capture status", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			return &statusOutput{Body: svc.Status()}, nil
		})
}

func registerSettingsHandlers(a huma.API, svc api.Service) {
	type settingsOutput struct {
		Body domain.Settings
	}
	huma.Register(a, huma.Operation{OperationID: "get-settings", Method: http.MethodGet, Path: "/api/v1/settings", Summary: "Get interceptor settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*settingsOutput, error) {
			return &settingsOutput{Body: svc.Settings()}, nil
		})

	type settingsInput struct {
		Body domain.Settings
	}
	huma.Register(a, huma.Operation{OperationID: "put-settings", Method: http.MethodPut, Path: "/api/v1/settings", Summary: "Update interceptor settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *settingsInput) (*settingsOutput, error) {
			if err := svc.UpdateSettings(ctx, input.Body); err != nil {
				return nil, mapErr(err)
			}
			return &settingsOutput{Body: svc.Settings()}, nil
		})
}

// contextBody 页面侧上报的界面交互，除 action 外均可缺省，未知字段忽略
type contextBody struct {
	_         struct{} `json:"-" additionalProperties:"true"`
	TargetID  string   `json:"target_id,omitempty"`
	Action    string   `json:"action"`
	Timestamp *int64   `json:"timestamp,omitempty"`
	Element   struct {
		Selector   string            `json:"selector,omitempty"`
		Tag        string            `json:"tag,omitempty"`
		Text       string            `json:"text,omitempty"`
		Attributes map[string]string `json:"attributes,omitempty"`
		XPath      string            `json:"xpath,omitempty"`
	} `json:"element,omitempty"`
	Page struct {
		URL     string         `json:"url,omitempty"`
		Title   string         `json:"title,omitempty"`
		Content map[string]any `json:"content,omitempty"`
	} `json:"page,omitempty"`
	Viewport struct {
		Width   int `json:"width,omitempty"`
		Height  int `json:"height,omitempty"`
		ScrollX int `json:"scroll_x,omitempty"`
		ScrollY int `json:"scroll_y,omitempty"`
	} `json:"viewport,omitempty"`
}

func (b contextBody) message() domain.ContextMessage {
	return domain.ContextMessage{
		Action:    b.Action,
		Timestamp: b.Timestamp,
		Element: domain.ElementInfo{
			Selector:   b.Element.Selector,
			Tag:        b.Element.Tag,
			Text:       b.Element.Text,
			Attributes: b.Element.Attributes,
			XPath:      b.Element.XPath,
		},
		Page:     domain.PageInfo{URL: b.Page.URL, Title: b.Page.Title, Content: b.Page.Content},
		Viewport: domain.ViewportInfo(b.Viewport),
	}
}

func registerContextHandlers(a huma.API, svc api.Service) {
	type contextInput struct {
		Body contextBody
	}
	type contextOutput struct {
		Body struct {
			Accepted bool   `json:"accepted"`
			ID       string `json:"id,omitempty"`
		}
	}
	huma.Register(a, huma.Operation{OperationID: "add-context", Method: http.MethodPost, Path: "/api/v1/contexts", Summary: "Record a UI interaction", Tags: []string{"Capture"}},
		func(ctx context.Context, input *contextInput) (*contextOutput, error) {
			out := &contextOutput{}
			uc, ok := svc.AddContext(domain.TargetID(input.Body.TargetID), input.Body.message())
			out.Body.Accepted = ok
			if ok {
				out.Body.ID = uc.ID
			}
			return out, nil
		})
}

func registerHistoryHandlers(a huma.API, h History) {
	type historyInput struct {
		Target string `query:"target" doc:"Filter by target id"`
		Page   int    `query:"page" default:"1" minimum:"1"`
		Limit  int    `query:"limit" default:"20" minimum:"1" maximum:"200"`
	}
	type historyOutput struct {
		Body struct {
			Total   int64                 `json:"total"`
			Exports []*model.ExportRecord `json:"exports"`
		}
	}
	huma.Register(a, huma.Operation{OperationID: "list-exports", Method: http.MethodGet, Path: "/api/v1/exports", Summary: "List previous exports", Tags: []string{"Capture"}},
		func(ctx context.Context, input *historyInput) (*historyOutput, error) {
			list, total, err := h.ListRecent(ctx, input.Target, input.Page, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &historyOutput{}
			out.Body.Total = total
			out.Body.Exports = list
			return out, nil
		})
}
