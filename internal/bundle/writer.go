package bundle

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"spectral/internal/logger"
	"spectral/pkg/domain"

	"github.com/google/uuid"
)

// Exporter 把记录集写入导出目录
type Exporter struct {
	dir string
	log logger.Logger
	now func() time.Time
}

// NewExporter 创建导出器
func NewExporter(dir string, l logger.Logger) *Exporter {
	if l == nil {
		l = logger.NewNop()
	}
	return &Exporter{dir: dir, log: l, now: time.Now}
}

// SetClock 替换时间源
func (e *Exporter) SetClock(now func() time.Time) { e.now = now }

// Export 写入 capture-<时间>.zip，先写临时文件再改名
func (e *Exporter) Export(ctx context.Context, c *domain.Capture) (domain.ExportResult, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return domain.ExportResult{}, err
	}

	created := e.now()
	id := uuid.NewString()
	name := fmt.Sprintf("capture-%s.zip", created.Format("20060102-150405"))
	path := filepath.Join(e.dir, name)

	tmp, err := os.CreateTemp(e.dir, name+".*.tmp")
	if err != nil {
		return domain.ExportResult{}, err
	}
	defer os.Remove(tmp.Name())

	if err := Write(ctx, tmp, c, id, created); err != nil {
		tmp.Close()
		return domain.ExportResult{}, err
	}
	if err := tmp.Close(); err != nil {
		return domain.ExportResult{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return domain.ExportResult{}, err
	}

	e.log.Info("捕获包已写入", "path", path, "captureID", id)
	return domain.ExportResult{CaptureID: id, Path: path}, nil
}

// Write 按捕获包布局把记录集写入 w
func Write(ctx context.Context, w io.Writer, c *domain.Capture, captureID string, created time.Time) error {
	zw := zip.NewWriter(w)
	bw := &writer{zw: zw}

	bw.json("manifest.json", newManifest(c, captureID, created))

	for _, t := range c.Traces {
		if err := ctx.Err(); err != nil {
			return err
		}
		bw.trace(t)
	}
	for _, conn := range c.Connections {
		if err := ctx.Err(); err != nil {
			return err
		}
		bw.json("ws/"+conn.ID+".json", conn)
		for _, m := range conn.Messages {
			bw.message(m)
		}
	}
	for _, uc := range c.Contexts {
		bw.json("contexts/"+uc.ID+".json", uc)
	}
	bw.json("timeline.json", Timeline{Events: sortedTimeline(c.Timeline)})

	if bw.err != nil {
		return bw.err
	}
	return zw.Close()
}

// writer 记录第一个错误，之后的写入全部跳过
type writer struct {
	zw  *zip.Writer
	err error
}

func (w *writer) file(name string, data []byte) {
	if w.err != nil {
		return
	}
	f, err := w.zw.Create(name)
	if err != nil {
		w.err = err
		return
	}
	_, w.err = f.Write(data)
}

func (w *writer) json(name string, v any) {
	if w.err != nil {
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		w.err = fmt.Errorf("marshal %s: %w", name, err)
		return
	}
	w.file(name, data)
}

func (w *writer) trace(t *domain.Trace) {
	meta := TraceMeta{
		ID:        t.ID,
		Timestamp: t.Timestamp,
		Type:      "http",
		Request: RequestMeta{
			Method:  t.Request.Method,
			URL:     t.Request.URL,
			Headers: nonNil(t.Request.Headers),
		},
		Response: ResponseMeta{
			Status:     t.Response.Status,
			StatusText: t.Response.StatusText,
			Headers:    nonNil(t.Response.Headers),
		},
		Timing:      t.Timing,
		Initiator:   t.Initiator,
		ContextRefs: nonNilRefs(t.ContextRefs),
	}
	if len(t.Request.Body) > 0 {
		meta.Request.BodyFile = bodyFile(t.ID + "_request.bin")
		meta.Request.BodySize = len(t.Request.Body)
	}
	if len(t.Response.Body) > 0 {
		meta.Response.BodyFile = bodyFile(t.ID + "_response.bin")
		meta.Response.BodySize = len(t.Response.Body)
	}

	w.json("traces/"+t.ID+".json", meta)
	if meta.Request.BodyFile != nil {
		w.file("traces/"+*meta.Request.BodyFile, t.Request.Body)
	}
	if meta.Response.BodyFile != nil {
		w.file("traces/"+*meta.Response.BodyFile, t.Response.Body)
	}
}

func (w *writer) message(m *domain.WsMessage) {
	meta := MessageMeta{
		ID:            m.ID,
		ConnectionRef: m.ConnectionRef,
		Timestamp:     m.Timestamp,
		Direction:     m.Direction,
		Opcode:        m.Opcode,
		ContextRefs:   nonNilRefs(m.ContextRefs),
	}
	if len(m.Payload) > 0 {
		meta.PayloadFile = bodyFile(m.ID + ".bin")
		meta.PayloadSize = len(m.Payload)
	}
	w.json("ws/"+m.ID+".json", meta)
	if meta.PayloadFile != nil {
		w.file("ws/"+*meta.PayloadFile, m.Payload)
	}
}

func newManifest(c *domain.Capture, captureID string, created time.Time) Manifest {
	app := AppInfo{Title: c.TargetTitle}
	if u, err := url.Parse(c.TargetURL); err == nil && u.Host != "" {
		app.Name = u.Hostname()
		app.BaseURL = u.Scheme + "://" + u.Host
	}
	duration := c.EndedAt - c.StartedAt
	if c.StartedAt == 0 || duration < 0 {
		duration = 0
	}
	return Manifest{
		FormatVersion: FormatVersion,
		CaptureID:     captureID,
		CreatedAt:     created.UTC().Format(time.RFC3339),
		App:           app,
		DurationMs:    duration,
		Stats:         c.Stats(),
		CaptureMethod: CaptureMethod,
	}
}

// sortedTimeline 按时间戳稳定排序，同一时刻保持记录顺序
func sortedTimeline(entries []domain.TimelineEntry) []domain.TimelineEntry {
	out := append([]domain.TimelineEntry{}, entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func bodyFile(name string) *string { return &name }

func nonNil(h []domain.Header) []domain.Header {
	if h == nil {
		return []domain.Header{}
	}
	return h
}

func nonNilRefs(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}
