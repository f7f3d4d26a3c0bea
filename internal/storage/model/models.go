package model

import (
	"time"
)

// Setting 键值设置表
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// 预定义的设置 Key
const (
	SettingKeyInjectTypename = "inject_typename"
	SettingKeyInjectApqError = "inject_apq_error"
)

// ExportRecord 一次导出的历史记录
type ExportRecord struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CaptureID         string    `gorm:"uniqueIndex;not null" json:"captureId"` // 捕获包 manifest 中的 capture_id
	TargetID          string    `gorm:"index" json:"targetId"`
	TargetURL         string    `json:"targetUrl"`
	Path              string    `json:"path"`
	TraceCount        int       `json:"traceCount"`
	WsConnectionCount int       `json:"wsConnectionCount"`
	WsMessageCount    int       `json:"wsMessageCount"`
	ContextCount      int       `json:"contextCount"`
	StartedAt         int64     `json:"startedAt"`
	EndedAt           int64     `gorm:"index" json:"endedAt"`
	CreatedAt         time.Time `json:"createdAt"`
}

// All 需要迁移的全部模型
func All() []any {
	return []any{&Setting{}, &ExportRecord{}}
}
