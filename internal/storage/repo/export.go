package repo

import (
	"context"
	"time"

	"spectral/internal/storage/model"
	"spectral/pkg/domain"

	"gorm.io/gorm"
)

// DefaultHistoryLimit 导出历史默认保留条数
const DefaultHistoryLimit = 500

// ExportRepo 导出历史仓库
type ExportRepo struct {
	BaseRepository[model.ExportRecord]
	// Keep 保留的最新记录数，不大于 0 时不清理
	Keep int
}

// NewExportRepo 创建导出历史仓库
func NewExportRepo(db *gorm.DB) *ExportRepo {
	return &ExportRepo{
		BaseRepository: *NewBaseRepository[model.ExportRecord](db),
		Keep:           DefaultHistoryLimit,
	}
}

// RecordExport 登记一次成功的导出，并清理超出保留数的旧记录
func (r *ExportRepo) RecordExport(ctx context.Context, captureID, path string, c *domain.Capture) error {
	stats := c.Stats()
	err := r.Create(ctx, &model.ExportRecord{
		CaptureID:         captureID,
		TargetID:          string(c.TargetID),
		TargetURL:         c.TargetURL,
		Path:              path,
		TraceCount:        stats.TraceCount,
		WsConnectionCount: stats.WsConnectionCount,
		WsMessageCount:    stats.WsMessageCount,
		ContextCount:      stats.ContextCount,
		StartedAt:         c.StartedAt,
		EndedAt:           c.EndedAt,
		CreatedAt:         time.Now(),
	})
	if err != nil {
		return err
	}
	_, err = r.Prune(ctx, r.Keep)
	return err
}

// ListRecent 按结束时间倒序分页列出导出历史，targetID 为空时不过滤
func (r *ExportRepo) ListRecent(ctx context.Context, targetID string, page, limit int) ([]*model.ExportRecord, int64, error) {
	var scope ScopeFunc
	if targetID != "" {
		scope = func(db *gorm.DB) *gorm.DB { return db.Where("target_id = ?", targetID) }
	}
	return r.Page(ctx,
		Pagination{Page: page, Limit: limit},
		Orders{{Field: "ended_at", Sort: "DESC"}, {Field: "id", Sort: "DESC"}},
		scope,
	)
}

// Prune 只保留最新的 keep 条记录，返回删除的条数
func (r *ExportRepo) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	newest := r.Db.WithContext(ctx).Model(&model.ExportRecord{}).
		Select("id").
		Order("ended_at DESC").Order("id DESC").
		Limit(keep)
	res := r.Db.WithContext(ctx).Where("id NOT IN (?)", newest).Delete(&model.ExportRecord{})
	return res.RowsAffected, res.Error
}
