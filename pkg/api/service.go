package api

import (
	"context"

	"spectral/internal/service"
	"spectral/pkg/domain"
)

// Service 捕获控制接口
type Service interface {
	// Start 附加目标并开始捕获，target 为空时取第一个 page 目标
	Start(ctx context.Context, target domain.TargetID) error

	// Stop 停止捕获，返回最终统计
	Stop(ctx context.Context) (domain.Stats, error)

	// Export 导出当前记录集
	Export(ctx context.Context) (domain.ExportResult, error)

	// Status 状态快照
	Status() domain.Status

	// Targets 列出浏览器中的 page 目标
	Targets(ctx context.Context) ([]domain.TargetInfo, error)

	// Settings 当前拦截设置
	Settings() domain.Settings

	// UpdateSettings 更新并持久化拦截设置
	UpdateSettings(ctx context.Context, s domain.Settings) error

	// AddContext 记录一条界面交互
	AddContext(target domain.TargetID, msg domain.ContextMessage) (*domain.UIContext, bool)
}

var _ Service = (*service.Service)(nil)

// NewService 创建并返回服务接口实现
func NewService(cfg service.Config) Service {
	return service.New(cfg)
}
