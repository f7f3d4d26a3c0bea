package service

import (
	"context"

	"spectral/internal/manager"
	"spectral/pkg/domain"
)

// managerBrowser 把目标管理器适配为 Browser
type managerBrowser struct {
	*manager.Manager
}

// NewBrowser 基于 DevTools 目标管理器创建 Browser
func NewBrowser(m *manager.Manager) Browser {
	return managerBrowser{Manager: m}
}

func (b managerBrowser) Attach(ctx context.Context, info domain.TargetInfo) (Target, error) {
	s, err := b.Manager.Attach(ctx, info)
	if err != nil {
		return nil, err
	}
	return s, nil
}
