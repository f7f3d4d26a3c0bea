// Package correlator 按时间窗口把界面操作关联到网络事件
package correlator

import "spectral/pkg/domain"

// DefaultWindowMS 默认关联窗口
const DefaultWindowMS int64 = 2000

// FindContextRefs 返回时间戳落在 [timestamp-window, timestamp] 内的全部上下文ID，按创建顺序
func FindContextRefs(contexts []*domain.UIContext, timestamp, window int64) []string {
	if window < 0 {
		window = 0
	}
	refs := make([]string, 0)
	lower := timestamp - window
	for _, c := range contexts {
		if c.Timestamp >= lower && c.Timestamp <= timestamp {
			refs = append(refs, c.ID)
		}
	}
	return refs
}
