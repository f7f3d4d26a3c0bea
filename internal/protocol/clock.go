package protocol

import (
	"math"
	"time"
)

// Clock 单调时钟到 epoch 毫秒的换算，偏移量由会话中第一个带墙上时钟的事件确定
type Clock struct {
	offsetMs float64
	fixed    bool
}

// Observe 记录一对单调/墙上时间，只有第一次有效
func (c *Clock) Observe(monotonic, wall float64) {
	if c.fixed || wall <= 0 {
		return
	}
	c.offsetMs = wall*1000 - monotonic*1000
	c.fixed = true
}

// Fixed 偏移量是否已确定
func (c *Clock) Fixed() bool { return c.fixed }

// ToEpochMs 换算单调时间；偏移未确定或时间无效时使用 now
func (c *Clock) ToEpochMs(monotonic float64, now time.Time) int64 {
	if !c.fixed || monotonic < 0 || math.IsNaN(monotonic) {
		return now.UnixMilli()
	}
	return int64(math.Round(monotonic*1000 + c.offsetMs))
}
