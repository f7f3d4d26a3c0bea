package network

import (
	"math"

	"spectral/internal/protocol"
	"spectral/pkg/domain"
)

// clamp 负数和 NaN 记为 0
func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// span 两个标记之差，任一标记缺失（为负）时为 0
func span(start, end float64) float64 {
	if start < 0 || end < 0 {
		return 0
	}
	return clamp(end - start)
}

// phaseTiming 由响应头携带的时间标记计算前五段
func phaseTiming(rt *protocol.ResourceTiming) domain.Timing {
	if rt == nil {
		return domain.Timing{}
	}
	return domain.Timing{
		DNSMs:     span(rt.DNSStart, rt.DNSEnd),
		ConnectMs: span(rt.ConnectStart, rt.ConnectEnd),
		TLSMs:     span(rt.SSLStart, rt.SSLEnd),
		SendMs:    span(rt.SendStart, rt.SendEnd),
		WaitMs:    span(rt.SendEnd, rt.ReceiveHeadersEnd),
	}
}

// receiveMs 完成时间减去响应时间，单位秒换算为毫秒
func receiveMs(finished, responded float64) float64 {
	return clamp((finished - responded) * 1000)
}
