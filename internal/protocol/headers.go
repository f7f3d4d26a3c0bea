package protocol

import (
	"strings"

	"spectral/pkg/domain"

	"github.com/tidwall/gjson"
)

// HeadersFromJSON 将协议中的头部对象转换为有序列表，保留原始顺序
func HeadersFromJSON(raw []byte) []domain.Header {
	headers := make([]domain.Header, 0)
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return headers
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return headers
	}
	res.ForEach(func(key, value gjson.Result) bool {
		headers = append(headers, domain.Header{Name: key.String(), Value: value.String()})
		return true
	})
	return headers
}

// HeaderValue 大小写不敏感地取第一个匹配头部的值
func HeaderValue(headers []domain.Header, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// CloneHeaders 复制头部列表
func CloneHeaders(headers []domain.Header) []domain.Header {
	if headers == nil {
		return nil
	}
	out := make([]domain.Header, len(headers))
	copy(out, headers)
	return out
}
