package network

import (
	"net/url"
	"path"
	"strings"
)

// 不生成 Trace 的静态资源扩展名
var staticExtensions = map[string]struct{}{
	".js": {}, ".css": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".svg": {}, ".ico": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".otf": {}, ".webp": {}, ".avif": {}, ".mp4": {}, ".webm": {}, ".mp3": {},
	".map": {},
}

// 不生成 Trace 的响应类型前缀
var staticMimePrefixes = []string{
	"image/",
	"font/",
	"text/css",
	"text/javascript",
	"application/javascript",
	"video/",
	"audio/",
	"application/font",
	"application/x-font",
}

// 浏览器内部页面的 scheme
var internalPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"devtools://",
	"edge://",
	"about:",
}

// IsInternalURL 是否为浏览器内部地址
func IsInternalURL(raw string) bool {
	lower := strings.ToLower(raw)
	for _, p := range internalPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// IsStaticAsset 按 URL 扩展名判断是否为静态资源
func IsStaticAsset(raw string) bool {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	} else if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
		p = raw[:idx]
	}
	_, ok := staticExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// IsStaticMime 按响应类型判断是否为静态资源
func IsStaticMime(mime string) bool {
	lower := strings.ToLower(strings.TrimSpace(mime))
	for _, p := range staticMimePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
