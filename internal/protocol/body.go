package protocol

import (
	"bytes"
	"encoding/base64"
)

// JoinPostDataEntries 按条目解码 base64 并拼接请求体
func JoinPostDataEntries(entries []string) []byte {
	if len(entries) == 0 {
		return nil
	}
	parts := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		decoded, err := base64.StdEncoding.DecodeString(entry)
		if err != nil {
			// 解码失败则保留原始内容
			parts = append(parts, []byte(entry))
			continue
		}
		parts = append(parts, decoded)
	}
	return bytes.Join(parts, nil)
}

// DecodeBody 解码响应体
func DecodeBody(body string, base64Encoded bool) []byte {
	if !base64Encoded {
		return []byte(body)
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return []byte(body)
	}
	return decoded
}
