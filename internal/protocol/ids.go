package protocol

import "fmt"

// TraceID 生成 t_0001 形式的编号
func TraceID(n int) string { return fmt.Sprintf("t_%04d", n) }

// ConnectionID 生成 ws_0001 形式的编号
func ConnectionID(n int) string { return fmt.Sprintf("ws_%04d", n) }

// MessageID 生成连接内的 ws_0001_m001 形式编号
func MessageID(connID string, n int) string { return fmt.Sprintf("%s_m%03d", connID, n) }

// ContextID 生成 c_0001 形式的编号
func ContextID(n int) string { return fmt.Sprintf("c_%04d", n) }
