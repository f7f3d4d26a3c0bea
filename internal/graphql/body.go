package graphql

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrMalformedBody 请求体不是 JSON 对象或数组
var ErrMalformedBody = errors.New("graphql: malformed request body")

// PersistedQueryNotFound 单个持久化查询未命中错误
const PersistedQueryNotFound = `{"errors":[{"message":"PersistedQueryNotFound","extensions":{"code":"PERSISTED_QUERY_NOT_FOUND"}}]}`

// Action 处理结果类型
type Action int

const (
	// ActionForward 原样放行
	ActionForward Action = iota
	// ActionModify 使用改写后的请求体放行
	ActionModify
	// ActionFulfill 不经网络直接返回合成响应
	ActionFulfill
)

// String 返回动作名称
func (a Action) String() string {
	switch a {
	case ActionForward:
		return "forward"
	case ActionModify:
		return "modify"
	case ActionFulfill:
		return "fulfill"
	default:
		return "unknown"
	}
}

// Options 处理开关
type Options struct {
	InjectTypename bool
	InjectApqError bool
}

// Result 处理结果
type Result struct {
	Action Action
	// Body 改写后的请求体或合成的响应体
	Body []byte
}

type item struct {
	path  string
	value gjson.Result
}

// Process 检查并改写一个 GraphQL 请求体
// 持久化查询拒绝先于注入执行，因为持久化查询没有可注入的文本
func Process(body []byte, opts Options) (Result, error) {
	if !gjson.ValidBytes(body) {
		return Result{Action: ActionForward}, ErrMalformedBody
	}
	root := gjson.ParseBytes(body)
	items, batch, err := splitItems(root)
	if err != nil {
		return Result{Action: ActionForward}, err
	}

	if opts.InjectApqError && anyPersisted(items) {
		return Result{Action: ActionFulfill, Body: persistedErrors(len(items), batch)}, nil
	}

	if !opts.InjectTypename {
		return Result{Action: ActionForward}, nil
	}

	out := body
	changed := false
	for _, it := range items {
		q := it.value.Get("query")
		if q.Type != gjson.String || q.String() == "" {
			continue
		}
		injected, ok := InjectTypename(q.String())
		if !ok {
			continue
		}
		out, err = sjson.SetBytes(out, it.queryPath(), injected)
		if err != nil {
			return Result{Action: ActionForward}, err
		}
		changed = true
	}
	if !changed {
		return Result{Action: ActionForward}, nil
	}
	return Result{Action: ActionModify, Body: out}, nil
}

// IsPersistedQuery 带持久化查询扩展且没有查询文本
func IsPersistedQuery(v gjson.Result) bool {
	if !v.Get("extensions.persistedQuery").Exists() {
		return false
	}
	q := v.Get("query")
	return !q.Exists() || q.Type == gjson.Null || (q.Type == gjson.String && q.String() == "")
}

func (it item) queryPath() string {
	if it.path == "" {
		return "query"
	}
	return it.path + ".query"
}

func splitItems(root gjson.Result) ([]item, bool, error) {
	switch {
	case root.IsObject():
		return []item{{value: root}}, false, nil
	case root.IsArray():
		arr := root.Array()
		items := make([]item, 0, len(arr))
		for i, v := range arr {
			items = append(items, item{path: strconv.Itoa(i), value: v})
		}
		return items, true, nil
	default:
		return nil, false, ErrMalformedBody
	}
}

func anyPersisted(items []item) bool {
	for _, it := range items {
		if IsPersistedQuery(it.value) {
			return true
		}
	}
	return false
}

// persistedErrors 每个原始条目一个错误对象，批量请求保持数组形态
func persistedErrors(n int, batch bool) []byte {
	if !batch {
		return []byte(PersistedQueryNotFound)
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = PersistedQueryNotFound
	}
	return []byte("[" + strings.Join(parts, ",") + "]")
}
