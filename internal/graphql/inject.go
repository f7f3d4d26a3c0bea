package graphql

import "strings"

// TypenameField 类型判别字段
const TypenameField = "__typename"

const insertion = " " + TypenameField + " "

type frameKind int

const (
	frameSelection frameKind = iota
	frameArguments
	frameObject
)

type frame struct {
	kind        frameKind
	hasTypename bool
}

// InjectTypename 在每个选择集的右花括号前插入 __typename，已包含该字段的层级不插入
// 参数和对象值中的花括号不是选择集
func InjectTypename(query string) (string, bool) {
	tokens := Lex(query)
	var (
		out     strings.Builder
		stack   []frame
		changed bool
	)
	out.Grow(len(query) + 32)

	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return &stack[len(stack)-1]
	}

	for _, tok := range tokens {
		switch {
		case tok.Kind == TokenName:
			if f := top(); f != nil && f.kind == frameSelection && tok.Text == TypenameField {
				f.hasTypename = true
			}
		case tok.Kind == TokenPunct && tok.Text == "{":
			kind := frameSelection
			if f := top(); f != nil && f.kind != frameSelection {
				kind = frameObject
			}
			stack = append(stack, frame{kind: kind})
		case tok.Kind == TokenPunct && tok.Text == "(":
			stack = append(stack, frame{kind: frameArguments})
		case tok.Kind == TokenPunct && tok.Text == ")":
			// 弹出到匹配的左括号
			for len(stack) > 0 {
				f := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if f.kind == frameArguments {
					break
				}
			}
		case tok.Kind == TokenPunct && tok.Text == "}":
			if f := top(); f != nil {
				if f.kind == frameSelection && !f.hasTypename {
					out.WriteString(insertion)
					changed = true
				}
				stack = stack[:len(stack)-1]
			}
		}
		out.WriteString(tok.Text)
	}

	if !changed {
		return query, false
	}
	return out.String(), true
}
