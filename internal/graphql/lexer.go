// Package graphql 对 GraphQL 请求体做持久化查询拒绝和 __typename 注入
package graphql

// TokenKind 词法单元类型
type TokenKind int

const (
	TokenPunct TokenKind = iota
	TokenName
	TokenString
	TokenBlockString
	TokenComment
	TokenIgnored
	TokenOther
)

// Token 词法单元，Text 为原文切片，拼接全部 Text 可还原输入
type Token struct {
	Kind TokenKind
	Text string
}

type lexState int

const (
	stateNormal lexState = iota
	stateInString
	stateInBlockString
	stateInComment
)

// Lex 将查询文本切分为词法单元
// 字符串内的转义和行注释不会被当作结构符号
func Lex(src string) []Token {
	tokens := make([]Token, 0, len(src)/2)
	state := stateNormal
	start := 0
	i := 0

	emit := func(kind TokenKind, end int) {
		if end > start {
			tokens = append(tokens, Token{Kind: kind, Text: src[start:end]})
		}
		start = end
	}

	for i < len(src) {
		c := src[i]
		switch state {
		case stateNormal:
			switch {
			case c == '#':
				state = stateInComment
				i++
			case hasPrefixAt(src, i, `"""`):
				state = stateInBlockString
				i += 3
			case c == '"':
				state = stateInString
				i++
			case isNameStart(c):
				j := i + 1
				for j < len(src) && isNameContinue(src[j]) {
					j++
				}
				emit(TokenName, j)
				i = j
			case isIgnored(c):
				j := i + 1
				for j < len(src) && isIgnored(src[j]) {
					j++
				}
				emit(TokenIgnored, j)
				i = j
			case isPunct(c):
				emit(TokenPunct, i+1)
				i++
			default:
				emit(TokenOther, i+1)
				i++
			}
		case stateInString:
			switch c {
			case '\\':
				i += 2
			case '"':
				i++
				emit(TokenString, i)
				state = stateNormal
			case '\n':
				// 未闭合的字符串在行尾结束
				emit(TokenString, i)
				state = stateNormal
			default:
				i++
			}
		case stateInBlockString:
			switch {
			case hasPrefixAt(src, i, `\"""`):
				i += 4
			case hasPrefixAt(src, i, `"""`):
				i += 3
				emit(TokenBlockString, i)
				state = stateNormal
			default:
				i++
			}
		case stateInComment:
			if c == '\n' || c == '\r' {
				emit(TokenComment, i)
				state = stateNormal
				continue
			}
			i++
		}
	}

	if i > len(src) {
		i = len(src)
	}
	switch state {
	case stateInString:
		emit(TokenString, i)
	case stateInBlockString:
		emit(TokenBlockString, i)
	case stateInComment:
		emit(TokenComment, i)
	}
	return tokens
}

func hasPrefixAt(s string, i int, prefix string) bool {
	return len(s)-i >= len(prefix) && s[i:i+len(prefix)] == prefix
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameContinue(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

func isIgnored(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ','
}

func isPunct(c byte) bool {
	switch c {
	case '{', '}', '(', ')', '[', ']', ':', '=', '@', '$', '!', '|', '&':
		return true
	}
	return false
}
