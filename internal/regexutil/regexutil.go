// Package regexutil 编译 URL 排除规则
package regexutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Set 一组正则规则，任一命中即匹配，零值与 nil 不匹配任何输入
type Set struct {
	patterns []*regexp.Regexp
}

// Compile 编译规则列表，空白项忽略；非法规则跳过并在错误中一并返回
func Compile(patterns []string) (*Set, error) {
	s := &Set{}
	var errs []error
	seen := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern %q: %w", p, err))
			continue
		}
		s.patterns = append(s.patterns, re)
	}
	return s, errors.Join(errs...)
}

// Len 有效规则数量
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}

// Match 是否命中任一规则
func (s *Set) Match(v string) bool {
	if s == nil {
		return false
	}
	for _, re := range s.patterns {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}
