package core

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ValidatePatterns 预检所有 glob 模式，非法模式在任何传输开始前直接报错
func ValidatePatterns(patternLists ...[]string) error {
	for _, patterns := range patternLists {
		for _, p := range patterns {
			if _, err := filepath.Match(p, ""); err != nil {
				return fmt.Errorf("非法过滤模式 %q: %w", p, err)
			}
		}
	}
	return nil
}

// FilterPath 判定相对路径是否入选：
// includes 为空或命中任一 include，且未命中任何 exclude
func FilterPath(rel string, includes, excludes []string) bool {
	norm := filepath.ToSlash(rel)
	if len(includes) > 0 && !matchAny(norm, includes) {
		return false
	}
	return !matchAny(norm, excludes)
}

// matchAny 对完整相对路径和文件名分别尝试匹配
func matchAny(norm string, patterns []string) bool {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if matched, _ := filepath.Match(p, norm); matched {
			return true
		}
		if matched, _ := filepath.Match(p, path.Base(norm)); matched {
			return true
		}
	}
	return false
}
