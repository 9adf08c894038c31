package ledger

import (
	"regexp"
	"strings"
)

var (
	// 链接连同其文字一起去掉，只有链接的提交会被当作空内容
	anchorPattern     = regexp.MustCompile(`(?is)<a\b[^>]*>.*?</a>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Sanitize 去掉链接元素及其文字，再去掉其余尖括号包裹的标记，将连续空白折叠为一个空格，并去掉首尾空白。
// 结果可能为空字符串，由调用方决定如何处理。
func Sanitize(raw string) string {
	s := anchorPattern.ReplaceAllString(raw, "")
	s = tagPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
