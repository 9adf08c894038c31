package roster

import (
	"errors"
	"regexp"
)

// ErrEmptyUserID 表示待登记的用户ID为空
var ErrEmptyUserID = errors.New("用户ID不能为空")

var (
	mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)
	bareIDPattern  = regexp.MustCompile(`\b(\d{17,19})\b`)
)

// ParseUserIDs 从自由文本中提取用户ID：先取 <@id> 和 <@!id> 形式的提及，再取17到19位的纯数字ID。
// 结果去重，并保持首次出现的顺序。
func ParseUserIDs(text string) []string {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	// 提及已经处理过，避免其中的数字被当成纯数字ID再匹配一次
	rest := mentionPattern.ReplaceAllString(text, " ")
	for _, m := range bareIDPattern.FindAllStringSubmatch(rest, -1) {
		add(m[1])
	}
	return ids
}
