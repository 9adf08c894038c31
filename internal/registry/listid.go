package registry

import (
	"math/rand/v2"
	"strings"
)

const (
	// ListIDLength 是列表ID的长度
	ListIDLength   = 5
	listIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// IDGenerator 生成候选列表ID，是否已被占用由 Registry 负责检查
type IDGenerator func() string

// RandomID 从大写字母和数字中随机取 ListIDLength 个字符
func RandomID() string {
	var b strings.Builder
	b.Grow(ListIDLength)
	for range ListIDLength {
		b.WriteByte(listIDAlphabet[rand.IntN(len(listIDAlphabet))])
	}
	return b.String()
}

// ValidListID 判断字符串是否符合列表ID的格式
func ValidListID(id string) bool {
	if len(id) != ListIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(listIDAlphabet, id[i]) < 0 {
			return false
		}
	}
	return true
}
