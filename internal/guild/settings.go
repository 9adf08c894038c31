// Package guild 提供按服务器(guild)划分的外部配置：状态频道与管理员判定规则。
// 核心业务只读取这些数据，不持有它们。
package guild

import (
	"slices"
	"strconv"

	"github.com/SlpAus/rollback-tracker/internal/platform/config"
)

// Settings 是单个服务器的配置
type Settings struct {
	GuildID         int64
	StatusChannelID int64
	// AdminRoleIDs 非空时，拥有其中任一角色的成员是管理员
	AdminRoleIDs []int64
	// AdminUserIDs 非空时，只有列表中的用户是管理员
	AdminUserIDs []int64
}

// IsAdmin 判定一个成员是否为该服务器的管理员。
// 两种规则互斥：配置了角色就按角色判定，否则按用户ID判定。
func (s Settings) IsAdmin(userID int64, roleIDs []int64) bool {
	if len(s.AdminRoleIDs) > 0 {
		for _, role := range roleIDs {
			if slices.Contains(s.AdminRoleIDs, role) {
				return true
			}
		}
		return false
	}
	return slices.Contains(s.AdminUserIDs, userID)
}

// Directory 按服务器ID查找配置
type Directory interface {
	Lookup(guildID int64) (Settings, bool)
}

// StaticDirectory 是启动时从配置文件构建的只读目录
type StaticDirectory map[int64]Settings

// Lookup 实现 Directory
func (d StaticDirectory) Lookup(guildID int64) (Settings, bool) {
	s, ok := d[guildID]
	return s, ok
}

// FromConfig 将配置文件中的 guilds 段转换为目录。
// 键在 config.Validate 中已经校验过，这里解析失败的键会被跳过。
func FromConfig(entries map[string]config.GuildEntry) StaticDirectory {
	dir := make(StaticDirectory, len(entries))
	for key, e := range entries {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		dir[id] = Settings{
			GuildID:         id,
			StatusChannelID: e.StatusChannelID,
			AdminRoleIDs:    e.AdminRoleIDs,
			AdminUserIDs:    e.AdminUserIDs,
		}
	}
	return dir
}

// IsAdmin 是给调用方用的便捷函数：没有配置的服务器不存在管理员
func IsAdmin(dir Directory, guildID, userID int64, roleIDs []int64) bool {
	if dir == nil {
		return false
	}
	s, ok := dir.Lookup(guildID)
	if !ok {
		return false
	}
	return s.IsAdmin(userID, roleIDs)
}
