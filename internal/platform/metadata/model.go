// Package metadata 是一张简单的键值表，记录系统自身的运行信息，例如最近一次备份
package metadata

import "time"

// Metadata 定义了存储系统元数据的键值对表结构
type Metadata struct {
	// Key 是元数据的唯一键，例如 "last_backup_path"
	Key       string `gorm:"primaryKey;type:varchar(255)"`
	Value     string `gorm:"type:varchar(1024)"`
	UpdatedAt time.Time
}

// TableName 固定表名，不使用gorm默认的复数形式
func (Metadata) TableName() string {
	return "metadata"
}
