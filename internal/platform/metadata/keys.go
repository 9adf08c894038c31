package metadata

// 元数据表中使用的键
const (
	// LastBackupPathKey 保存最近一次成功备份的文件路径
	LastBackupPathKey = "last_backup_path"
	// LastBackupAtKey 保存最近一次成功备份的时间，RFC3339格式
	LastBackupAtKey = "last_backup_at"
)
