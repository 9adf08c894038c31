package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig          `mapstructure:"server"   yaml:"server"`
	Database DatabaseConfig        `mapstructure:"database" yaml:"database"`
	Redis    RedisConfig           `mapstructure:"redis"    yaml:"redis"`
	Confirm  ConfirmConfig         `mapstructure:"confirm"  yaml:"confirm"`
	Backup   BackupConfig          `mapstructure:"backup"   yaml:"backup"`
	Log      LogConfig             `mapstructure:"log"      yaml:"log"`
	Guilds   map[string]GuildEntry `mapstructure:"guilds"   yaml:"guilds"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode            string        `mapstructure:"mode"            yaml:"mode"`
	Address         string        `mapstructure:"address"         yaml:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout" yaml:"shutdownTimeout"`
	Cors            CorsConfig    `mapstructure:"cors"            yaml:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins" yaml:"allowedOrigins"`
}

// DatabaseConfig 定义了持久化存储的配置
type DatabaseConfig struct {
	// Driver 取值 sqlite 或 postgres
	Driver string `mapstructure:"driver" yaml:"driver"`
	// DSN 仅在 postgres 驱动下使用，兼容 Railway 风格的 DATABASE_URL
	DSN string `mapstructure:"dsn" yaml:"-"`
	// SqlitePath 是SQLite数据库文件的路径
	SqlitePath string `mapstructure:"sqlitePath" yaml:"sqlitePath"`
	// BusyTimeoutMS 是SQLite在写锁竞争时的等待时间
	BusyTimeoutMS int `mapstructure:"busyTimeoutMS" yaml:"busyTimeoutMS"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"  yaml:"address"`
	Password string `mapstructure:"password" yaml:"-"`
	DB       int    `mapstructure:"db"       yaml:"db"`
}

// ConfirmConfig 定义了删除确认令牌的配置
type ConfirmConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
	// Secret 为空时，启动时会生成一个随机密钥
	Secret string `mapstructure:"secret" yaml:"-"`
}

// BackupConfig 定义了SQLite定时备份的配置
type BackupConfig struct {
	// Interval 为0时不启动定时备份
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Dir      string        `mapstructure:"dir"      yaml:"dir"`
	// Keep 是保留的备份文件数量
	Keep int `mapstructure:"keep" yaml:"keep"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// GuildEntry 是单个服务器(guild)的配置，键为guild的数字ID
type GuildEntry struct {
	StatusChannelID int64   `mapstructure:"statusChannelId" yaml:"statusChannelId"`
	AdminRoleIDs    []int64 `mapstructure:"adminRoleIds"    yaml:"adminRoleIds,omitempty"`
	AdminUserIDs    []int64 `mapstructure:"adminUserIds"    yaml:"adminUserIds,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdownTimeout", 15*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlitePath", "rollbacks.db")
	v.SetDefault("database.busyTimeoutMS", 5000)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("confirm.ttl", 60*time.Second)
	v.SetDefault("backup.interval", time.Duration(0))
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.keep", 5)
}

// LoadConfig 函数负责查找、加载和解析配置文件
// path 为空时，会在 ./config 和 . 中查找名为 config.yaml 的文件；找不到文件时只使用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 允许通过环境变量覆盖配置，例如 DATABASE_DSN=postgres://...
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Railway 等平台只提供 DATABASE_URL
	_ = v.BindEnv("database.dsn", "DATABASE_DSN", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置中无法在运行时恢复的错误
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SqlitePath == "" {
			return fmt.Errorf("database.sqlitePath 不能为空")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("postgres 驱动需要 database.dsn 或 DATABASE_URL")
		}
	default:
		return fmt.Errorf("未知的数据库驱动: %q", c.Database.Driver)
	}
	for key, g := range c.Guilds {
		if _, err := strconv.ParseInt(key, 10, 64); err != nil {
			return fmt.Errorf("guilds 中的键 %q 不是合法的服务器ID", key)
		}
		if len(g.AdminRoleIDs) > 0 && len(g.AdminUserIDs) > 0 {
			return fmt.Errorf("服务器 %s 只能配置 adminRoleIds 或 adminUserIds 其中之一", key)
		}
	}
	if c.Backup.Interval < 0 || c.Backup.Keep < 1 {
		return fmt.Errorf("backup.interval 不能为负数，backup.keep 至少为1")
	}
	if c.Confirm.TTL <= 0 {
		return fmt.Errorf("confirm.ttl 必须为正数")
	}
	return nil
}

// YAML 返回生效配置的YAML表示，敏感字段不会输出
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("序列化配置失败: %w", err)
	}
	return string(out), nil
}

type contextKey struct{}

// WithContext 把配置放入上下文，供子命令读取
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext 从上下文中取出配置，不存在时返回 nil
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}
