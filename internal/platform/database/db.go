package database

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/SlpAus/rollback-tracker/internal/platform/config"
	"github.com/jackc/pgx/v5"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Open 根据配置打开数据库连接。
// 返回的 *gorm.DB 由调用方持有并负责关闭，这里不保存任何全局实例。
func Open(cfg config.DatabaseConfig, debug bool, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	// GORM日志配置，输出转发到slog
	level := logger.Silent
	if debug {
		level = logger.Warn
	}
	gormLogger := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
		// 让唯一键冲突统一表现为 gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败 (%s): %w", cfg.Driver, err)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("注册数据库追踪插件失败: %w", err)
	}

	log.Info("数据库连接成功", "component", "database", "driver", cfg.Driver)
	return db, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(SqliteDSN(cfg.SqlitePath, cfg.BusyTimeoutMS)), nil
	case "postgres":
		dsn := NormalizeDSN(cfg.DSN)
		// 提前解析一次，让格式错误在启动时暴露，而不是在第一次查询时
		if _, err := pgx.ParseConfig(dsn); err != nil {
			return nil, fmt.Errorf("postgres: 解析DSN失败: %w", err)
		}
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("未知的数据库驱动: %q", cfg.Driver)
	}
}

// SqliteDSN 构造SQLite连接串。
// 写事务使用 BEGIN IMMEDIATE，并发写入者会在 busy_timeout 内排队，而不是在锁升级时失败。
func SqliteDSN(path string, busyTimeoutMS int) string {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}
	return fmt.Sprintf(
		"file:%s?_foreign_keys=1&_busy_timeout=%d&_txlock=immediate&_journal_mode=WAL",
		path, busyTimeoutMS,
	)
}

// NormalizeDSN 把其他生态中常见的DSN变体转换为pgx可以识别的格式
func NormalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	if s == "" {
		return s
	}
	s = strings.Replace(s, "postgresql+asyncpg://", "postgresql://", 1)
	s = strings.Replace(s, "postgres+asyncpg://", "postgres://", 1)
	s = strings.Replace(s, "postgresql+psycopg2://", "postgresql://", 1)
	s = strings.Replace(s, "postgres+psycopg2://", "postgres://", 1)
	return s
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取数据库句柄失败: %w", err)
	}
	return sqlDB.Close()
}
