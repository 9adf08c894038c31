// Package backup 定期为SQLite数据库生成一致性快照文件
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/SlpAus/rollback-tracker/internal/platform/config"
	"github.com/SlpAus/rollback-tracker/internal/platform/metadata"
	"github.com/SlpAus/rollback-tracker/pkg/lifecycle"
)

const filePrefix = "rollbacks-"

// ErrUnsupported 表示当前数据库驱动不支持文件快照
var ErrUnsupported = errors.New("只有SQLite支持快照备份")

// Scheduler 负责执行快照并清理旧的备份文件
type Scheduler struct {
	db     *gorm.DB
	cfg    config.BackupConfig
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex // 避免两次快照同时写入
}

// New 创建 Scheduler
func New(db *gorm.DB, cfg config.BackupConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{db: db, cfg: cfg, logger: logger, now: time.Now}
}

// Run 按配置的间隔执行快照，直到收到停机信号
func (s *Scheduler) Run(h *lifecycle.Handle) {
	s.logger.Info("备份调度器已启动", "component", "backup", "interval", s.cfg.Interval, "dir", s.cfg.Dir)
	for {
		// 可中断的休眠，收到停机信号时立刻退出
		if err := h.Sleep(s.cfg.Interval); err != nil {
			return
		}
		path, err := s.Snapshot(h.Ctx())
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("执行快照备份失败", "component", "backup", "error", err)
			}
			continue
		}
		s.logger.Info("快照备份成功", "component", "backup", "path", path)
	}
}

// Snapshot 使用 VACUUM INTO 生成一份一致的数据库副本，记录到元数据表，并删除多余的旧备份
func (s *Scheduler) Snapshot(ctx context.Context) (string, error) {
	if s.db.Dialector.Name() != "sqlite" {
		return "", ErrUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("无法创建备份目录: %w", err)
	}

	// 1. 生成快照
	at := s.now().UTC()
	path := filepath.Join(s.cfg.Dir, filePrefix+at.Format("20060102T150405.000000000")+".db")
	if err := s.db.WithContext(ctx).Exec("VACUUM INTO ?", path).Error; err != nil {
		return "", fmt.Errorf("VACUUM INTO 失败: %w", err)
	}

	// 2. 记录
	if err := metadata.SetValue(ctx, s.db, metadata.LastBackupPathKey, path); err != nil {
		return path, err
	}
	if err := metadata.SetTime(ctx, s.db, metadata.LastBackupAtKey, at); err != nil {
		return path, err
	}

	// 3. 清理
	if err := s.prune(); err != nil {
		s.logger.Warn("清理旧备份失败", "component", "backup", "error", err)
	}
	return path, nil
}

// prune 只保留最新的 Keep 个备份文件。文件名中的时间戳保证字典序即时间顺序。
func (s *Scheduler) prune() error {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) && strings.HasSuffix(e.Name(), ".db") {
			files = append(files, e.Name())
		}
	}
	if len(files) <= s.cfg.Keep {
		return nil
	}
	slices.Sort(files)
	var errs []error
	for _, name := range files[:len(files)-s.cfg.Keep] {
		if err := os.Remove(filepath.Join(s.cfg.Dir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
