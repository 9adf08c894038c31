// Package store 是列表、参与者和回档三张表的持久化层。
// 每个写操作都是一个独立的数据库事务，唯一键与级联删除由数据库本身保证，
// 调用方不需要、也不应该在外部做"先查后写"。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/SlpAus/rollback-tracker/internal/platform/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxUpsertAttempts 是并发提交发生冲突时，替换事务的最大执行次数
const maxUpsertAttempts = 3

// rerunBackoff 是锁竞争后重新执行前的基础等待时间
const rerunBackoff = 20 * time.Millisecond

// Store 持有数据库句柄，由上层注入，不存在全局实例
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *slog.Logger
}

// Option 用于定制 Store
type Option func(*Store)

// WithClock 替换时间来源，测试中使用
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New 创建一个 Store
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s
}

// Migrate 自动迁移表结构
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("无法迁移数据表: %w", err)
	}
	s.logger.Debug("数据表迁移成功", "component", "store")
	return nil
}

// Ping 检查数据库连接是否可用
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap("ping", err)
	}
	return wrap("ping", sqlDB.PingContext(ctx))
}

// Now 返回 Store 使用的当前时间，服务层用它保证时间来源一致
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// readTx 在一个只读事务中执行 fn，保证多次查询看到同一份数据。
// PostgreSQL 使用可重复读隔离级别；SQLite 的事务本身就是串行的。
func (s *Store) readTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var opts []*sql.TxOptions
	if s.db.Dialector.Name() == "postgres" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	return s.db.WithContext(ctx).Transaction(fn, opts...)
}

// --- 列表 ---

// CreateList 插入一个新列表，ID 已存在时返回 ErrDuplicateKey
func (s *Store) CreateList(ctx context.Context, l *List) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.Now()
	}
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(l).Error
	if database.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return wrap("create list", err)
}

// ListIDExists 检查ID是否已被任何服务器的列表占用
func (s *Store) ListIDExists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&List{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, wrap("check list id", err)
	}
	return n > 0, nil
}

// GetList 在指定服务器范围内查找列表
func (s *Store) GetList(ctx context.Context, id string, guildID int64) (*List, error) {
	l, err := getList(s.db.WithContext(ctx), id, guildID)
	return l, wrap("get list", err)
}

func getList(tx *gorm.DB, id string, guildID int64) (*List, error) {
	var l List
	err := tx.Where("id = ? AND guild_id = ?", id, guildID).Take(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListAll 返回服务器下的所有列表及其参与者数、已提交回档数
func (s *Store) ListAll(ctx context.Context, guildID int64) ([]ListSummary, error) {
	var out []ListSummary
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		var lists []List
		if err := tx.Where("guild_id = ?", guildID).Order("created_at asc, id asc").Find(&lists).Error; err != nil {
			return err
		}
		if len(lists) == 0 {
			return nil
		}
		ids := make([]string, len(lists))
		for i, l := range lists {
			ids[i] = l.ID
		}

		var counts []struct {
			ListID       string
			Participants int64
			Rollbacks    int64
		}
		err := tx.Model(&Participant{}).
			Select("list_id, COUNT(*) AS participants, SUM(CASE WHEN has_rollback THEN 1 ELSE 0 END) AS rollbacks").
			Where("list_id IN ?", ids).
			Group("list_id").
			Scan(&counts).Error
		if err != nil {
			return err
		}
		byList := make(map[string]int, len(counts))
		for i, c := range counts {
			byList[c.ListID] = i
		}

		out = make([]ListSummary, len(lists))
		for i, l := range lists {
			out[i] = ListSummary{List: l}
			if j, ok := byList[l.ID]; ok {
				out[i].ParticipantCount = counts[j].Participants
				out[i].RollbackCount = counts[j].Rollbacks
			}
		}
		return nil
	})
	return out, wrap("list all", err)
}

// DeleteList 删除列表及其全部参与者和回档，整体原子
func (s *Store) DeleteList(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list_id = ?", id).Delete(&Rollback{}).Error; err != nil {
			return err
		}
		if err := tx.Where("list_id = ?", id).Delete(&Participant{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&List{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err == nil {
		s.logger.Debug("列表已删除", "component", "store", "list", id)
	}
	return wrap("delete list", err)
}

// UpdateMessageIDs 记录渲染层发送的两条消息的ID
func (s *Store) UpdateMessageIDs(ctx context.Context, id string, messageID, statusMessageID *int64) error {
	res := s.db.WithContext(ctx).Model(&List{}).Where("id = ?", id).Updates(map[string]any{
		"message_id":        messageID,
		"status_message_id": statusMessageID,
	})
	if res.Error != nil {
		return wrap("update message ids", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- 快照 ---

// Snapshot 在一个事务中读取列表、参与者（按登记顺序）和回档
func (s *Store) Snapshot(ctx context.Context, id string, guildID int64) (*Snapshot, error) {
	var snap Snapshot
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		l, err := getList(tx, id, guildID)
		if err != nil {
			return err
		}
		snap.List = *l
		if err := tx.Where("list_id = ?", id).Order("registered_at asc, id asc").Find(&snap.Participants).Error; err != nil {
			return err
		}
		return tx.Where("list_id = ?", id).Order("timestamp asc, id asc").Find(&snap.Rollbacks).Error
	})
	if err != nil {
		return nil, wrap("snapshot", err)
	}
	return &snap, nil
}
