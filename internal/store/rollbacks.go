package store

import (
	"context"
	"time"

	"github.com/SlpAus/rollback-tracker/internal/platform/database"
	"gorm.io/gorm"
)

// UpsertRollback 原子地写入参与者的回档：置位 has_rollback、删除旧记录、插入新记录。
// replaced 表示是否替换了已有回档。
// 并发提交时，后提交的事务可能因唯一索引冲突、锁等待超时或序列化失败而失败，
// 此时整个事务重新执行，重新执行时能看到已提交的那条记录并将其替换。
func (s *Store) UpsertRollback(ctx context.Context, r *Rollback) (replaced bool, err error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = s.Now()
	}
	for attempt := 1; ; attempt++ {
		r.ID = 0
		replaced, err = s.upsertRollbackOnce(ctx, r)
		if err == nil || attempt >= maxUpsertAttempts || !shouldRerun(err) {
			break
		}
		s.logger.Debug("回档写入发生并发冲突，重新执行事务",
			"component", "store", "list", r.ListID, "user", r.UserID, "attempt", attempt, "error", err)
		if database.IsRetryableError(err) {
			// 锁竞争时稍等再试
			select {
			case <-ctx.Done():
				return false, wrap("upsert rollback", ctx.Err())
			case <-time.After(time.Duration(attempt) * rerunBackoff):
			}
		}
	}
	return replaced, wrap("upsert rollback", err)
}

// shouldRerun 判断事务失败是否由并发写入引起，重新执行可能成功
func shouldRerun(err error) bool {
	return database.IsDuplicateKeyError(err) || database.IsRetryableError(err)
}

func (s *Store) upsertRollbackOnce(ctx context.Context, r *Rollback) (bool, error) {
	var replaced bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Participant{}).
			Where("list_id = ? AND user_id = ?", r.ListID, r.UserID).
			Update("has_rollback", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotRegistered
		}

		del := tx.Where("list_id = ? AND user_id = ?", r.ListID, r.UserID).Delete(&Rollback{})
		if del.Error != nil {
			return del.Error
		}
		replaced = del.RowsAffected > 0

		return tx.Create(r).Error
	})
	return replaced, err
}

// DeleteRollback 删除参与者的回档并清除 has_rollback。
// 没有回档时返回 ErrNothingToRemove，数据保持不变。
func (s *Store) DeleteRollback(ctx context.Context, listID, userID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Participant{}).Where("list_id = ? AND user_id = ?", listID, userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotRegistered
		}

		del := tx.Where("list_id = ? AND user_id = ?", listID, userID).Delete(&Rollback{})
		if del.Error != nil {
			return del.Error
		}
		if del.RowsAffected == 0 {
			return ErrNothingToRemove
		}
		return tx.Model(&Participant{}).
			Where("list_id = ? AND user_id = ?", listID, userID).
			Update("has_rollback", false).Error
	})
	return wrap("delete rollback", err)
}

// ResetRollbacks 清空列表中的全部回档，并清除所有参与者的标记。返回删除的回档数。
func (s *Store) ResetRollbacks(ctx context.Context, listID string) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("list_id = ?", listID).Delete(&Rollback{})
		if del.Error != nil {
			return del.Error
		}
		removed = del.RowsAffected
		return tx.Model(&Participant{}).
			Where("list_id = ?", listID).
			Update("has_rollback", false).Error
	})
	return removed, wrap("reset rollbacks", err)
}

// ListRollbacks 按提交时间返回列表中的全部回档
func (s *Store) ListRollbacks(ctx context.Context, listID string) ([]Rollback, error) {
	var rs []Rollback
	err := s.db.WithContext(ctx).Where("list_id = ?", listID).Order("timestamp asc, id asc").Find(&rs).Error
	return rs, wrap("list rollbacks", err)
}
