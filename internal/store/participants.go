package store

import (
	"context"
	"errors"

	"github.com/SlpAus/rollback-tracker/internal/platform/database"
	"gorm.io/gorm"
)

// CreateParticipant 登记参与者。
// (ListID, UserID) 已存在时返回 ErrDuplicateKey，列表不存在时返回 ErrNotFound。
func (s *Store) CreateParticipant(ctx context.Context, p *Participant) error {
	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = s.Now()
	}
	p.HasRollback = false
	err := s.db.WithContext(ctx).Create(p).Error
	switch {
	case err == nil:
		return nil
	case database.IsDuplicateKeyError(err):
		return ErrDuplicateKey
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrNotFound
	}
	return wrap("create participant", err)
}

// GetParticipant 查找参与者，不存在时返回 ErrNotRegistered
func (s *Store) GetParticipant(ctx context.Context, listID, userID string) (*Participant, error) {
	var p Participant
	err := s.db.WithContext(ctx).Where("list_id = ? AND user_id = ?", listID, userID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, wrap("get participant", err)
	}
	return &p, nil
}

// ListParticipants 按登记时间升序返回列表的全部参与者
func (s *Store) ListParticipants(ctx context.Context, listID string) ([]Participant, error) {
	var ps []Participant
	err := s.db.WithContext(ctx).Where("list_id = ?", listID).Order("registered_at asc, id asc").Find(&ps).Error
	return ps, wrap("list participants", err)
}

// DeleteParticipant 移除参与者，同时删除其回档
func (s *Store) DeleteParticipant(ctx context.Context, listID, userID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list_id = ? AND user_id = ?", listID, userID).Delete(&Rollback{}).Error; err != nil {
			return err
		}
		res := tx.Where("list_id = ? AND user_id = ?", listID, userID).Delete(&Participant{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotRegistered
		}
		return nil
	})
	return wrap("delete participant", err)
}
