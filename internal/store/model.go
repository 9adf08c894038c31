package store

import "time"

// List 是一次活动的回档收集会话，归属于某个服务器(guild)
type List struct {
	// ID 是5位大写字母数字组成的全局唯一标识
	ID              string    `gorm:"primaryKey;type:varchar(5)" json:"id"`
	Name            string    `gorm:"not null" json:"name"`
	GuildID         int64     `gorm:"not null;index" json:"guildId,string"`
	ChannelID       int64     `gorm:"not null" json:"channelId,string"`
	StaticChannelID int64     `gorm:"not null" json:"staticChannelId,string"`
	CreatedBy       string    `gorm:"not null" json:"createdBy"`
	CreatedAt       time.Time `gorm:"not null" json:"createdAt"`
	// 以下两个字段由渲染层维护，核心只负责持久化
	MessageID       *int64 `json:"messageId,omitempty,string"`
	StatusMessageID *int64 `json:"statusMessageId,omitempty,string"`

	Participants []Participant `gorm:"foreignKey:ListID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Rollbacks    []Rollback    `gorm:"foreignKey:ListID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// Participant 是登记在某个列表中、需要提交回档的用户。
// (ListID, UserID) 唯一；HasRollback 必须始终等于该键下是否存在 Rollback 记录。
type Participant struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	ListID       string    `gorm:"not null;type:varchar(5);uniqueIndex:idx_participant_list_user" json:"listId"`
	UserID       string    `gorm:"not null;uniqueIndex:idx_participant_list_user" json:"userId"`
	DisplayName  string    `gorm:"not null" json:"displayName"`
	HasRollback  bool      `gorm:"not null;default:false" json:"hasRollback"`
	RegisteredAt time.Time `gorm:"not null;index" json:"registeredAt"`
}

// Rollback 是参与者提交的一条回档文本。每个 (ListID, UserID) 同时最多存在一条。
type Rollback struct {
	ID     uint   `gorm:"primaryKey" json:"-"`
	ListID string `gorm:"not null;type:varchar(5);uniqueIndex:idx_rollback_list_user" json:"listId"`
	UserID string `gorm:"not null;uniqueIndex:idx_rollback_list_user" json:"userId"`
	// UserName 是提交时刻的显示名称，替换时会重新记录
	UserName  string    `gorm:"not null" json:"userName"`
	Text      string    `gorm:"not null" json:"text"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

// ListSummary 是列表概览，附带派生出的计数
type ListSummary struct {
	List
	ParticipantCount int64 `json:"participantCount"`
	RollbackCount    int64 `json:"rollbackCount"`
}

// Snapshot 是某一时刻列表、参与者与回档的一致性快照。
// Participants 按登记时间升序排列。
type Snapshot struct {
	List         List         `json:"list"`
	Participants []Participant `json:"participants"`
	Rollbacks    []Rollback    `json:"rollbacks"`
}

// RollbackFor 返回指定用户的回档
func (s *Snapshot) RollbackFor(userID string) (Rollback, bool) {
	for _, r := range s.Rollbacks {
		if r.UserID == userID {
			return r, true
		}
	}
	return Rollback{}, false
}

// Participant 返回指定用户的参与者记录
func (s *Snapshot) Participant(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// models 是需要自动迁移的全部表，顺序保证外键引用的表先创建
var models = []any{&List{}, &Participant{}, &Rollback{}}
