// Package registry 负责列表的创建、查找和删除。
// 列表ID全局唯一，但查找总是限定在调用方所在的服务器内。
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/SlpAus/rollback-tracker/internal/guild"
	"github.com/SlpAus/rollback-tracker/internal/platform/metrics"
	"github.com/SlpAus/rollback-tracker/internal/store"
)

// maxIDAttempts 限制生成ID的次数，ID空间接近耗尽或生成器异常时不会无限循环
const maxIDAttempts = 32

// ErrIDExhausted 表示多次尝试后仍未得到可用的列表ID
var ErrIDExhausted = errors.New("无法生成未被占用的列表ID")

// ErrEmptyName 表示列表名称为空
var ErrEmptyName = errors.New("列表名称不能为空")

// CreateRequest 是创建列表所需的全部输入
type CreateRequest struct {
	GuildID   int64
	Name      string
	ChannelID int64
	CreatedBy string
}

// Registry 管理列表的生命周期
type Registry struct {
	store   *store.Store
	guilds  guild.Directory
	newID   IDGenerator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option 用于定制 Registry
type Option func(*Registry)

// WithIDGenerator 替换ID生成器
func WithIDGenerator(gen IDGenerator) Option {
	return func(r *Registry) {
		r.newID = gen
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New 创建 Registry。guilds 可以为 nil，此时所有列表的状态频道都是创建时所在的频道。
func New(st *store.Store, guilds guild.Directory, opts ...Option) *Registry {
	r := &Registry{
		store:  st,
		guilds: guilds,
		newID:  RandomID,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Create 创建一个新列表。
// 候选ID已被任何服务器占用时重新生成；检查之后、插入之前被并发创建者抢占时同样重新生成。
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*store.List, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrEmptyName
	}

	list := &store.List{
		Name:            name,
		GuildID:         req.GuildID,
		ChannelID:       req.ChannelID,
		StaticChannelID: r.staticChannel(req.GuildID, req.ChannelID),
		CreatedBy:       req.CreatedBy,
	}

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id := r.newID()
		// 1. 全局检查ID是否被占用
		exists, err := r.store.ListIDExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		// 2. 插入；唯一键冲突说明有并发创建者使用了同一个ID
		list.ID = id
		list.CreatedAt = r.store.Now()
		err = r.store.CreateList(ctx, list)
		if errors.Is(err, store.ErrDuplicateKey) {
			r.logger.Debug("列表ID在插入时发生冲突，重新生成",
				"component", "registry", "id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		r.metrics.ListCreated()
		r.logger.Info("列表已创建",
			"component", "registry", "list", list.ID, "guild", list.GuildID, "createdBy", list.CreatedBy)
		return list, nil
	}
	return nil, fmt.Errorf("%w: 已尝试 %d 次", ErrIDExhausted, maxIDAttempts)
}

// staticChannel 返回状态消息所在的频道：优先使用服务器配置的状态频道
func (r *Registry) staticChannel(guildID, channelID int64) int64 {
	if r.guilds != nil {
		if s, ok := r.guilds.Lookup(guildID); ok && s.StatusChannelID != 0 {
			return s.StatusChannelID
		}
	}
	return channelID
}

// Find 在服务器范围内查找列表，其他服务器的列表视为不存在
func (r *Registry) Find(ctx context.Context, id string, guildID int64) (*store.List, error) {
	return r.store.GetList(ctx, id, guildID)
}

// Delete 删除列表及其全部参与者和回档
func (r *Registry) Delete(ctx context.Context, id string, guildID int64) error {
	if _, err := r.store.GetList(ctx, id, guildID); err != nil {
		return err
	}
	if err := r.store.DeleteList(ctx, id); err != nil {
		return err
	}
	r.metrics.ListDeleted()
	r.logger.Info("列表已删除", "component", "registry", "list", id, "guild", guildID)
	return nil
}

// Summaries 返回服务器下全部列表的概览
func (r *Registry) Summaries(ctx context.Context, guildID int64) ([]store.ListSummary, error) {
	return r.store.ListAll(ctx, guildID)
}

// Snapshot 读取列表的一致性快照
func (r *Registry) Snapshot(ctx context.Context, id string, guildID int64) (*store.Snapshot, error) {
	return r.store.Snapshot(ctx, id, guildID)
}

// UpdateMessageIDs 记录渲染层发送的消息ID
func (r *Registry) UpdateMessageIDs(ctx context.Context, id string, guildID int64, messageID, statusMessageID *int64) error {
	if _, err := r.store.GetList(ctx, id, guildID); err != nil {
		return err
	}
	return r.store.UpdateMessageIDs(ctx, id, messageID, statusMessageID)
}

// ComposeName 按创建表单的四个字段拼出列表名称，空字段会被跳过
func ComposeName(timeOfDay, date, name, server string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{timeOfDay, date, name, server} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " | ")
}
