// Package roster 管理列表的参与者名单
package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/SlpAus/rollback-tracker/internal/platform/metrics"
	"github.com/SlpAus/rollback-tracker/internal/store"
)

// Outcome 是一次登记的结果，重复登记不是错误
type Outcome int

const (
	Registered Outcome = iota + 1
	AlreadyRegistered
)

func (o Outcome) String() string {
	switch o {
	case Registered:
		return "registered"
	case AlreadyRegistered:
		return "already_registered"
	default:
		return "unknown"
	}
}

// MarshalText 让 Outcome 在JSON中以字符串形式出现
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Member 是待登记的用户
type Member struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// MemberOutcome 是批量登记中单个用户的结果
type MemberOutcome struct {
	Member
	Outcome Outcome `json:"outcome"`
}

// BatchResult 是批量登记的结果以及登记完成后的快照
type BatchResult struct {
	Outcomes []MemberOutcome `json:"outcomes"`
	Snapshot *store.Snapshot `json:"snapshot"`
}

// Registered 返回本次新登记的用户
func (b *BatchResult) Registered() []Member {
	var out []Member
	for _, o := range b.Outcomes {
		if o.Outcome == Registered {
			out = append(out, o.Member)
		}
	}
	return out
}

// Roster 是参与者名单的服务
type Roster struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Roster)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Roster) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Roster) {
		r.metrics = m
	}
}

func New(st *store.Store, opts ...Option) *Roster {
	r := &Roster{store: st}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Register 将用户登记到列表中。
// 用户已经登记过时返回 AlreadyRegistered，原有的显示名称不会被更新。
func (r *Roster) Register(ctx context.Context, listID string, guildID int64, m Member) (Outcome, error) {
	if _, err := r.store.GetList(ctx, listID, guildID); err != nil {
		return 0, err
	}
	return r.register(ctx, listID, m)
}

func (r *Roster) register(ctx context.Context, listID string, m Member) (Outcome, error) {
	m.UserID = strings.TrimSpace(m.UserID)
	if m.UserID == "" {
		return 0, ErrEmptyUserID
	}
	err := r.store.CreateParticipant(ctx, &store.Participant{
		ListID:      listID,
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
	})
	switch {
	case err == nil:
		r.metrics.Registration(Registered.String())
		r.logger.Debug("参与者已登记", "component", "roster", "list", listID, "user", m.UserID)
		return Registered, nil
	case errors.Is(err, store.ErrDuplicateKey):
		r.metrics.Registration(AlreadyRegistered.String())
		return AlreadyRegistered, nil
	default:
		return 0, err
	}
}

// RegisterMany 依次登记多个用户，返回每个用户的结果和登记后的快照。
// 同一个用户在输入中出现多次时，只有第一次会被处理。
func (r *Roster) RegisterMany(ctx context.Context, listID string, guildID int64, members []Member) (*BatchResult, error) {
	if _, err := r.store.GetList(ctx, listID, guildID); err != nil {
		return nil, err
	}

	res := &BatchResult{Outcomes: make([]MemberOutcome, 0, len(members))}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.UserID]; dup {
			continue
		}
		seen[m.UserID] = struct{}{}

		outcome, err := r.register(ctx, listID, m)
		if err != nil {
			return nil, err
		}
		res.Outcomes = append(res.Outcomes, MemberOutcome{Member: m, Outcome: outcome})
	}

	snap, err := r.store.Snapshot(ctx, listID, guildID)
	if err != nil {
		return nil, err
	}
	res.Snapshot = snap
	return res, nil
}

// Remove 将用户移出列表，同时删除其回档
func (r *Roster) Remove(ctx context.Context, listID string, guildID int64, userID string) (*store.Snapshot, error) {
	if _, err := r.store.GetList(ctx, listID, guildID); err != nil {
		return nil, err
	}
	if err := r.store.DeleteParticipant(ctx, listID, userID); err != nil {
		return nil, err
	}
	r.logger.Info("参与者已移除", "component", "roster", "list", listID, "user", userID)
	return r.store.Snapshot(ctx, listID, guildID)
}

// Members 按登记时间返回列表的参与者
func (r *Roster) Members(ctx context.Context, listID string, guildID int64) ([]store.Participant, error) {
	if _, err := r.store.GetList(ctx, listID, guildID); err != nil {
		return nil, err
	}
	return r.store.ListParticipants(ctx, listID)
}
