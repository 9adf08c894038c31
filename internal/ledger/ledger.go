// Package ledger 处理回档的提交、替换、撤回和清空。
// 每个参与者在一个列表中最多只有一条回档，替换在存储层的单个事务中完成。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/SlpAus/rollback-tracker/internal/platform/metrics"
	"github.com/SlpAus/rollback-tracker/internal/store"
)

// MaxTextLength 是提交文本在清理前允许的最大字符数
const MaxTextLength = 2000

var (
	// ErrEmptyContent 表示清理后的文本为空
	ErrEmptyContent = errors.New("回档内容为空")
	// ErrTextTooLong 表示提交文本超过 MaxTextLength
	ErrTextTooLong = fmt.Errorf("回档内容超过 %d 个字符", MaxTextLength)
)

// WithdrawOutcome 是撤回的结果，没有可撤回的内容不是错误
type WithdrawOutcome int

const (
	Removed WithdrawOutcome = iota + 1
	NothingToRemove
)

func (o WithdrawOutcome) String() string {
	switch o {
	case Removed:
		return "removed"
	case NothingToRemove:
		return "nothing_to_remove"
	default:
		return "unknown"
	}
}

func (o WithdrawOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// SubmitRequest 是一次提交的全部输入。DisplayName 是提交者当前的显示名称。
type SubmitRequest struct {
	ListID      string
	GuildID     int64
	UserID      string
	DisplayName string
	Text        string
}

// SubmitResult 是提交成功后的结果
type SubmitResult struct {
	Timestamp time.Time       `json:"timestamp"`
	Replaced  bool            `json:"replaced"`
	Snapshot  *store.Snapshot `json:"snapshot"`
}

// Ledger 是回档的服务
type Ledger struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

func New(st *store.Store, opts ...Option) *Ledger {
	l := &Ledger{store: st}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}

// Submit 提交或替换回档。
// 检查顺序：列表存在、用户已登记、文本长度、清理后非空。之后在一个事务中完成替换。
func (l *Ledger) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	// 1. 列表与参与者
	if _, err := l.store.GetList(ctx, req.ListID, req.GuildID); err != nil {
		return nil, err
	}
	if _, err := l.store.GetParticipant(ctx, req.ListID, req.UserID); err != nil {
		return nil, err
	}

	// 2. 文本
	if utf8.RuneCountInString(req.Text) > MaxTextLength {
		return nil, ErrTextTooLong
	}
	text := Sanitize(req.Text)
	if text == "" {
		return nil, ErrEmptyContent
	}

	// 3. 原子替换；参与者在检查之后被移除时这里会返回 ErrNotRegistered
	rb := &store.Rollback{
		ListID:    req.ListID,
		UserID:    req.UserID,
		UserName:  req.DisplayName,
		Text:      text,
		Timestamp: l.store.Now(),
	}
	replaced, err := l.store.UpsertRollback(ctx, rb)
	if err != nil {
		return nil, err
	}
	outcome := "created"
	if replaced {
		outcome = "replaced"
	}
	l.metrics.Submission(outcome)
	l.logger.Info("回档已提交",
		"component", "ledger", "list", req.ListID, "user", req.UserID, "replaced", replaced)

	snap, err := l.store.Snapshot(ctx, req.ListID, req.GuildID)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Timestamp: rb.Timestamp, Replaced: replaced, Snapshot: snap}, nil
}

// Withdraw 删除用户的回档。调用方应当在用户确认之后才调用。
// 用户没有回档时返回 NothingToRemove，数据保持不变。
func (l *Ledger) Withdraw(ctx context.Context, listID string, guildID int64, userID string) (WithdrawOutcome, *store.Snapshot, error) {
	if _, err := l.store.GetList(ctx, listID, guildID); err != nil {
		return 0, nil, err
	}

	outcome := Removed
	err := l.store.DeleteRollback(ctx, listID, userID)
	switch {
	case errors.Is(err, store.ErrNothingToRemove):
		outcome = NothingToRemove
	case err != nil:
		return 0, nil, err
	}
	l.metrics.Withdrawal(outcome.String())
	l.logger.Info("回档撤回", "component", "ledger", "list", listID, "user", userID, "outcome", outcome.String())

	snap, err := l.store.Snapshot(ctx, listID, guildID)
	if err != nil {
		return 0, nil, err
	}
	return outcome, snap, nil
}

// CheckWithdrawable 在签发确认令牌之前检查用户是否有可撤回的回档。
// 用户未登记时返回 store.ErrNotRegistered，没有回档时返回 store.ErrNothingToRemove。
func (l *Ledger) CheckWithdrawable(ctx context.Context, listID string, guildID int64, userID string) error {
	if _, err := l.store.GetList(ctx, listID, guildID); err != nil {
		return err
	}
	p, err := l.store.GetParticipant(ctx, listID, userID)
	if err != nil {
		return err
	}
	if !p.HasRollback {
		return store.ErrNothingToRemove
	}
	return nil
}

// ResetAll 清空列表中的全部回档，参与者保持不变
func (l *Ledger) ResetAll(ctx context.Context, listID string, guildID int64) (*store.Snapshot, error) {
	if _, err := l.store.GetList(ctx, listID, guildID); err != nil {
		return nil, err
	}
	removed, err := l.store.ResetRollbacks(ctx, listID)
	if err != nil {
		return nil, err
	}
	l.metrics.Reset()
	l.logger.Info("列表回档已清空", "component", "ledger", "list", listID, "removed", removed)
	return l.store.Snapshot(ctx, listID, guildID)
}
