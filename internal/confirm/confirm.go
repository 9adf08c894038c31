// Package confirm 为撤回回档签发一次性的确认令牌。
// 令牌本身由HMAC保证不可伪造，Redis中的键保证每个令牌只能使用一次。
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "confirm:withdraw:"

var (
	// ErrExpired 表示令牌已过期
	ErrExpired = errors.New("确认令牌已过期")
	// ErrAlreadyUsed 表示令牌已被使用或已在Redis中过期
	ErrAlreadyUsed = errors.New("确认令牌已被使用")
)

// Ticket 是签发给调用方的令牌
type Ticket struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service 负责签发和消费确认令牌
type Service struct {
	signer *Signer
	rdb    redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

// New 创建 Service
func New(signer *Signer, rdb redis.Cmdable, ttl time.Duration) *Service {
	return &Service{
		signer: signer,
		rdb:    rdb,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue 为 (listID, guildID, userID) 签发一个令牌，并在Redis中登记其nonce
func (s *Service) Issue(ctx context.Context, listID string, guildID int64, userID string) (Ticket, error) {
	// nonce 冲突的概率可以忽略，但仍然用 SETNX 保证不会覆盖一个未使用的令牌
	for attempt := 0; attempt < 3; attempt++ {
		nonce := uuid.NewString()
		ok, err := s.rdb.SetNX(ctx, keyPrefix+nonce, userID, s.ttl).Result()
		if err != nil {
			return Ticket{}, fmt.Errorf("登记确认令牌失败: %w", err)
		}
		if !ok {
			continue
		}

		expires := s.now().Add(s.ttl)
		token, err := s.signer.Sign(Payload{
			Nonce:     nonce,
			ListID:    listID,
			GuildID:   guildID,
			UserID:    userID,
			ExpiresAt: expires.Unix(),
		})
		if err != nil {
			return Ticket{}, err
		}
		return Ticket{Token: token, ExpiresAt: expires}, nil
	}
	return Ticket{}, errors.New("无法生成唯一的确认令牌")
}

// Consume 校验并消费令牌。令牌只对签发时的 (listID, guildID) 有效，
// 不匹配时返回 ErrInvalidToken 且令牌保持可用。
// 校验通过后，无论调用方最终确认还是取消，令牌都会失效。
func (s *Service) Consume(ctx context.Context, token, listID string, guildID int64) (Payload, error) {
	p, err := s.signer.Verify(token)
	if err != nil {
		return Payload{}, err
	}
	if p.ListID != listID || p.GuildID != guildID {
		return Payload{}, ErrInvalidToken
	}
	if s.now().Unix() > p.ExpiresAt {
		return Payload{}, ErrExpired
	}

	// DEL 是原子的，并发消费同一个令牌时只有一个请求能删除成功
	n, err := s.rdb.Del(ctx, keyPrefix+p.Nonce).Result()
	if err != nil {
		return Payload{}, fmt.Errorf("消费确认令牌失败: %w", err)
	}
	if n == 0 {
		return Payload{}, ErrAlreadyUsed
	}
	return p, nil
}
