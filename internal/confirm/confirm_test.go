package confirm

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	signer, err := NewSigner("test-secret")
	require.NoError(t, err)
	return New(signer, rdb, time.Minute), mr
}

func TestSignAndVerify(t *testing.T) {
	s, err := NewSigner("")
	require.NoError(t, err)

	p := Payload{Nonce: "n", ListID: "AB12C", GuildID: 7, UserID: "100", ExpiresAt: 123}
	token, err := s.Sign(p)
	require.NoError(t, err)

	got, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	other, err := NewSigner("another")
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	body, sig, _ := strings.Cut(token, ".")
	_, err = s.Verify(body + "x." + sig)
	assert.ErrorIs(t, err, ErrInvalidToken)
	for _, bad := range []string{"", ".", "abc", "abc.", ".abc", "a.b.c"} {
		_, err = s.Verify(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", bad)
	}
}

func TestIssueAndConsumeOnce(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	ticket, err := svc.Issue(ctx, "AB12C", 7, "100")
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)

	p, err := svc.Consume(ctx, ticket.Token, "AB12C", 7)
	require.NoError(t, err)
	assert.Equal(t, "AB12C", p.ListID)
	assert.Equal(t, int64(7), p.GuildID)
	assert.Equal(t, "100", p.UserID)

	_, err = svc.Consume(ctx, ticket.Token, "AB12C", 7)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
	assert.Empty(t, mr.Keys())
}

func TestConsumeOtherListKeepsTicket(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	ticket, err := svc.Issue(ctx, "AB12C", 7, "100")
	require.NoError(t, err)

	_, err = svc.Consume(ctx, ticket.Token, "ZZZZZ", 7)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Consume(ctx, ticket.Token, "AB12C", 8)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Len(t, mr.Keys(), 1)

	p, err := svc.Consume(ctx, ticket.Token, "AB12C", 7)
	require.NoError(t, err)
	assert.Equal(t, "100", p.UserID)
}

func TestConsumeExpired(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	ticket, err := svc.Issue(ctx, "AB12C", 7, "100")
	require.NoError(t, err)

	// Redis 中的键过期
	mr.FastForward(2 * time.Minute)
	_, err = svc.Consume(ctx, ticket.Token, "AB12C", 7)
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	// 令牌本身过期
	ticket, err = svc.Issue(ctx, "AB12C", 7, "100")
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.Consume(ctx, ticket.Token, "AB12C", 7)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestConcurrentConsume(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	ticket, err := svc.Issue(ctx, "AB12C", 7, "100")
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(ctx, ticket.Token, "AB12C", 7); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
