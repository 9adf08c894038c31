package confirm

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken 表示令牌格式错误或签名不匹配
var ErrInvalidToken = errors.New("确认令牌无效")

// Payload 是被签名的数据，标识一次待确认的撤回操作
type Payload struct {
	Nonce     string `json:"n"`
	ListID    string `json:"l"`
	GuildID   int64  `json:"g"`
	UserID    string `json:"u"`
	ExpiresAt int64  `json:"e"`
}

// Signer 使用HMAC-SHA256对 Payload 签名
type Signer struct {
	key []byte
}

// NewSigner 使用给定的密钥创建 Signer。secret 为空时生成一个32字节的随机密钥，
// 这种情况下进程重启后之前签发的令牌全部失效。
func NewSigner(secret string) (*Signer, error) {
	if secret != "" {
		return &Signer{key: []byte(secret)}, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("无法生成安全的密钥: %w", err)
	}
	return &Signer{key: key}, nil
}

// Sign 返回 "<payload>.<signature>" 形式的令牌，两部分都是URL安全的Base64
func (s *Signer) Sign(p Payload) (string, error) {
	// 1. 序列化payload
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("无法序列化令牌payload: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(raw)

	// 2. 对编码后的payload签名
	return body + "." + base64.RawURLEncoding.EncodeToString(s.mac(body)), nil
}

// Verify 校验签名并解析 Payload，不检查过期时间
func (s *Signer) Verify(token string) (Payload, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return Payload{}, ErrInvalidToken
	}

	actual, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return Payload{}, ErrInvalidToken
	}
	// 时间恒定的比较
	if !hmac.Equal(s.mac(body), actual) {
		return Payload{}, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Payload{}, ErrInvalidToken
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, ErrInvalidToken
	}
	return p, nil
}

func (s *Signer) mac(body string) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(body))
	return m.Sum(nil)
}
