package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims 登录令牌携带的声明
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager 负责 JWT 的签发与解析
type Manager interface {
	Generate(userID, username string) (string, error)
	Parse(tokenStr string) (*Claims, error)
}

type manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewManager 用给定的 secret 构造 Manager，ttl <= 0 表示令牌不过期
func NewManager(secret string, ttl time.Duration, issuer string) (Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	return &manager{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}, nil
}

// Generate 生成带 uid/username 的 HS256 令牌
func (m *manager) Generate(userID, username string) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			Issuer:   m.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if m.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse 验签并解析令牌
func (m *manager) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || claims.Username == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
