package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL はトークンのデフォルト有効期間（7日）。
const DefaultTokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken はトークンが不正・期限切れ・署名不一致のいずれかであることを示す。
var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer はセッショントークンの発行と検証を行うインターフェース。
type TokenIssuer interface {
	// Issue はユーザーIDに紐づくトークンを発行する。
	Issue(userID string) (string, error)
	// Verify はトークンを検証し、ユーザーIDを返す。不正な場合はErrInvalidTokenを返す。
	Verify(token string) (string, error)
}

// Claims はトークンに含めるクレーム。
// userIdは既存クライアントとの互換のため、subと同じ値を持つ。
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenManager はHS256署名のJWTを扱うTokenIssuerの実装。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager はTokenManagerを生成する。ttlが0以下の場合はDefaultTokenTTLを使用する。
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock は現在時刻の取得関数を差し替えたTokenManagerを返す。テスト用。
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	c := *m
	c.now = now
	return &c
}

// Issue はユーザーIDに紐づくトークンを発行する。
func (m *TokenManager) Issue(userID string) (string, error) {
	now := m.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名・アルゴリズム・有効期限を検証し、ユーザーIDを返す。
// expを持たないトークンやuserIdが空のトークンは不正として扱う。
func (m *TokenManager) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: missing userId claim", ErrInvalidToken)
	}
	return claims.UserID, nil
}

// compile-time interface check
var _ TokenIssuer = (*TokenManager)(nil)
