package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL はアクセストークンの既定の有効期間です。
const DefaultTokenTTL = time.Hour

var (
	// ErrInvalidToken は署名・形式・有効期限のいずれかの検証に失敗したことを表します。
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired は有効期限切れのトークンを表します。ErrInvalidToken としても判定できます。
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Claims はアクセストークンに埋め込む内容です。
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer はアクセストークンの発行と検証を行います。
// 検証は署名と有効期限のみで行い、サーバー側の状態は参照しません。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer は TokenIssuer を作成します。ttl が 0 以下の場合は DefaultTokenTTL を使います。
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock は発行と検証に使う時計を差し替えます。
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	i.now = now
	return i
}

// TTL はトークンの有効期間を返します。
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue は username を埋め込んだトークンを発行し、トークン文字列と有効期限を返します。
func (i *TokenIssuer) Issue(username string) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, errors.New("username is required")
	}

	issuedAt := i.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンを検証し、埋め込まれたクレームを返します。
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
