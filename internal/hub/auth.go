package hub

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	defaultAccessTTL  = 10 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenWrongType = errors.New("token type mismatch")
)

// Claims is the JWT payload for both access and refresh tokens. TokenType
// keeps a refresh token from being replayed as a bearer token.
type Claims struct {
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
}

// IssueAccess returns a short-lived bearer token.
func (ti *TokenIssuer) IssueAccess(username string) (string, error) {
	return ti.issue(username, tokenTypeAccess, ti.accessTTL)
}

// IssueRefresh returns a long-lived refresh token.
func (ti *TokenIssuer) IssueRefresh(username string) (string, error) {
	return ti.issue(username, tokenTypeRefresh, ti.refreshTTL)
}

func (ti *TokenIssuer) issue(username, tokenType string, ttl time.Duration) (string, error) {
	now := ti.now()
	claims := Claims{
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates a bearer token and returns the username.
func (ti *TokenIssuer) VerifyAccess(token string) (string, error) {
	return ti.verify(token, tokenTypeAccess)
}

// VerifyRefresh validates a refresh token and returns the username.
func (ti *TokenIssuer) VerifyRefresh(token string) (string, error) {
	return ti.verify(token, tokenTypeRefresh)
}

func (ti *TokenIssuer) verify(token, wantType string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	}, jwt.WithTimeFunc(ti.now))
	if err != nil || !parsed.Valid {
		return "", ErrTokenInvalid
	}
	if claims.TokenType != wantType {
		return "", ErrTokenWrongType
	}
	return claims.Username, nil
}
