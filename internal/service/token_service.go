package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code-review-be/pkg/kvstore"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	AccessTokenTTL  = 30 * time.Minute
	RefreshTokenTTL = 30 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	refreshKeyPrefix = "refresh:"
)

var (
	// ErrInvalidToken covers bad signatures, expiry, wrong algorithm and
	// malformed input alike.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

type TokenClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

type ITokenService interface {
	IssueAccess(userID string) (string, error)
	IssueRefresh(ctx context.Context, userID string) (string, error)
	Verify(token string) (*TokenClaims, error)
	VerifyAccess(token string) (string, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Revoke(ctx context.Context, userID string) error
}

type tokenService struct {
	secret []byte
	store  kvstore.Store
	now    func() time.Time
}

func NewTokenService(secret string, store kvstore.Store) ITokenService {
	return &tokenService{
		secret: []byte(secret),
		store:  store,
		now:    time.Now,
	}
}

func refreshKey(userID string) string {
	return refreshKeyPrefix + userID
}

func (s *tokenService) sign(userID, typ, jti string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := TokenClaims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (s *tokenService) IssueAccess(userID string) (string, error) {
	return s.sign(userID, tokenTypeAccess, "", AccessTokenTTL)
}

// IssueRefresh replaces whatever refresh token the user had before.
func (s *tokenService) IssueRefresh(ctx context.Context, userID string) (string, error) {
	token, err := s.sign(userID, tokenTypeRefresh, uuid.NewString(), RefreshTokenTTL)
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, refreshKey(userID), token, RefreshTokenTTL); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

func (s *tokenService) Verify(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *tokenService) VerifyAccess(token string) (string, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return "", err
	}
	if claims.Type != tokenTypeAccess {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Refresh mints a new access token. The refresh token itself is not rotated.
func (s *tokenService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.Verify(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.Type != tokenTypeRefresh {
		return "", ErrInvalidToken
	}

	stored, err := s.store.Get(ctx, refreshKey(claims.Subject))
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", ErrTokenRevoked
	}
	if err != nil {
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	if stored != refreshToken {
		return "", ErrTokenRevoked
	}

	return s.IssueAccess(claims.Subject)
}

func (s *tokenService) Revoke(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, refreshKey(userID)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
