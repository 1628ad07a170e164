// Package auth provides the sqlite-backed user store, HS256 bearer tokens,
// and the HTTP middleware that resolves a token to a user. Passwords are
// never hashed or verified here; the store records hashes opaquely and the
// middleware only validates tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrUserNotFound = errors.New("user not found")
	ErrUserDisabled = errors.New("user disabled")
)

// DefaultTokenExpiry matches the original deployment's three-day tokens.
const DefaultTokenExpiry = 72 * time.Hour

// Config configures the auth service. An empty Secret disables auth
// entirely; requests then run as LocalUser.
type Config struct {
	Secret string
	// TokenExpiry bounds issued tokens; zero or negative selects
	// DefaultTokenExpiry.
	TokenExpiry time.Duration
	// Store backs user lookups and issuance records. Nil means tokens are
	// trusted on their embedded claims alone.
	Store *Store
}

// Service issues and validates bearer tokens.
type Service struct {
	jwt   *JWTService
	store *Store
}

// NewService constructs an auth service from static configuration.
func NewService(cfg Config) *Service {
	service := &Service{store: cfg.Store}
	if strings.TrimSpace(cfg.Secret) != "" {
		expiry := cfg.TokenExpiry
		if expiry <= 0 {
			expiry = DefaultTokenExpiry
		}
		service.jwt = NewJWTService(cfg.Secret, expiry)
	}
	return service
}

// Enabled reports whether auth checks should run.
func (s *Service) Enabled() bool {
	return s != nil && s.jwt != nil
}

// Store returns the user store, if one is attached.
func (s *Service) Store() *Store {
	if s == nil {
		return nil
	}
	return s.store
}

// GenerateToken issues a signed bearer token for the user and records the
// issuance when a store is attached.
func (s *Service) GenerateToken(ctx context.Context, user *User) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	token, expiresAt, err := s.jwt.Generate(user)
	if err != nil {
		return "", err
	}
	if s.store != nil {
		if err := s.store.RecordToken(ctx, user.ID, expiresAt); err != nil {
			return "", fmt.Errorf("record token issuance: %w", err)
		}
	}
	return token, nil
}

// Authenticate resolves a bearer token to a user. With a store attached the
// user row is re-read so disabling and role changes take effect on the next
// request; without one the token's embedded identity is trusted.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return claims.User(), nil
	}
	user, err := s.store.UserByID(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}
	return user, nil
}
