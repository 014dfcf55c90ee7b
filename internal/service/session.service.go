package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"phone-auth-service/internal/domain"
	"phone-auth-service/pkg/jwtutil"
	"phone-auth-service/pkg/xerrors"
)

// TokenStore is the persistence the issuer needs: atomically replace a
// user's refresh tokens with a new one. *repository.RefreshTokenRepo is
// the production implementation.
type TokenStore interface {
	Replace(ctx context.Context, userID int64, rawToken string, expiresAt time.Time) error
}

// SessionService mints the access/refresh pair on successful
// verification. Issuing revokes every prior refresh token for the user,
// so at most one session chain is valid per user at any time.
type SessionService struct {
	tokens     TokenStore
	jwtGen     *jwtutil.Generator
	refreshTTL time.Duration
}

func NewSessionService(tokens TokenStore, jwtGen *jwtutil.Generator, refreshTTL time.Duration) *SessionService {
	return &SessionService{tokens: tokens, jwtGen: jwtGen, refreshTTL: refreshTTL}
}

// IssueSession signs a stateless access token and persists a fresh
// refresh token, replacing all previous ones. If persistence fails the
// whole issuance fails: the caller must not report a successful login
// it cannot back with a durable session.
func (s *SessionService) IssueSession(ctx context.Context, user *domain.User) (*domain.Session, error) {
	access, _, err := s.jwtGen.Generate(user.ID, user.Phone, user.Role)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Replace(ctx, user.ID, refresh, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrTokenPersistence, err)
	}

	return &domain.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.jwtGen.Ttl.Seconds()),
	}, nil
}

// randomToken returns 256 bits of CSPRNG output, URL-safe encoded.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("refresh token entropy source: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
