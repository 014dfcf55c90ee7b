package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"phone-auth-service/internal/domain"
	"phone-auth-service/pkg/jwtutil"
	"phone-auth-service/pkg/xerrors"
)

// fakeTokenStore records Replace calls; each call wipes the previous
// token, matching the production repository's transaction.
type fakeTokenStore struct {
	tokens map[int64]string
	err    error
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[int64]string)}
}

func (f *fakeTokenStore) Replace(ctx context.Context, userID int64, rawToken string, expiresAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.tokens[userID] = rawToken
	return nil
}

func newTestSessionService(t *testing.T, tokens TokenStore) *SessionService {
	t.Helper()
	gen, err := jwtutil.NewGenerator([]byte("test-signing-secret"), "phone-auth-service", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return NewSessionService(tokens, gen, 30*24*time.Hour)
}

func TestIssueSession(t *testing.T) {
	ctx := context.Background()
	tokens := newFakeTokenStore()
	svc := newTestSessionService(t, tokens)

	user := &domain.User{ID: 7, Phone: "9999999999", Role: domain.RoleCustomer}
	sess, err := svc.IssueSession(ctx, user)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	if sess.AccessToken == "" || sess.RefreshToken == "" {
		t.Fatal("session has empty tokens")
	}
	if sess.ExpiresIn != 900 {
		t.Fatalf("ExpiresIn = %d, want 900", sess.ExpiresIn)
	}
	if got := tokens.tokens[7]; got != sess.RefreshToken {
		t.Fatalf("persisted token %q != returned token %q", got, sess.RefreshToken)
	}
}

func TestIssueSessionReplacesPriorToken(t *testing.T) {
	ctx := context.Background()
	tokens := newFakeTokenStore()
	svc := newTestSessionService(t, tokens)

	user := &domain.User{ID: 7, Phone: "9999999999", Role: domain.RoleCustomer}

	first, err := svc.IssueSession(ctx, user)
	if err != nil {
		t.Fatalf("IssueSession(first): %v", err)
	}
	second, err := svc.IssueSession(ctx, user)
	if err != nil {
		t.Fatalf("IssueSession(second): %v", err)
	}

	if first.RefreshToken == second.RefreshToken {
		t.Fatal("consecutive issuances returned the same refresh token")
	}
	// only the latest token survives; the first chain is revoked
	if len(tokens.tokens) != 1 || tokens.tokens[7] != second.RefreshToken {
		t.Fatalf("store holds %v, want exactly the second token", tokens.tokens)
	}
}

func TestIssueSessionFailsWhenPersistenceFails(t *testing.T) {
	ctx := context.Background()
	tokens := newFakeTokenStore()
	tokens.err = errors.New("database unavailable")
	svc := newTestSessionService(t, tokens)

	user := &domain.User{ID: 7, Phone: "9999999999", Role: domain.RoleCustomer}
	if _, err := svc.IssueSession(ctx, user); !errors.Is(err, xerrors.ErrTokenPersistence) {
		t.Fatalf("IssueSession = %v, want ErrTokenPersistence", err)
	}
}

func TestIssueSessionAccessTokenClaims(t *testing.T) {
	ctx := context.Background()
	tokens := newFakeTokenStore()
	gen, err := jwtutil.NewGenerator([]byte("test-signing-secret"), "phone-auth-service", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	svc := NewSessionService(tokens, gen, 30*24*time.Hour)

	user := &domain.User{ID: 7, Phone: "9999999999", Role: domain.RoleStoreOwner}
	sess, err := svc.IssueSession(ctx, user)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	claims, err := gen.Parse(sess.AccessToken)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != 7 || claims.Phone != "9999999999" || claims.Role != domain.RoleStoreOwner {
		t.Fatalf("claims = %+v, want uid=7 phone=9999999999 role=%s", claims, domain.RoleStoreOwner)
	}
}
