package repository

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"phone-auth-service/internal/domain"
	"phone-auth-service/pkg/xerrors"
)

// RefreshTokenRepo persists refresh tokens as sha256 hashes; the raw
// token exists only in the response that hands it to the client.
type RefreshTokenRepo struct {
	db *pgxpool.Pool
}

func NewRefreshTokenRepo(db *pgxpool.Pool) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db}
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Replace deletes every refresh token owned by the user and inserts the
// new one in a single transaction. This is the revoke-on-reissue step:
// after it commits, the new token is the user's only valid one.
func (r *RefreshTokenRepo) Replace(ctx context.Context, userID int64, rawToken string, expiresAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, issued_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
	`, HashToken(rawToken), userID, expiresAt); err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}

	return tx.Commit(ctx)
}

// GetByToken resolves a raw refresh token to its persisted record; the
// stateful check a renewal flow has to run before honoring a token.
func (r *RefreshTokenRepo) GetByToken(ctx context.Context, rawToken string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.QueryRow(ctx, `
		SELECT token_hash, user_id, issued_at, expires_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND expires_at > NOW()
	`, HashToken(rawToken)).Scan(&t.TokenHash, &t.UserID, &t.IssuedAt, &t.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteAllByUser revokes every refresh token the user holds.
func (r *RefreshTokenRepo) DeleteAllByUser(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	return err
}

// CountByUser reports how many live tokens the user holds.
func (r *RefreshTokenRepo) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = $1 AND expires_at > NOW()
	`, userID).Scan(&n)
	return n, err
}
