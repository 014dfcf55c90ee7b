package store

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"phone-auth-service/pkg/cache"
	"phone-auth-service/pkg/xerrors"
)

const (
	namespace      = "otp"
	codeKeyPrefix  = "code:"
	attemptsPrefix = "attempts:"
)

// ChallengeStore holds at most one live challenge per phone number: the
// keyed hash of the code plus an attempt counter, both expiring with the
// challenge TTL. The plaintext code is never stored.
type ChallengeStore struct {
	store       cache.Store
	secret      []byte
	ttl         time.Duration
	maxAttempts int64
}

func NewChallengeStore(store cache.Store, secret []byte, ttl time.Duration, maxAttempts int64) (*ChallengeStore, error) {
	if len(secret) == 0 {
		return nil, errors.New("store: empty otp hash secret")
	}
	return &ChallengeStore{store: store, secret: secret, ttl: ttl, maxAttempts: maxAttempts}, nil
}

func (s *ChallengeStore) hash(code string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Create stores the hashed code under the phone key, replacing any live
// challenge and resetting the attempt counter. Both keys share the
// challenge TTL.
func (s *ChallengeStore) Create(ctx context.Context, phone, code string) error {
	if err := s.store.Set(ctx, namespace, codeKeyPrefix+phone, s.hash(code), s.ttl); err != nil {
		return fmt.Errorf("store otp hash: %w", err)
	}
	if err := s.store.Set(ctx, namespace, attemptsPrefix+phone, "0", s.ttl); err != nil {
		return fmt.Errorf("reset otp attempts: %w", err)
	}
	return nil
}

// Verify checks the candidate against the live challenge.
//
// It fails closed when no live challenge exists (xerrors.ErrExpiredOTP)
// or when the attempt cap is already reached (xerrors.ErrTooManyAttempts);
// the two are distinct for telemetry only and must look identical to the
// caller. A match consumes the challenge through an atomic
// compare-and-delete, so concurrent verifies of the correct code yield
// exactly one success; the store compares keyed hashes, never the codes
// themselves. On a mismatch the attempt counter is raised through an
// atomic increment-under-cap, so concurrent mismatches can never record
// more than maxAttempts failures.
func (s *ChallengeStore) Verify(ctx context.Context, phone, candidate string) error {
	if _, err := s.store.Get(ctx, namespace, codeKeyPrefix+phone); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return xerrors.ErrExpiredOTP
		}
		return fmt.Errorf("load otp hash: %w", err)
	}

	attempts, err := s.Attempts(ctx, phone)
	if err != nil {
		return err
	}
	if attempts >= s.maxAttempts {
		return xerrors.ErrTooManyAttempts
	}

	matched, err := s.store.DeleteIfEquals(ctx, namespace, codeKeyPrefix+phone, s.hash(candidate), attemptsPrefix+phone)
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if matched {
		return nil
	}

	// Counter TTL is pinned to the challenge key's remaining TTL so the
	// lockout can never outlive the challenge itself; if another caller
	// consumed the challenge between the existence check and here, the
	// increment is a no-op.
	if _, _, err := s.store.IncrUnderCap(ctx, namespace, attemptsPrefix+phone, codeKeyPrefix+phone, s.maxAttempts); err != nil {
		return fmt.Errorf("count otp attempt: %w", err)
	}
	return xerrors.ErrInvalidOTP
}

// Invalidate removes the challenge and its attempt counter.
func (s *ChallengeStore) Invalidate(ctx context.Context, phone string) error {
	return s.store.Delete(ctx, namespace, codeKeyPrefix+phone, attemptsPrefix+phone)
}

// Attempts reports the recorded failure count for the live challenge.
func (s *ChallengeStore) Attempts(ctx context.Context, phone string) (int64, error) {
	val, err := s.store.Get(ctx, namespace, attemptsPrefix+phone)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("load otp attempts: %w", err)
	}
	cnt, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse otp attempts: %w", err)
	}
	return cnt, nil
}
