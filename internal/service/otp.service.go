package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"phone-auth-service/internal/metrics"
	"phone-auth-service/internal/queue"
	"phone-auth-service/internal/rate"
	"phone-auth-service/internal/store"
	"phone-auth-service/pkg/xerrors"
)

const codeDigits = 6

// OTPService runs the challenge lifecycle: rate limit, generate, store
// the hash, queue the delivery. The plaintext code lives only between
// generation and enqueue and is never logged.
type OTPService struct {
	limiter    *rate.Limiter
	challenges *store.ChallengeStore
	deliveries *queue.DeliveryQueue
	counter    *metrics.Counter
}

func NewOTPService(
	limiter *rate.Limiter,
	challenges *store.ChallengeStore,
	deliveries *queue.DeliveryQueue,
	counter *metrics.Counter,
) *OTPService {
	return &OTPService{
		limiter:    limiter,
		challenges: challenges,
		deliveries: deliveries,
		counter:    counter,
	}
}

// StartChallenge creates and queues a fresh challenge for the phone.
// Any live challenge for the same phone is superseded. origin is the
// caller's network address, the second half of the rate-limit key.
func (s *OTPService) StartChallenge(ctx context.Context, phone, origin string) error {
	allowed, err := s.limiter.Allow(ctx, phone, origin)
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		s.counter.Increment("otp_rate_limited")
		return xerrors.ErrTooManyOTPRequests
	}

	code, err := randomCode(codeDigits)
	if err != nil {
		return err
	}

	if err := s.challenges.Create(ctx, phone, code); err != nil {
		return err
	}

	jobID, err := s.deliveries.Enqueue(ctx, phone, code)
	if err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}

	s.counter.Increment("otp_challenges_started")
	log.Printf("otp: challenge queued for %s (job %s)", maskPhone(phone), jobID)
	return nil
}

// VerifyChallenge checks the candidate code. A nil return means the
// challenge was consumed. The distinct rejection reasons feed telemetry;
// callers must present them identically.
func (s *OTPService) VerifyChallenge(ctx context.Context, phone, candidate string) error {
	err := s.challenges.Verify(ctx, phone, candidate)
	switch {
	case err == nil:
		s.counter.Increment("otp_verified")
		return nil
	case errors.Is(err, xerrors.ErrExpiredOTP):
		s.counter.Increment("otp_expired_or_missing")
	case errors.Is(err, xerrors.ErrTooManyAttempts):
		s.counter.Increment("otp_attempts_exhausted")
	case errors.Is(err, xerrors.ErrInvalidOTP):
		s.counter.Increment("otp_mismatch")
	}
	return err
}

func maskPhone(phone string) string {
	if len(phone) < 4 {
		return "****"
	}
	return "******" + phone[len(phone)-4:]
}
