package xerrors

import "errors"

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
)

// Input validation
var (
	ErrInvalidPhone = errors.New("phone must be a 10-digit number")
	ErrInvalidCode  = errors.New("code must be a 6-digit number")
	ErrInvalidRole  = errors.New("invalid role")
)

// OTP / verification.
//
// ErrExpiredOTP and ErrTooManyAttempts exist for telemetry; handlers
// must collapse them (and a missing challenge) into ErrInvalidOTP so
// callers cannot probe which phone numbers hold live challenges.
var (
	ErrInvalidOTP         = errors.New("invalid or expired otp")
	ErrExpiredOTP         = errors.New("expired otp")
	ErrTooManyAttempts    = errors.New("too many verification attempts")
	ErrTooManyOTPRequests = errors.New("too many otp requests")
)

// Session / token
var (
	ErrTokenPersistence = errors.New("failed to persist session tokens")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("expired token")
)

// Delivery
var (
	ErrDeliveryExhausted = errors.New("delivery attempts exhausted")
)
