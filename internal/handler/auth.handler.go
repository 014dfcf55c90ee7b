package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"phone-auth-service/internal/domain"
	"phone-auth-service/internal/queue"
	"phone-auth-service/internal/repository"
	"phone-auth-service/internal/service"
	"phone-auth-service/pkg/response"
	"phone-auth-service/pkg/xerrors"
)

type AuthHandler struct {
	otp        *service.OTPService
	sessions   *service.SessionService
	users      *repository.UserRepo
	deliveries *queue.DeliveryQueue
}

func NewAuthHandler(
	otp *service.OTPService,
	sessions *service.SessionService,
	users *repository.UserRepo,
	deliveries *queue.DeliveryQueue,
) *AuthHandler {
	return &AuthHandler{otp: otp, sessions: sessions, users: users, deliveries: deliveries}
}

func (h *AuthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"service": "phone-auth", "state": "ok"})
}

type sendOTPRequest struct {
	Phone string `json:"phone"`
}

func (h *AuthHandler) HandleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if !isValidPhone(req.Phone) {
		response.Error(w, http.StatusBadRequest, "invalid_phone", xerrors.ErrInvalidPhone.Error())
		return
	}

	origin := clientIP(r)
	if err := h.otp.StartChallenge(r.Context(), req.Phone, origin); err != nil {
		if errors.Is(err, xerrors.ErrTooManyOTPRequests) {
			response.Error(w, http.StatusTooManyRequests, "rate_limited", "Too many OTP requests, slow down")
			return
		}
		log.Printf("[WARN] send otp for %s failed: %v", maskPhone(req.Phone), err)
		response.Error(w, http.StatusInternalServerError, "internal", "Failed to start verification")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"message": "OTP sent to " + maskPhone(req.Phone),
	})
}

type verifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	Role  string `json:"role,omitempty"`
}

type verifyOTPResponse struct {
	User    userProjection  `json:"user"`
	Session *domain.Session `json:"session"`
}

type userProjection struct {
	ID    int64   `json:"id"`
	Phone string  `json:"phone"`
	Name  *string `json:"name"`
	Role  string  `json:"role"`
}

func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if !isValidPhone(req.Phone) {
		response.Error(w, http.StatusBadRequest, "invalid_phone", xerrors.ErrInvalidPhone.Error())
		return
	}
	if !isValidCode(req.Code) {
		response.Error(w, http.StatusBadRequest, "invalid_code", xerrors.ErrInvalidCode.Error())
		return
	}
	if req.Role != "" && !domain.IsValidRole(req.Role) {
		response.Error(w, http.StatusBadRequest, "invalid_role", xerrors.ErrInvalidRole.Error())
		return
	}

	if err := h.otp.VerifyChallenge(r.Context(), req.Phone, req.Code); err != nil {
		// Expired, exhausted and plain mismatch all read the same from
		// outside, so a caller can't probe challenge state.
		if errors.Is(err, xerrors.ErrInvalidOTP) ||
			errors.Is(err, xerrors.ErrExpiredOTP) ||
			errors.Is(err, xerrors.ErrTooManyAttempts) {
			response.Error(w, http.StatusUnauthorized, "invalid_otp", "Invalid or expired code")
			return
		}
		log.Printf("[WARN] verify otp for %s failed: %v", maskPhone(req.Phone), err)
		response.Error(w, http.StatusInternalServerError, "internal", "Verification failed")
		return
	}

	user, err := h.users.FindOrCreateByPhone(r.Context(), req.Phone, req.Role)
	if err != nil {
		log.Printf("[WARN] find-or-create user for %s failed: %v", maskPhone(req.Phone), err)
		response.Error(w, http.StatusInternalServerError, "internal", "Failed to resolve identity")
		return
	}

	session, err := h.sessions.IssueSession(r.Context(), user)
	if err != nil {
		// The challenge is already consumed, but without a durable
		// session the login must not be reported as successful.
		log.Printf("[WARN] issue session for user %d failed: %v", user.ID, err)
		response.Error(w, http.StatusInternalServerError, "session_failure", "Failed to create session")
		return
	}

	response.JSON(w, http.StatusOK, verifyOTPResponse{
		User: userProjection{
			ID:    user.ID,
			Phone: user.Phone,
			Name:  user.Name,
			Role:  user.Role,
		},
		Session: session,
	})
}

type failedJobProjection struct {
	ID         string `json:"id"`
	Phone      string `json:"phone"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error"`
	EnqueuedAt string `json:"enqueued_at"`
}

// HandleFailedDeliveries lists exhausted delivery jobs for operators.
// The code itself is withheld; only routing metadata is shown.
func (h *AuthHandler) HandleFailedDeliveries(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.deliveries.FailedJobs(r.Context(), 50)
	if err != nil {
		log.Printf("[WARN] list failed deliveries: %v", err)
		response.Error(w, http.StatusInternalServerError, "internal", "Failed to list deliveries")
		return
	}

	out := make([]failedJobProjection, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, failedJobProjection{
			ID:         j.ID,
			Phone:      maskPhone(j.Phone),
			Attempts:   j.Attempts,
			LastError:  j.LastError,
			EnqueuedAt: j.EnqueuedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	response.JSON(w, http.StatusOK, out)
}
