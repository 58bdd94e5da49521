package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pmassist/authd/internal/middleware"
	"github.com/pmassist/authd/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	requestService *service.OTPRequestService
	verifyService  *service.OTPVerificationService
	sessionService *service.SessionService
	logger         *logrus.Logger
	cookieSecure   bool
}

func NewAuthHandlers(
	requestService *service.OTPRequestService,
	verifyService *service.OTPVerificationService,
	sessionService *service.SessionService,
	logger *logrus.Logger,
	cookieSecure bool,
) *AuthHandlers {
	return &AuthHandlers{
		requestService: requestService,
		verifyService:  verifyService,
		sessionService: sessionService,
		logger:         logger,
		cookieSecure:   cookieSecure,
	}
}

type RequestCodeRequest struct {
	Email string `json:"email"`
}

type RequestCodeResponse struct {
	ExpiresInSeconds int64 `json:"expires_in_seconds"`
}

type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type VerifyResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

func (h *AuthHandlers) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req RequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", 0)
		return
	}

	result, err := h.requestService.RequestCode(r.Context(), req.Email, clientIP(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, RequestCodeResponse{
		ExpiresInSeconds: int64(result.ExpiresIn.Seconds()),
	})
}

func (h *AuthHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", 0)
		return
	}

	result, err := h.verifyService.Verify(r.Context(), req.Email, strings.TrimSpace(req.Code))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	// Same-site clients get the token as an HttpOnly cookie alongside the
	// body; API clients use the Authorization header.
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.respondWithJSON(w, http.StatusOK, VerifyResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User: UserResponse{
			ID:        result.User.ID,
			Email:     result.User.Email,
			CreatedAt: result.User.CreatedAt,
		},
	})
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionService.Logout(r.Context(), middleware.ExtractCredential(r)); err != nil {
		h.logger.WithError(err).Error("Logout failed")
		h.respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong", 0)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.respondWithError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", 0)
		return
	}

	h.respondWithJSON(w, http.StatusOK, UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

// writeServiceError maps domain error kinds onto HTTP responses. Anything
// that is not a domain error is a store or infrastructure failure and
// stays generic.
func (h *AuthHandlers) writeServiceError(w http.ResponseWriter, err error) {
	authErr := service.AsAuthError(err)
	if authErr == nil {
		h.logger.WithError(err).Error("Auth operation failed")
		h.respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong", 0)
		return
	}

	retryAfter := int64(authErr.RetryAfter.Seconds())

	switch authErr.Kind {
	case service.KindInvalidInput:
		h.respondWithError(w, http.StatusBadRequest, "INVALID_INPUT", authErr.Message, 0)
	case service.KindRateLimited:
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		h.respondWithError(w, http.StatusTooManyRequests, "RATE_LIMITED", authErr.Message, retryAfter)
	case service.KindTooManyAttempts:
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		h.respondWithError(w, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", authErr.Message, retryAfter)
	case service.KindInvalidOrExpiredCode:
		h.respondWithError(w, http.StatusUnauthorized, "INVALID_CODE", authErr.Message, 0)
	case service.KindDeliveryFailed:
		h.logger.WithError(err).Error("Code delivery failed")
		h.respondWithError(w, http.StatusBadGateway, "DELIVERY_FAILED", authErr.Message, 0)
	default:
		h.respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong", 0)
	}
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, code, message string, retryAfter int64) {
	h.respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:              code,
			Message:           message,
			RetryAfterSeconds: retryAfter,
		},
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			return strings.TrimSpace(forwarded[:i])
		}
		return strings.TrimSpace(forwarded)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
