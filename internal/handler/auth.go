package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/authgate/authgate-go/internal/middleware"
	"github.com/authgate/authgate-go/internal/model"
	"github.com/authgate/authgate-go/internal/service"
	"github.com/authgate/authgate-go/internal/session"
)

const maxBodyBytes = 1 << 20 // 1MB

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service    *service.AuthService
	secureMode session.SecureMode
	logger     *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, secureMode session.SecureMode, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, secureMode: secureMode, logger: logger}
}

// HandleSignup handles POST /api/auth/signup requests.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.Signup(r.Context(), req)
	if err != nil {
		h.fail(w, r, "signup", err)
		return
	}

	session.SetCookie(w, r, res.Token, h.secureMode)
	writeJSON(w, http.StatusCreated, model.Envelope{Success: true, User: res.User})
}

// HandleLogin handles POST /api/auth/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}

	session.SetCookie(w, r, res.Token, h.secureMode)
	writeJSON(w, http.StatusOK, model.Envelope{Success: true, User: res.User})
}

// HandleLogout handles POST /api/auth/logout requests. It always succeeds.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		h.logger.InfoContext(r.Context(), "user logged out", "user_id", id.UserID)
	}

	session.ClearCookie(w, r, h.secureMode)
	writeJSON(w, http.StatusOK, model.Envelope{Success: true})
}

// HandleMe handles GET /api/auth/me requests. An anonymous caller gets a
// 200 with success=false.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, model.Envelope{Success: false, Message: "not authenticated"})
		return
	}

	user, err := h.service.CurrentUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			writeJSON(w, http.StatusOK, model.Envelope{Success: false, Message: "not authenticated"})
			return
		}
		h.fail(w, r, "me", err)
		return
	}

	writeJSON(w, http.StatusOK, model.Envelope{Success: true, User: user})
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorEnvelope("invalid request body"))
		return false
	}
	return true
}

// fail maps service errors onto the envelope. Client errors carry their
// message; anything else is logged and collapsed to a generic 500.
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountUnavailable):
		h.logger.DebugContext(r.Context(), op+" rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, errorEnvelope(err.Error()))
	default:
		h.logger.ErrorContext(r.Context(), op+" failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorEnvelope("internal server error"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorEnvelope(msg string) model.Envelope {
	return model.Envelope{Success: false, Message: msg}
}
