package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/pharmacy-storefront/internal/auth"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is the session as the UI sees it. Tokens stay server side.
type SessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"userId,omitempty"`
	Email         string     `json:"email,omitempty"`
	Role          string     `json:"role,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

func sessionResponse(s auth.Session) SessionResponse {
	if !s.IsAuthenticated() {
		return SessionResponse{}
	}
	expiresAt := s.ExpiresAt
	return SessionResponse{
		Authenticated: true,
		UserID:        s.UserID,
		Email:         s.Email,
		Role:          s.Role,
		ExpiresAt:     &expiresAt,
	}
}

// Login authenticates and loads the shopper's cart.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	// A cart that fails to load is retried on the next cart request.
	if err := h.cart.Hydrate(r.Context()); err != nil {
		h.logger.Warn("cart hydrate after login failed", zap.Error(err))
	}

	respondJSON(w, http.StatusOK, sessionResponse(session))
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context())
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionResponse(h.auth.Session()))
}
