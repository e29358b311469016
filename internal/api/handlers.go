package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/pharmacy-storefront/internal/api/middleware"
	"github.com/example/pharmacy-storefront/internal/auth"
	"github.com/example/pharmacy-storefront/internal/chat"
	"github.com/example/pharmacy-storefront/internal/domain/cart"
	"github.com/example/pharmacy-storefront/internal/domain/checkout"
	"github.com/example/pharmacy-storefront/internal/pricing"
)

// Handlers serves the storefront UI on top of the client core.
type Handlers struct {
	auth     *auth.Manager
	cart     *cart.Store
	pricing  *pricing.Calculator
	checkout *checkout.Workflow
	chat     *chat.Client
	logger   *zap.Logger
}

func NewHandlers(
	authManager *auth.Manager,
	cartStore *cart.Store,
	calculator *pricing.Calculator,
	workflow *checkout.Workflow,
	chatClient *chat.Client,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		auth:     authManager,
		cart:     cartStore,
		pricing:  calculator,
		checkout: workflow,
		chat:     chatClient,
		logger:   logger,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondJSONError writes a JSON error response
func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// respondErr maps core errors onto HTTP statuses.
func (h *Handlers) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var validation *checkout.ValidationError
	if errors.As(err, &validation) {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  validation.Error(),
			"fields": validation.Fields,
		})
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("user_id", middleware.GetUserID(r.Context())),
			zap.Error(err),
		)
	}
	respondJSONError(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrNotAuthenticated),
		errors.Is(err, auth.ErrNotAuthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrSessionExpired),
		errors.Is(err, chat.ErrNotAuthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, cart.ErrServiceUnavailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, cart.ErrNothingToUndo),
		errors.Is(err, cart.ErrDiscarded),
		errors.Is(err, checkout.ErrPlacementInProgress),
		errors.Is(err, checkout.ErrAlreadyPlaced):
		return http.StatusConflict

	case errors.Is(err, checkout.ErrValidation),
		errors.Is(err, checkout.ErrDeliveryRequired),
		errors.Is(err, checkout.ErrPaymentRequired),
		errors.Is(err, checkout.ErrConfirmationRequired),
		errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrEmptyOrder),
		errors.Is(err, cart.ErrInvalidProduct),
		errors.Is(err, pricing.ErrUnknownCoupon),
		errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusUnprocessableEntity

	case errors.Is(err, cart.ErrMutationFailed),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
