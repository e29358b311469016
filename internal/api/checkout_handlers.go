package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/example/pharmacy-storefront/internal/domain/cart"
	"github.com/example/pharmacy-storefront/internal/domain/checkout"
	"github.com/example/pharmacy-storefront/internal/pricing"
)

type DeliveryRequest struct {
	Option checkout.DeliveryOption `json:"option"`
}

type PaymentRequest struct {
	Method checkout.PaymentMethod `json:"method"`
}

func (h *Handlers) GetCheckout(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.checkout.State())
}

func (h *Handlers) SetShipping(w http.ResponseWriter, r *http.Request) {
	var req checkout.ShippingDetails
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.checkout.SetShipping(req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.checkout.State())
}

func (h *Handlers) SelectDelivery(w http.ResponseWriter, r *http.Request) {
	var req DeliveryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.checkout.SelectDelivery(req.Option); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.checkout.State())
}

func (h *Handlers) SelectPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.checkout.SelectPayment(req.Method); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.checkout.State())
}

func (h *Handlers) NextStep(w http.ResponseWriter, r *http.Request) {
	state, err := h.checkout.Next()
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (h *Handlers) PreviousStep(w http.ResponseWriter, r *http.Request) {
	state, err := h.checkout.Back()
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// RequestPlaceOrder opens the confirmation prompt.
func (h *Handlers) RequestPlaceOrder(w http.ResponseWriter, r *http.Request) {
	state, err := h.checkout.RequestPlaceOrder()
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (h *Handlers) CancelPlaceOrder(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.checkout.CancelPlaceOrder())
}

// ConfirmPlaceOrder submits the order for the selected cart lines (all lines
// when ?selected is absent) and resyncs the cart afterwards.
func (h *Handlers) ConfirmPlaceOrder(w http.ResponseWriter, r *http.Request) {
	items := pricing.Select(h.cart.Items(), selectedIDs(r), func(i cart.LineItem) string { return i.ID })
	lines := make([]pricing.Line, len(items))
	orderLines := make([]checkout.OrderLine, len(items))
	for i, item := range items {
		lines[i] = item.PricingLine()
		orderLines[i] = checkout.OrderLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		}
	}

	receipt, err := h.checkout.ConfirmPlaceOrder(r.Context(), orderLines, h.pricing.Breakdown(lines))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	h.pricing.RemoveCoupon()
	if err := h.cart.Hydrate(r.Context()); err != nil {
		h.logger.Warn("cart resync after order failed", zap.Error(err))
	}
	respondJSON(w, http.StatusCreated, receipt)
}
