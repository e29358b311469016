package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/example/pharmacy-storefront/internal/domain/cart"
	"github.com/example/pharmacy-storefront/internal/pricing"
)

type AddItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

type CouponRequest struct {
	Code string `json:"code"`
}

// CartResponse is the cart with its price breakdown.
type CartResponse struct {
	Items       []cart.LineItem   `json:"items"`
	TotalPrice  decimal.Decimal   `json:"totalPrice"`
	Breakdown   pricing.Breakdown `json:"breakdown"`
	Coupon      *pricing.Coupon   `json:"coupon,omitempty"`
	PendingUndo *cart.LineItem    `json:"pendingUndo,omitempty"`
}

func (h *Handlers) cartResponse() CartResponse {
	items := h.cart.Items()
	if items == nil {
		items = []cart.LineItem{}
	}
	resp := CartResponse{
		Items:      items,
		TotalPrice: h.cart.TotalPrice(),
		Breakdown:  h.pricing.Breakdown(h.cart.Lines()),
	}
	if coupon, ok := h.pricing.AppliedCoupon(); ok {
		resp.Coupon = &coupon
	}
	if held, ok := h.cart.PendingUndo(); ok {
		resp.PendingUndo = &held
	}
	return resp
}

// GetCart refetches the cart from the cart service.
func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Hydrate(r.Context()); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.cart.Add(r.Context(), req.ProductID, req.Quantity); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.cart.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), req.Quantity); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cart.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handlers) UndoRemove(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cart.Undo(r.Context()); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cart.Clear(r.Context()); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handlers) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req CouponRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.pricing.ApplyCoupon(req.Code); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handlers) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.pricing.RemoveCoupon()
	respondJSON(w, http.StatusOK, h.cartResponse())
}

// GetSummary prices the lines named in ?selected=a,b, or the whole cart.
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	lines := pricing.SelectLines(h.cart.Lines(), selectedIDs(r))
	respondJSON(w, http.StatusOK, h.pricing.Breakdown(lines))
}

func selectedIDs(r *http.Request) []string {
	if !r.URL.Query().Has("selected") {
		return nil
	}
	ids := []string{}
	for _, id := range strings.Split(r.URL.Query().Get("selected"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
