package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/pharmacy-storefront/internal/auth"
	"github.com/example/pharmacy-storefront/internal/chat"
	"github.com/example/pharmacy-storefront/internal/domain"
	"github.com/example/pharmacy-storefront/internal/domain/cart"
	"github.com/example/pharmacy-storefront/internal/domain/checkout"
	"github.com/example/pharmacy-storefront/internal/infrastructure/storage"
	"github.com/example/pharmacy-storefront/internal/pricing"
)

// fakeCartService keeps a cart in memory the way the backend would.
type fakeCartService struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	items  []cart.LineItem
	err    error
}

func newFakeCartService() *fakeCartService {
	return &fakeCartService{prices: map[string]decimal.Decimal{
		"aspirin":   decimal.RequireFromString("4.50"),
		"vitamin-c": decimal.NewFromInt(100),
	}}
}

func (f *fakeCartService) snapshot() *cart.Snapshot {
	total := decimal.Zero
	for _, item := range f.items {
		total = total.Add(item.LineTotal())
	}
	return &cart.Snapshot{Items: append([]cart.LineItem(nil), f.items...), TotalPrice: total}
}

func (f *fakeCartService) Fetch(_ context.Context) (*cart.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot(), nil
}

func (f *fakeCartService) AddItem(_ context.Context, productID string, quantity int) (*cart.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.items {
		if f.items[i].ProductID == productID {
			f.items[i].Quantity += quantity
			return f.snapshot(), nil
		}
	}
	f.items = append(f.items, cart.LineItem{
		ID: "li-" + productID, ProductID: productID, Name: productID, Price: f.prices[productID], Quantity: quantity,
	})
	return f.snapshot(), nil
}

func (f *fakeCartService) UpdateItem(_ context.Context, id string, quantity int) (*cart.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Quantity = quantity
			return f.snapshot(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCartService) RemoveItem(_ context.Context, id string) (*cart.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[:0]
	for _, item := range f.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	f.items = kept
	return f.snapshot(), nil
}

func (f *fakeCartService) Clear(_ context.Context) (*cart.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
	return f.snapshot(), nil
}

func (f *fakeCartService) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeAuthService struct {
	tokens *auth.TokenPair
}

func (f *fakeAuthService) Login(_ context.Context, _, password string) (*auth.TokenPair, error) {
	if password != "correct-horse" {
		return nil, domain.ErrUnauthorized
	}
	return f.tokens, nil
}

func (f *fakeAuthService) RefreshToken(_ context.Context, _ string) (*auth.TokenPair, error) {
	return nil, errors.New("not used")
}

type fakeOrders struct {
	mu       sync.Mutex
	requests []checkout.OrderRequest
}

func (f *fakeOrders) CreateOrder(_ context.Context, req checkout.OrderRequest) (*checkout.OrderReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return &checkout.OrderReceipt{OrderID: "ord-1", Total: req.GrandTotal, PlacedAt: time.Now().UTC()}, nil
}

type refusingDialer struct{}

func (refusingDialer) Dial(_ context.Context) (chat.Conn, error) {
	return nil, errors.New("connection refused")
}

type fixture struct {
	router   http.Handler
	carts    *fakeCartService
	orders   *fakeOrders
	manager  *auth.Manager
	cart     *cart.Store
	chat     *chat.Client
	workflow *checkout.Workflow
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	claims := auth.Claims{
		UserID: "user-1",
		Email:  "jane@example.com",
		Role:   "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	kv := storage.NewMemoryStore()
	manager := auth.NewManager(&fakeAuthService{tokens: &auth.TokenPair{AccessToken: token, RefreshToken: "r"}}, kv, auth.Options{})
	t.Cleanup(manager.Close)

	carts := newFakeCartService()
	store := cart.NewStore(carts, manager, cart.Options{UndoWindow: time.Minute})
	calculator := pricing.NewCalculator()
	orders := &fakeOrders{}
	workflow := checkout.NewWorkflow(orders, nil, nil)
	chatClient := chat.NewClient(refusingDialer{}, manager, kv, chat.Options{Reconnect: chat.ReconnectPolicy{MaxAttempts: 1}})
	t.Cleanup(chatClient.Close)

	manager.OnLogout(func() {
		store.Discard()
		calculator.RemoveCoupon()
		workflow.Reset()
	})

	core, logs := observer.New(zap.ErrorLevel)
	handlers := NewHandlers(manager, store, calculator, workflow, chatClient, zap.New(core))
	return &fixture{
		router:   NewRouter(handlers, "", nil),
		carts:    carts,
		orders:   orders,
		manager:  manager,
		cart:     store,
		chat:     chatClient,
		workflow: workflow,
		logs:     logs,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: "jane@example.com", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// ============================================
// Health & auth
// ============================================

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	f := newFixture(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/cart"},
		{http.MethodPost, "/cart/items"},
		{http.MethodGet, "/cart/summary"},
		{http.MethodGet, "/checkout"},
		{http.MethodPost, "/checkout/confirm"},
		{http.MethodGet, "/chat/messages"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := f.do(t, rt.method, rt.path, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	_, _ = f.carts.AddItem(context.Background(), "aspirin", 2)

	rec := f.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: "jane@example.com", Password: "correct-horse"})

	require.Equal(t, http.StatusOK, rec.Code)
	session := decodeBody[SessionResponse](t, rec)
	assert.True(t, session.Authenticated)
	assert.Equal(t, "user-1", session.UserID)
	assert.NotContains(t, rec.Body.String(), "accessToken", "tokens stay server side")
	assert.Len(t, f.cart.Items(), 1, "cart is hydrated on login")

	rec = f.do(t, http.MethodGet, "/auth/session", nil)
	assert.True(t, decodeBody[SessionResponse](t, rec).Authenticated)
}

func TestLogin_Errors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: "jane@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	f.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "aspirin", Quantity: 1}).Code)

	rec := f.do(t, http.MethodPost, "/auth/logout", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.cart.Items(), "cart is discarded on logout")
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/cart", nil).Code)
	assert.False(t, decodeBody[SessionResponse](t, f.do(t, http.MethodGet, "/auth/session", nil)).Authenticated)
}

// ============================================
// Cart
// ============================================

func TestCart_AddAndPrice(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rec := f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "vitamin-c", Quantity: 2})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[CartResponse](t, rec)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "200.00", resp.TotalPrice.StringFixed(2))
	assert.Equal(t, "210.00", resp.Breakdown.Total.StringFixed(2))

	rec = f.do(t, http.MethodPost, "/cart/coupon", CouponRequest{Code: "save20"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[CartResponse](t, rec)
	require.NotNil(t, resp.Coupon)
	assert.Equal(t, "SAVE20", resp.Coupon.Code)
	assert.Equal(t, "40.00", resp.Breakdown.Discount.StringFixed(2))
	assert.Equal(t, "168.00", resp.Breakdown.Total.StringFixed(2))

	rec = f.do(t, http.MethodPost, "/cart/coupon", CouponRequest{Code: "BOGUS"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodDelete, "/cart/coupon", nil)
	assert.Nil(t, decodeBody[CartResponse](t, rec).Coupon)
}

func TestCart_InvalidProduct(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rec := f.do(t, http.MethodPost, "/cart/items", AddItemRequest{Quantity: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCart_UpdateClampsQuantity(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "aspirin", Quantity: 3})

	rec := f.do(t, http.MethodPut, "/cart/items/li-aspirin", UpdateItemRequest{Quantity: 0})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[CartResponse](t, rec).Items[0].Quantity)
}

func TestCart_RemoveAndUndo(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "aspirin", Quantity: 2})

	rec := f.do(t, http.MethodDelete, "/cart/items/li-aspirin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[CartResponse](t, rec)
	assert.Empty(t, resp.Items)
	require.NotNil(t, resp.PendingUndo)
	assert.Equal(t, "aspirin", resp.PendingUndo.ProductID)

	rec = f.do(t, http.MethodPost, "/cart/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[CartResponse](t, rec)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Items[0].Quantity)

	rec = f.do(t, http.MethodPost, "/cart/undo", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCart_Clear(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "aspirin", Quantity: 2})

	rec := f.do(t, http.MethodDelete, "/cart", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[CartResponse](t, rec)
	assert.Empty(t, resp.Items)
	assert.True(t, resp.TotalPrice.IsZero())
}

func TestCart_ServiceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.carts.setErr(domain.ErrNotFound)

	rec := f.do(t, http.MethodGet, "/cart", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestServerErrorsLogShopper(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.carts.setErr(errors.New("disk full"))

	rec := f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "aspirin", Quantity: 1})
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())

	entries := f.logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Equal(t, "/cart/items", fields["path"])
}

func TestCart_Summary(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "vitamin-c", Quantity: 1})
	f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "aspirin", Quantity: 2})

	all := decodeBody[pricing.Breakdown](t, f.do(t, http.MethodGet, "/cart/summary", nil))
	assert.Equal(t, "109.00", all.Subtotal.StringFixed(2))

	some := decodeBody[pricing.Breakdown](t, f.do(t, http.MethodGet, "/cart/summary?selected=li-aspirin", nil))
	assert.Equal(t, "9.00", some.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", some.Shipping.StringFixed(2))

	none := decodeBody[pricing.Breakdown](t, f.do(t, http.MethodGet, "/cart/summary?selected=", nil))
	assert.True(t, none.Total.IsZero())
}

// ============================================
// Checkout
// ============================================

func TestCheckout_FullFlow(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "vitamin-c", Quantity: 2})

	rec := f.do(t, http.MethodPost, "/checkout/next", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.ElementsMatch(t, []any{"fullName", "email", "phone", "address"}, body["fields"])

	rec = f.do(t, http.MethodPut, "/checkout/shipping", checkout.ShippingDetails{
		FullName: "Jane Doe", Email: "jane@example.com", Phone: "555-0100", Address: "1 Main St",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/checkout/next", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/checkout/delivery", DeliveryRequest{Option: checkout.DeliveryExpress}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/checkout/next", nil).Code)

	rec = f.do(t, http.MethodPost, "/checkout/next", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "payment not chosen")

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/checkout/payment", PaymentRequest{Method: checkout.PaymentCard}).Code)
	rec = f.do(t, http.MethodPost, "/checkout/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, checkout.StepReview, decodeBody[checkout.State](t, rec).Step)

	rec = f.do(t, http.MethodPost, "/checkout/confirm", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "confirm needs the place request first")

	rec = f.do(t, http.MethodPost, "/checkout/place", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[checkout.State](t, rec).ConfirmationPending)

	rec = f.do(t, http.MethodPost, "/checkout/confirm", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decodeBody[checkout.OrderReceipt](t, rec)
	assert.Equal(t, "ord-1", receipt.OrderID)
	assert.Equal(t, "225.00", receipt.Total.StringFixed(2))

	require.Len(t, f.orders.requests, 1)
	assert.Len(t, f.orders.requests[0].Items, 1)
	assert.Equal(t, checkout.StepPlaced, f.workflow.State().Step)
}

func TestCheckout_ConfirmSelectedLines(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "vitamin-c", Quantity: 1})
	f.do(t, http.MethodPost, "/cart/items", AddItemRequest{ProductID: "aspirin", Quantity: 2})

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/checkout/shipping", checkout.ShippingDetails{
		FullName: "Jane Doe", Email: "jane@example.com", Phone: "555-0100", Address: "1 Main St",
	}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/checkout/next", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/checkout/next", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/checkout/payment", PaymentRequest{Method: checkout.PaymentCashOnDelivery}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/checkout/next", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/checkout/place", nil).Code)

	rec := f.do(t, http.MethodPost, "/checkout/confirm?selected=li-aspirin", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, f.orders.requests, 1)
	req := f.orders.requests[0]
	require.Len(t, req.Items, 1)
	assert.Equal(t, "aspirin", req.Items[0].ProductID)
	// 9.00 + 10.00 shipping + 0.45 tax
	assert.Equal(t, "19.45", req.GrandTotal.StringFixed(2))
}

func TestCheckout_BackAndCancel(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rec := f.do(t, http.MethodPost, "/checkout/back", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/checkout/place/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[checkout.State](t, rec).ConfirmationPending)

	rec = f.do(t, http.MethodPut, "/checkout/delivery", DeliveryRequest{Option: "teleport"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodGet, "/checkout", nil)
	assert.Equal(t, checkout.StepShipping, decodeBody[checkout.State](t, rec).Step)
}

// ============================================
// Chat
// ============================================

func TestChat_SendWhileClosedQueues(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rec := f.do(t, http.MethodPost, "/chat/messages", SendMessageRequest{Message: "Is this in stock?"})
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := decodeBody[chat.Message](t, rec)
	assert.Equal(t, chat.StatusQueued, msg.Status)
	assert.True(t, chat.IsTemporaryID(msg.ID))

	rec = f.do(t, http.MethodGet, "/chat/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ChatResponse](t, rec)
	assert.Equal(t, 1, resp.Queued)
	require.Len(t, resp.Days, 1)
	assert.Equal(t, chat.StateDisconnected, resp.State)

	rec = f.do(t, http.MethodPost, "/chat/messages", SendMessageRequest{Message: "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestChat_OpenGoesOfflineWhenUnreachable(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rec := f.do(t, http.MethodPost, "/chat/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, f.chat.Offline, time.Second, time.Millisecond)
	resp := decodeBody[ChatResponse](t, f.do(t, http.MethodGet, "/chat/messages", nil))
	assert.True(t, resp.Offline)

	rec = f.do(t, http.MethodPost, "/chat/close", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{cart.ErrNotAuthenticated, http.StatusUnauthorized},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{cart.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{cart.ErrMutationFailed, http.StatusBadGateway},
		{checkout.ErrPaymentRequired, http.StatusUnprocessableEntity},
		{pricing.ErrUnknownCoupon, http.StatusUnprocessableEntity},
		{checkout.ErrPlacementInProgress, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
