package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/pharmacy-storefront/internal/activity"
	"github.com/example/pharmacy-storefront/internal/domain"
	"github.com/example/pharmacy-storefront/internal/pricing"
)

const DefaultUndoWindow = 6 * time.Second

var (
	ErrNotAuthenticated   = errors.New("please log in to manage your cart")
	ErrServiceUnavailable = errors.New("cart service unavailable")
	ErrMutationFailed     = errors.New("cart update failed")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrDiscarded          = errors.New("cart was discarded before the response arrived")
	ErrInvalidProduct     = errors.New("product_id is required")
)

// LineItem is one product entry in the cart as reported by the cart service.
type LineItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// LineTotal returns price × quantity.
func (i LineItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i LineItem) PricingLine() pricing.Line {
	return pricing.Line{ID: i.ID, Price: i.Price, Quantity: i.Quantity}
}

// Snapshot is the server's view of the cart returned by every cart call.
type Snapshot struct {
	Items      []LineItem      `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// Service is the remote cart service.
type Service interface {
	Fetch(ctx context.Context) (*Snapshot, error)
	AddItem(ctx context.Context, productID string, quantity int) (*Snapshot, error)
	UpdateItem(ctx context.Context, lineItemID string, quantity int) (*Snapshot, error)
	RemoveItem(ctx context.Context, lineItemID string) (*Snapshot, error)
	Clear(ctx context.Context) (*Snapshot, error)
}

// Session reports whether a shopper is logged in.
type Session interface {
	IsAuthenticated() bool
}

type Options struct {
	UndoWindow time.Duration
	Recorder   *activity.Recorder
	Logger     *zap.Logger
}

// Store is the client-side copy of the shopper's cart.
//
// Mutations are not applied locally until the service confirms them; the
// service's cart and total then replace local state verbatim. Concurrent calls
// are not serialized: whichever response arrives last wins.
type Store struct {
	service    Service
	session    Session
	recorder   *activity.Recorder
	logger     *zap.Logger
	undoWindow time.Duration

	mu         sync.RWMutex
	items      []LineItem
	total      decimal.Decimal
	generation uint64
	held       *heldItem
}

// heldItem is a just-removed line kept around so it can be re-added.
type heldItem struct {
	item     LineItem
	deadline time.Time
	timer    *time.Timer
}

func NewStore(service Service, session Session, opts Options) *Store {
	if opts.UndoWindow <= 0 {
		opts.UndoWindow = DefaultUndoWindow
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		service:    service,
		session:    session,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		undoWindow: opts.UndoWindow,
		total:      decimal.Zero,
	}
}

// Hydrate loads the cart from the service at session start.
func (s *Store) Hydrate(ctx context.Context) error {
	_, err := s.mutate(ctx, "hydrate", s.service.Fetch)
	return err
}

func (s *Store) Add(ctx context.Context, productID string, quantity int) (*Snapshot, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	quantity = clampQuantity(quantity)

	snap, err := s.mutate(ctx, "add", func(ctx context.Context) (*Snapshot, error) {
		return s.service.AddItem(ctx, productID, quantity)
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, activity.EventCartItemAdded, ItemAddedToCart{ProductID: productID, Quantity: quantity})
	return snap, nil
}

// UpdateQuantity sets a line's quantity, clamped to at least 1.
func (s *Store) UpdateQuantity(ctx context.Context, lineItemID string, quantity int) (*Snapshot, error) {
	quantity = clampQuantity(quantity)

	snap, err := s.mutate(ctx, "update_quantity", func(ctx context.Context) (*Snapshot, error) {
		return s.service.UpdateItem(ctx, lineItemID, quantity)
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, activity.EventCartQuantityChanged, ItemQuantityChanged{LineItemID: lineItemID, Quantity: quantity})
	return snap, nil
}

// Remove deletes a line and holds it for the undo window.
func (s *Store) Remove(ctx context.Context, lineItemID string) (*Snapshot, error) {
	removed, known := s.find(lineItemID)

	snap, err := s.mutate(ctx, "remove", func(ctx context.Context) (*Snapshot, error) {
		return s.service.RemoveItem(ctx, lineItemID)
	})
	if err != nil {
		return nil, err
	}

	if known {
		s.hold(removed, time.Now().Add(s.undoWindow))
	}
	s.recorder.Record(ctx, activity.EventCartItemRemoved, ItemRemovedFromCart{LineItemID: lineItemID, ProductID: removed.ProductID})
	return snap, nil
}

// Undo re-adds the most recently removed line if the undo window is still open.
func (s *Store) Undo(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	held := s.held
	if held == nil {
		s.mu.Unlock()
		return nil, ErrNothingToUndo
	}
	held.timer.Stop()
	s.held = nil
	s.mu.Unlock()

	snap, err := s.Add(ctx, held.item.ProductID, held.item.Quantity)
	if err != nil {
		if time.Now().Before(held.deadline) {
			s.hold(held.item, held.deadline)
		}
		return nil, err
	}
	return snap, nil
}

// PendingUndo returns the line that Undo would restore.
func (s *Store) PendingUndo() (LineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.held == nil {
		return LineItem{}, false
	}
	return s.held.item, true
}

func (s *Store) Clear(ctx context.Context) (*Snapshot, error) {
	count := len(s.Items())

	snap, err := s.mutate(ctx, "clear", s.service.Clear)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.items = nil
	s.total = decimal.Zero
	s.mu.Unlock()

	s.recorder.Record(ctx, activity.EventCartCleared, CartCleared{ItemCount: count})
	return snap, nil
}

// Discard drops local state on logout. Responses still in flight are ignored.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.items = nil
	s.total = decimal.Zero
	if s.held != nil {
		s.held.timer.Stop()
		s.held = nil
	}
}

// Items returns a copy of the current lines.
func (s *Store) Items() []LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LineItem(nil), s.items...)
}

// TotalPrice is the server-reported total.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Lines returns the cart in the shape the pricing engine takes.
func (s *Store) Lines() []pricing.Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := make([]pricing.Line, len(s.items))
	for i, item := range s.items {
		lines[i] = item.PricingLine()
	}
	return lines
}

func (s *Store) mutate(ctx context.Context, op string, call func(context.Context) (*Snapshot, error)) (*Snapshot, error) {
	if s.session == nil || !s.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	s.mu.RLock()
	generation := s.generation
	s.mu.RUnlock()

	snap, err := call(ctx)
	if err != nil {
		err = classify(err)
		s.logger.Warn("cart call failed", zap.String("op", op), zap.Error(err))
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: empty response", ErrMutationFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		s.logger.Debug("dropping cart response for discarded session", zap.String("op", op))
		return nil, ErrDiscarded
	}
	s.items = append([]LineItem(nil), snap.Items...)
	s.total = snap.TotalPrice
	s.logger.Debug("cart updated", zap.String("op", op), zap.Int("items", len(s.items)), zap.String("total", s.total.StringFixed(2)))
	return snap, nil
}

func (s *Store) find(lineItemID string) (LineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == lineItemID {
			return item, true
		}
	}
	return LineItem{}, false
}

func (s *Store) hold(item LineItem, deadline time.Time) {
	h := &heldItem{item: item, deadline: deadline}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held != nil {
		s.held.timer.Stop()
	}
	h.timer = time.AfterFunc(time.Until(deadline), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.held == h {
			s.held = nil
		}
	})
	s.held = h
}

func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return ErrNotAuthenticated
	case errors.Is(err, domain.ErrNotFound):
		return ErrServiceUnavailable
	default:
		return fmt.Errorf("%w: %w", ErrMutationFailed, err)
	}
}

func clampQuantity(quantity int) int {
	if quantity < 1 {
		return 1
	}
	return quantity
}
