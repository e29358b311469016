package checkout

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/example/pharmacy-storefront/internal/activity"
	"github.com/example/pharmacy-storefront/internal/pricing"
)

var (
	ErrValidation           = errors.New("checkout step is incomplete")
	ErrInvalidTransition    = errors.New("invalid checkout step transition")
	ErrDeliveryRequired     = errors.New("please choose a delivery option")
	ErrPaymentRequired      = errors.New("please choose a payment method")
	ErrConfirmationRequired = errors.New("order must be confirmed before it is placed")
	ErrPlacementInProgress  = errors.New("order placement already in progress")
	ErrEmptyOrder           = errors.New("order must have at least one item")
	ErrAlreadyPlaced        = errors.New("order already placed")
)

// ValidationError lists the shipping fields that are still empty.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// OrderPlaced is the activity payload emitted after a successful placement.
type OrderPlaced struct {
	OrderID  string         `json:"order_id"`
	Total    string         `json:"total"`
	Items    int            `json:"items"`
	Payment  PaymentMethod  `json:"payment"`
	Delivery DeliveryOption `json:"delivery"`
}

// Workflow is the checkout state machine. It validates steps and delegates
// placement to an OrderCreator; it never talks to the network itself.
type Workflow struct {
	orders   OrderCreator
	recorder *activity.Recorder
	logger   *zap.Logger
	validate *validator.Validate

	mu      sync.Mutex
	state   State
	placing bool
}

func NewWorkflow(orders OrderCreator, recorder *activity.Recorder, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return &Workflow{
		orders:   orders,
		recorder: recorder,
		logger:   logger,
		validate: v,
		state:    initialState(),
	}
}

func initialState() State {
	return State{Step: StepShipping, Delivery: DeliveryStandard}
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Reset starts a fresh checkout.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = initialState()
}

func (w *Workflow) SetShipping(details ShippingDetails) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Step == StepPlaced {
		return ErrAlreadyPlaced
	}
	w.state.Shipping = ShippingDetails{
		FullName: strings.TrimSpace(details.FullName),
		Email:    strings.TrimSpace(details.Email),
		Phone:    strings.TrimSpace(details.Phone),
		Address:  strings.TrimSpace(details.Address),
	}
	return nil
}

func (w *Workflow) SelectDelivery(option DeliveryOption) error {
	if _, ok := option.Cost(); !ok {
		return ErrDeliveryRequired
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Step == StepPlaced {
		return ErrAlreadyPlaced
	}
	w.state.Delivery = option
	return nil
}

func (w *Workflow) SelectPayment(method PaymentMethod) error {
	if !method.Valid() {
		return ErrPaymentRequired
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Step == StepPlaced {
		return ErrAlreadyPlaced
	}
	w.state.Payment = method
	return nil
}

// Next advances one step if the current step's gate holds. Review only moves
// on through RequestPlaceOrder and ConfirmPlaceOrder.
func (w *Workflow) Next() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state.Step {
	case StepReview:
		return w.state, ErrConfirmationRequired
	case StepPlaced:
		return w.state, ErrAlreadyPlaced
	}

	if err := w.gate(w.state.Step); err != nil {
		return w.state, err
	}
	w.state.Step = forward[w.state.Step]
	return w.state, nil
}

// Back returns to the previous step. Not allowed from the first step or once placed.
func (w *Workflow) Back() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, ok := backward[w.state.Step]
	if !ok {
		return w.state, fmt.Errorf("%w: cannot go back from %s", ErrInvalidTransition, w.state.Step)
	}
	w.state.Step = prev
	w.state.ConfirmationPending = false
	return w.state, nil
}

// RequestPlaceOrder is the first acknowledgment of the guarded place-order action.
func (w *Workflow) RequestPlaceOrder() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Step != StepReview {
		return w.state, fmt.Errorf("%w: place order from %s", ErrInvalidTransition, w.state.Step)
	}
	w.state.ConfirmationPending = true
	return w.state, nil
}

func (w *Workflow) CancelPlaceOrder() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.ConfirmationPending = false
	return w.state
}

// ConfirmPlaceOrder is the second acknowledgment. It submits the order and
// moves to Placed on success; on failure the checkout stays in Review.
func (w *Workflow) ConfirmPlaceOrder(ctx context.Context, items []OrderLine, totals pricing.Breakdown) (*OrderReceipt, error) {
	w.mu.Lock()
	if w.placing {
		w.mu.Unlock()
		return nil, ErrPlacementInProgress
	}
	if w.state.Step != StepReview || !w.state.ConfirmationPending {
		w.mu.Unlock()
		return nil, ErrConfirmationRequired
	}
	if len(items) == 0 {
		w.mu.Unlock()
		return nil, ErrEmptyOrder
	}
	for _, step := range []Step{StepShipping, StepDelivery, StepPayment} {
		if err := w.gate(step); err != nil {
			w.mu.Unlock()
			return nil, err
		}
	}

	deliveryCost, _ := w.state.Delivery.Cost()
	req := OrderRequest{
		Shipping:     w.state.Shipping,
		Delivery:     w.state.Delivery,
		DeliveryCost: deliveryCost,
		Payment:      w.state.Payment,
		Items:        append([]OrderLine(nil), items...),
		Totals:       totals,
		GrandTotal:   totals.Total.Add(deliveryCost),
	}
	w.placing = true
	w.mu.Unlock()

	receipt, err := w.orders.CreateOrder(ctx, req)

	w.mu.Lock()
	w.placing = false
	if err != nil {
		w.state.ConfirmationPending = false
		w.mu.Unlock()
		w.logger.Warn("order placement failed", zap.Error(err))
		return nil, fmt.Errorf("failed to place order: %w", err)
	}
	w.state.Step = StepPlaced
	w.state.ConfirmationPending = false
	w.state.Order = receipt
	w.mu.Unlock()

	w.logger.Info("order placed", zap.String("order_id", receipt.OrderID), zap.String("total", req.GrandTotal.StringFixed(2)))
	w.recorder.Record(ctx, activity.EventOrderPlaced, OrderPlaced{
		OrderID:  receipt.OrderID,
		Total:    req.GrandTotal.StringFixed(2),
		Items:    len(items),
		Payment:  req.Payment,
		Delivery: req.Delivery,
	})
	return receipt, nil
}

// gate checks the requirement for leaving step. Callers hold w.mu.
func (w *Workflow) gate(step Step) error {
	switch step {
	case StepShipping:
		return w.validateShipping(w.state.Shipping)
	case StepDelivery:
		if _, ok := w.state.Delivery.Cost(); !ok {
			return ErrDeliveryRequired
		}
	case StepPayment:
		if !w.state.Payment.Valid() {
			return ErrPaymentRequired
		}
	}
	return nil
}

func (w *Workflow) validateShipping(details ShippingDetails) error {
	err := w.validate.Struct(details)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	missing := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		missing = append(missing, fe.Field())
	}
	return &ValidationError{Fields: missing}
}
