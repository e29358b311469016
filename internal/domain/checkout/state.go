package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/pharmacy-storefront/internal/pricing"
)

type Step string

const (
	StepShipping Step = "shipping"
	StepDelivery Step = "delivery"
	StepPayment  Step = "payment"
	StepReview   Step = "review"
	StepPlaced   Step = "placed"
)

// forward and backward define the only allowed step transitions.
var forward = map[Step]Step{
	StepShipping: StepDelivery,
	StepDelivery: StepPayment,
	StepPayment:  StepReview,
	StepReview:   StepPlaced,
}

var backward = map[Step]Step{
	StepDelivery: StepShipping,
	StepPayment:  StepDelivery,
	StepReview:   StepPayment,
}

type DeliveryOption string

const (
	DeliveryStandard DeliveryOption = "standard"
	DeliveryExpress  DeliveryOption = "express"
)

var deliveryCosts = map[DeliveryOption]decimal.Decimal{
	DeliveryStandard: decimal.Zero,
	DeliveryExpress:  decimal.NewFromInt(15),
}

// Cost returns the fixed surcharge for the option.
func (d DeliveryOption) Cost() (decimal.Decimal, bool) {
	cost, ok := deliveryCosts[d]
	return cost, ok
}

type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "card"
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentCashOnDelivery PaymentMethod = "cod"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCard, PaymentPayPal, PaymentCashOnDelivery:
		return true
	}
	return false
}

// ShippingDetails are the fields collected on the first step. Format checks
// beyond presence belong to the form layer.
type ShippingDetails struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Address  string `json:"address" validate:"required"`
}

// State is a snapshot of the checkout for rendering.
type State struct {
	Step                Step            `json:"step"`
	Shipping            ShippingDetails `json:"shipping"`
	Delivery            DeliveryOption  `json:"delivery"`
	Payment             PaymentMethod   `json:"payment,omitempty"`
	ConfirmationPending bool            `json:"confirmationPending"`
	Order               *OrderReceipt   `json:"order,omitempty"`
}

type OrderLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// OrderRequest is what the order service receives on placement.
type OrderRequest struct {
	Shipping     ShippingDetails   `json:"shippingAddress"`
	Delivery     DeliveryOption    `json:"deliveryOption"`
	DeliveryCost decimal.Decimal   `json:"deliveryCost"`
	Payment      PaymentMethod     `json:"paymentMethod"`
	Items        []OrderLine       `json:"items"`
	Totals       pricing.Breakdown `json:"totals"`
	GrandTotal   decimal.Decimal   `json:"grandTotal"`
}

type OrderReceipt struct {
	OrderID  string          `json:"orderId"`
	Total    decimal.Decimal `json:"total"`
	PlacedAt time.Time       `json:"placedAt"`
}

// OrderCreator places the order with the backend.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderReceipt, error)
}
