package remote

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/pharmacy-storefront/internal/domain/checkout"
)

type orderResponse struct {
	Order struct {
		ID        string          `json:"id"`
		Total     decimal.Decimal `json:"total"`
		CreatedAt time.Time       `json:"createdAt"`
	} `json:"order"`
}

// OrderClient submits orders to the backend order service.
type OrderClient struct {
	client *Client
}

func NewOrderClient(client *Client) *OrderClient {
	return &OrderClient{client: client}
}

func (c *OrderClient) CreateOrder(ctx context.Context, req checkout.OrderRequest) (*checkout.OrderReceipt, error) {
	var resp orderResponse
	if err := c.client.do(ctx, http.MethodPost, "/order", req, &resp); err != nil {
		return nil, err
	}

	receipt := &checkout.OrderReceipt{
		OrderID:  resp.Order.ID,
		Total:    resp.Order.Total,
		PlacedAt: resp.Order.CreatedAt,
	}
	if receipt.Total.IsZero() {
		receipt.Total = req.GrandTotal
	}
	if receipt.PlacedAt.IsZero() {
		receipt.PlacedAt = time.Now().UTC()
	}
	return receipt, nil
}
