package remote

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/example/pharmacy-storefront/internal/domain/cart"
)

// ErrNoCart is returned when a cart mutation succeeds without echoing the cart.
var ErrNoCart = errors.New("cart response has no cart")

type cartResponse struct {
	Cart *cart.Snapshot `json:"cart"`
}

// CartClient talks to the backend cart service.
type CartClient struct {
	client *Client
}

func NewCartClient(client *Client) *CartClient {
	return &CartClient{client: client}
}

// Fetch returns an empty cart when the shopper has none yet.
func (c *CartClient) Fetch(ctx context.Context) (*cart.Snapshot, error) {
	return c.orEmpty(c.call(ctx, http.MethodGet, "/cart", nil))
}

func (c *CartClient) AddItem(ctx context.Context, productID string, quantity int) (*cart.Snapshot, error) {
	return c.call(ctx, http.MethodPost, "/cart", map[string]any{
		"productId": productID,
		"quantity":  quantity,
	})
}

func (c *CartClient) UpdateItem(ctx context.Context, lineItemID string, quantity int) (*cart.Snapshot, error) {
	return c.call(ctx, http.MethodPut, "/cart/item/"+url.PathEscape(lineItemID), map[string]any{
		"quantity": quantity,
	})
}

func (c *CartClient) RemoveItem(ctx context.Context, lineItemID string) (*cart.Snapshot, error) {
	return c.call(ctx, http.MethodDelete, "/cart/item/"+url.PathEscape(lineItemID), nil)
}

func (c *CartClient) Clear(ctx context.Context) (*cart.Snapshot, error) {
	return c.orEmpty(c.call(ctx, http.MethodDelete, "/cart", nil))
}

func (c *CartClient) call(ctx context.Context, method, path string, body any) (*cart.Snapshot, error) {
	var resp cartResponse
	if err := c.client.do(ctx, method, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.Cart == nil {
		return nil, ErrNoCart
	}
	return resp.Cart, nil
}

func (c *CartClient) orEmpty(snap *cart.Snapshot, err error) (*cart.Snapshot, error) {
	if errors.Is(err, ErrNoCart) {
		return &cart.Snapshot{}, nil
	}
	return snap, err
}
