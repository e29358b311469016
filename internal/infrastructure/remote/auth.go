package remote

import (
	"context"
	"net/http"

	"github.com/example/pharmacy-storefront/internal/auth"
)

// AuthClient calls the backend login and token refresh endpoints.
type AuthClient struct {
	client *Client
}

func NewAuthClient(client *Client) *AuthClient {
	return &AuthClient{client: client}
}

func (c *AuthClient) Login(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	var tokens auth.TokenPair
	err := c.client.do(ctx, http.MethodPost, "/user/login", map[string]string{
		"email":    email,
		"password": password,
	}, &tokens)
	if err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (c *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	var tokens auth.TokenPair
	err := c.client.do(ctx, http.MethodPost, "/user/refresh-token", map[string]string{
		"refreshToken": refreshToken,
	}, &tokens)
	if err != nil {
		return nil, err
	}
	return &tokens, nil
}
