package chat

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Conn is one live connection to the chat service. Writes are serialized by
// the caller.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// TokenSource supplies the bearer token sent on the upgrade request.
type TokenSource interface {
	AccessToken() string
}

// WebSocketDialer connects to the chat service with gorilla/websocket.
type WebSocketDialer struct {
	url    string
	tokens TokenSource
	dialer *websocket.Dialer
}

func NewWebSocketDialer(url string, tokens TokenSource) *WebSocketDialer {
	return &WebSocketDialer{url: url, tokens: tokens, dialer: websocket.DefaultDialer}
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	if d.tokens != nil {
		if token := d.tokens.AccessToken(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := d.dialer.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("chat dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("chat dial failed: %w", err)
	}
	return conn, nil
}
