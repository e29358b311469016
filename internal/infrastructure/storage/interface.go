package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written or was deleted.
var ErrNotFound = errors.New("key not found")

// KV is the durable local storage the client keeps its session, chat history
// and outbound queue in. Each key has a single writer.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Well-known keys.
const (
	KeySession     = "auth.session"
	KeyChatHistory = "chat.history"
	KeyChatQueue   = "chat.queue"
)
