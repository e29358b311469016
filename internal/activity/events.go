package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventCartItemAdded       = "CartItemAdded"
	EventCartItemRemoved     = "CartItemRemoved"
	EventCartQuantityChanged = "CartQuantityChanged"
	EventCartCleared         = "CartCleared"
	EventOrderPlaced         = "OrderPlaced"
)

// Event is a shopper activity record published for analytics and notifications.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Data       any       `json:"data,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events keyed by user. kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Identity resolves the user the activity belongs to.
type Identity interface {
	UserID() string
}

// Recorder stamps and publishes events. Delivery is best effort.
type Recorder struct {
	publisher Publisher
	identity  Identity
	logger    *zap.Logger
}

// NewRecorder returns a Recorder; a nil publisher makes Record a no-op.
func NewRecorder(publisher Publisher, identity Identity, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{publisher: publisher, identity: identity, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, eventType string, data any) {
	if r == nil || r.publisher == nil {
		return
	}

	var userID string
	if r.identity != nil {
		userID = r.identity.UserID()
	}

	event := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		UserID:     userID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.publisher.Publish(ctx, userID, event); err != nil {
		r.logger.Warn("failed to publish activity", zap.String("type", eventType), zap.Error(err))
	}
}
