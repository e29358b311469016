package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler consumes published activity and keeps running totals per event
// type. Its HandleEvent matches kafka.MessageHandler.
type Handler struct {
	logger *zap.Logger

	mu     sync.Mutex
	counts map[string]int
	orders map[string]int
}

func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger: logger,
		counts: make(map[string]int),
		orders: make(map[string]int),
	}
}

func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal activity event: %w", err)
	}
	if event.Type == "" {
		return fmt.Errorf("activity event %s has no type", event.ID)
	}

	h.mu.Lock()
	h.counts[event.Type]++
	if event.Type == EventOrderPlaced {
		h.orders[event.UserID]++
	}
	h.mu.Unlock()

	fields := []zap.Field{
		zap.String("id", event.ID),
		zap.String("type", event.Type),
		zap.String("user_id", event.UserID),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.Data != nil {
		fields = append(fields, zap.Any("data", event.Data))
	}
	h.logger.Info("activity", fields...)
	return nil
}

// Counts returns how many events of each type were handled.
func (h *Handler) Counts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

// OrdersBy returns how many orders userID placed.
func (h *Handler) OrdersBy(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.orders[userID]
}
