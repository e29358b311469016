package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Document is a JSON value stored under a single key.
//
// Reads never fail: a missing key, a storage error or malformed JSON all load
// as the zero value so a corrupt entry can't take the client down.
type Document[T any] struct {
	kv     KV
	key    string
	logger *zap.Logger
}

func NewDocument[T any](kv KV, key string, logger *zap.Logger) *Document[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Document[T]{kv: kv, key: key, logger: logger}
}

// Load returns the stored value and whether one was found and decoded.
func (d *Document[T]) Load(ctx context.Context) (T, bool) {
	var zero T

	data, err := d.kv.Get(ctx, d.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			d.logger.Warn("storage read failed, using empty value", zap.String("key", d.key), zap.Error(err))
		}
		return zero, false
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		d.logger.Warn("corrupt stored value, using empty value", zap.String("key", d.key), zap.Error(err))
		return zero, false
	}
	return v, true
}

func (d *Document[T]) Save(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", d.key, err)
	}
	if err := d.kv.Put(ctx, d.key, data); err != nil {
		return fmt.Errorf("failed to store %s: %w", d.key, err)
	}
	return nil
}

func (d *Document[T]) Clear(ctx context.Context) error {
	return d.kv.Delete(ctx, d.key)
}

func (d *Document[T]) Key() string {
	return d.key
}
