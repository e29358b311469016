package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/example/pharmacy-storefront/internal/infrastructure/storage"
)

const nonceSize = 24

var ErrUnsealFailed = errors.New("stored session could not be decrypted")

// SealedKV encrypts values at rest with NaCl secretbox, keyed by the SHA-256
// of a configured secret.
type SealedKV struct {
	inner storage.KV
	key   [32]byte
}

func NewSealedKV(inner storage.KV, secret string) *SealedKV {
	return &SealedKV{inner: inner, key: sha256.Sum256([]byte(secret))}
}

func (s *SealedKV) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrUnsealFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrUnsealFailed
	}
	return plain, nil
}

func (s *SealedKV) Put(ctx context.Context, key string, value []byte) error {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], value, &nonce, &s.key)
	return s.inner.Put(ctx, key, sealed)
}

func (s *SealedKV) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
