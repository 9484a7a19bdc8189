package credstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// SealKeySize is the exact key size for secretbox (32 bytes, 64 hex chars).
	SealKeySize = 32

	sealNonceSize = 24
)

var (
	// ErrSealKeyMissing is returned when a seal key is required but not configured.
	ErrSealKeyMissing = errors.New("credential seal key missing")

	// ErrSealKeyInvalid is returned for keys that are not 64 hex chars.
	ErrSealKeyInvalid = errors.New("credential seal key invalid")

	// ErrUnseal is returned when stored material fails authentication.
	ErrUnseal = errors.New("credential material failed to unseal")
)

// ParseSealKey decodes a hex-encoded 32-byte key.
func ParseSealKey(raw string) (*[SealKeySize]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrSealKeyMissing
	}
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != SealKeySize {
		return nil, ErrSealKeyInvalid
	}
	var key [SealKeySize]byte
	copy(key[:], b)
	return &key, nil
}

// Sealed wraps a Provider so every value is encrypted with secretbox before it reaches the backend.
// Keys are stored in clear; only values are sealed.
type Sealed struct {
	inner Provider
	key   *[SealKeySize]byte
	rand  io.Reader
}

// NewSealed wraps inner with key.
func NewSealed(inner Provider, key *[SealKeySize]byte) (*Sealed, error) {
	if inner == nil {
		return nil, errors.New("credstore: nil inner provider")
	}
	if key == nil {
		return nil, ErrSealKeyMissing
	}
	return &Sealed{inner: inner, key: key, rand: rand.Reader}, nil
}

// Open opens the inner namespace and wraps it.
func (s *Sealed) Open(ctx context.Context, sessionID string) (Namespace, error) {
	ns, err := s.inner.Open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &sealedNamespace{inner: ns, owner: s}, nil
}

// Close closes the inner provider.
func (s *Sealed) Close() error { return s.inner.Close() }

func (s *Sealed) seal(plain []byte) ([]byte, error) {
	var nonce [sealNonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return nil, fmt.Errorf("credstore: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, s.key), nil
}

func (s *Sealed) open(box []byte) ([]byte, error) {
	if len(box) < sealNonceSize+secretbox.Overhead {
		return nil, ErrUnseal
	}
	var nonce [sealNonceSize]byte
	copy(nonce[:], box[:sealNonceSize])
	plain, ok := secretbox.Open(nil, box[sealNonceSize:], &nonce, s.key)
	if !ok {
		return nil, ErrUnseal
	}
	return plain, nil
}

type sealedNamespace struct {
	inner Namespace
	owner *Sealed
}

func (n *sealedNamespace) ID() string { return n.inner.ID() }

func (n *sealedNamespace) Put(ctx context.Context, entries ...Entry) error {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Value == nil {
			out = append(out, e)
			continue
		}
		box, err := n.owner.seal(e.Value)
		if err != nil {
			return err
		}
		out = append(out, Entry{Key: e.Key, Value: box})
	}
	return n.inner.Put(ctx, out...)
}

func (n *sealedNamespace) Get(ctx context.Context, key string) ([]byte, error) {
	box, err := n.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return n.owner.open(box)
}

func (n *sealedNamespace) ReadBundle(ctx context.Context) ([]byte, error) {
	box, err := n.inner.ReadBundle(ctx)
	if err != nil {
		return nil, err
	}
	return n.owner.open(box)
}

func (n *sealedNamespace) Destroy(ctx context.Context) error { return n.inner.Destroy(ctx) }
