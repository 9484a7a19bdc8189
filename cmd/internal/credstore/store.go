package credstore

import (
	"context"
	"strings"
)

// BundleKey is the key under which the durable credential bundle is stored.
const BundleKey = "creds.json"

// Entry is one unit of credential material. A nil Value deletes the key.
type Entry struct {
	Key   string
	Value []byte
}

// Namespace is the scoped persistence area of a single session.
type Namespace interface {
	// ID returns the session id this namespace is scoped to.
	ID() string

	// Put persists entries before returning.
	Put(ctx context.Context, entries ...Entry) error

	// Get loads one key. Missing keys return ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// ReadBundle returns the credential bundle or ErrNotReady.
	ReadBundle(ctx context.Context) ([]byte, error)

	// Destroy removes the namespace and all of its material. Safe to call more than once.
	Destroy(ctx context.Context) error
}

// Provider opens namespaces for sessions.
type Provider interface {
	// Open creates or reuses the namespace for sessionID.
	Open(ctx context.Context, sessionID string) (Namespace, error)

	// Close releases provider-owned resources.
	Close() error
}

func validKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > 255 {
		return false
	}
	if strings.ContainsAny(key, "/\\\x00") || key == "." || key == ".." {
		return false
	}
	return true
}

func validNamespaceID(id string) bool {
	return validKey(id)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
