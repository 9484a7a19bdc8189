package credstore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

// runConformance exercises the Namespace contract against any Provider.
func runConformance(t *testing.T, p Provider, sessionID string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ns, err := p.Open(ctx, sessionID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ns.ID() != sessionID {
		t.Fatalf("ID()=%q want=%q", ns.ID(), sessionID)
	}

	if _, err := ns.ReadBundle(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("ReadBundle before write: expected ErrNotReady, got %v", err)
	}
	if _, err := ns.Get(ctx, "pre-key-1.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: expected ErrNotFound, got %v", err)
	}

	if err := ns.Put(ctx,
		Entry{Key: "pre-key-1.json", Value: []byte(`{"k":1}`)},
		Entry{Key: BundleKey, Value: []byte(`{"registered":true}`)},
	); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := ns.ReadBundle(ctx)
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}
	if !bytes.Equal(got, []byte(`{"registered":true}`)) {
		t.Fatalf("ReadBundle mismatch: %q", got)
	}

	// Reopen sees the same material.
	again, err := p.Open(ctx, sessionID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, err := again.Get(ctx, "pre-key-1.json"); err != nil || string(v) != `{"k":1}` {
		t.Fatalf("reopen Get: %q %v", v, err)
	}

	// nil value deletes.
	if err := ns.Put(ctx, Entry{Key: "pre-key-1.json"}); err != nil {
		t.Fatalf("Put delete: %v", err)
	}
	if _, err := ns.Get(ctx, "pre-key-1.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: expected ErrNotFound, got %v", err)
	}

	if err := ns.Put(ctx, Entry{Key: "../escape", Value: []byte("x")}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Put invalid key: expected ErrInvalidKey, got %v", err)
	}

	if err := ns.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := ns.Destroy(ctx); err != nil {
		t.Fatalf("second Destroy must be a no-op: %v", err)
	}
	if err := ns.Put(ctx, Entry{Key: "late", Value: []byte("x")}); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("Put after Destroy: expected ErrDestroyed, got %v", err)
	}

	fresh, err := p.Open(ctx, sessionID)
	if err != nil {
		t.Fatalf("Open after destroy: %v", err)
	}
	if _, err := fresh.ReadBundle(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("destroyed material must be gone, got %v", err)
	}
	_ = fresh.Destroy(ctx)
}
