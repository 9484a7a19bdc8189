package credstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryProvider keeps namespaces in process memory. It is the dev default.
type MemoryProvider struct {
	mu         sync.Mutex
	namespaces map[string]*memoryNamespace
}

// NewMemoryProvider constructs an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{namespaces: make(map[string]*memoryNamespace)}
}

// Open returns the existing namespace for sessionID or creates a new one.
func (p *MemoryProvider) Open(ctx context.Context, sessionID string) (Namespace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validNamespaceID(sessionID) {
		return nil, fmt.Errorf("credstore.Open: %w", ErrInvalidKey)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if ns, ok := p.namespaces[sessionID]; ok {
		return ns, nil
	}
	ns := &memoryNamespace{
		id:      sessionID,
		entries: make(map[string][]byte),
		owner:   p,
	}
	p.namespaces[sessionID] = ns
	return ns, nil
}

// Close drops every namespace.
func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	p.namespaces = make(map[string]*memoryNamespace)
	p.mu.Unlock()
	return nil
}

// Len reports how many namespaces currently exist.
func (p *MemoryProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.namespaces)
}

func (p *MemoryProvider) remove(ns *memoryNamespace) {
	p.mu.Lock()
	if cur, ok := p.namespaces[ns.id]; ok && cur == ns {
		delete(p.namespaces, ns.id)
	}
	p.mu.Unlock()
}

type memoryNamespace struct {
	id    string
	owner *MemoryProvider

	mu        sync.RWMutex
	entries   map[string][]byte
	destroyed bool
}

func (n *memoryNamespace) ID() string { return n.id }

func (n *memoryNamespace) Put(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range entries {
		if !validKey(e.Key) {
			return fmt.Errorf("credstore.Put %q: %w", e.Key, ErrInvalidKey)
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return ErrDestroyed
	}
	for _, e := range entries {
		if e.Value == nil {
			delete(n.entries, e.Key)
			continue
		}
		n.entries[e.Key] = cloneBytes(e.Value)
	}
	return nil
}

func (n *memoryNamespace) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	v, ok := n.entries[key]
	if !ok || n.destroyed {
		return nil, ErrNotFound
	}
	return cloneBytes(v), nil
}

func (n *memoryNamespace) ReadBundle(ctx context.Context) ([]byte, error) {
	b, err := n.Get(ctx, BundleKey)
	if err == ErrNotFound {
		return nil, ErrNotReady
	}
	return b, err
}

func (n *memoryNamespace) Destroy(_ context.Context) error {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return nil
	}
	n.destroyed = true
	n.entries = nil
	n.mu.Unlock()

	n.owner.remove(n)
	return nil
}
