package pairing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"pairgate/cmd/internal/broadcast"
	"pairgate/cmd/internal/credstore"
	"pairgate/cmd/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// journal records the order of side effects across collaborators.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) index(s string) int {
	for i, e := range j.list() {
		if e == s {
			return i
		}
	}
	return -1
}

func (j *journal) count(s string) int {
	n := 0
	for _, e := range j.list() {
		if e == s {
			n++
		}
	}
	return n
}

type fakeClient struct {
	opts protocol.Options
	j    *journal

	code       string
	codeErr    error
	registered bool
	sendErr    error
	blockSend  bool

	events chan protocol.Event
	done   chan struct{}

	mu        sync.Mutex
	closed    bool
	sent      []protocol.Document
	texts     []string
	closeOnce sync.Once
}

func (c *fakeClient) Events() <-chan protocol.Event { return c.events }
func (c *fakeClient) Registered() bool              { return c.registered }

func (c *fakeClient) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	return c.code, c.codeErr
}

func (c *fakeClient) SendDocument(ctx context.Context, to string, doc protocol.Document) error {
	c.j.add("send")
	if c.blockSend {
		<-ctx.Done()
		c.j.add("send_return")
		return ctx.Err()
	}
	c.mu.Lock()
	c.sent = append(c.sent, doc)
	c.mu.Unlock()
	return c.sendErr
}

func (c *fakeClient) SendText(ctx context.Context, to string, text string) error {
	c.mu.Lock()
	c.texts = append(c.texts, to+"|"+text)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		c.j.add("close")
	})
	return nil
}

func (c *fakeClient) emit(t *testing.T, ev protocol.Event) {
	t.Helper()
	select {
	case c.events <- ev:
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatalf("emit blocked")
	}
}

func (c *fakeClient) documents() []protocol.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Document(nil), c.sent...)
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeFactory hands out fakeClients configured by tmpl.
type fakeFactory struct {
	j    *journal
	tmpl fakeClient
	err  error

	mu      sync.Mutex
	clients []*fakeClient
}

func (f *fakeFactory) NewClient(ctx context.Context, opts protocol.Options) (protocol.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeClient{
		opts:       opts,
		j:          f.j,
		code:       f.tmpl.code,
		codeErr:    f.tmpl.codeErr,
		registered: f.tmpl.registered,
		sendErr:    f.tmpl.sendErr,
		blockSend:  f.tmpl.blockSend,
		events:     make(chan protocol.Event, 16),
		done:       make(chan struct{}),
	}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeFactory) last(t *testing.T) *fakeClient {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		t.Fatalf("no client created")
	}
	return f.clients[len(f.clients)-1]
}

// journalProvider records namespace teardown on top of the memory backend.
type journalProvider struct {
	*credstore.MemoryProvider
	j       *journal
	openErr error
	putErr  error
}

func (p *journalProvider) Open(ctx context.Context, id string) (credstore.Namespace, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	ns, err := p.MemoryProvider.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	return journalNamespace{Namespace: ns, j: p.j, putErr: p.putErr}, nil
}

type journalNamespace struct {
	credstore.Namespace
	j      *journal
	putErr error
}

func (n journalNamespace) Put(ctx context.Context, entries ...credstore.Entry) error {
	if n.putErr != nil {
		return n.putErr
	}
	return n.Namespace.Put(ctx, entries...)
}

func (n journalNamespace) Destroy(ctx context.Context) error {
	n.j.add("destroy")
	return n.Namespace.Destroy(ctx)
}

type harness struct {
	svc     *Service
	ch      *broadcast.Channel
	stores  *journalProvider
	clients *fakeFactory
	j       *journal
}

func newHarness(t *testing.T, cfg Config, tmpl fakeClient, versions VersionSource) *harness {
	t.Helper()
	j := &journal{}
	h := &harness{
		ch:      broadcast.NewChannel(testLogger(), broadcast.RendererFunc(func(a broadcast.Artifact) (string, error) { return a.Value, nil })),
		stores:  &journalProvider{MemoryProvider: credstore.NewMemoryProvider(), j: j},
		clients: &fakeFactory{j: j, tmpl: tmpl},
		j:       j,
	}
	svc, err := NewService(testLogger(), cfg, Deps{
		Stores:   h.stores,
		Clients:  h.clients,
		Channel:  h.ch,
		Versions: versions,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
		h.ch.Close()
	})
	return h
}

func fastConfig() Config {
	return Config{
		Window:          5 * time.Second,
		SettleInterval:  10 * time.Millisecond,
		VersionTimeout:  200 * time.Millisecond,
		CodeTimeout:     time.Second,
		DeliveryTimeout: time.Second,
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitReleased(t *testing.T, id string) {
	t.Helper()
	eventually(t, "session release", func() bool {
		_, err := h.svc.Status(id)
		return errors.Is(err, ErrSessionNotFound)
	})
}

func (h *harness) waitState(t *testing.T, id string, want State) {
	t.Helper()
	eventually(t, "state "+want.String(), func() bool {
		snap, err := h.svc.Status(id)
		return err == nil && snap.State == want
	})
}

func bundleEvent(body string) protocol.CredsUpdated {
	return protocol.CredsUpdated{Entries: []credstore.Entry{{Key: credstore.BundleKey, Value: []byte(body)}}}
}
