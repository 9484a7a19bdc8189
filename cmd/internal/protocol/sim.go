package protocol

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pairgate/cmd/internal/credstore"
)

const (
	// DriverSim selects the in-process simulated client.
	DriverSim = "sim"

	simCodeAlphabet = "123456789ABCDEFGHJKLMNPQRSTVWXYZ"
	simCodeLength   = 8
	simEventQueue   = 16
)

// SimConfig tunes the simulated handshake.
type SimConfig struct {
	// QRInterval is how often a fresh QR value is emitted while unlinked.
	QRInterval time.Duration
	// LinkAfter links the session automatically after this delay. Zero waits for Link().
	LinkAfter time.Duration
}

// NewFactory returns the Factory for driver.
func NewFactory(driver string, sim SimConfig) (Factory, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSim:
		return SimFactory{Config: sim}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// SimFactory builds SimClients.
type SimFactory struct {
	Config SimConfig
}

// NewClient constructs and starts a SimClient.
func (f SimFactory) NewClient(ctx context.Context, opts Options) (Client, error) {
	return NewSimClient(ctx, opts, f.Config)
}

type simCreds struct {
	Registered bool   `json:"registered"`
	NoiseKey   string `json:"noiseKey"`
	Me         string `json:"me,omitempty"`
	Platform   string `json:"platform"`
	Browser    string `json:"browser"`
	Version    string `json:"version"`
}

// SimClient is an in-process Client that imitates the pairing handshake.
type SimClient struct {
	log  *slog.Logger
	opts Options
	cfg  SimConfig

	events chan Event
	linkCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	creds      simCreds
	codeMode   bool
	linked     bool
	sent       []Document
	closeOnce  sync.Once
	linkOnce   sync.Once
	registered bool
}

// NewSimClient loads any existing credentials from opts.Store and starts the event loop.
func NewSimClient(ctx context.Context, opts Options, cfg SimConfig) (*SimClient, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("protocol: nil credential store")
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if cfg.QRInterval <= 0 {
		cfg.QRInterval = 20 * time.Second
	}

	c := &SimClient{
		log:    opts.Log,
		opts:   opts,
		cfg:    cfg,
		events: make(chan Event, simEventQueue),
		linkCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	raw, err := opts.Store.ReadBundle(ctx)
	switch {
	case err == nil:
		if jerr := json.Unmarshal(raw, &c.creds); jerr != nil {
			c.cancel()
			return nil, fmt.Errorf("protocol: decode stored creds: %w", jerr)
		}
		c.registered = c.creds.Registered
	case errors.Is(err, credstore.ErrNotReady):
		c.creds = simCreds{
			NoiseKey: randomToken(32),
			Platform: opts.Browser.Platform,
			Browser:  opts.Browser.Name,
			Version:  opts.Version.String(),
		}
	default:
		c.cancel()
		return nil, err
	}

	go c.run()
	return c, nil
}

// Events implements Client.
func (c *SimClient) Events() <-chan Event { return c.events }

// Registered implements Client.
func (c *SimClient) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// RequestPairingCode implements Client. QR emission stops once a code was requested.
func (c *SimClient) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case <-c.ctx.Done():
		return "", ErrClosed
	default:
	}

	c.mu.Lock()
	c.codeMode = true
	c.creds.Me = phone
	c.mu.Unlock()

	return randomCode(simCodeLength), nil
}

// SendDocument implements Client.
func (c *SimClient) SendDocument(ctx context.Context, to string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.linked && !c.registered {
		return ErrNotLinked
	}
	c.sent = append(c.sent, doc)
	c.log.Info("protocol.sim.document.sent", "session_id", c.opts.SessionID, "to", to, "file", doc.FileName, "bytes", len(doc.Data))
	return nil
}

// SendText implements Notifier.
func (c *SimClient) SendText(ctx context.Context, to string, text string) error {
	return c.SendDocument(ctx, to, Document{FileName: "message.txt", MimeType: "text/plain", Data: []byte(text)})
}

// Sent returns a copy of the documents delivered so far.
func (c *SimClient) Sent() []Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Document(nil), c.sent...)
}

// Link completes the simulated handshake now.
func (c *SimClient) Link() {
	c.linkOnce.Do(func() { close(c.linkCh) })
}

// Close implements Client.
func (c *SimClient) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
	})
	return nil
}

func (c *SimClient) run() {
	defer close(c.done)
	defer close(c.events)

	if c.registered {
		c.emit(ConnectionOpen{Self: c.creds.Me})
		<-c.ctx.Done()
		return
	}

	if !c.emitCreds() {
		return
	}

	var autoLink <-chan time.Time
	if c.cfg.LinkAfter > 0 {
		t := time.NewTimer(c.cfg.LinkAfter)
		defer t.Stop()
		autoLink = t.C
	}

	qr := time.NewTicker(c.cfg.QRInterval)
	defer qr.Stop()

	c.emitQR()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-qr.C:
			c.emitQR()
		case <-autoLink:
			c.completeLink()
			<-c.ctx.Done()
			return
		case <-c.linkCh:
			c.completeLink()
			<-c.ctx.Done()
			return
		}
	}
}

func (c *SimClient) emitQR() {
	c.mu.Lock()
	codeMode := c.codeMode
	noise := c.creds.NoiseKey
	c.mu.Unlock()
	if codeMode {
		return
	}
	if len(noise) > 16 {
		noise = noise[:16]
	}
	ref := fmt.Sprintf("2@%s,%s,%s,1", randomToken(24), noise, randomToken(16))
	c.emit(ArtifactIssued{Kind: ArtifactQR, Value: ref})
}

func (c *SimClient) completeLink() {
	c.mu.Lock()
	c.creds.Registered = true
	c.linked = true
	me := c.creds.Me
	c.mu.Unlock()

	if !c.emitCreds() {
		return
	}
	c.emit(ConnectionOpen{Self: me})
}

func (c *SimClient) emitCreds() bool {
	c.mu.Lock()
	raw, err := json.Marshal(c.creds)
	c.mu.Unlock()
	if err != nil {
		c.log.Error("protocol.sim.creds.encode_fail", "err", err)
		return false
	}
	return c.emit(CredsUpdated{Entries: []credstore.Entry{{Key: credstore.BundleKey, Value: raw}}})
}

func (c *SimClient) emit(ev Event) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.events <- ev:
		return true
	}
}

func randomToken(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return base64.RawStdEncoding.EncodeToString(b)
}

func randomCode(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = simCodeAlphabet[int(b[i])%len(simCodeAlphabet)]
	}
	return string(b)
}
