package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pairgate/cmd/internal/credstore"
)

// Version is the protocol version triple negotiated during the handshake.
type Version [3]int

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

// IsZero reports whether v is unset.
func (v Version) IsZero() bool { return v == Version{} }

// Browser is the device identity presented to the remote account.
type Browser struct {
	Platform string
	Name     string
	Release  string
}

// DefaultBrowser mimics a desktop Safari companion.
var DefaultBrowser = Browser{Platform: "Mac OS", Name: "Safari", Release: "14.4.1"}

// ParseBrowser parses "platform/name" (release is optional: "platform/name/release").
func ParseBrowser(s string) (Browser, bool) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Browser{}, false
	}
	b := Browser{Platform: strings.TrimSpace(parts[0]), Name: strings.TrimSpace(parts[1]), Release: DefaultBrowser.Release}
	if len(parts) == 3 {
		b.Release = strings.TrimSpace(parts[2])
	}
	if b.Platform == "" || b.Name == "" || b.Release == "" {
		return Browser{}, false
	}
	return b, true
}

// Options configure one Client instance.
type Options struct {
	SessionID string
	Store     credstore.Namespace
	Version   Version
	Browser   Browser
	Log       *slog.Logger
}

// Document describes a file sent with SendDocument.
type Document struct {
	FileName string
	MimeType string
	Caption  string
	Data     []byte
}

// Client is one protocol connection bound to one session.
type Client interface {
	// Events returns the ordered event stream. It is closed after Close.
	Events() <-chan Event

	// Registered reports whether the namespace already holds a linked account.
	Registered() bool

	// RequestPairingCode asks the remote side for a textual pairing code for phone.
	RequestPairingCode(ctx context.Context, phone string) (string, error)

	// SendDocument delivers a document to the identity `to`.
	SendDocument(ctx context.Context, to string, doc Document) error

	// Close tears the connection down. It is idempotent.
	Close() error
}

// Factory constructs clients.
type Factory interface {
	NewClient(ctx context.Context, opts Options) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, opts Options) (Client, error)

// NewClient calls f.
func (f FactoryFunc) NewClient(ctx context.Context, opts Options) (Client, error) {
	return f(ctx, opts)
}

// Notifier is optionally implemented by clients that can send plain text to an identity.
type Notifier interface {
	SendText(ctx context.Context, to string, text string) error
}
