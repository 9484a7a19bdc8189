package pairing

import (
	"time"

	"pairgate/cmd/internal/protocol"
)

const (
	DefaultWindow          = 120 * time.Second
	DefaultSettleInterval  = 2 * time.Second
	DefaultVersionTimeout  = 3 * time.Second
	DefaultCodeTimeout     = 20 * time.Second
	DefaultDeliveryTimeout = 30 * time.Second
)

// Document metadata used when delivering the credential bundle.
const (
	BundleFileName = "creds.json"
	BundleMimeType = "application/json"
	BundleCaption  = "Your session file (creds.json)"

	alreadyLinkedText = "This number is already linked. No new session file was generated."
)

// Config tunes session timing and the identity presented to the remote side.
type Config struct {
	Window          time.Duration
	SettleInterval  time.Duration
	VersionTimeout  time.Duration
	CodeTimeout     time.Duration
	DeliveryTimeout time.Duration
	Browser         protocol.Browser

	// NotifyRegistered sends a short text when a number turns out to be linked already.
	NotifyRegistered bool
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.SettleInterval < 0 {
		c.SettleInterval = DefaultSettleInterval
	}
	if c.VersionTimeout <= 0 {
		c.VersionTimeout = DefaultVersionTimeout
	}
	if c.CodeTimeout <= 0 {
		c.CodeTimeout = DefaultCodeTimeout
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if c.Browser == (protocol.Browser{}) {
		c.Browser = protocol.DefaultBrowser
	}
	return c
}
