package broadcast

import "time"

const (
	// Heartbeat envelope cadence for stream subscribers.
	heartbeatInterval = 15 * time.Second

	// Per-subscriber queue. Publishes beyond this are dropped for that subscriber only.
	defaultQueueSize = 16
	minQueueSize     = 4

	// QR PNG edge in pixels.
	defaultQRSize = 256

	// Max bytes accepted from a stream client frame (clients are not expected to send).
	maxFrameBytes = 4 << 10
)
