// Package v1 defines the pairgate link stream protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between the server and stream clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the websocket subprotocol negotiated by the stream endpoint.
const Subprotocol = "pairgate.link.v1"

// Type constants (wire-stable).
const (
	// TypeArtifact carries the current pairing artifact (server -> subscriber).
	TypeArtifact = "artifact"

	// TypeSessionState reports a terminal session transition (server -> subscriber).
	TypeSessionState = "session_state"

	// TypeHeartbeat is sent at a fixed interval so subscribers can detect liveness.
	TypeHeartbeat = "heartbeat"

	// TypeError is a generic error envelope (server -> subscriber).
	TypeError = "error"
)

// Artifact kinds.
const (
	KindQR   = "qr"
	KindCode = "code"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}

	switch e.Type {
	case TypeArtifact, TypeSessionState, TypeHeartbeat, TypeError:
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// ArtifactPayload carries the raw artifact and its display-ready rendering.
// For KindQR, Display is a data:image/png;base64 URL. For KindCode it is the grouped code.
type ArtifactPayload struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Value     string    `json:"value"`
	Display   string    `json:"display"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStatePayload reports how a session ended.
type SessionStatePayload struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
}

// HeartbeatPayload is intentionally tiny.
type HeartbeatPayload struct {
	Seq int64 `json:"seq"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
