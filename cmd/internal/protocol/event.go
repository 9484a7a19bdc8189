package protocol

import "pairgate/cmd/internal/credstore"

// Event is the tagged union emitted by a Client.
// Concrete types: ArtifactIssued, ConnectionOpen, ConnectionClose, CredsUpdated.
type Event interface {
	isEvent()
}

// ArtifactKind distinguishes scannable codes from textual pairing codes.
type ArtifactKind string

const (
	ArtifactQR   ArtifactKind = "qr"
	ArtifactCode ArtifactKind = "code"
)

// ArtifactIssued is emitted for every new QR value or re-issued pairing code.
type ArtifactIssued struct {
	Kind  ArtifactKind
	Value string
}

// ConnectionOpen is emitted when the remote account accepted the pairing artifact.
type ConnectionOpen struct {
	// Self is the linked account's identity as reported by the remote side (may be empty).
	Self string
}

// ConnectionClose is emitted when the connection drops.
type ConnectionClose struct {
	Reason CloseReason
}

// CredsUpdated carries credential material that must be persisted before the next event is handled.
type CredsUpdated struct {
	Entries []credstore.Entry
}

func (ArtifactIssued) isEvent()  {}
func (ConnectionOpen) isEvent()  {}
func (ConnectionClose) isEvent() {}
func (CredsUpdated) isEvent()    {}
