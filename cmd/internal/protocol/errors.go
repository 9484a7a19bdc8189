package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("protocol client closed")

	// ErrNotLinked is returned by SendDocument before the account is linked.
	ErrNotLinked = errors.New("protocol client not linked")

	// ErrUnknownDriver is returned by NewFactory for unsupported driver names.
	ErrUnknownDriver = errors.New("unknown protocol driver")
)

// Disconnect status codes reported in CloseReason.
const (
	StatusUnknown       = 0
	StatusUnauthorized  = 401
	StatusForbidden     = 403
	StatusTimedOut      = 408
	StatusConnectionErr = 428
	StatusRestart       = 515
)

// CloseReason describes why the underlying connection closed.
type CloseReason struct {
	StatusCode int
	Err        error
}

// AuthRejected reports whether the remote side refused the credentials (permanent).
func (r CloseReason) AuthRejected() bool {
	return r.StatusCode == StatusUnauthorized || r.StatusCode == StatusForbidden
}

func (r CloseReason) String() string {
	if r.Err == nil {
		return fmt.Sprintf("status=%d", r.StatusCode)
	}
	return fmt.Sprintf("status=%d: %v", r.StatusCode, r.Err)
}
