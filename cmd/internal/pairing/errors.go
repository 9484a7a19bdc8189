package pairing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNumber is returned when the phone number is not 10 to 15 digits.
	ErrInvalidNumber = errors.New("invalid phone number")

	// ErrDuplicateSession is returned when the number already has a live session.
	ErrDuplicateSession = errors.New("session already active for number")

	// ErrSessionNotFound is returned for unknown or already released sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidMethod is returned for unsupported linking methods.
	ErrInvalidMethod = errors.New("invalid linking method")

	// ErrAuthRejected marks sessions the remote side refused.
	ErrAuthRejected = errors.New("linking rejected by remote account")

	// ErrPairingCode marks sessions where no usable pairing code was issued.
	ErrPairingCode = errors.New("pairing code unavailable")

	// ErrExpired marks sessions whose linking window elapsed.
	ErrExpired = errors.New("linking window elapsed")

	// ErrSetup marks sessions that could not open their store or client.
	ErrSetup = errors.New("session setup failed")

	// ErrShutdown is returned once the service stopped accepting sessions.
	ErrShutdown = errors.New("pairing service shut down")
)

// TerminalError reports that a session ended before the requested step.
type TerminalError struct {
	SessionID string
	State     State
	Reason    string
	Err       error
}

func (e *TerminalError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("session %s %s", e.SessionID, e.State)
	}
	return fmt.Sprintf("session %s %s: %s", e.SessionID, e.State, e.Reason)
}

func (e *TerminalError) Unwrap() error { return e.Err }
