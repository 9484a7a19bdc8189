package pairing

import (
	"context"
	"strings"
	"sync"
	"time"

	"pairgate/cmd/internal/credstore"
	"pairgate/cmd/internal/protocol"
)

// State is a session lifecycle state. Values are ordered; transitions only move forward.
type State int

const (
	StateInitializing State = iota
	StateAwaitingArtifact
	StateLinked
	StateDelivering
	StateCompleted
	StateFailed
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingArtifact:
		return "awaiting_artifact"
	case StateLinked:
		return "linked"
	case StateDelivering:
		return "delivering"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Completed, Failed or Expired.
func (s State) Terminal() bool { return s >= StateCompleted }

// Method selects how the account proves ownership.
type Method int

const (
	MethodPairingCode Method = iota
	MethodScannableCode
)

func (m Method) String() string {
	if m == MethodScannableCode {
		return "qr"
	}
	return "code"
}

// ParseMethod accepts "code" (default when empty) and "qr".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "code", "pairing_code", "pair":
		return MethodPairingCode, nil
	case "qr", "scan", "scannable_code":
		return MethodScannableCode, nil
	default:
		return 0, ErrInvalidMethod
	}
}

func (m Method) artifactKind() protocol.ArtifactKind {
	if m == MethodScannableCode {
		return protocol.ArtifactQR
	}
	return protocol.ArtifactCode
}

// Artifact is the current pairing artifact of a session. Immutable once issued.
type Artifact struct {
	Kind     protocol.ArtifactKind
	Value    string
	IssuedAt time.Time
}

// Snapshot is a point-in-time copy of a session's public fields.
type Snapshot struct {
	ID        string
	State     State
	Method    Method
	Reason    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Artifact  *Artifact
}

// Session is one linking attempt.
type Session struct {
	ID        string
	Phone     string
	Method    Method
	CreatedAt time.Time
	ExpiresAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	reason    string
	artifact  *Artifact
	store     credstore.Namespace
	client    protocol.Client
	timer     *time.Timer
	delivered bool

	releaseOnce sync.Once
}

func newSession(phone string, method Method, now time.Time, window time.Duration) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        SessionIDFor(phone),
		Phone:     phone,
		Method:    method,
		CreatedAt: now,
		ExpiresAt: now.Add(window),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateInitializing,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot copies the session's public state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{
		ID:        s.ID,
		State:     s.state,
		Method:    s.Method,
		Reason:    s.reason,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	if s.artifact != nil {
		a := *s.artifact
		out.Artifact = &a
	}
	return out
}

// Valid reports whether the session may still act on asynchronous results.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.state.Terminal()
}

// advance moves the session forward to next. Backward or terminal moves are refused.
func (s *Session) advance(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || next <= s.state || next.Terminal() {
		return false
	}
	s.state = next
	return true
}

// terminate sets a terminal state once. It reports false when already terminal.
// terminate moves s into a terminal state once. sealed, when set, runs under
// the session lock right after the transition.
func (s *Session) terminate(to State, reason string, sealed func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = to
	s.reason = reason
	if sealed != nil {
		sealed(s)
	}
	return true
}

// attach binds owned handles. Nil arguments leave the current handle in place.
func (s *Session) attach(store credstore.Namespace, client protocol.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if store != nil {
		s.store = store
	}
	if client != nil {
		s.client = client
	}
}

func (s *Session) handles() (credstore.Namespace, protocol.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store, s.client
}

// claimDelivery marks the single delivery attempt. Later calls report false.
func (s *Session) claimDelivery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivered || s.state != StateDelivering {
		return false
	}
	s.delivered = true
	return true
}

func (s *Session) stopTimer() {
	s.mu.Lock()
	t := s.timer
	s.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}
