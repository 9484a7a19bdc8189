package pairing

import (
	"sync"
	"time"
)

// TerminalHook runs once per session, right after it entered a terminal state.
type TerminalHook func(s *Session, state State, reason string)

// SealHook runs inside the terminal transition while the session lock is held.
// It must not call back into the session.
type SealHook func(s *Session)

// Registry is the single owner of session existence.
//
// Concurrency guarantees:
//   - Create is atomic per number: at most one live session per phone.
//   - Complete/Fail/Expire are idempotent; only the first terminal transition runs the hook.
//   - An entry is removed only after its handles were released.
type Registry struct {
	window time.Duration
	now    func() time.Time
	hook   TerminalHook
	seal   SealHook

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry constructs a Registry whose sessions expire after window.
func NewRegistry(window time.Duration, hook TerminalHook) *Registry {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Registry{
		window:   window,
		now:      func() time.Time { return time.Now().UTC() },
		hook:     hook,
		sessions: make(map[string]*Session),
	}
}

// OnSeal installs fn as the seal hook. Call it before the first Create.
func (r *Registry) OnSeal(fn SealHook) { r.seal = fn }

// Create validates phone and registers a new Initializing session.
func (r *Registry) Create(phone string, method Method) (*Session, error) {
	n, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	sess := newSession(n, method, r.now(), r.window)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[sess.ID]; exists {
		sess.cancel()
		return nil, ErrDuplicateSession
	}
	r.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns the live session for id. Terminal sessions are not returned.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || !sess.Valid() {
		return nil, false
	}
	return sess, true
}

// Lookup returns the session for id including ones that ended but are not released yet.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Complete ends the session successfully.
func (r *Registry) Complete(id string) bool {
	return r.terminate(id, StateCompleted, "")
}

// Fail ends the session with reason.
func (r *Registry) Fail(id, reason string) bool {
	return r.terminate(id, StateFailed, reason)
}

// Expire ends the session because its window elapsed.
func (r *Registry) Expire(id string) bool {
	return r.terminate(id, StateExpired, ErrExpired.Error())
}

func (r *Registry) terminate(id string, to State, reason string) bool {
	sess, ok := r.Lookup(id)
	if !ok {
		return false
	}
	return r.end(sess, to, reason)
}

func (r *Registry) end(sess *Session, to State, reason string) bool {
	if !sess.terminate(to, reason, r.seal) {
		return false
	}
	sess.cancel()
	sess.stopTimer()
	if r.hook != nil {
		r.hook(sess, to, reason)
	}
	return true
}

// remove drops sess if it is still the registered entry for its id.
func (r *Registry) remove(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[sess.ID]; ok && cur == sess {
		delete(r.sessions, sess.ID)
	}
}

// Len returns the number of registered sessions, terminal ones included until released.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// All returns the registered sessions.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
