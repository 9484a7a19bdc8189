package broadcast

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pairgate/cmd/internal/observability"
	v1 "pairgate/shared/contracts/pairing/v1"
)

// Artifact is one pairing artifact as handed to the channel.
type Artifact struct {
	SessionID string
	Kind      string
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Channel is the process-wide artifact fan-out.
//
// Concurrency guarantees:
//   - Subscribe/Unsubscribe are safe under concurrent Publish.
//   - Publish never blocks; a full subscriber queue drops for that subscriber only.
//   - Publish iterates a snapshot of subscribers taken under the lock.
//   - Exactly one artifact is cached for late joiners; Clear drops it when its session ends.
type Channel struct {
	log      *slog.Logger
	renderer Renderer
	now      func() time.Time

	mu          sync.RWMutex
	subs        map[string]*Subscriber
	last        *v1.Envelope
	lastSession string
	closed      bool
}

// NewChannel constructs a Channel. A nil renderer uses DefaultRenderer.
func NewChannel(log *slog.Logger, renderer Renderer) *Channel {
	if log == nil {
		log = slog.Default()
	}
	if renderer == nil {
		renderer = DefaultRenderer{}
	}
	return &Channel{
		log:      log,
		renderer: renderer,
		now:      func() time.Time { return time.Now().UTC() },
		subs:     make(map[string]*Subscriber),
	}
}

// Subscribe registers a new observer. If an artifact is cached it is queued immediately.
func (c *Channel) Subscribe(queueSize int) (*Subscriber, error) {
	sub := newSubscriber(queueSize)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrChannelClosed
	}
	c.subs[sub.ID] = sub
	if c.last != nil {
		sub.offer(*c.last)
	}
	n := len(c.subs)
	c.mu.Unlock()

	observability.RecordSubscribers(n)
	c.log.Info("broadcast.subscribe", "subscriber_id", sub.ID, "subscribers", n)
	return sub, nil
}

// Unsubscribe removes sub. Safe to call more than once and after the connection is gone.
func (c *Channel) Unsubscribe(sub *Subscriber) {
	if c == nil || sub == nil {
		return
	}

	c.mu.Lock()
	cur, ok := c.subs[sub.ID]
	if ok && cur == sub {
		delete(c.subs, sub.ID)
	}
	n := len(c.subs)
	c.mu.Unlock()

	// Signal after removal so no publisher still holds it from a fresh snapshot.
	sub.close()

	if ok {
		observability.RecordSubscribers(n)
		c.log.Info("broadcast.unsubscribe", "subscriber_id", sub.ID, "subscribers", n)
	}
}

// Publish renders a and pushes it to every subscriber, replacing the cached artifact.
// A render failure is logged and returned; nothing is cached or sent for that artifact.
func (c *Channel) Publish(a Artifact) error {
	if strings.TrimSpace(a.Value) == "" {
		return ErrEmptyArtifact
	}
	if a.IssuedAt.IsZero() {
		a.IssuedAt = c.now()
	}

	display, err := c.renderer.Render(a)
	if err != nil {
		observability.RecordPublish(a.Kind, false)
		c.log.Error("broadcast.publish.render_fail", "session_id", a.SessionID, "kind", a.Kind, "err", err)
		return err
	}
	observability.RecordPublish(a.Kind, true)

	env := c.envelope(v1.TypeArtifact, v1.ArtifactPayload{
		SessionID: a.SessionID,
		Kind:      a.Kind,
		Value:     a.Value,
		Display:   display,
		IssuedAt:  a.IssuedAt,
		ExpiresAt: a.ExpiresAt,
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.last = &env
	c.lastSession = a.SessionID
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.fanout(snap, env)
	c.log.Debug("broadcast.publish", "session_id", a.SessionID, "kind", a.Kind, "subscribers", len(snap))
	return nil
}

// Notify pushes a session_state envelope to every subscriber. It is not cached.
func (c *Channel) Notify(sessionID, state, reason string) {
	env := c.envelope(v1.TypeSessionState, v1.SessionStatePayload{
		SessionID: sessionID,
		State:     state,
		Reason:    reason,
	})

	c.mu.RLock()
	snap := c.snapshotLocked()
	c.mu.RUnlock()

	c.fanout(snap, env)
}

// Clear drops the cached artifact if it belongs to sessionID.
func (c *Channel) Clear(sessionID string) {
	c.mu.Lock()
	if c.last != nil && c.lastSession == sessionID {
		c.last = nil
		c.lastSession = ""
	}
	c.mu.Unlock()
}

// Current returns the cached artifact envelope, if any.
func (c *Channel) Current() (v1.Envelope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return v1.Envelope{}, false
	}
	return *c.last, true
}

// Len returns the number of live subscribers.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Close removes every subscriber and rejects further subscriptions. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	snap := c.snapshotLocked()
	c.subs = make(map[string]*Subscriber)
	c.last = nil
	c.lastSession = ""
	c.mu.Unlock()

	for _, s := range snap {
		s.close()
	}
	observability.RecordSubscribers(0)
	c.log.Info("broadcast.close", "subscribers", len(snap))
}

func (c *Channel) snapshotLocked() []*Subscriber {
	out := make([]*Subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	return out
}

func (c *Channel) fanout(snap []*Subscriber, env v1.Envelope) {
	for _, s := range snap {
		select {
		case <-s.Done():
			continue
		default:
		}
		if !s.offer(env) {
			observability.RecordDropped()
		}
	}
}

func (c *Channel) envelope(typ string, payload any) v1.Envelope {
	now := c.now()
	raw, _ := json.Marshal(payload)
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      newID(now),
		TS:      now,
		Payload: raw,
	}
}
