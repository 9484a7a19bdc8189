package broadcast

import (
	"sync"
	"time"

	v1 "pairgate/shared/contracts/pairing/v1"
)

// Subscriber is one live observer of the channel.
//
// Design notes:
// - Send is never closed by the channel so concurrent publishers cannot panic.
// - Done is closed on Unsubscribe or channel shutdown.
type Subscriber struct {
	ID   string
	Send chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(queueSize int) *Subscriber {
	if queueSize < minQueueSize {
		queueSize = defaultQueueSize
	}
	return &Subscriber{
		ID:   newID(time.Now().UTC()),
		Send: make(chan v1.Envelope, queueSize),
		done: make(chan struct{}),
	}
}

// Done returns a channel that is closed when the subscriber is removed.
func (s *Subscriber) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

func (s *Subscriber) close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() { close(s.done) })
}

// offer enqueues env without blocking. It reports false when the envelope was dropped.
func (s *Subscriber) offer(env v1.Envelope) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.Send <- env:
		return true
	default:
		return false
	}
}
