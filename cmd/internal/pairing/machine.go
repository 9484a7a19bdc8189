package pairing

import (
	"context"
	"time"

	"pairgate/cmd/internal/credstore"
	"pairgate/cmd/internal/protocol"
)

// run consumes the session's event stream in order until the session ends,
// then releases the session's handles.
func (s *Service) run(sess *Session, events <-chan protocol.Event) {
	defer s.wg.Done()
	defer s.release(sess)

	var (
		settleTimer *time.Timer
		settle      <-chan time.Time
	)
	defer func() {
		if settleTimer != nil {
			settleTimer.Stop()
		}
	}()

	for {
		select {
		case <-sess.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				// No more events can arrive; the expiry timer is the only way out.
				s.log.Warn("pairing.events.closed", "session_id", sess.ID, "state", sess.State().String())
				events = nil
				continue
			}
			if s.handle(sess, ev) && settleTimer == nil {
				// Keep draining events while settling so late key material is persisted.
				settleTimer = time.NewTimer(s.cfg.SettleInterval)
				settle = settleTimer.C
			}

		case <-settle:
			settle = nil
			s.deliver(sess)
			s.reg.end(sess, StateCompleted, "")
			return
		}
	}
}

// handle applies one event. It reports true when the session just became Linked.
func (s *Service) handle(sess *Session, ev protocol.Event) bool {
	if !sess.Valid() {
		return false
	}

	switch e := ev.(type) {
	case protocol.CredsUpdated:
		s.persist(sess, e.Entries)
		return false

	case protocol.ArtifactIssued:
		if e.Kind != sess.Method.artifactKind() {
			s.log.Debug("pairing.artifact.ignored", "session_id", sess.ID, "kind", string(e.Kind))
			return false
		}
		s.setArtifact(sess, e.Kind, e.Value)
		return false

	case protocol.ConnectionOpen:
		if !sess.advance(StateLinked) {
			return false
		}
		s.deps.Channel.Clear(sess.ID)
		s.log.Info("pairing.session.linked", "session_id", sess.ID, "self", e.Self)
		return true

	case protocol.ConnectionClose:
		st := sess.State()
		if st == StateAwaitingArtifact && e.Reason.AuthRejected() {
			s.reg.end(sess, StateFailed, ErrAuthRejected.Error())
			return false
		}
		s.log.Warn("pairing.connection.close",
			"session_id", sess.ID,
			"state", st.String(),
			"status", e.Reason.StatusCode,
			"err", e.Reason.Err,
		)
		return false

	default:
		s.log.Debug("pairing.event.unknown", "session_id", sess.ID)
		return false
	}
}

// persist writes credential material before the next event is handled.
func (s *Service) persist(sess *Session, entries []credstore.Entry) {
	if len(entries) == 0 {
		return
	}
	store, _ := sess.handles()
	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(sess.ctx, s.cfg.DeliveryTimeout)
	defer cancel()
	if err := store.Put(ctx, entries...); err != nil {
		if !sess.Valid() {
			return
		}
		s.log.Error("pairing.creds.persist_fail", "session_id", sess.ID, "entries", len(entries), "err", err)
		s.reg.end(sess, StateFailed, "credential persistence failed")
		return
	}
	s.log.Debug("pairing.creds.persisted", "session_id", sess.ID, "entries", len(entries))
}
