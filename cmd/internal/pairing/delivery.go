package pairing

import (
	"context"
	"errors"

	"pairgate/cmd/internal/credstore"
	"pairgate/cmd/internal/observability"
	"pairgate/cmd/internal/protocol"
)

// Delivery outcomes recorded in metrics and logs.
const (
	deliveryOK       = "ok"
	deliveryNotReady = "not_ready"
	deliveryFailed   = "failed"
	deliveryStale    = "stale"
)

// deliver sends the credential bundle to the linked account once.
// Failures are logged; the session completes regardless.
func (s *Service) deliver(sess *Session) {
	if !sess.advance(StateDelivering) || !sess.claimDelivery() {
		return
	}
	store, client := sess.handles()

	ctx, cancel := context.WithTimeout(sess.ctx, s.cfg.DeliveryTimeout)
	defer cancel()

	bundle, err := store.ReadBundle(ctx)
	if err != nil {
		result := deliveryFailed
		if errors.Is(err, credstore.ErrNotReady) {
			result = deliveryNotReady
		}
		s.recordDelivery(sess, result, err)
		return
	}

	target := SelfIdentity(sess.Phone)
	err = client.SendDocument(ctx, target, protocol.Document{
		FileName: BundleFileName,
		MimeType: BundleMimeType,
		Caption:  BundleCaption,
		Data:     bundle,
	})
	switch {
	case !sess.Valid():
		s.recordDelivery(sess, deliveryStale, err)
	case err != nil:
		s.recordDelivery(sess, deliveryFailed, err)
	default:
		s.recordDelivery(sess, deliveryOK, nil)
	}
}

func (s *Service) recordDelivery(sess *Session, result string, err error) {
	observability.RecordDelivery(result)
	if err != nil || result != deliveryOK {
		s.log.Warn("pairing.delivery.fail", "session_id", sess.ID, "result", result, "err", err)
		return
	}
	s.log.Info("pairing.delivery.sent", "session_id", sess.ID, "file", BundleFileName)
}
