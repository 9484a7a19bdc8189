package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pairgate/cmd/internal/broadcast"
	"pairgate/cmd/internal/credstore"
	"pairgate/cmd/internal/observability"
	"pairgate/cmd/internal/protocol"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Stores   credstore.Provider
	Clients  protocol.Factory
	Channel  *broadcast.Channel
	Versions VersionSource
}

// Result is returned by StartLinking.
type Result struct {
	SessionID string
	State     State
	Method    Method
	ExpiresAt time.Time

	// Code is the display-grouped pairing code (MethodPairingCode only).
	Code string
	// RawCode is Code without grouping.
	RawCode string
}

// Service is the pairing session orchestrator.
type Service struct {
	log  *slog.Logger
	cfg  Config
	deps Deps
	reg  *Registry

	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewService wires a Service. Stores, Clients and Channel are required.
func NewService(log *slog.Logger, cfg Config, deps Deps) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Stores == nil || deps.Clients == nil || deps.Channel == nil {
		return nil, errors.New("pairing: stores, clients and channel are required")
	}
	if deps.Versions == nil {
		deps.Versions = StaticVersion(FallbackVersion)
	}

	s := &Service{
		log:  log,
		cfg:  cfg.withDefaults(),
		deps: deps,
	}
	s.reg = NewRegistry(s.cfg.Window, s.onTerminal)
	// Dropped under the session lock so no subscriber can catch up on an ended session.
	s.reg.OnSeal(func(sess *Session) { s.deps.Channel.Clear(sess.ID) })
	return s, nil
}

// Registry exposes the session registry.
func (s *Service) Registry() *Registry { return s.reg }

// StartLinking creates a session for phone and drives it to AwaitingArtifact.
//
// For MethodPairingCode it also requests the code and returns it. For
// MethodScannableCode the artifacts arrive on the broadcast channel. The call
// waits only for the version fetch and the code request.
func (s *Service) StartLinking(ctx context.Context, phone string, method Method) (Result, error) {
	// Create and the setup slot in wg are taken atomically with Shutdown's close.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrShutdown
	}
	sess, err := s.reg.Create(phone, method)
	if err == nil {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	if err != nil {
		s.log.Info("pairing.session.reject", "err", err, "method", method.String())
		return Result{}, err
	}
	defer s.wg.Done()

	observability.RecordSessionStarted(method.String())
	s.log.Info("pairing.session.start",
		"session_id", sess.ID,
		"method", method.String(),
		"expires_at", sess.ExpiresAt,
	)

	sess.mu.Lock()
	sess.timer = time.AfterFunc(time.Until(sess.ExpiresAt), func() { s.reg.end(sess, StateExpired, ErrExpired.Error()) })
	sess.mu.Unlock()

	// Until the event loop starts, this call owns teardown.
	version := s.fetchVersion(ctx, sess)

	store, err := s.deps.Stores.Open(sess.ctx, sess.ID)
	if err != nil {
		s.reg.end(sess, StateFailed, "credential store unavailable")
		s.release(sess)
		return Result{}, s.terminalErr(sess, fmt.Errorf("%w: open store: %v", ErrSetup, err))
	}
	sess.attach(store, nil)

	client, err := s.deps.Clients.NewClient(sess.ctx, protocol.Options{
		SessionID: sess.ID,
		Store:     store,
		Version:   version,
		Browser:   s.cfg.Browser,
		Log:       s.log.With("session_id", sess.ID),
	})
	if err != nil {
		s.reg.end(sess, StateFailed, "protocol client unavailable")
		s.release(sess)
		return Result{}, s.terminalErr(sess, fmt.Errorf("%w: new client: %v", ErrSetup, err))
	}
	sess.attach(nil, client)

	if client.Registered() {
		s.finishRegistered(sess, client)
		s.release(sess)
		return s.result(sess, ""), nil
	}

	if !sess.advance(StateAwaitingArtifact) {
		s.release(sess)
		return Result{}, s.terminalErr(sess, ErrExpired)
	}
	s.log.Info("pairing.session.awaiting", "session_id", sess.ID, "version", version.String())

	s.wg.Add(1)
	go s.run(sess, client.Events())

	if method == MethodScannableCode {
		return s.result(sess, ""), nil
	}

	code, err := s.requestCode(ctx, sess, client)
	if err != nil {
		return Result{}, err
	}
	return s.result(sess, code), nil
}

func (s *Service) requestCode(ctx context.Context, sess *Session, client protocol.Client) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CodeTimeout)
	defer cancel()
	stop := context.AfterFunc(sess.ctx, cancel)
	defer stop()

	code, err := client.RequestPairingCode(cctx, sess.Phone)
	if !sess.Valid() {
		return "", s.terminalErr(sess, ErrExpired)
	}
	code = strings.TrimSpace(code)
	if err != nil || code == "" {
		reason := "empty pairing code"
		if err != nil {
			reason = "pairing code request failed: " + err.Error()
		}
		s.log.Warn("pairing.code.fail", "session_id", sess.ID, "err", err)
		s.reg.end(sess, StateFailed, reason)
		return "", s.terminalErr(sess, ErrPairingCode)
	}

	s.setArtifact(sess, protocol.ArtifactCode, code)
	return code, nil
}

// Status returns the state of a registered session.
func (s *Service) Status(id string) (Snapshot, error) {
	sess, ok := s.reg.Lookup(strings.TrimSpace(id))
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return sess.Snapshot(), nil
}

// Cancel fails a live session on request of the caller.
func (s *Service) Cancel(id, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled"
	}
	if !s.reg.Fail(strings.TrimSpace(id), reason) {
		return ErrSessionNotFound
	}
	return nil
}

// Shutdown expires every live session and waits for teardown or ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	// Every session created before closed was set is registered by now.
	for _, sess := range s.reg.All() {
		s.reg.end(sess, StateExpired, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) fetchVersion(ctx context.Context, sess *Session) protocol.Version {
	sessionID := sess.ID
	vctx, cancel := context.WithTimeout(ctx, s.cfg.VersionTimeout)
	defer cancel()
	stop := context.AfterFunc(sess.ctx, cancel)
	defer stop()

	type answer struct {
		v   protocol.Version
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		v, err := s.deps.Versions.Version(vctx)
		ch <- answer{v, err}
	}()

	var a answer
	select {
	case a = <-ch:
	case <-vctx.Done():
		a.err = vctx.Err()
	}
	if a.err != nil || a.v.IsZero() {
		observability.RecordVersionFallback()
		s.log.Warn("pairing.version.fallback", "session_id", sessionID, "err", a.err, "version", FallbackVersion.String())
		return FallbackVersion
	}
	s.log.Debug("pairing.version.fetched", "session_id", sessionID, "version", a.v.String())
	return a.v
}

// finishRegistered completes a session whose namespace already holds a linked account.
func (s *Service) finishRegistered(sess *Session, client protocol.Client) {
	s.log.Info("pairing.session.already_registered", "session_id", sess.ID)
	if n, ok := client.(protocol.Notifier); ok && s.cfg.NotifyRegistered {
		nctx, cancel := context.WithTimeout(sess.ctx, s.cfg.DeliveryTimeout)
		if err := n.SendText(nctx, SelfIdentity(sess.Phone), alreadyLinkedText); err != nil {
			s.log.Warn("pairing.session.notify_fail", "session_id", sess.ID, "err", err)
		}
		cancel()
	}
	s.reg.end(sess, StateCompleted, "already linked")
}

func (s *Service) setArtifact(sess *Session, kind protocol.ArtifactKind, value string) {
	now := time.Now().UTC()

	// Held across Publish so a terminal transition cannot interleave.
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != StateAwaitingArtifact {
		return
	}
	sess.artifact = &Artifact{Kind: kind, Value: value, IssuedAt: now}
	err := s.deps.Channel.Publish(broadcast.Artifact{
		SessionID: sess.ID,
		Kind:      string(kind),
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		s.log.Warn("pairing.artifact.publish_fail", "session_id", sess.ID, "kind", string(kind), "err", err)
	}
}

// onTerminal runs synchronously on the first terminal transition.
// Teardown is left to the session's owner so an in-flight delivery finishes first.
func (s *Service) onTerminal(sess *Session, state State, reason string) {
	s.deps.Channel.Notify(sess.ID, state.String(), reason)

	lifetime := time.Since(sess.CreatedAt)
	observability.RecordSessionFinished(sess.Method.String(), state.String(), lifetime)

	attrs := []any{"session_id", sess.ID, "state", state.String(), "lifetime_ms", lifetime.Milliseconds()}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	if state == StateCompleted {
		s.log.Info("pairing.session.end", attrs...)
	} else {
		s.log.Warn("pairing.session.end", attrs...)
	}
}

// release closes the client, destroys the namespace, then drops the registry entry.
func (s *Service) release(sess *Session) {
	sess.releaseOnce.Do(func() {
		store, client := sess.handles()
		if client != nil {
			if err := client.Close(); err != nil {
				s.log.Warn("pairing.release.client_fail", "session_id", sess.ID, "err", err)
			}
		}
		if store != nil {
			dctx, cancel := context.WithTimeout(context.Background(), s.cfg.DeliveryTimeout)
			if err := store.Destroy(dctx); err != nil {
				s.log.Error("pairing.release.store_fail", "session_id", sess.ID, "err", err)
			}
			cancel()
		}
		s.reg.remove(sess)
		s.log.Debug("pairing.release", "session_id", sess.ID)
	})
}

func (s *Service) result(sess *Session, code string) Result {
	snap := sess.Snapshot()
	r := Result{
		SessionID: sess.ID,
		State:     snap.State,
		Method:    sess.Method,
		ExpiresAt: sess.ExpiresAt,
		RawCode:   code,
	}
	if code != "" {
		r.Code = broadcast.FormatCode(code)
	}
	return r
}

func (s *Service) terminalErr(sess *Session, err error) error {
	snap := sess.Snapshot()
	return &TerminalError{SessionID: sess.ID, State: snap.State, Reason: snap.Reason, Err: err}
}
