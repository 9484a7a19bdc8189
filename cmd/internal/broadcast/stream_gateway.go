package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	v1 "pairgate/shared/contracts/pairing/v1"

	"github.com/coder/websocket"
)

// Stream endpoint defaults.
const (
	DefaultWriteTimeout      = 5 * time.Second
	DefaultHeartbeatInterval = heartbeatInterval
	DefaultQueueSize         = defaultQueueSize
)

// DefaultAllowedOrigins is the allowlist used when none is configured.
var DefaultAllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}

// GatewayConfig tunes the stream endpoint. The zero value requires nothing
// from the Origin header but only accepts localhost when one is sent.
type GatewayConfig struct {
	// DevInsecure disables the websocket library's own origin verification.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout   time.Duration
	HeartbeatEvery time.Duration
	QueueSize      int
}

// StreamGateway is the websocket entrypoint for artifact subscribers.
//
// It enforces origin policy and subprotocol selection, registers one
// Subscriber per connection, writes queued envelopes and heartbeats, and
// unsubscribes when the peer goes away.
type StreamGateway struct {
	log *slog.Logger
	ch  *Channel
	cfg GatewayConfig

	origins originPolicy
}

// NewStreamGateway constructs a gateway over ch.
func NewStreamGateway(log *slog.Logger, ch *Channel, cfg GatewayConfig) *StreamGateway {
	if log == nil {
		log = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = heartbeatInterval
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultAllowedOrigins
	}
	if cfg.QueueSize < minQueueSize {
		cfg.QueueSize = defaultQueueSize
	}
	return &StreamGateway{
		log:            log,
		ch:             ch,
		cfg:     cfg,
		origins: newOriginPolicy(cfg.OriginRequired, cfg.AllowedOrigins),
	}
}

// ServeHTTP upgrades the request and streams envelopes until either side goes away.
func (g *StreamGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.origins.check(r.Header.Get("Origin")); err != nil {
		g.log.Info("stream.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.origins.patterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("stream.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("stream.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	sub, err := g.ch.Subscribe(g.cfg.QueueSize)
	if err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	// Push-only: CloseRead discards client frames and cancels ctx when the peer closes.
	ctx := conn.CloseRead(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.ch.Unsubscribe(sub)
			_ = conn.Close(code, reason)
			cancel()
		})
	}
	defer shutdown(websocket.StatusNormalClosure, "bye")

	hb := time.NewTicker(g.cfg.HeartbeatEvery)
	defer hb.Stop()

	var seq int64
	for {
		select {
		case <-ctx.Done():
			g.log.Info("stream.peer.gone", "subscriber_id", sub.ID)
			return
		case <-sub.Done():
			shutdown(websocket.StatusGoingAway, "unsubscribed")
			return
		case env := <-sub.Send:
			if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
				g.log.Info("stream.write.fail", "subscriber_id", sub.ID, "close_status", websocket.CloseStatus(err), "err", err)
				shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		case <-hb.C:
			seq++
			if err := writeEnvelope(ctx, conn, heartbeatEnvelope(seq), g.cfg.WriteTimeout); err != nil {
				g.log.Info("stream.heartbeat.fail", "subscriber_id", sub.ID, "err", err)
				shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func heartbeatEnvelope(seq int64) v1.Envelope {
	now := time.Now().UTC()
	raw, _ := json.Marshal(v1.HeartbeatPayload{Seq: seq})
	return v1.Envelope{V: v1.Version, Type: v1.TypeHeartbeat, ID: newID(now), TS: now, Payload: raw}
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// originPolicy matches the Origin header by host against a fixed allowlist.
type originPolicy struct {
	required bool
	any      bool
	hosts    map[string]struct{}
	// patterns mirrors hosts for websocket.Accept, which matches host:port.
	patterns []string
}

func newOriginPolicy(required bool, allowed []string) originPolicy {
	p := originPolicy{required: required, hosts: make(map[string]struct{}, len(allowed))}
	for _, a := range allowed {
		h := hostOf(a)
		switch {
		case h == "":
		case h == "*":
			p.any = true
		default:
			if _, dup := p.hosts[h]; !dup {
				p.hosts[h] = struct{}{}
				p.patterns = append(p.patterns, h, h+":*")
			}
		}
	}
	if p.any {
		p.patterns = []string{"*"}
	}
	return p
}

func (p originPolicy) check(origin string) error {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		if p.required {
			return errors.New("missing origin")
		}
		return nil
	}
	if p.any {
		return nil
	}
	if _, ok := p.hosts[hostOf(origin)]; ok {
		return nil
	}
	return fmt.Errorf("origin %q not allowed", origin)
}

// hostOf returns the lowercased host of an origin or host[:port] string.
func hostOf(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "://"); i >= 0 {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return strings.ToLower(s)
}
