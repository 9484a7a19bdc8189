package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	v1 "pairgate/shared/contracts/pairing/v1"

	"github.com/coder/websocket"
)

func startGateway(t *testing.T, ch *Channel, cfg GatewayConfig) *httptest.Server {
	t.Helper()
	gw := NewStreamGateway(testLogger(), ch, cfg)
	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)
	return ts
}

func dialStream(t *testing.T, baseURL, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(baseURL, "http"), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
}

func readEnvelope(t *testing.T, conn *websocket.Conn) v1.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	return env
}

func waitSubscribers(t *testing.T, ch *Channel, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch.Len() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscribers = %d, want %d", ch.Len(), n)
}

func TestStreamGateway_MissingOriginRejected(t *testing.T) {
	ch := NewChannel(testLogger(), codeRenderer())
	ts := startGateway(t, ch, GatewayConfig{OriginRequired: true, AllowedOrigins: []string{"http://localhost"}})

	_, resp, err := dialStream(t, ts.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestStreamGateway_ForeignOriginRejected(t *testing.T) {
	ch := NewChannel(testLogger(), codeRenderer())
	ts := startGateway(t, ch, GatewayConfig{OriginRequired: true, AllowedOrigins: []string{"http://localhost"}})

	_, resp, err := dialStream(t, ts.URL, "https://evil.example")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, err=%v", err)
	}
}

func TestStreamGateway_LateJoinAndLivePublish(t *testing.T) {
	ch := NewChannel(testLogger(), codeRenderer())
	_ = ch.Publish(Artifact{SessionID: "s1", Kind: v1.KindCode, Value: "ABCD1234"})

	ts := startGateway(t, ch, GatewayConfig{DevInsecure: true, HeartbeatEvery: time.Minute})

	conn, _, err := dialStream(t, ts.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var p v1.ArtifactPayload
	env := readEnvelope(t, conn)
	if env.Type != v1.TypeArtifact {
		t.Fatalf("first frame type = %q", env.Type)
	}
	_ = json.Unmarshal(env.Payload, &p)
	if p.Display != "ABCD-1234" {
		t.Fatalf("cached artifact display = %q", p.Display)
	}

	_ = ch.Publish(Artifact{SessionID: "s1", Kind: v1.KindCode, Value: "WXYZ9876"})
	env = readEnvelope(t, conn)
	_ = json.Unmarshal(env.Payload, &p)
	if p.Value != "WXYZ9876" {
		t.Fatalf("live artifact = %q", p.Value)
	}
}

func TestStreamGateway_Heartbeat(t *testing.T) {
	ch := NewChannel(testLogger(), codeRenderer())
	ts := startGateway(t, ch, GatewayConfig{DevInsecure: true, HeartbeatEvery: 50 * time.Millisecond})

	conn, _, err := dialStream(t, ts.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	env := readEnvelope(t, conn)
	if env.Type != v1.TypeHeartbeat {
		t.Fatalf("expected heartbeat, got %q", env.Type)
	}
	var hb v1.HeartbeatPayload
	_ = json.Unmarshal(env.Payload, &hb)
	if hb.Seq != 1 {
		t.Fatalf("heartbeat seq = %d", hb.Seq)
	}
}

func TestStreamGateway_DisconnectUnsubscribes(t *testing.T) {
	ch := NewChannel(testLogger(), codeRenderer())
	ts := startGateway(t, ch, GatewayConfig{DevInsecure: true, HeartbeatEvery: time.Minute})

	conn, _, err := dialStream(t, ts.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitSubscribers(t, ch, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "done")
	waitSubscribers(t, ch, 0)

	if err := ch.Publish(Artifact{SessionID: "s1", Kind: v1.KindCode, Value: "ABCD1234"}); err != nil {
		t.Fatalf("publish after disconnect: %v", err)
	}
}

func TestHostOf(t *testing.T) {
	cases := map[string]string{
		"http://localhost:3000": "localhost",
		"https://App.Example":   "app.example",
		"127.0.0.1:8080":        "127.0.0.1",
		"":                      "",
	}
	for in, want := range cases {
		if got := hostOf(in); got != want {
			t.Fatalf("hostOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOriginPolicy(t *testing.T) {
	strict := newOriginPolicy(true, []string{"http://localhost", "https://app.example:8443", "https://APP.example"})
	open := newOriginPolicy(false, []string{"*"})

	cases := []struct {
		name    string
		policy  originPolicy
		origin  string
		wantErr bool
	}{
		{"missing required", strict, "", true},
		{"missing optional", open, "", false},
		{"host match any port", strict, "http://localhost:5173", false},
		{"host match case", strict, "https://App.Example", false},
		{"foreign", strict, "https://evil.example", true},
		{"wildcard", open, "https://evil.example", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.check(tc.origin)
			if (err != nil) != tc.wantErr {
				t.Fatalf("check(%q) err = %v, wantErr %v", tc.origin, err, tc.wantErr)
			}
		})
	}

	if len(strict.patterns) != 4 {
		t.Fatalf("patterns = %v, want deduplicated hosts", strict.patterns)
	}
	if len(open.patterns) != 1 || open.patterns[0] != "*" {
		t.Fatalf("wildcard patterns = %v", open.patterns)
	}
}
