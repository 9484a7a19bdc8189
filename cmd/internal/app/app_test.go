package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	v1 "pairgate/shared/contracts/pairing/v1"

	"github.com/coder/websocket"
)

func testConfig() Config {
	return Config{
		CredStore:       CredStoreMemory,
		LinkWindow:      5 * time.Second,
		SettleInterval:  10 * time.Millisecond,
		VersionTimeout:  100 * time.Millisecond,
		CodeTimeout:     time.Second,
		DeliveryTimeout: time.Second,
		ProtocolDriver:  "sim",
		SimQRInterval:   time.Hour,
		SimLinkAfter:    0,
	}
}

func newTestApp(t *testing.T, cfg Config) (*App, *httptest.Server) {
	t.Helper()

	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a, ts
}

func TestNew_RejectsBadPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.CredStore = "tape"
	if _, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected unknown backend to fail startup")
	}
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.ProtocolDriver = "carrier-pigeon"
	if _, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected unknown protocol driver to fail startup")
	}
}

func TestHealthReadyMetrics(t *testing.T) {
	_, ts := newTestApp(t, testConfig())

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s -> %d", path, resp.StatusCode)
		}
		if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("GET %s missing security headers", path)
		}
	}
}

func TestReadyz_RequireDBWithoutDB(t *testing.T) {
	cfg := testConfig()
	cfg.ReadinessRequireDB = true
	_, ts := newTestApp(t, cfg)

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestQRLinkOverStream(t *testing.T) {
	cfg := testConfig()
	cfg.SimQRInterval = 50 * time.Millisecond
	_, ts := newTestApp(t, cfg)
	linkQROverStream(t, ts, "/link/stream")
}

func TestQRLinkOverConfiguredStreamPath(t *testing.T) {
	t.Setenv("PAIRGATE_LINK_STREAM_PATH", "/pair/stream")
	t.Setenv("PAIRGATE_WS_ORIGIN_REQUIRED", "false")

	cfg := LoadConfig()
	cfg.SimQRInterval = 50 * time.Millisecond
	cfg.SettleInterval = 10 * time.Millisecond
	cfg.VersionTimeout = 100 * time.Millisecond
	_, ts := newTestApp(t, cfg)

	linkQROverStream(t, ts, "/pair/stream")

	resp, err := http.Get(ts.URL + "/link/stream")
	if err != nil {
		t.Fatalf("GET old path: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("default stream path still served: %d", resp.StatusCode)
	}
}

// linkQROverStream dials path, starts a QR session and waits for its artifact.
func linkQROverStream(t *testing.T, ts *httptest.Server, path string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+path, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
	})
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	resp, err := http.Post(ts.URL+"/link", "application/json", strings.NewReader(`{"number":"15551234567","method":"qr"}`))
	if err != nil {
		t.Fatalf("POST /link: %v", err)
	}
	var started struct {
		SessionID string `json:"session_id"`
		StreamURL string `json:"stream_url"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&started)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || started.StreamURL != path {
		t.Fatalf("start -> %d %+v", resp.StatusCode, started)
	}

	for {
		_, b, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env v1.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Type != v1.TypeArtifact {
			continue
		}
		var p v1.ArtifactPayload
		_ = json.Unmarshal(env.Payload, &p)
		if p.SessionID != started.SessionID || p.Kind != v1.KindQR {
			t.Fatalf("unexpected artifact: %+v", p)
		}
		if !strings.HasPrefix(p.Display, "data:image/png;base64,") {
			t.Fatalf("QR not rendered: %.40s", p.Display)
		}
		return
	}
}
