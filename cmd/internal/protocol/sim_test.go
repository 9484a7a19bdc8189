package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"pairgate/cmd/internal/credstore"
)

func newTestNamespace(t *testing.T, id string) credstore.Namespace {
	t.Helper()
	ns, err := credstore.NewMemoryProvider().Open(context.Background(), id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ns
}

func testOptions(t *testing.T) Options {
	return Options{
		SessionID: "sess-1",
		Store:     newTestNamespace(t, "sess-1"),
		Version:   Version{2, 3000, 1},
		Browser:   DefaultBrowser,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("event stream closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return nil
}

func TestSimClient_LinkSequence(t *testing.T) {
	t.Parallel()

	c, err := NewSimClient(context.Background(), testOptions(t), SimConfig{QRInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewSimClient: %v", err)
	}
	defer func() { _ = c.Close() }()

	if c.Registered() {
		t.Fatalf("fresh client must not be registered")
	}

	if _, ok := nextEvent(t, c.Events()).(CredsUpdated); !ok {
		t.Fatalf("expected initial CredsUpdated")
	}
	qr, ok := nextEvent(t, c.Events()).(ArtifactIssued)
	if !ok || qr.Kind != ArtifactQR || qr.Value == "" {
		t.Fatalf("expected QR artifact, got %#v", qr)
	}

	if err := c.SendDocument(context.Background(), "x", Document{}); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("SendDocument before link: expected ErrNotLinked, got %v", err)
	}

	c.Link()

	up, ok := nextEvent(t, c.Events()).(CredsUpdated)
	if !ok || len(up.Entries) != 1 || up.Entries[0].Key != credstore.BundleKey {
		t.Fatalf("expected bundle update, got %#v", up)
	}
	var creds simCreds
	if err := json.Unmarshal(up.Entries[0].Value, &creds); err != nil || !creds.Registered {
		t.Fatalf("expected registered creds, got %+v err=%v", creds, err)
	}
	if _, ok := nextEvent(t, c.Events()).(ConnectionOpen); !ok {
		t.Fatalf("expected ConnectionOpen")
	}

	if err := c.SendDocument(context.Background(), "x", Document{FileName: "creds.json"}); err != nil {
		t.Fatalf("SendDocument: %v", err)
	}
	if got := c.Sent(); len(got) != 1 || got[0].FileName != "creds.json" {
		t.Fatalf("unexpected sent docs: %+v", got)
	}
}

func TestSimClient_PairingCodeStopsQR(t *testing.T) {
	t.Parallel()

	c, err := NewSimClient(context.Background(), testOptions(t), SimConfig{QRInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSimClient: %v", err)
	}
	defer func() { _ = c.Close() }()

	code, err := c.RequestPairingCode(context.Background(), "15551234567")
	if err != nil {
		t.Fatalf("RequestPairingCode: %v", err)
	}
	if len(code) != simCodeLength {
		t.Fatalf("code length=%d want=%d", len(code), simCodeLength)
	}
}

func TestSimClient_RegisteredShortCircuit(t *testing.T) {
	t.Parallel()

	opts := testOptions(t)
	raw, _ := json.Marshal(simCreds{Registered: true, Me: "15551234567"})
	if err := opts.Store.Put(context.Background(), credstore.Entry{Key: credstore.BundleKey, Value: raw}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	c, err := NewSimClient(context.Background(), opts, SimConfig{})
	if err != nil {
		t.Fatalf("NewSimClient: %v", err)
	}
	defer func() { _ = c.Close() }()

	if !c.Registered() {
		t.Fatalf("expected registered client")
	}
}

func TestSimClient_CloseClosesEvents(t *testing.T) {
	t.Parallel()

	c, err := NewSimClient(context.Background(), testOptions(t), SimConfig{QRInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewSimClient: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.Events():
			if !ok {
				if _, err := c.RequestPairingCode(context.Background(), "1"); !errors.Is(err, ErrClosed) {
					t.Fatalf("expected ErrClosed after Close, got %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatalf("events channel not closed")
		}
	}
}

func TestParseBrowser(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Browser
		ok   bool
	}{
		{in: "Mac OS/Safari", want: Browser{Platform: "Mac OS", Name: "Safari", Release: DefaultBrowser.Release}, ok: true},
		{in: "Ubuntu/Chrome/22.04", want: Browser{Platform: "Ubuntu", Name: "Chrome", Release: "22.04"}, ok: true},
		{in: "Chrome", ok: false},
		{in: "a/b/c/d", ok: false},
		{in: "/Safari", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParseBrowser(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseBrowser(%q)=%+v,%v want=%+v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCloseReason_AuthRejected(t *testing.T) {
	t.Parallel()

	cases := map[int]bool{
		StatusUnauthorized:  true,
		StatusForbidden:     true,
		StatusTimedOut:      false,
		StatusConnectionErr: false,
		StatusRestart:       false,
		StatusUnknown:       false,
	}
	for code, want := range cases {
		if got := (CloseReason{StatusCode: code}).AuthRejected(); got != want {
			t.Fatalf("AuthRejected(%d)=%v want=%v", code, got, want)
		}
	}
}

func TestNewFactory(t *testing.T) {
	t.Parallel()

	if _, err := NewFactory("sim", SimConfig{}); err != nil {
		t.Fatalf("sim driver: %v", err)
	}
	if _, err := NewFactory("carrier-pigeon", SimConfig{}); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}
