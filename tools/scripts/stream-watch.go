// Package main is a smoke client for the pairgate link stream.
//
// It validates:
//   - handshake + subprotocol selection
//   - starting a link session over HTTP (optional)
//   - receipt of a rendered artifact for that session
//   - a terminal session_state envelope when -until-terminal is set
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "pairgate/shared/contracts/pairing/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

func main() {
	var (
		wsURL         = flag.String("url", "ws://127.0.0.1:8080/link/stream", "Stream URL")
		apiURL        = flag.String("api", "http://127.0.0.1:8080", "HTTP base URL used to start a session")
		origin        = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		number        = flag.String("number", "", "Phone number to link; empty only watches")
		method        = flag.String("method", "qr", "Linking method: qr or code")
		untilTerminal = flag.Bool("until-terminal", false, "Keep reading until the session ends")
		timeout       = flag.Duration("timeout", 30*time.Second, "Overall timeout")
		verbose       = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn := mustConnect(ctx, *wsURL, *origin)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	sessionID := ""
	if strings.TrimSpace(*number) != "" {
		sessionID = mustStart(ctx, *apiURL, *number, *method)
		fmt.Printf("session started: %s\n", sessionID)
	}

	sawArtifact := false
	for {
		env := mustRead(ctx, conn)
		if *verbose {
			fmt.Printf("<- %s %s\n", env.Type, env.Payload)
		}

		switch env.Type {
		case v1.TypeArtifact:
			var p v1.ArtifactPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				fatalf("artifact payload: %v", err)
			}
			if sessionID != "" && p.SessionID != sessionID {
				continue
			}
			if strings.TrimSpace(p.Display) == "" {
				fatalf("artifact without display payload")
			}
			sawArtifact = true
			fmt.Printf("artifact: session=%s kind=%s display=%.48s\n", p.SessionID, p.Kind, p.Display)
			if !*untilTerminal {
				fmt.Println("OK")
				return
			}

		case v1.TypeSessionState:
			var p v1.SessionStatePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				fatalf("session_state payload: %v", err)
			}
			if sessionID != "" && p.SessionID != sessionID {
				continue
			}
			fmt.Printf("session %s: %s %s\n", p.SessionID, p.State, p.Reason)
			if *untilTerminal {
				if !sawArtifact && p.State != "completed" {
					fatalf("session ended before any artifact")
				}
				fmt.Println("OK")
				return
			}
		}
	}
}

func mustConnect(ctx context.Context, wsURL, origin string) *websocket.Conn {
	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustStart(ctx context.Context, apiURL, number, method string) string {
	body, _ := json.Marshal(map[string]string{"number": number, "method": method})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(apiURL, "/")+"/link", bytes.NewReader(body))
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST /link: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		SessionID   string `json:"session_id"`
		DisplayCode string `json:"display_code"`
		Error       struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusCreated {
		fatalf("POST /link: status=%d code=%s msg=%s", resp.StatusCode, out.Error.Code, out.Error.Message)
	}
	if out.DisplayCode != "" {
		fmt.Printf("pairing code: %s\n", out.DisplayCode)
	}
	return out.SessionID
}

func mustRead(ctx context.Context, conn *websocket.Conn) v1.Envelope {
	_, b, err := conn.Read(ctx)
	if err != nil {
		fatalf("read: %v (close status %d)", err, websocket.CloseStatus(err))
	}
	var env v1.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		fatalf("decode envelope: %v", err)
	}
	if err := env.Validate(); err != nil {
		fatalf("invalid envelope: %v", err)
	}
	return env
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
