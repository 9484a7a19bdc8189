package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pairgate/cmd/internal/protocol"
)

// FallbackVersion is the last known good protocol version.
var FallbackVersion = protocol.Version{2, 3000, 1023223821}

// VersionSource reports the protocol version to negotiate.
type VersionSource interface {
	Version(ctx context.Context) (protocol.Version, error)
}

// VersionSourceFunc adapts a function to VersionSource.
type VersionSourceFunc func(ctx context.Context) (protocol.Version, error)

// Version calls f.
func (f VersionSourceFunc) Version(ctx context.Context) (protocol.Version, error) { return f(ctx) }

// StaticVersion always reports the same version.
type StaticVersion protocol.Version

// Version implements VersionSource.
func (v StaticVersion) Version(context.Context) (protocol.Version, error) {
	return protocol.Version(v), nil
}

// HTTPVersionSource fetches the version from a JSON document.
// Accepted shapes: {"version":[2,3000,1]} or {"currentVersion":"2.3000.1"}.
type HTTPVersionSource struct {
	URL    string
	Client *http.Client
}

const maxVersionBody = 64 << 10

// Version implements VersionSource.
func (s HTTPVersionSource) Version(ctx context.Context) (protocol.Version, error) {
	if strings.TrimSpace(s.URL) == "" {
		return protocol.Version{}, errors.New("version source: empty url")
	}
	hc := s.Client
	if hc == nil {
		hc = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return protocol.Version{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return protocol.Version{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return protocol.Version{}, fmt.Errorf("version source: status %d", resp.StatusCode)
	}

	var doc struct {
		Version        []int  `json:"version"`
		CurrentVersion string `json:"currentVersion"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVersionBody)).Decode(&doc); err != nil {
		return protocol.Version{}, fmt.Errorf("version source: decode: %w", err)
	}

	switch {
	case len(doc.Version) == 3:
		return protocol.Version{doc.Version[0], doc.Version[1], doc.Version[2]}, nil
	case doc.CurrentVersion != "":
		return ParseVersion(doc.CurrentVersion)
	default:
		return protocol.Version{}, errors.New("version source: no version in document")
	}
}

// ParseVersion parses "major.minor.patch".
func ParseVersion(s string) (protocol.Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return protocol.Version{}, fmt.Errorf("invalid version %q", s)
	}
	var v protocol.Version
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return protocol.Version{}, fmt.Errorf("invalid version %q", s)
		}
		v[i] = n
	}
	return v, nil
}
