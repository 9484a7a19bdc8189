package linkapi

import "strings"

// DefaultMaxBodyBytes caps POST /link bodies.
const DefaultMaxBodyBytes = 16 << 10

// Config controls the link API. The app layer fills it from the environment.
type Config struct {
	MaxBodyBytes int64
	// StreamPath is advertised to callers that chose the QR method and is
	// where the app mounts the artifact stream.
	StreamPath string
	// LegacyGenerate enables GET /generate.
	LegacyGenerate bool
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	c.StreamPath = strings.TrimSpace(c.StreamPath)
	if c.StreamPath == "" {
		c.StreamPath = DefaultStreamPath
	}
	if !strings.HasPrefix(c.StreamPath, "/") {
		c.StreamPath = "/" + c.StreamPath
	}
	return c
}
