package broadcast

import "errors"

var (
	// ErrChannelClosed is returned by Subscribe after Close.
	ErrChannelClosed = errors.New("broadcast channel closed")

	// ErrEmptyArtifact is returned by Publish for artifacts without a value.
	ErrEmptyArtifact = errors.New("empty artifact")
)
