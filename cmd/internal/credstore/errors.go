package credstore

import "errors"

var (
	// ErrNotReady is returned by ReadBundle when the credential bundle has not been materialized yet.
	ErrNotReady = errors.New("credential bundle not ready")

	// ErrNotFound is returned by Get when a key does not exist in the namespace.
	ErrNotFound = errors.New("credential key not found")

	// ErrDestroyed is returned by writes against a namespace that has been destroyed.
	ErrDestroyed = errors.New("credential namespace destroyed")

	// ErrInvalidKey is returned for empty or path-like keys.
	ErrInvalidKey = errors.New("invalid credential key")

	// ErrConfig is returned for invalid backend configuration.
	ErrConfig = errors.New("invalid credstore config")
)
