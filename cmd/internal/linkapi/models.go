package linkapi

import "time"

type linkRequest struct {
	Number string `json:"number"`
	Method string `json:"method"`
}

type linkResponse struct {
	SessionID   string    `json:"session_id"`
	State       string    `json:"state"`
	Method      string    `json:"method"`
	ExpiresAt   time.Time `json:"expires_at"`
	Code        string    `json:"code,omitempty"`
	DisplayCode string    `json:"display_code,omitempty"`
	StreamURL   string    `json:"stream_url,omitempty"`
}

type statusResponse struct {
	SessionID    string     `json:"session_id"`
	State        string     `json:"state"`
	Method       string     `json:"method"`
	Reason       string     `json:"reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	ArtifactKind string     `json:"artifact_kind,omitempty"`
	IssuedAt     *time.Time `json:"artifact_issued_at,omitempty"`
}

// Legacy pull route shapes.
type generateResponse struct {
	Code string `json:"code"`
}

type generateError struct {
	Error string `json:"error"`
}
