package linkapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"pairgate/cmd/internal/pairing"
)

// DefaultStreamPath is where the artifact stream is mounted.
const DefaultStreamPath = "/link/stream"

// Linker is the orchestrator surface the handlers need.
type Linker interface {
	StartLinking(ctx context.Context, phone string, method pairing.Method) (pairing.Result, error)
	Status(id string) (pairing.Snapshot, error)
	Cancel(id, reason string) error
}

// Handler serves the linking endpoints.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	linker Linker
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, linker Linker) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if linker == nil {
		return nil, errors.New("linkapi: nil linker")
	}
	return &Handler{log: log, cfg: cfg.withDefaults(), linker: linker}, nil
}

// StreamPath is the path advertised as stream_url.
func (h *Handler) StreamPath() string { return h.cfg.StreamPath }

// Register wires link routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /link", h.handleStart)
	mux.HandleFunc("GET /link/{id}", h.handleStatus)
	mux.HandleFunc("DELETE /link/{id}", h.handleCancel)
	if h.cfg.LegacyGenerate {
		mux.HandleFunc("GET /generate", h.handleGenerate)
	}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	method, err := pairing.ParseMethod(req.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_method", "method must be \"code\" or \"qr\"")
		return
	}

	res, err := h.linker.StartLinking(r.Context(), req.Number, method)
	if err != nil {
		h.writeLinkError(w, err)
		return
	}

	resp := linkResponse{
		SessionID:   res.SessionID,
		State:       res.State.String(),
		Method:      res.Method.String(),
		ExpiresAt:   res.ExpiresAt,
		Code:        res.RawCode,
		DisplayCode: res.Code,
	}
	if method == pairing.MethodScannableCode && !res.State.Terminal() {
		resp.StreamURL = h.cfg.StreamPath
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.linker.Status(r.PathValue("id"))
	if err != nil {
		h.writeLinkError(w, err)
		return
	}

	resp := statusResponse{
		SessionID: snap.ID,
		State:     snap.State.String(),
		Method:    snap.Method.String(),
		Reason:    snap.Reason,
		CreatedAt: snap.CreatedAt,
		ExpiresAt: snap.ExpiresAt,
	}
	if snap.Artifact != nil {
		resp.ArtifactKind = string(snap.Artifact.Kind)
		issued := snap.Artifact.IssuedAt
		resp.IssuedAt = &issued
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.linker.Cancel(r.PathValue("id"), "cancelled by caller"); err != nil {
		h.writeLinkError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGenerate keeps the original pull contract: ?number= in, {"code"} out.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("number"))
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, generateError{Error: "Missing number"})
		return
	}

	res, err := h.linker.StartLinking(r.Context(), pairing.DigitsOnly(raw), pairing.MethodPairingCode)
	switch {
	case err == nil && res.Code != "":
		writeJSON(w, http.StatusOK, generateResponse{Code: res.Code})
	case err == nil:
		writeJSON(w, http.StatusConflict, generateError{Error: "Number is already linked"})
	case errors.Is(err, pairing.ErrInvalidNumber):
		writeJSON(w, http.StatusBadRequest, generateError{Error: "Invalid number"})
	case errors.Is(err, pairing.ErrDuplicateSession):
		writeJSON(w, http.StatusConflict, generateError{Error: "A pairing session is already active for this number"})
	default:
		h.log.Warn("link.generate.fail", "err", err)
		writeJSON(w, http.StatusInternalServerError, generateError{Error: "Failed to generate pairing code"})
	}
}

func (h *Handler) writeLinkError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pairing.ErrInvalidNumber):
		writeError(w, http.StatusBadRequest, "invalid_number", "phone number must be 10 to 15 digits")
	case errors.Is(err, pairing.ErrInvalidMethod):
		writeError(w, http.StatusBadRequest, "invalid_method", "method must be \"code\" or \"qr\"")
	case errors.Is(err, pairing.ErrDuplicateSession):
		writeError(w, http.StatusConflict, "duplicate_session", "a session is already active for this number")
	case errors.Is(err, pairing.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, pairing.ErrPairingCode):
		writeError(w, http.StatusBadGateway, "pairing_code_unavailable", "the messaging service did not issue a pairing code")
	case errors.Is(err, pairing.ErrAuthRejected):
		writeError(w, http.StatusBadGateway, "auth_rejected", "linking was rejected by the account")
	case errors.Is(err, pairing.ErrExpired):
		writeError(w, http.StatusGone, "expired", "linking window elapsed")
	case errors.Is(err, pairing.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
	case errors.Is(err, pairing.ErrSetup):
		h.log.Error("link.setup.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "setup_failed", "please retry later")
	default:
		h.log.Error("link.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
