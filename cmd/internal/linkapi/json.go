package linkapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// bodyError is a request body rejection with the status it maps to.
type bodyError struct {
	status int
	code   string
	msg    string
}

func (e *bodyError) Error() string { return e.code + ": " + e.msg }

var (
	errEmptyBody    = &bodyError{http.StatusBadRequest, "empty_body", "request body is required"}
	errBodyTooLarge = &bodyError{http.StatusRequestEntityTooLarge, "body_too_large", "request body too large"}
	errTrailingData = &bodyError{http.StatusBadRequest, "invalid_json", "extra data after JSON object"}
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

// writeBodyError answers a decodeJSON failure.
func writeBodyError(w http.ResponseWriter, err error) {
	var be *bodyError
	if !errors.As(err, &be) {
		be = &bodyError{http.StatusBadRequest, "invalid_json", "invalid request body"}
	}
	writeError(w, be.status, be.code, be.msg)
}

// decodeJSON reads exactly one JSON object of at most limit bytes into dst.
// Failures are *bodyError values.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return classifyDecodeErr(err)
	}
	switch err := dec.Decode(&struct{}{}); {
	case errors.Is(err, io.EOF):
		return nil
	case isTooLarge(err):
		return errBodyTooLarge
	default:
		return errTrailingData
	}
}

func classifyDecodeErr(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return errEmptyBody
	case isTooLarge(err):
		return errBodyTooLarge
	default:
		return &bodyError{http.StatusBadRequest, "invalid_json", err.Error()}
	}
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
