package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"strconv"

	"github.com/atinyakov/GophLock/internal/biometric"
	"github.com/atinyakov/GophLock/internal/files"
	"github.com/atinyakov/GophLock/internal/gate"
	"github.com/atinyakov/GophLock/internal/pinlock"
	"github.com/atinyakov/GophLock/internal/service"
	"github.com/atinyakov/GophLock/internal/store"
)

// ErrorResponse is the body of every failed request. View carries the
// screen state after the failure so clients can re-render it.
type ErrorResponse struct {
	Error string `json:"error"`
	View  any    `json:"view,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes it with view.
func writeError(w http.ResponseWriter, err error, view any) {
	status := statusFor(err)
	var le *pinlock.LockoutError
	if errors.As(err, &le) {
		secs := int(math.Ceil(le.Remaining.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	msg := err.Error()
	var se *store.StorageError
	if errors.As(err, &se) || status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, View: view})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pinlock.ErrLockedOut):
		return http.StatusLocked
	case errors.Is(err, gate.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, pinlock.ErrBusy),
		errors.Is(err, pinlock.ErrResetUnavailable),
		errors.Is(err, gate.ErrWrongPhase):
		return http.StatusConflict
	case errors.Is(err, pinlock.ErrNotReady),
		errors.Is(err, pinlock.ErrClosed),
		errors.Is(err, gate.ErrClosed),
		errors.Is(err, biometric.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, pinlock.ErrInvalidDigit),
		errors.Is(err, gate.ErrInvalidCode),
		errors.Is(err, gate.ErrUnknownAction),
		errors.Is(err, service.ErrUnknownResetMethod),
		errors.Is(err, files.ErrOutsideRoot):
		return http.StatusBadRequest
	case errors.Is(err, pinlock.ErrBiometricFailed),
		errors.Is(err, gate.ErrBiometricFailed),
		errors.Is(err, gate.ErrCodeMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, gate.ErrNoCode),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
