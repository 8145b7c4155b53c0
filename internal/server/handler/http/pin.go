// Package http provides the daemon's JSON API over the PIN lock, the
// security-code gate and the gated file actions.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/GophLock/internal/pinlock"
	"github.com/atinyakov/GophLock/internal/service"
)

// PinService defines the PIN lock operations required by PinHandler.
type PinService interface {
	View() pinlock.View
	PressDigits(digits string) (pinlock.View, error)
	Delete(all bool) (pinlock.View, error)
	Submit(ctx context.Context) (service.SubmitResult, error)
	Reset(ctx context.Context, method string) (pinlock.View, error)
	Lock(ctx context.Context) pinlock.View
}

// PinHandler serves the PIN screen.
type PinHandler struct {
	PinService PinService
}

// DigitRequest is the body of POST /api/pin/digits. Digit may hold several
// digits, entered in order.
type DigitRequest struct {
	Digit string `json:"digit"`
}

// ResetRequest is the body of POST /api/pin/reset.
type ResetRequest struct {
	Method string `json:"method"`
}

// View handles GET /api/pin.
func (h *PinHandler) View(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.PinService.View())
}

// AppendDigit handles POST /api/pin/digits.
func (h *PinHandler) AppendDigit(w http.ResponseWriter, r *http.Request) {
	var req DigitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Digit == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	v, err := h.PinService.PressDigits(req.Digit)
	if err != nil {
		writeError(w, err, v)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteDigit handles DELETE /api/pin/digits. With ?all=true the whole
// entry is cleared.
func (h *PinHandler) DeleteDigit(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	v, err := h.PinService.Delete(all)
	if err != nil {
		writeError(w, err, v)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Submit handles POST /api/pin/submit. A wrong PIN is a 200 with outcome
// "rejected"; the view carries the message and remaining attempts.
func (h *PinHandler) Submit(w http.ResponseWriter, r *http.Request) {
	res, err := h.PinService.Submit(r.Context())
	if err != nil {
		writeError(w, err, res.View)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reset handles POST /api/pin/reset.
func (h *PinHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	v, err := h.PinService.Reset(r.Context(), req.Method)
	if err != nil {
		writeError(w, err, v)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Lock handles POST /api/lock.
func (h *PinHandler) Lock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.PinService.Lock(r.Context()))
}
