package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/GophLock/internal/gate"
	"github.com/atinyakov/GophLock/internal/models"
	"github.com/atinyakov/GophLock/internal/service"
	"github.com/go-chi/chi/v5"
)

// GateService defines the gate and gated-action operations required by
// GateHandler.
type GateService interface {
	View() gate.View
	SaveCode(ctx context.Context, code string) (gate.View, error)
	Authenticate(ctx context.Context) (gate.View, error)
	Verify(ctx context.Context, code string) (service.VerifyResult, error)
	Invoke(ctx context.Context, action models.Action, file models.FileRef, returnTo models.ReturnTo) (gate.Result, error)
	Resume(ctx context.Context, returnTo models.ReturnTo, override models.Action) (gate.Result, error)
}

// GateHandler serves the security-code screen and the gated file actions.
type GateHandler struct {
	GateService GateService
}

// CodeRequest is the body of POST /api/gate/code and /api/gate/verify.
type CodeRequest struct {
	Code string `json:"code"`
}

// InvokeRequest is the body of POST /api/files/{action}.
type InvokeRequest struct {
	File     models.FileRef  `json:"file"`
	ReturnTo models.ReturnTo `json:"return_to"`
}

// ResumeRequest is the body of POST /api/files/resume.
type ResumeRequest struct {
	ReturnTo models.ReturnTo `json:"return_to"`
	Action   models.Action   `json:"action,omitempty"`
}

// View handles GET /api/gate.
func (h *GateHandler) View(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.GateService.View())
}

// SaveCode handles POST /api/gate/code.
func (h *GateHandler) SaveCode(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	v, err := h.GateService.SaveCode(r.Context(), req.Code)
	if err != nil {
		writeError(w, err, v)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Authenticate handles POST /api/gate/authenticate.
func (h *GateHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	v, err := h.GateService.Authenticate(r.Context())
	if err != nil {
		writeError(w, err, v)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Verify handles POST /api/gate/verify.
func (h *GateHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	res, err := h.GateService.Verify(r.Context(), req.Code)
	if err != nil {
		writeError(w, err, res.View)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Invoke handles POST /api/files/{action}. The action is recorded and the
// client is sent to the gate with 202 Accepted.
func (h *GateHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	action := models.Action(chi.URLParam(r, "action"))
	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.File.URI == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	res, err := h.GateService.Invoke(r.Context(), action, req.File, req.ReturnTo)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	status := http.StatusOK
	if res.Redirect {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// Resume handles POST /api/files/resume. Without a verified pending action
// for return_to nothing runs and the response is 403.
func (h *GateHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	res, err := h.GateService.Resume(r.Context(), req.ReturnTo, req.Action)
	if err != nil {
		writeError(w, err, res)
		return
	}
	if !res.Executed {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "verification required", View: res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
