package gate

import (
	"sync"

	"github.com/atinyakov/GophLock/internal/models"
	"github.com/google/uuid"
)

// Handoff carries at most one pending gated action from the screen that
// invoked it, through the gate, and back. It is owned by a session and
// never persisted.
type Handoff struct {
	mu      sync.Mutex
	pending *models.PendingAction
}

// NewHandoff returns an empty Handoff.
func NewHandoff() *Handoff {
	return &Handoff{}
}

// Begin records an unverified action, replacing any previous one.
func (h *Handoff) Begin(action models.Action, file models.FileRef, returnTo models.ReturnTo) models.PendingAction {
	p := models.PendingAction{
		ID:       uuid.NewString(),
		Action:   action,
		ReturnTo: returnTo,
		File:     file,
	}
	h.mu.Lock()
	h.pending = &p
	h.mu.Unlock()
	return p
}

// Pending returns the recorded action, if any.
func (h *Handoff) Pending() (models.PendingAction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return models.PendingAction{}, false
	}
	return *h.pending, true
}

// MarkVerified flags the recorded action as authorized.
func (h *Handoff) MarkVerified() (models.PendingAction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return models.PendingAction{}, false
	}
	h.pending.Verified = true
	return *h.pending, true
}

// Take removes and returns the recorded action if it is verified and was
// meant to return to returnTo. Anything else leaves the handoff untouched.
func (h *Handoff) Take(returnTo models.ReturnTo) (models.PendingAction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil || !h.pending.Verified || !h.pending.ReturnTo.Equal(returnTo) {
		return models.PendingAction{}, false
	}
	p := *h.pending
	h.pending = nil
	return p, true
}

// Clear drops the recorded action.
func (h *Handoff) Clear() {
	h.mu.Lock()
	h.pending = nil
	h.mu.Unlock()
}
