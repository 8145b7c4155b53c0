package service

import (
	"context"

	"github.com/atinyakov/GophLock/internal/gate"
	"github.com/atinyakov/GophLock/internal/models"
)

// CodeGate is the part of the security-code gate the service drives.
type CodeGate interface {
	View() gate.View
	SaveCode(ctx context.Context, code string) error
	Authenticate(ctx context.Context) error
	Verify(ctx context.Context, code string) (*models.PendingAction, error)
}

// ActionGuard records and resumes gated file actions.
type ActionGuard interface {
	Invoke(ctx context.Context, action models.Action, file models.FileRef, returnTo models.ReturnTo) (gate.Result, error)
	Resume(ctx context.Context, returnTo models.ReturnTo, override models.Action) (gate.Result, error)
}

// VerifyResult is the gate screen after a verification and the pending
// action it released, if any.
type VerifyResult struct {
	View    gate.View             `json:"view"`
	Pending *models.PendingAction `json:"pending,omitempty"`
}

// GateService drives the security-code gate and the gated file actions.
type GateService struct {
	gate  CodeGate
	guard ActionGuard
}

// NewGateService constructs a GateService.
func NewGateService(g CodeGate, guard ActionGuard) *GateService {
	return &GateService{gate: g, guard: guard}
}

// View returns the current gate screen.
func (s *GateService) View() gate.View {
	return s.gate.View()
}

// SaveCode stores a new security code and returns the resulting screen.
func (s *GateService) SaveCode(ctx context.Context, code string) (gate.View, error) {
	err := s.gate.SaveCode(ctx, code)
	return s.gate.View(), err
}

// Authenticate runs the biometric prompt that opens code entry.
func (s *GateService) Authenticate(ctx context.Context) (gate.View, error) {
	err := s.gate.Authenticate(ctx)
	return s.gate.View(), err
}

// Verify checks code and returns the screen together with the pending
// action it authorized, if any.
func (s *GateService) Verify(ctx context.Context, code string) (VerifyResult, error) {
	p, err := s.gate.Verify(ctx, code)
	return VerifyResult{View: s.gate.View(), Pending: p}, err
}

// Invoke records a gated file action.
func (s *GateService) Invoke(ctx context.Context, action models.Action, file models.FileRef, returnTo models.ReturnTo) (gate.Result, error) {
	return s.guard.Invoke(ctx, action, file, returnTo)
}

// Resume runs the verified pending action for returnTo.
func (s *GateService) Resume(ctx context.Context, returnTo models.ReturnTo, override models.Action) (gate.Result, error) {
	return s.guard.Resume(ctx, returnTo, override)
}
