package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/atinyakov/GophLock/internal/models"
	"go.uber.org/zap"
)

// ErrUnknownAction is returned for actions other than share, save and delete.
var ErrUnknownAction = errors.New("unknown action")

// FileActions is the host surface the gate forwards authorized actions to.
type FileActions interface {
	Share(ctx context.Context, f models.FileRef) error
	Save(ctx context.Context, f models.FileRef) error
	Delete(ctx context.Context, f models.FileRef) error
}

// Result tells the caller what a gated invocation did.
type Result struct {
	// Executed is set when the action ran.
	Executed bool `json:"executed"`
	// Redirect is set when the caller must send the user through the gate.
	Redirect bool `json:"redirect"`
	// Pending is the recorded or consumed action.
	Pending *models.PendingAction `json:"pending,omitempty"`
}

// Guard wraps FileActions so each call needs its own verification.
type Guard struct {
	handoff *Handoff
	actions FileActions
	relock  Relocker
	log     *zap.Logger
}

// Relocker returns a verified gate to its start phase.
type Relocker interface {
	Lock()
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithRelock makes every new invocation send r back to start, so a gate
// left in edit by an earlier verification asks for the code again.
func WithRelock(r Relocker) GuardOption {
	return func(g *Guard) { g.relock = r }
}

// NewGuard returns a Guard recording pending actions in h.
func NewGuard(h *Handoff, actions FileActions, log *zap.Logger, opts ...GuardOption) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Guard{handoff: h, actions: actions, log: log}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Invoke never runs the action directly: it records it and asks for a
// redirect to the gate. The action runs on Resume once verified.
func (g *Guard) Invoke(_ context.Context, action models.Action, file models.FileRef, returnTo models.ReturnTo) (Result, error) {
	if !action.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	p := g.handoff.Begin(action, file, returnTo)
	if g.relock != nil {
		g.relock.Lock()
	}
	g.log.Info("gated action awaiting verification",
		zap.String("id", p.ID),
		zap.String("action", string(action)),
		zap.String("file", file.Name),
	)
	return Result{Redirect: true, Pending: &p}, nil
}

// Resume runs the recorded action when the handoff is verified and targets
// returnTo, then discards it. A non-empty override replaces the recorded
// action. Without a verified handoff nothing runs and Executed is false.
func (g *Guard) Resume(ctx context.Context, returnTo models.ReturnTo, override models.Action) (Result, error) {
	if override != "" && !override.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, override)
	}
	p, ok := g.handoff.Take(returnTo)
	if !ok {
		return Result{}, nil
	}
	if override != "" {
		p.Action = override
	}

	if err := g.run(ctx, p.Action, p.File); err != nil {
		g.log.Error("gated action failed",
			zap.String("id", p.ID),
			zap.String("action", string(p.Action)),
			zap.Error(err),
		)
		return Result{Pending: &p}, err
	}
	g.log.Info("gated action executed",
		zap.String("id", p.ID),
		zap.String("action", string(p.Action)),
	)
	return Result{Executed: true, Pending: &p}, nil
}

func (g *Guard) run(ctx context.Context, action models.Action, f models.FileRef) error {
	switch action {
	case models.ActionShare:
		return g.actions.Share(ctx, f)
	case models.ActionSave:
		return g.actions.Save(ctx, f)
	case models.ActionDelete:
		return g.actions.Delete(ctx, f)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, action)
}
