// Package gate implements the security-code gate guarding destructive file
// actions. The code is never stored: a fixed sentinel is encrypted under it,
// and a code is accepted when it decrypts the stored value back to that
// sentinel.
package gate

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"

	"github.com/atinyakov/GophLock/internal/biometric"
	"github.com/atinyakov/GophLock/internal/models"
	"github.com/atinyakov/GophLock/internal/seal"
	"github.com/atinyakov/GophLock/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Phase is the gate screen step.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseSet     Phase = "set"
	PhaseStart   Phase = "start"
	PhaseVerify  Phase = "verify"
	PhaseEdit    Phase = "edit"
)

var (
	ErrInvalidCode     = errors.New("invalid security code")
	ErrCodeMismatch    = errors.New("security code does not match")
	ErrNoCode          = errors.New("no security code stored")
	ErrWrongPhase      = errors.New("operation not allowed in this phase")
	ErrBiometricFailed = errors.New("biometric authentication failed")
	ErrRateLimited     = errors.New("too many verification attempts")
	ErrClosed          = errors.New("gate closed")
)

const (
	msgInvalid      = "Please enter a valid security code."
	msgSaved        = "Security code saved!"
	msgUpdated      = "Security code updated!"
	msgSaveFailed   = "Could not save the security code."
	msgAuthFailed   = "Authentication Failed. Please try again."
	msgMismatch     = "The entered code does not match."
	msgNoCode       = "No security code stored."
	msgVerifyFailed = "Verification failed."
	msgSlowDown     = "Too many attempts. Please wait and try again."
)

// UnlockPrompt is shown by the biometric dialog opening the gate.
var UnlockPrompt = biometric.Prompt{
	Message:     "Authenticate to continue",
	CancelLabel: "Cancel",
}

// Option configures a Gate.
type Option func(*Gate)

// WithSentinel overrides the encrypted plaintext. Defaults to runtime.GOOS.
func WithSentinel(s string) Option {
	return func(g *Gate) { g.sentinel = s }
}

// WithBiometric sets the authenticator required in the start phase.
func WithBiometric(a biometric.Authenticator) Option {
	return func(g *Gate) { g.bio = a }
}

// WithLogger sets the operator log.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// WithVerifyLimiter throttles Verify. Without it verification is unlimited.
func WithVerifyLimiter(l *rate.Limiter) Option {
	return func(g *Gate) { g.limiter = l }
}

// WithHandoff links the gate to a session handoff: a successful Verify
// marks its pending action as verified.
func WithHandoff(h *Handoff) Option {
	return func(g *Gate) { g.handoff = h }
}

// Gate is the security-code state machine.
type Gate struct {
	store    store.Store
	cipher   *seal.Cipher
	sentinel string
	bio      biometric.Authenticator
	log      *zap.Logger
	limiter  *rate.Limiter
	handoff  *Handoff

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	phase   Phase
	message string
	hasCode bool
	closed  bool
}

// New returns a Gate in the loading phase.
func New(s store.Store, c *seal.Cipher, opts ...Option) *Gate {
	g := &Gate{
		store:    s,
		cipher:   c,
		sentinel: runtime.GOOS,
		bio:      biometric.Unavailable{},
		log:      zap.NewNop(),
		phase:    PhaseLoading,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())
	return g
}

// View is a snapshot of the gate.
type View struct {
	Phase   Phase                 `json:"phase"`
	Message string                `json:"message,omitempty"`
	HasCode bool                  `json:"has_code"`
	Pending *models.PendingAction `json:"pending,omitempty"`
}

// View returns the current snapshot.
func (g *Gate) View() View {
	g.mu.Lock()
	v := View{Phase: g.phase, Message: g.message, HasCode: g.hasCode}
	g.mu.Unlock()
	if g.handoff != nil {
		if p, ok := g.handoff.Pending(); ok {
			v.Pending = &p
		}
	}
	return v
}

// Phase returns the current phase.
func (g *Gate) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Load enters set when no code exists yet and start otherwise. A storage
// failure keeps the gate in loading: falling back to set would let anyone
// replace the code.
func (g *Gate) Load(ctx context.Context) error {
	_, ok, err := g.store.Get(ctx, models.SecurityCodeKey)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if err != nil {
		g.log.Error("failed to load security code", zap.Error(err))
		g.phase = PhaseLoading
		g.message = msgVerifyFailed
		return err
	}
	g.hasCode = ok
	g.message = ""
	if ok {
		g.phase = PhaseStart
	} else {
		g.phase = PhaseSet
	}
	return nil
}

// SaveCode encrypts the sentinel under code and stores it. Allowed in set,
// and in edit after a successful Verify.
func (g *Gate) SaveCode(ctx context.Context, code string) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	phase := g.phase
	if phase != PhaseSet && phase != PhaseEdit {
		g.mu.Unlock()
		return ErrWrongPhase
	}
	if strings.TrimSpace(code) == "" {
		g.message = msgInvalid
		g.mu.Unlock()
		return ErrInvalidCode
	}
	g.mu.Unlock()

	// key derivation is slow; keep the lock free meanwhile
	ct, err := g.cipher.Encrypt(g.sentinel, code)
	if err == nil {
		err = g.store.Set(ctx, models.SecurityCodeKey, ct)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if err != nil {
		g.log.Error("failed to save security code", zap.Error(err))
		g.message = msgSaveFailed
		return err
	}
	g.hasCode = true
	g.phase = PhaseStart
	if phase == PhaseEdit {
		g.message = msgUpdated
	} else {
		g.message = msgSaved
	}
	g.log.Info("security code stored", zap.String("phase", string(phase)))
	return nil
}

// Authenticate runs the biometric prompt required to move from start to
// verify. A failure leaves the gate in start. Cancelling ctx or closing the
// gate discards the prompt result.
func (g *Gate) Authenticate(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if g.phase != PhaseStart {
		g.mu.Unlock()
		return ErrWrongPhase
	}
	g.mu.Unlock()

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(g.ctx, cancel)
	defer stop()

	res, err := g.bio.Authenticate(pctx, UnlockPrompt)
	if g.ctx.Err() != nil {
		return ErrClosed
	}
	if cerr := pctx.Err(); cerr != nil {
		return cerr
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseStart {
		return ErrWrongPhase
	}
	if err != nil || !res.Success {
		if err != nil {
			g.log.Warn("biometric prompt failed", zap.Error(err))
		}
		g.message = msgAuthFailed
		return ErrBiometricFailed
	}
	g.phase = PhaseVerify
	g.message = ""
	return nil
}

// Verify checks code against the stored sentinel. On success the gate moves
// to edit and, when a handoff is pending, marks it verified and returns it.
// Any decryption problem counts as a mismatch and the gate stays in verify.
func (g *Gate) Verify(ctx context.Context, code string) (*models.PendingAction, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	if g.phase != PhaseVerify {
		g.mu.Unlock()
		return nil, ErrWrongPhase
	}
	if g.limiter != nil && !g.limiter.Allow() {
		g.message = msgSlowDown
		g.mu.Unlock()
		return nil, ErrRateLimited
	}
	if strings.TrimSpace(code) == "" {
		g.message = msgInvalid
		g.mu.Unlock()
		return nil, ErrInvalidCode
	}
	g.mu.Unlock()

	ct, ok, err := g.store.Get(ctx, models.SecurityCodeKey)
	matched := false
	if err == nil && ok {
		matched = g.cipher.Verify(ct, code, g.sentinel)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}
	switch {
	case err != nil:
		g.log.Error("failed to read security code", zap.Error(err))
		g.message = msgVerifyFailed
		return nil, err
	case !ok:
		g.hasCode = false
		g.message = msgNoCode
		return nil, ErrNoCode
	case !matched:
		g.log.Info("security code mismatch")
		g.message = msgMismatch
		return nil, ErrCodeMismatch
	}

	g.phase = PhaseEdit
	g.message = ""
	if g.handoff == nil {
		return nil, nil
	}
	p, pending := g.handoff.MarkVerified()
	if !pending {
		return nil, nil
	}
	g.log.Info("pending action verified",
		zap.String("id", p.ID),
		zap.String("action", string(p.Action)),
	)
	return &p, nil
}

// Lock returns the gate to start, as when the user leaves the screen.
func (g *Gate) Lock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase == PhaseVerify || g.phase == PhaseEdit {
		g.phase = PhaseStart
	}
	g.message = ""
}

// Close cancels any biometric prompt in flight.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()
}
