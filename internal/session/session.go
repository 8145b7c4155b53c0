// Package session wires one PIN lock, one security-code gate and their
// shared handoff into a lifetime-scoped unit.
package session

import (
	"context"
	"sync/atomic"

	"github.com/atinyakov/GophLock/internal/biometric"
	"github.com/atinyakov/GophLock/internal/feedback"
	"github.com/atinyakov/GophLock/internal/gate"
	"github.com/atinyakov/GophLock/internal/pinlock"
	"github.com/atinyakov/GophLock/internal/seal"
	"github.com/atinyakov/GophLock/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the collaborators of a Session.
type Config struct {
	Store     store.Store
	Cipher    *seal.Cipher
	Biometric biometric.Authenticator
	Feedback  feedback.Feedback
	Files     gate.FileActions
	// Sentinel overrides the gate sentinel when non-empty.
	Sentinel string
	// VerifyLimiter throttles security-code verification when set.
	VerifyLimiter *rate.Limiter
	Log           *zap.Logger
	// PinOptions are appended to the PIN machine options.
	PinOptions []pinlock.Option
}

// Session is the unlocked-or-not state of one running host app.
type Session struct {
	ID      string
	Pin     *pinlock.Machine
	Gate    *gate.Gate
	Guard   *gate.Guard
	Handoff *gate.Handoff

	log      *zap.Logger
	unlocked atomic.Bool
}

// New builds a Session and loads the stored PIN and security code. Load
// failures are logged; both machines fall back to their safe states.
func New(ctx context.Context, cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	bio := cfg.Biometric
	if bio == nil {
		bio = biometric.Unavailable{}
	}
	fb := cfg.Feedback
	if fb == nil {
		fb = feedback.Nop{}
	}

	s := &Session{
		ID:      uuid.NewString(),
		Handoff: gate.NewHandoff(),
	}
	s.log = log.With(zap.String("session", s.ID))

	pinOpts := append([]pinlock.Option{
		pinlock.WithLogger(s.log.Named("pin")),
		pinlock.WithFeedback(fb),
		pinlock.WithBiometric(bio),
		pinlock.WithOnSuccess(s.unlock),
	}, cfg.PinOptions...)
	s.Pin = pinlock.New(cfg.Store, pinOpts...)

	gateOpts := []gate.Option{
		gate.WithLogger(s.log.Named("gate")),
		gate.WithBiometric(bio),
		gate.WithHandoff(s.Handoff),
	}
	if cfg.Sentinel != "" {
		gateOpts = append(gateOpts, gate.WithSentinel(cfg.Sentinel))
	}
	if cfg.VerifyLimiter != nil {
		gateOpts = append(gateOpts, gate.WithVerifyLimiter(cfg.VerifyLimiter))
	}
	s.Gate = gate.New(cfg.Store, cfg.Cipher, gateOpts...)
	s.Guard = gate.NewGuard(s.Handoff, cfg.Files, s.log.Named("guard"), gate.WithRelock(s.Gate))

	if err := s.Pin.CheckExistingPin(ctx); err != nil {
		s.log.Error("pin lock started in create mode", zap.Error(err))
	}
	if err := s.Gate.Load(ctx); err != nil {
		s.log.Error("security code gate unavailable", zap.Error(err))
	}
	return s
}

func (s *Session) unlock() {
	s.unlocked.Store(true)
	s.log.Info("session unlocked")
}

// Unlocked reports whether the PIN has been entered since the last Lock.
func (s *Session) Unlocked() bool {
	return s.unlocked.Load()
}

// Lock requires the PIN again and drops any pending gated action.
func (s *Session) Lock(ctx context.Context) {
	s.unlocked.Store(false)
	s.Handoff.Clear()
	s.Gate.Lock()
	if err := s.Pin.CheckExistingPin(ctx); err != nil {
		s.log.Error("failed to re-check pin on lock", zap.Error(err))
	}
	s.log.Info("session locked")
}

// Close releases the background work of both machines.
func (s *Session) Close() {
	s.Pin.Close()
	s.Gate.Close()
}
