// Package pinlock implements the app-entry PIN lock: create, login and reset
// flows over a persisted 6-digit PIN, with retry counting and progressive
// lockout.
package pinlock

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atinyakov/GophLock/internal/biometric"
	"github.com/atinyakov/GophLock/internal/feedback"
	"github.com/atinyakov/GophLock/internal/models"
	"github.com/atinyakov/GophLock/internal/store"
	"go.uber.org/zap"
)

// Outcome describes what a Submit did.
type Outcome string

const (
	// OutcomeNone means nothing changed, usually because the entry was incomplete.
	OutcomeNone Outcome = "none"
	// OutcomeAdvanced means the flow moved to its next step.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeSaved means a new PIN was persisted.
	OutcomeSaved Outcome = "saved"
	// OutcomeUnlocked means the login PIN matched.
	OutcomeUnlocked Outcome = "unlocked"
	// OutcomeRejected means a wrong PIN or a confirmation mismatch.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means storage failed; the message says so.
	OutcomeFailed Outcome = "failed"
)

// ResetPrompt is shown by the biometric dialog guarding PIN reset.
var ResetPrompt = biometric.Prompt{
	Message:       "Authenticate to reset your PIN",
	FallbackLabel: "Use PIN",
	CancelLabel:   "Cancel",
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the operator log.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithFeedback sets the haptic sink.
func WithFeedback(f feedback.Feedback) Option {
	return func(m *Machine) { m.haptics = f }
}

// WithBiometric enables the biometric reset path.
func WithBiometric(a biometric.Authenticator) Option {
	return func(m *Machine) { m.bio = a }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithTickInterval sets the lockout countdown cadence. Defaults to one second.
func WithTickInterval(d time.Duration) Option {
	return func(m *Machine) { m.tick = d }
}

// WithClearDelay sets how long a rejected login entry stays visible.
// Zero clears it immediately.
func WithClearDelay(d time.Duration) Option {
	return func(m *Machine) { m.clearDelay = d }
}

// WithOnSuccess registers the unlock callback. It runs after a matching
// login PIN, outside of any internal lock.
func WithOnSuccess(fn func()) Option {
	return func(m *Machine) { m.onSuccess = fn }
}

// WithOnChange registers a callback receiving every new View, including
// countdown ticks.
func WithOnChange(fn func(View)) Option {
	return func(m *Machine) { m.onChange = fn }
}

// Machine is the PIN lock. All methods are safe for concurrent use; Submit
// is single-flight.
type Machine struct {
	store      store.Store
	log        *zap.Logger
	haptics    feedback.Feedback
	bio        biometric.Authenticator
	now        func() time.Time
	tick       time.Duration
	clearDelay time.Duration
	onSuccess  func()
	onChange   func(View)

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	submitting atomic.Bool

	mu            sync.Mutex
	state         State
	message       string
	retry         models.RetryState
	pinSet        bool
	bioAvailable  bool
	gen           uint64
	stopCountdown context.CancelFunc
	clearTimer    *time.Timer
	closed        bool
}

// New returns a Machine in the Loading state. Call CheckExistingPin to
// start it and Close to release its background work.
func New(s store.Store, opts ...Option) *Machine {
	m := &Machine{
		store:      s,
		log:        zap.NewNop(),
		haptics:    feedback.Nop{},
		now:        time.Now,
		tick:       time.Second,
		clearDelay: 500 * time.Millisecond,
		state:      Loading{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// CheckExistingPin looks up the stored PIN and enters login when one exists,
// create otherwise. It also restores a persisted lockout. A storage failure
// falls back to create and is returned.
func (m *Machine) CheckExistingPin(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	err := m.checkLocked(ctx)
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
	return err
}

func (m *Machine) checkLocked(ctx context.Context) error {
	if m.bio != nil {
		m.bioAvailable = biometric.Available(ctx, m.bio)
	}

	_, ok, err := m.store.Get(ctx, models.PinKey)
	if err != nil {
		m.log.Error("failed to check stored pin", zap.Error(err))
		m.pinSet = false
		m.transition(CreateEntry{})
		return err
	}
	m.pinSet = ok
	if ok {
		m.transition(LoginEntry{})
	} else {
		m.transition(CreateEntry{})
	}
	m.loadRetryLocked(ctx)
	return nil
}

// loadRetryLocked restores attempts and lockout from the store. An expired
// or unreadable lockout is cleared.
func (m *Machine) loadRetryLocked(ctx context.Context) {
	attempts := m.loadAttempts(ctx)

	raw, ok, err := m.store.Get(ctx, models.LockoutKey)
	if err != nil {
		m.log.Error("failed to check lockout status", zap.Error(err))
		m.retry.Attempts = attempts
		return
	}
	if !ok {
		m.retry = models.RetryState{Attempts: attempts}
		return
	}

	ms, perr := strconv.ParseInt(raw, 10, 64)
	if perr == nil {
		until := time.UnixMilli(ms)
		if m.now().Before(until) {
			m.retry = models.RetryState{Attempts: attempts, LockedUntil: until}
			m.startCountdownLocked()
			return
		}
	} else {
		m.log.Warn("discarding unreadable lockout timestamp", zap.String("value", raw))
	}

	if err := m.resetRetryLocked(ctx); err != nil {
		m.log.Error("failed to clear expired lockout", zap.Error(err))
	}
}

func (m *Machine) loadAttempts(ctx context.Context) int {
	raw, ok, err := m.store.Get(ctx, models.RetryAttemptsKey)
	if err != nil {
		m.log.Error("failed to read retry attempts", zap.Error(err))
		return m.retry.Attempts
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		m.log.Warn("discarding unreadable retry attempts", zap.String("value", raw))
		return 0
	}
	return n
}

// AppendDigit adds d to the active buffer. A digit typed on a full buffer
// is ignored, except that it starts the confirmation of a new PIN.
func (m *Machine) AppendDigit(d rune) error {
	if d < '0' || d > '9' {
		return ErrInvalidDigit
	}
	if m.submitting.Load() {
		return ErrBusy
	}

	m.mu.Lock()
	if err := m.inputAllowedLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	next, ok := m.state.push(byte(d))
	if !ok {
		m.mu.Unlock()
		return nil
	}
	m.transition(next)
	idx := len(next.Entry()) - 1
	v := m.viewLocked()
	m.mu.Unlock()

	m.haptics.Vibrate(feedback.DigitVibration)
	m.haptics.Pulse(idx)
	m.emit(v)
	return nil
}

// DeleteDigit removes the last digit of the active buffer.
func (m *Machine) DeleteDigit() error {
	return m.edit(func(s State) State { return s.pop() }, feedback.DeleteVibration)
}

// DeleteAll empties the active buffer.
func (m *Machine) DeleteAll() error {
	return m.edit(func(s State) State { return s.clear() }, feedback.DeleteAllVibration)
}

func (m *Machine) edit(fn func(State) State, cue time.Duration) error {
	if m.submitting.Load() {
		return ErrBusy
	}

	m.mu.Lock()
	if err := m.inputAllowedLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.transition(fn(m.state))
	v := m.viewLocked()
	m.mu.Unlock()

	m.haptics.Vibrate(cue)
	m.emit(v)
	return nil
}

func (m *Machine) inputAllowedLocked() error {
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.state.(Loading); ok {
		return ErrNotReady
	}
	now := m.now()
	m.expireLockoutLocked(m.ctx, now)
	if m.retry.Locked(now) {
		return &LockoutError{Remaining: m.retry.Remaining(now)}
	}
	return nil
}

// expireLockoutLocked clears a lockout whose deadline has passed but which
// the countdown has not reached yet, so the next failure counts from zero.
func (m *Machine) expireLockoutLocked(ctx context.Context, now time.Time) {
	if m.retry.LockedUntil.IsZero() || m.retry.Locked(now) {
		return
	}
	if err := m.resetRetryLocked(ctx); err != nil {
		m.log.Error("failed to clear expired lockout", zap.Error(err))
	}
	m.message = ""
	m.log.Info("pin lockout expired")
}

// Submit acts on the current step. A wrong PIN is reported as
// OutcomeRejected, not as an error. Concurrent calls get ErrBusy.
func (m *Machine) Submit(ctx context.Context) (Outcome, error) {
	if !m.submitting.CompareAndSwap(false, true) {
		return OutcomeNone, ErrBusy
	}
	defer m.submitting.Store(false)

	m.mu.Lock()
	out, err := m.submitLocked(ctx)
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
	if out == OutcomeUnlocked && m.onSuccess != nil {
		m.onSuccess()
	}
	return out, err
}

func (m *Machine) submitLocked(ctx context.Context) (Outcome, error) {
	if m.closed {
		return OutcomeNone, ErrClosed
	}
	if _, ok := m.state.(Loading); ok {
		return OutcomeNone, ErrNotReady
	}
	now := m.now()
	m.expireLockoutLocked(ctx, now)
	if m.retry.Locked(now) {
		rem := m.retry.Remaining(now)
		m.message = msgTooMany(rem)
		return OutcomeNone, &LockoutError{Remaining: rem}
	}

	switch s := m.state.(type) {
	case CreateEntry:
		if !full(s.PIN) {
			return m.incompleteLocked()
		}
		m.transition(CreateConfirm{PIN: s.PIN})
		return OutcomeAdvanced, nil

	case CreateConfirm:
		if !full(s.Confirm) {
			return m.incompleteLocked()
		}
		if s.PIN != s.Confirm {
			m.transition(CreateEntry{})
			m.failLocked(msgMismatch)
			return OutcomeRejected, nil
		}
		return m.saveLocked(ctx, s.PIN)

	case LoginEntry:
		if !full(s.PIN) {
			return m.incompleteLocked()
		}
		ok, err := m.matchesLocked(ctx, s.PIN)
		if err != nil {
			m.failLocked(msgVerifyError)
			return OutcomeFailed, err
		}
		if !ok {
			m.registerFailureLocked(ctx)
			m.scheduleClearLocked()
			return OutcomeRejected, nil
		}
		if err := m.resetRetryLocked(ctx); err != nil {
			m.log.Error("failed to reset retry attempts", zap.Error(err))
		}
		m.transition(LoginEntry{})
		m.message = ""
		m.log.Info("pin accepted")
		return OutcomeUnlocked, nil

	case ResetOld:
		if !full(s.Old) {
			return m.incompleteLocked()
		}
		ok, err := m.matchesLocked(ctx, s.Old)
		if err != nil {
			if _, still := m.state.(ResetOld); still {
				m.transition(ResetOld{})
			}
			m.failLocked(msgVerifyError)
			return OutcomeFailed, err
		}
		if !ok {
			m.transition(ResetOld{})
			m.registerFailureLocked(ctx)
			return OutcomeRejected, nil
		}
		if err := m.resetRetryLocked(ctx); err != nil {
			m.log.Error("failed to reset retry attempts", zap.Error(err))
		}
		m.transition(ResetEntry{Old: s.Old})
		m.message = ""
		return OutcomeAdvanced, nil

	case ResetEntry:
		if !full(s.PIN) {
			return m.incompleteLocked()
		}
		m.transition(ResetConfirm{Old: s.Old, PIN: s.PIN})
		return OutcomeAdvanced, nil

	case ResetConfirm:
		if !full(s.Confirm) {
			return m.incompleteLocked()
		}
		if s.PIN != s.Confirm {
			m.transition(ResetEntry{Old: s.Old})
			m.failLocked(msgNewMismatch)
			return OutcomeRejected, nil
		}
		return m.saveLocked(ctx, s.PIN)
	}
	return OutcomeNone, fmt.Errorf("unexpected state %T", m.state)
}

func (m *Machine) incompleteLocked() (Outcome, error) {
	m.failLocked(msgIncomplete)
	return OutcomeNone, nil
}

func (m *Machine) failLocked(msg string) {
	m.message = msg
	m.haptics.Shake()
	m.haptics.Vibrate(feedback.FailurePattern...)
}

func (m *Machine) matchesLocked(ctx context.Context, entered string) (bool, error) {
	stored, ok, err := m.store.Get(ctx, models.PinKey)
	if err != nil {
		m.log.Error("failed to read stored pin", zap.Error(err))
		return false, err
	}
	if !ok {
		// the PIN vanished underneath us; start over
		m.log.Warn("stored pin missing during verification")
		m.pinSet = false
		m.transition(CreateEntry{})
		return false, store.Wrap("get", models.PinKey, fmt.Errorf("pin not set"))
	}
	return subtle.ConstantTimeCompare([]byte(entered), []byte(stored)) == 1, nil
}

func (m *Machine) saveLocked(ctx context.Context, pin string) (Outcome, error) {
	if err := m.store.Set(ctx, models.PinKey, pin); err != nil {
		m.log.Error("failed to save pin", zap.Error(err))
		m.failLocked(msgSaveError)
		return OutcomeFailed, err
	}
	m.pinSet = true
	if err := m.resetRetryLocked(ctx); err != nil {
		m.log.Error("failed to reset retry attempts", zap.Error(err))
	}
	m.transition(LoginEntry{})
	m.message = ""
	m.log.Info("pin saved")
	return OutcomeSaved, nil
}

// registerFailureLocked counts a wrong PIN. The count is re-read from the
// store so the lockout never derives from a stale value, and attempts are
// written before the lockout timestamp.
func (m *Machine) registerFailureLocked(ctx context.Context) {
	attempts := m.loadAttempts(ctx) + 1
	if err := m.store.Set(ctx, models.RetryAttemptsKey, strconv.Itoa(attempts)); err != nil {
		// no lockout from a count the store does not hold
		m.log.Error("failed to persist retry attempts", zap.Error(err))
		m.failLocked(msgVerifyError)
		return
	}
	m.retry.Attempts = attempts

	msg := msgIncorrect(MaxAttempts - attempts)
	if d := LockoutDuration(attempts); d > 0 {
		until := m.now().Add(d)
		if err := m.store.Set(ctx, models.LockoutKey, strconv.FormatInt(until.UnixMilli(), 10)); err != nil {
			m.log.Error("failed to persist lockout", zap.Error(err))
		}
		m.retry.LockedUntil = until
		m.startCountdownLocked()
		msg = msgTooMany(d)
		m.log.Warn("pin locked out",
			zap.Int("attempts", attempts),
			zap.Duration("duration", d),
		)
	}
	m.failLocked(msg)
}

// ResetRetryAttempts clears the attempt counter and any lockout. Calling it
// repeatedly has the same effect as calling it once.
func (m *Machine) ResetRetryAttempts(ctx context.Context) error {
	m.mu.Lock()
	err := m.resetRetryLocked(ctx)
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
	return err
}

// resetRetryLocked deletes the lockout before the attempts so a crash in
// between never leaves a lockout without its count.
func (m *Machine) resetRetryLocked(ctx context.Context) error {
	m.stopCountdownLocked()
	m.retry = models.RetryState{}

	if err := m.store.Delete(ctx, models.LockoutKey); err != nil {
		return err
	}
	return m.store.Delete(ctx, models.RetryAttemptsKey)
}

func (m *Machine) startCountdownLocked() {
	m.stopCountdownLocked()
	ctx, cancel := context.WithCancel(m.ctx)
	m.stopCountdown = cancel
	m.wg.Add(1)
	go m.countdown(ctx)
}

func (m *Machine) stopCountdownLocked() {
	if m.stopCountdown != nil {
		m.stopCountdown()
		m.stopCountdown = nil
	}
}

// countdown publishes the remaining lockout every tick. At expiry it clears
// the retry state and re-checks the stored PIN.
func (m *Machine) countdown(ctx context.Context) {
	defer m.wg.Done()
	t := time.NewTicker(m.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		m.mu.Lock()
		if ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		if m.retry.Locked(m.now()) {
			v := m.viewLocked()
			m.mu.Unlock()
			m.emit(v)
			continue
		}

		if err := m.resetRetryLocked(m.ctx); err != nil {
			m.log.Error("failed to clear expired lockout", zap.Error(err))
		}
		if err := m.checkLocked(m.ctx); err != nil {
			m.log.Error("failed to re-check pin after lockout", zap.Error(err))
		}
		m.log.Info("pin lockout expired")
		v := m.viewLocked()
		m.mu.Unlock()
		m.emit(v)
		return
	}
}

// scheduleClearLocked empties the rejected entry after the clear delay,
// unless the state changed in the meantime.
func (m *Machine) scheduleClearLocked() {
	if m.clearDelay <= 0 {
		m.transition(m.state.clear())
		return
	}
	if m.clearTimer != nil {
		m.clearTimer.Stop()
	}
	gen := m.gen
	m.clearTimer = time.AfterFunc(m.clearDelay, func() {
		m.mu.Lock()
		if m.closed || m.gen != gen {
			m.mu.Unlock()
			return
		}
		m.transition(m.state.clear())
		v := m.viewLocked()
		m.mu.Unlock()
		m.emit(v)
	})
}

// BeginReset enters the reset flow without biometrics. The current PIN is
// still required as its first step.
func (m *Machine) BeginReset() error {
	m.mu.Lock()
	if err := m.resetAllowedLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.transition(ResetOld{})
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
	return nil
}

// RequestReset enters the reset flow after a successful biometric prompt.
// Biometrics only open the flow: the current PIN is still required. If ctx
// is cancelled or the machine is closed while the prompt is up, the result
// is discarded.
func (m *Machine) RequestReset(ctx context.Context) error {
	m.mu.Lock()
	if err := m.resetAllowedLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	bio := m.bio
	m.mu.Unlock()

	if bio == nil {
		return biometric.ErrUnavailable
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	res, err := bio.Authenticate(pctx, ResetPrompt)
	if m.ctx.Err() != nil {
		return ErrClosed
	}
	if cerr := pctx.Err(); cerr != nil {
		return cerr
	}

	m.mu.Lock()
	if err != nil || !res.Success {
		if err != nil {
			m.log.Warn("biometric reset prompt failed", zap.Error(err))
		}
		m.message = msgBiometricErr
		v := m.viewLocked()
		m.mu.Unlock()
		m.emit(v)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBiometricFailed, err)
		}
		return ErrBiometricFailed
	}
	if err := m.resetAllowedLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.transition(ResetOld{})
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
	return nil
}

func (m *Machine) resetAllowedLocked() error {
	if err := m.inputAllowedLocked(); err != nil {
		return err
	}
	if _, ok := m.state.(LoginEntry); !ok || !m.pinSet {
		return ErrResetUnavailable
	}
	return nil
}

// CancelReset abandons the reset flow and returns to login.
func (m *Machine) CancelReset() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state.Mode() != ModeReset {
		m.mu.Unlock()
		return nil
	}
	m.transition(LoginEntry{})
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
	return nil
}

// State returns the current step.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retry returns the in-memory mirror of the persisted retry state.
func (m *Machine) Retry() models.RetryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retry
}

// Close stops the countdown, any pending entry clear and any biometric
// prompt in flight. It is safe to call more than once.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.clearTimer != nil {
		m.clearTimer.Stop()
	}
	m.stopCountdownLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// transition moves to next. The message survives changes within a mode and
// is dropped when the mode changes.
func (m *Machine) transition(next State) {
	if next.Mode() != m.state.Mode() {
		m.message = ""
	}
	m.state = next
	m.gen++
}

func (m *Machine) emit(v View) {
	if m.onChange != nil {
		m.onChange(v)
	}
}
