package pinlock

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MaxAttempts is the number of wrong entries allowed before the first lockout.
const MaxAttempts = 3

// LockoutDuration returns how long input is rejected after the given number
// of consecutive wrong entries.
func LockoutDuration(attempts int) time.Duration {
	switch {
	case attempts >= 6:
		return 15 * time.Minute
	case attempts == 5:
		return 5 * time.Minute
	case attempts == 4:
		return time.Minute
	case attempts == 3:
		return 30 * time.Second
	}
	return 0
}

var (
	// ErrLockedOut matches every *LockoutError.
	ErrLockedOut = errors.New("pin entry locked")
	// ErrBusy is returned while another submission is in flight.
	ErrBusy = errors.New("submission in progress")
	// ErrNotReady is returned before CheckExistingPin has completed.
	ErrNotReady = errors.New("pin state not loaded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pin machine closed")
	// ErrInvalidDigit is returned for anything but a single ASCII digit.
	ErrInvalidDigit = errors.New("invalid digit")
	// ErrResetUnavailable is returned when a reset is requested outside of login.
	ErrResetUnavailable = errors.New("reset is only available from login")
	// ErrBiometricFailed is returned when the biometric prompt did not succeed.
	ErrBiometricFailed = errors.New("biometric authentication failed")
)

// LockoutError reports an active lockout.
type LockoutError struct {
	Remaining time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("pin entry locked for %ds", seconds(e.Remaining))
}

func (e *LockoutError) Is(target error) bool { return target == ErrLockedOut }

func seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// User-facing messages.
const (
	msgIncomplete   = "Please enter all 6 digits."
	msgMismatch     = "PINs do not match. Please try again."
	msgNewMismatch  = "New PINs do not match. Please try again."
	msgVerifyError  = "Error verifying PIN. Please try again."
	msgSaveError    = "Failed to save PIN. Please try again."
	msgBiometricErr = "Authentication failed. Please try again or use your current PIN to reset."
)

func msgIncorrect(remaining int) string {
	return fmt.Sprintf("Incorrect PIN. %d attempts remaining.", remaining)
}

func msgTooMany(d time.Duration) string {
	return fmt.Sprintf("Too many attempts. Try again in %ds.", seconds(d))
}
