// Package models defines the core data structures shared by the PIN lock,
// the security-code gate and the storage backends.
package models

import "time"

// Storage keys used in the secure store.
const (
	// PinKey holds the 6-digit app-entry PIN.
	PinKey = "user_pin_code"
	// RetryAttemptsKey holds the number of consecutive wrong PIN entries.
	RetryAttemptsKey = "pin_retry_attempts"
	// LockoutKey holds the lockout expiry as unix milliseconds.
	LockoutKey = "pin_lockout_timestamp"
	// SecurityCodeKey holds the encrypted security-code sentinel.
	SecurityCodeKey = "ac"
)

// PinLength is the fixed number of digits in a PIN.
const PinLength = 6

// RetryState is the persisted retry bookkeeping of the PIN lock.
type RetryState struct {
	// Attempts is the number of consecutive wrong verifications.
	Attempts int
	// LockedUntil is the lockout expiry; zero when no lockout is active.
	LockedUntil time.Time
}

// Locked reports whether input must be rejected at now.
func (r RetryState) Locked(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

// Remaining returns the lockout time left at now, rounded up to whole seconds.
func (r RetryState) Remaining(now time.Time) time.Duration {
	if !r.Locked(now) {
		return 0
	}
	left := r.LockedUntil.Sub(now)
	secs := (left + time.Second - 1) / time.Second
	return secs * time.Second
}

// Action identifies a gated file action.
type Action string

const (
	// ActionShare hands the file to the platform share sheet.
	ActionShare Action = "share"
	// ActionSave copies the file to device storage.
	ActionSave Action = "save"
	// ActionDelete removes the file.
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of the known gated actions.
func (a Action) Valid() bool {
	switch a {
	case ActionShare, ActionSave, ActionDelete:
		return true
	}
	return false
}

// FileRef points at the file a gated action operates on.
type FileRef struct {
	// URI is the location of the file.
	URI string `json:"uri"`
	// Name is the display name.
	Name string `json:"name"`
}

// ReturnTo describes the screen to return to once verification succeeds.
type ReturnTo struct {
	Endpoint string            `json:"endpoint"`
	Params   map[string]string `json:"params,omitempty"`
}

// Equal reports whether both targets point at the same screen and params.
func (r ReturnTo) Equal(o ReturnTo) bool {
	if r.Endpoint != o.Endpoint || len(r.Params) != len(o.Params) {
		return false
	}
	for k, v := range r.Params {
		if ov, ok := o.Params[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// PendingAction is the in-memory cross-screen handoff for a gated action
// awaiting verification. It never leaves process memory.
type PendingAction struct {
	ID       string   `json:"id"`
	Verified bool     `json:"verified"`
	Action   Action   `json:"action"`
	ReturnTo ReturnTo `json:"return_to"`
	File     FileRef  `json:"file"`
}
