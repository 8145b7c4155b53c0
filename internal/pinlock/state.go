package pinlock

import "github.com/atinyakov/GophLock/internal/models"

// Mode is the coarse PIN screen mode.
type Mode string

const (
	ModeLoading Mode = "loading"
	ModeCreate  Mode = "create"
	ModeLogin   Mode = "login"
	ModeReset   Mode = "reset"
)

// State is one step of the PIN flow. Each variant holds only the buffers
// that step needs; the last one listed is the active buffer.
type State interface {
	Mode() Mode
	Title() string
	Subtitle() string
	// Entry returns the active buffer.
	Entry() string

	// push routes an accepted digit and reports whether it was taken.
	push(d byte) (State, bool)
	// pop removes the last digit of the active buffer.
	pop() State
	// clear empties the active buffer.
	clear() State
}

// Loading is the initial state, before the stored PIN has been looked up.
type Loading struct{}

// CreateEntry collects a new PIN on first launch.
type CreateEntry struct{ PIN string }

// CreateConfirm collects the confirmation of a new PIN.
type CreateConfirm struct{ PIN, Confirm string }

// LoginEntry collects the PIN that unlocks the app.
type LoginEntry struct{ PIN string }

// ResetOld collects the current PIN before a reset.
type ResetOld struct{ Old string }

// ResetEntry collects the replacement PIN. Old has already been verified.
type ResetEntry struct{ Old, PIN string }

// ResetConfirm collects the confirmation of the replacement PIN.
type ResetConfirm struct{ Old, PIN, Confirm string }

func full(s string) bool { return len(s) >= models.PinLength }

func trim(s string) string {
	if s == "" {
		return s
	}
	return s[:len(s)-1]
}

func (Loading) Mode() Mode                { return ModeLoading }
func (Loading) Title() string             { return "" }
func (Loading) Subtitle() string          { return "" }
func (Loading) Entry() string             { return "" }
func (s Loading) push(byte) (State, bool) { return s, false }
func (s Loading) pop() State              { return s }
func (s Loading) clear() State            { return s }

func (CreateEntry) Mode() Mode       { return ModeCreate }
func (CreateEntry) Title() string    { return "Create PIN" }
func (CreateEntry) Subtitle() string { return "Please create a 6-digit PIN code" }
func (s CreateEntry) Entry() string  { return s.PIN }
func (s CreateEntry) pop() State     { return CreateEntry{PIN: trim(s.PIN)} }
func (s CreateEntry) clear() State   { return CreateEntry{} }
func (s CreateEntry) push(d byte) (State, bool) {
	if full(s.PIN) {
		return CreateConfirm{PIN: s.PIN, Confirm: string(d)}, true
	}
	return CreateEntry{PIN: s.PIN + string(d)}, true
}

func (CreateConfirm) Mode() Mode       { return ModeCreate }
func (CreateConfirm) Title() string    { return "Confirm PIN" }
func (CreateConfirm) Subtitle() string { return "Please re-enter your 6-digit PIN to confirm" }
func (s CreateConfirm) Entry() string  { return s.Confirm }
func (s CreateConfirm) push(d byte) (State, bool) {
	if full(s.Confirm) {
		return s, false
	}
	return CreateConfirm{PIN: s.PIN, Confirm: s.Confirm + string(d)}, true
}
func (s CreateConfirm) pop() State {
	if s.Confirm == "" {
		return CreateEntry{PIN: trim(s.PIN)}
	}
	return CreateConfirm{PIN: s.PIN, Confirm: trim(s.Confirm)}
}
func (s CreateConfirm) clear() State {
	if s.Confirm == "" {
		return CreateEntry{}
	}
	return CreateConfirm{PIN: s.PIN}
}

func (LoginEntry) Mode() Mode       { return ModeLogin }
func (LoginEntry) Title() string    { return "Enter PIN" }
func (LoginEntry) Subtitle() string { return "Please enter your 6-digit PIN code" }
func (s LoginEntry) Entry() string  { return s.PIN }
func (s LoginEntry) pop() State     { return LoginEntry{PIN: trim(s.PIN)} }
func (s LoginEntry) clear() State   { return LoginEntry{} }
func (s LoginEntry) push(d byte) (State, bool) {
	if full(s.PIN) {
		return s, false
	}
	return LoginEntry{PIN: s.PIN + string(d)}, true
}

func (ResetOld) Mode() Mode       { return ModeReset }
func (ResetOld) Title() string    { return "Enter Current PIN" }
func (ResetOld) Subtitle() string { return "Enter your current PIN code" }
func (s ResetOld) Entry() string  { return s.Old }
func (s ResetOld) pop() State     { return ResetOld{Old: trim(s.Old)} }
func (s ResetOld) clear() State   { return ResetOld{} }

// push never advances past the old PIN: only a successful Submit does.
func (s ResetOld) push(d byte) (State, bool) {
	if full(s.Old) {
		return s, false
	}
	return ResetOld{Old: s.Old + string(d)}, true
}

func (ResetEntry) Mode() Mode       { return ModeReset }
func (ResetEntry) Title() string    { return "Create New PIN" }
func (ResetEntry) Subtitle() string { return "Create a new 6-digit PIN code" }
func (s ResetEntry) Entry() string  { return s.PIN }
func (s ResetEntry) pop() State     { return ResetEntry{Old: s.Old, PIN: trim(s.PIN)} }
func (s ResetEntry) clear() State   { return ResetEntry{Old: s.Old} }
func (s ResetEntry) push(d byte) (State, bool) {
	if full(s.PIN) {
		return ResetConfirm{Old: s.Old, PIN: s.PIN, Confirm: string(d)}, true
	}
	return ResetEntry{Old: s.Old, PIN: s.PIN + string(d)}, true
}

func (ResetConfirm) Mode() Mode       { return ModeReset }
func (ResetConfirm) Title() string    { return "Confirm New PIN" }
func (ResetConfirm) Subtitle() string { return "Please re-enter your new PIN to confirm" }
func (s ResetConfirm) Entry() string  { return s.Confirm }
func (s ResetConfirm) push(d byte) (State, bool) {
	if full(s.Confirm) {
		return s, false
	}
	return ResetConfirm{Old: s.Old, PIN: s.PIN, Confirm: s.Confirm + string(d)}, true
}
func (s ResetConfirm) pop() State {
	if s.Confirm == "" {
		return ResetEntry{Old: s.Old, PIN: trim(s.PIN)}
	}
	return ResetConfirm{Old: s.Old, PIN: s.PIN, Confirm: trim(s.Confirm)}
}
func (s ResetConfirm) clear() State {
	if s.Confirm == "" {
		return ResetEntry{Old: s.Old}
	}
	return ResetConfirm{Old: s.Old, PIN: s.PIN}
}
