// Package service exposes the session state machines as request-sized
// operations for the HTTP handlers and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/atinyakov/GophLock/internal/pinlock"
)

// ErrUnknownResetMethod is returned by Reset for methods other than
// biometric, pin and cancel.
var ErrUnknownResetMethod = errors.New("unknown reset method")

// Reset methods accepted by PinService.Reset.
const (
	ResetBiometric = "biometric"
	ResetPin       = "pin"
	ResetCancel    = "cancel"
)

// PinMachine is the part of the PIN lock the service drives.
type PinMachine interface {
	View() pinlock.View
	AppendDigit(d rune) error
	DeleteDigit() error
	DeleteAll() error
	Submit(ctx context.Context) (pinlock.Outcome, error)
	BeginReset() error
	RequestReset(ctx context.Context) error
	CancelReset() error
}

// Locker re-locks the surrounding session.
type Locker interface {
	Lock(ctx context.Context)
	Unlocked() bool
}

// SubmitResult is what a PIN submission did plus the resulting screen.
type SubmitResult struct {
	Outcome  pinlock.Outcome `json:"outcome"`
	Unlocked bool            `json:"unlocked"`
	View     pinlock.View    `json:"view"`
}

// PinService drives the PIN lock.
type PinService struct {
	machine PinMachine
	session Locker
}

// NewPinService constructs a PinService over m, locking through s.
func NewPinService(m PinMachine, s Locker) *PinService {
	return &PinService{machine: m, session: s}
}

// View returns the current PIN screen.
func (s *PinService) View() pinlock.View {
	return s.machine.View()
}

// PressDigits appends every digit of digits in order and stops at the first
// rejected one.
func (s *PinService) PressDigits(digits string) (pinlock.View, error) {
	if digits == "" {
		return s.machine.View(), fmt.Errorf("%w: empty", pinlock.ErrInvalidDigit)
	}
	for _, d := range digits {
		if err := s.machine.AppendDigit(d); err != nil {
			return s.machine.View(), err
		}
	}
	return s.machine.View(), nil
}

// Delete removes the last digit, or the whole entry when all is set.
func (s *PinService) Delete(all bool) (pinlock.View, error) {
	var err error
	if all {
		err = s.machine.DeleteAll()
	} else {
		err = s.machine.DeleteDigit()
	}
	return s.machine.View(), err
}

// Submit submits the current entry.
func (s *PinService) Submit(ctx context.Context) (SubmitResult, error) {
	out, err := s.machine.Submit(ctx)
	return SubmitResult{
		Outcome:  out,
		Unlocked: s.session.Unlocked(),
		View:     s.machine.View(),
	}, err
}

// Reset opens or cancels the PIN reset flow.
func (s *PinService) Reset(ctx context.Context, method string) (pinlock.View, error) {
	var err error
	switch method {
	case ResetBiometric:
		err = s.machine.RequestReset(ctx)
	case ResetPin:
		err = s.machine.BeginReset()
	case ResetCancel:
		err = s.machine.CancelReset()
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownResetMethod, method)
	}
	return s.machine.View(), err
}

// Lock locks the session and returns the login screen.
func (s *PinService) Lock(ctx context.Context) pinlock.View {
	s.session.Lock(ctx)
	return s.machine.View()
}
