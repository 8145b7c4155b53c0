package service

import (
	"context"
	"errors"
	"testing"

	"github.com/atinyakov/GophLock/internal/pinlock"
)

type mockMachine struct {
	digits       []rune
	appendErr    error
	deleted      int
	deletedAll   int
	submitFunc   func(ctx context.Context) (pinlock.Outcome, error)
	resetCalls   []string
	requestReset error
	view         pinlock.View
}

func (m *mockMachine) View() pinlock.View { return m.view }

func (m *mockMachine) AppendDigit(d rune) error {
	if m.appendErr != nil && d == 'x' {
		return m.appendErr
	}
	m.digits = append(m.digits, d)
	m.view.Filled = len(m.digits)
	return nil
}

func (m *mockMachine) DeleteDigit() error {
	m.deleted++
	return nil
}

func (m *mockMachine) DeleteAll() error {
	m.deletedAll++
	return nil
}

func (m *mockMachine) Submit(ctx context.Context) (pinlock.Outcome, error) {
	return m.submitFunc(ctx)
}

func (m *mockMachine) BeginReset() error {
	m.resetCalls = append(m.resetCalls, "pin")
	return nil
}

func (m *mockMachine) RequestReset(ctx context.Context) error {
	m.resetCalls = append(m.resetCalls, "biometric")
	return m.requestReset
}

func (m *mockMachine) CancelReset() error {
	m.resetCalls = append(m.resetCalls, "cancel")
	return nil
}

type mockLocker struct {
	unlocked bool
	locks    int
}

func (l *mockLocker) Lock(context.Context) {
	l.locks++
	l.unlocked = false
}

func (l *mockLocker) Unlocked() bool { return l.unlocked }

func TestPressDigits(t *testing.T) {
	m := &mockMachine{}
	svc := NewPinService(m, &mockLocker{})

	v, err := svc.PressDigits("123")
	if err != nil {
		t.Fatalf("PressDigits returned error: %v", err)
	}
	if v.Filled != 3 {
		t.Errorf("Filled = %d; want 3", v.Filled)
	}
	if string(m.digits) != "123" {
		t.Errorf("digits = %q; want %q", string(m.digits), "123")
	}
}

func TestPressDigits_StopsAtFirstError(t *testing.T) {
	wantErr := pinlock.ErrInvalidDigit
	m := &mockMachine{appendErr: wantErr}
	svc := NewPinService(m, &mockLocker{})

	_, err := svc.PressDigits("1x2")
	if !errors.Is(err, wantErr) {
		t.Fatalf("PressDigits error = %v; want %v", err, wantErr)
	}
	if string(m.digits) != "1" {
		t.Errorf("digits = %q; want %q", string(m.digits), "1")
	}
}

func TestPressDigits_Empty(t *testing.T) {
	svc := NewPinService(&mockMachine{}, &mockLocker{})
	if _, err := svc.PressDigits(""); !errors.Is(err, pinlock.ErrInvalidDigit) {
		t.Errorf("PressDigits(\"\") error = %v; want ErrInvalidDigit", err)
	}
}

func TestDelete(t *testing.T) {
	m := &mockMachine{}
	svc := NewPinService(m, &mockLocker{})

	if _, err := svc.Delete(false); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := svc.Delete(true); err != nil {
		t.Fatalf("Delete(all) returned error: %v", err)
	}
	if m.deleted != 1 || m.deletedAll != 1 {
		t.Errorf("deleted = %d, deletedAll = %d; want 1 and 1", m.deleted, m.deletedAll)
	}
}

func TestSubmit_ReportsUnlock(t *testing.T) {
	locker := &mockLocker{}
	m := &mockMachine{
		submitFunc: func(ctx context.Context) (pinlock.Outcome, error) {
			locker.unlocked = true
			return pinlock.OutcomeUnlocked, nil
		},
	}
	svc := NewPinService(m, locker)

	res, err := svc.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if res.Outcome != pinlock.OutcomeUnlocked || !res.Unlocked {
		t.Errorf("Submit = %+v; want unlocked outcome", res)
	}
}

func TestSubmit_PropagatesError(t *testing.T) {
	m := &mockMachine{
		submitFunc: func(ctx context.Context) (pinlock.Outcome, error) {
			return pinlock.OutcomeNone, pinlock.ErrBusy
		},
	}
	svc := NewPinService(m, &mockLocker{})

	res, err := svc.Submit(context.Background())
	if !errors.Is(err, pinlock.ErrBusy) {
		t.Fatalf("Submit error = %v; want ErrBusy", err)
	}
	if res.Unlocked {
		t.Error("Submit reported unlocked on error")
	}
}

func TestReset(t *testing.T) {
	m := &mockMachine{}
	svc := NewPinService(m, &mockLocker{})
	ctx := context.Background()

	for _, method := range []string{ResetPin, ResetBiometric, ResetCancel} {
		if _, err := svc.Reset(ctx, method); err != nil {
			t.Fatalf("Reset(%q) returned error: %v", method, err)
		}
	}
	want := []string{"pin", "biometric", "cancel"}
	for i, c := range want {
		if m.resetCalls[i] != c {
			t.Errorf("reset call %d = %q; want %q", i, m.resetCalls[i], c)
		}
	}

	if _, err := svc.Reset(ctx, "face"); !errors.Is(err, ErrUnknownResetMethod) {
		t.Errorf("Reset(face) error = %v; want ErrUnknownResetMethod", err)
	}
}

func TestReset_BiometricFailure(t *testing.T) {
	m := &mockMachine{requestReset: pinlock.ErrBiometricFailed}
	svc := NewPinService(m, &mockLocker{})

	if _, err := svc.Reset(context.Background(), ResetBiometric); !errors.Is(err, pinlock.ErrBiometricFailed) {
		t.Errorf("Reset error = %v; want ErrBiometricFailed", err)
	}
}

func TestLock(t *testing.T) {
	locker := &mockLocker{unlocked: true}
	svc := NewPinService(&mockMachine{}, locker)

	svc.Lock(context.Background())
	if locker.locks != 1 || locker.unlocked {
		t.Errorf("locks = %d, unlocked = %v; want 1 and false", locker.locks, locker.unlocked)
	}
}
