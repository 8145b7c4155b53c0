package main

import (
	"context"

	"github.com/atinyakov/GophLock/internal/pinlock"
	"github.com/atinyakov/GophLock/internal/service"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the PIN screen and, when unlocked, the gate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			v, err := a.api.PinView(ctx)
			if err != nil {
				return a.report(err)
			}
			a.renderPin(v)

			gv, err := a.api.GateView(ctx)
			if err != nil {
				warnStyle.Fprintln(a.out, "gate: app is locked")
				return nil
			}
			a.renderGate(gv)
			return nil
		},
	}
}

func newLockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Lock the app again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.api.Lock(a.ctx(cmd))
			if err != nil {
				return a.report(err)
			}
			a.renderPin(v)
			return nil
		},
	}
}

func newPinCmd(a *app) *cobra.Command {
	pin := &cobra.Command{
		Use:   "pin",
		Short: "Create, enter or reset the PIN",
	}

	enter := &cobra.Command{
		Use:   "enter [PIN]",
		Short: "Enter a PIN at the current step and submit it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digits, err := a.secret(args, "PIN: ")
			if err != nil {
				return err
			}
			_, err = a.enter(a.ctx(cmd), digits)
			return err
		},
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create the PIN on first run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.steps(a.ctx(cmd), "New PIN: ", "Confirm PIN: ")
		},
	}

	var useBiometric bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Change the PIN; the current PIN is always required",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			method := service.ResetPin
			if useBiometric {
				method = service.ResetBiometric
			}
			v, err := a.api.Reset(ctx, method)
			if err != nil {
				return a.report(err)
			}
			a.renderPin(v)
			return a.steps(ctx, "Current PIN: ", "New PIN: ", "Confirm new PIN: ")
		},
	}
	reset.Flags().BoolVar(&useBiometric, "biometric", false, "open the reset flow with biometrics")

	cancel := &cobra.Command{
		Use:   "cancel",
		Short: "Abandon a reset in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.api.Reset(a.ctx(cmd), service.ResetCancel)
			if err != nil {
				return a.report(err)
			}
			a.renderPin(v)
			return nil
		},
	}

	var all bool
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete the last entered digit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.api.DeleteDigit(a.ctx(cmd), all)
			if err != nil {
				return a.report(err)
			}
			a.renderPin(v)
			return nil
		},
	}
	del.Flags().BoolVar(&all, "all", false, "clear the whole entry")

	pin.AddCommand(enter, create, reset, cancel, del)
	return pin
}

// steps enters one answer per label and stops at the first submission that
// does not advance the flow.
func (a *app) steps(ctx context.Context, labels ...string) error {
	for _, label := range labels {
		digits, err := a.in.Ask(label)
		if err != nil {
			return err
		}
		res, err := a.enter(ctx, digits)
		if err != nil {
			return err
		}
		if res.Outcome != pinlock.OutcomeAdvanced {
			return nil
		}
	}
	return nil
}

// enter replaces the current entry with digits and submits it.
func (a *app) enter(ctx context.Context, digits string) (service.SubmitResult, error) {
	v, err := a.api.PinView(ctx)
	if err != nil {
		return service.SubmitResult{}, a.report(err)
	}
	if v.Filled > 0 {
		if _, err := a.api.DeleteDigit(ctx, true); err != nil {
			return service.SubmitResult{}, a.report(err)
		}
	}
	if _, err := a.api.PressDigits(ctx, digits); err != nil {
		return service.SubmitResult{}, a.report(err)
	}
	res, err := a.api.Submit(ctx)
	if err != nil {
		return res, a.report(err)
	}

	switch res.Outcome {
	case pinlock.OutcomeUnlocked:
		okStyle.Fprintln(a.out, "unlocked")
	case pinlock.OutcomeSaved:
		okStyle.Fprintln(a.out, "PIN saved")
	case pinlock.OutcomeRejected, pinlock.OutcomeFailed:
		a.bell.Shake()
	}
	a.renderPin(res.View)
	return res, nil
}
