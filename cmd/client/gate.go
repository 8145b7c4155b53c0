package main

import (
	"context"
	"path/filepath"

	"github.com/atinyakov/GophLock/internal/gate"
	"github.com/atinyakov/GophLock/internal/models"
	"github.com/spf13/cobra"
)

func newCodeCmd(a *app) *cobra.Command {
	code := &cobra.Command{
		Use:   "code",
		Short: "Set or verify the security code",
	}

	set := &cobra.Command{
		Use:   "set [CODE]",
		Short: "Store the security code (first run, or after verifying)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.secret(args, "Security code: ")
			if err != nil {
				return err
			}
			v, err := a.api.SaveCode(a.ctx(cmd), c)
			if err != nil {
				return a.report(err)
			}
			a.renderGate(v)
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify [CODE]",
		Short: "Authenticate and verify the security code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.verify(a.ctx(cmd), args)
			return err
		},
	}

	code.AddCommand(set, verify)
	return code
}

// verify opens the gate with biometrics when needed, then checks the code.
func (a *app) verify(ctx context.Context, args []string) (*models.PendingAction, error) {
	v, err := a.api.GateView(ctx)
	if err != nil {
		return nil, a.report(err)
	}
	switch v.Phase {
	case gate.PhaseEdit:
		okStyle.Fprintln(a.out, "security code already verified")
		a.renderGate(v)
		return nil, nil
	case gate.PhaseStart:
		if v, err = a.api.Authenticate(ctx); err != nil {
			return nil, a.report(err)
		}
	}
	c, err := a.secret(args, "Security code: ")
	if err != nil {
		return nil, err
	}
	res, err := a.api.Verify(ctx, c)
	if err != nil {
		return nil, a.report(err)
	}
	okStyle.Fprintln(a.out, "security code verified")
	a.renderGate(res.View)
	return res.Pending, nil
}

func newFilesCmd(a *app) *cobra.Command {
	files := &cobra.Command{
		Use:   "files",
		Short: "Run gated file actions",
	}

	for _, action := range []models.Action{models.ActionShare, models.ActionSave, models.ActionDelete} {
		files.AddCommand(newFileActionCmd(a, action))
	}

	var (
		returnTo string
		override string
	)
	resume := &cobra.Command{
		Use:   "resume",
		Short: "Run the verified pending action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.resume(a.ctx(cmd), models.ReturnTo{Endpoint: returnTo}, models.Action(override))
		},
	}
	resume.Flags().StringVar(&returnTo, "return-to", "files", "screen the action was started from")
	resume.Flags().StringVar(&override, "action", "", "run this action instead of the recorded one")
	files.AddCommand(resume)
	return files
}

func newFileActionCmd(a *app, action models.Action) *cobra.Command {
	var (
		returnTo string
		code     string
		noVerify bool
	)
	cmd := &cobra.Command{
		Use:   string(action) + " PATH",
		Short: "Gate and " + string(action) + " a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			rt := models.ReturnTo{Endpoint: returnTo}
			res, err := a.api.Invoke(ctx, action, models.FileRef{URI: path, Name: filepath.Base(path)}, rt)
			if err != nil {
				return a.report(err)
			}
			if res.Pending != nil {
				a.renderPending(*res.Pending)
			}
			if noVerify {
				return nil
			}

			var codeArgs []string
			if code != "" {
				codeArgs = []string{code}
			}
			if _, err := a.verify(ctx, codeArgs); err != nil {
				return err
			}
			return a.resume(ctx, rt, "")
		},
	}
	cmd.Flags().StringVar(&returnTo, "return-to", "files", "screen to return to after verification")
	cmd.Flags().StringVar(&code, "code", "", "security code (prompted when empty)")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "only record the action")
	return cmd
}

func (a *app) resume(ctx context.Context, rt models.ReturnTo, override models.Action) error {
	res, err := a.api.Resume(ctx, rt, override)
	if err != nil {
		return a.report(err)
	}
	if res.Pending != nil {
		okStyle.Fprintf(a.out, "%s done: %s\n", res.Pending.Action, res.Pending.File.Name)
	}
	return nil
}
