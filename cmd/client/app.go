package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atinyakov/GophLock/internal/client"
	"github.com/atinyakov/GophLock/internal/feedback"
	"github.com/atinyakov/GophLock/internal/gate"
	"github.com/atinyakov/GophLock/internal/models"
	"github.com/atinyakov/GophLock/internal/pinlock"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	titleStyle = color.New(color.Bold)
	okStyle    = color.New(color.FgGreen)
	warnStyle  = color.New(color.FgYellow)
	errStyle   = color.New(color.FgRed, color.Bold)
)

// app holds what every command shares.
type app struct {
	server string
	api    *client.Client
	in     *client.Prompter
	out    io.Writer
	bell   feedback.Feedback
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		in:   client.NewPrompter(in, out),
		out:  out,
		bell: feedback.NewTerminal(errOut),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "gophlock",
		Short:         "Unlock the app and run gated file actions against gophlockd",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (built %s)", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A")),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.api == nil {
				a.api = client.New(a.server)
			}
		},
	}
	root.PersistentFlags().StringVar(&a.server, "server", cmp.Or(os.Getenv("GOPHLOCK_SERVER"), "http://localhost:8080"), "gophlockd base URL")

	root.AddCommand(
		newStatusCmd(a),
		newPinCmd(a),
		newLockCmd(a),
		newCodeCmd(a),
		newFilesCmd(a),
		newShellCmd(a),
	)
	return root
}

// secret returns args[0] or asks for it.
func (a *app) secret(args []string, label string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return a.in.Ask(label)
}

func (a *app) renderPin(v pinlock.View) {
	title := v.Title
	if title == "" {
		title = "Loading"
	}
	titleStyle.Fprintln(a.out, title)
	if v.Subtitle != "" {
		fmt.Fprintln(a.out, v.Subtitle)
	}
	if !v.Locked && v.Mode != pinlock.ModeLoading {
		fmt.Fprintln(a.out, dots(v.Filled))
	}
	switch {
	case v.Locked:
		errStyle.Fprintf(a.out, "locked for %ds\n", v.RemainingSeconds)
	case v.Message != "":
		warnStyle.Fprintln(a.out, v.Message)
	}
}

func (a *app) renderGate(v gate.View) {
	titleStyle.Fprintf(a.out, "Security code: %s\n", v.Phase)
	if v.Message != "" {
		warnStyle.Fprintln(a.out, v.Message)
	}
	if v.Pending != nil {
		a.renderPending(*v.Pending)
	}
}

func (a *app) renderPending(p models.PendingAction) {
	state := "awaiting verification"
	if p.Verified {
		state = "verified"
	}
	fmt.Fprintf(a.out, "pending %s of %s (%s)\n", p.Action, cmp.Or(p.File.Name, p.File.URI), state)
}

// report prints err and, for a daemon error carrying a screen, that screen.
func (a *app) report(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		a.bell.Shake()
		errStyle.Fprintln(a.out, apiErr.Message)
	}
	return err
}

func (a *app) ctx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func dots(filled int) string {
	filled = min(max(filled, 0), models.PinLength)
	return strings.Repeat("●", filled) + strings.Repeat("○", models.PinLength-filled)
}
