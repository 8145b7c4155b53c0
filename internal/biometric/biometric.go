// Package biometric abstracts the platform biometric prompt used to enter
// the PIN reset flow and to open the security-code gate.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Type is a kind of biometric sensor.
type Type string

const (
	Fingerprint Type = "fingerprint"
	Face        Type = "face"
	Iris        Type = "iris"
)

// ErrUnavailable is returned when the device has no usable biometric sensor.
var ErrUnavailable = errors.New("biometric authentication unavailable")

// Prompt is the text shown by the platform dialog.
type Prompt struct {
	Message       string
	FallbackLabel string
	CancelLabel   string
}

// Result is the outcome of a prompt.
type Result struct {
	Success bool
}

// Authenticator is the platform biometric capability.
type Authenticator interface {
	SupportedTypes(ctx context.Context) ([]Type, error)
	Authenticate(ctx context.Context, p Prompt) (Result, error)
}

// Available reports whether a exposes at least one sensor type. Errors
// count as unavailable.
func Available(ctx context.Context, a Authenticator) bool {
	types, err := a.SupportedTypes(ctx)
	return err == nil && len(types) > 0
}

// Command runs an external verifier, such as fprintd-verify, and treats a
// zero exit status as success. The prompt message is passed in the
// GOPHLOCK_PROMPT environment variable.
type Command struct {
	Path  string
	Args  []string
	Types []Type
	Log   *zap.Logger
}

// SupportedTypes reports Types, or fingerprint when unset. A missing
// verifier binary means no biometrics.
func (c *Command) SupportedTypes(_ context.Context) ([]Type, error) {
	if c.Path == "" {
		return nil, nil
	}
	if _, err := exec.LookPath(c.Path); err != nil {
		return nil, nil
	}
	if len(c.Types) == 0 {
		return []Type{Fingerprint}, nil
	}
	return c.Types, nil
}

// Authenticate blocks until the verifier exits. Cancelling ctx kills the
// process and discards its outcome.
func (c *Command) Authenticate(ctx context.Context, p Prompt) (Result, error) {
	if c.Path == "" {
		return Result{}, ErrUnavailable
	}
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = append(cmd.Environ(), "GOPHLOCK_PROMPT="+p.Message)

	out, err := cmd.CombinedOutput()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if err == nil {
		return Result{Success: true}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		c.logger().Debug("biometric verifier rejected",
			zap.Int("exit_code", exitErr.ExitCode()),
			zap.String("output", strings.TrimSpace(string(out))),
		)
		return Result{Success: false}, nil
	}
	return Result{}, fmt.Errorf("run biometric verifier: %w", err)
}

func (c *Command) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// Static always returns the same outcome.
type Static struct {
	Types   []Type
	Success bool
	Err     error
}

// SupportedTypes returns s.Types.
func (s Static) SupportedTypes(context.Context) ([]Type, error) {
	return s.Types, nil
}

// Authenticate returns s.Err or s.Success unless ctx is already done.
func (s Static) Authenticate(ctx context.Context, _ Prompt) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s.Err != nil {
		return Result{}, s.Err
	}
	return Result{Success: s.Success}, nil
}

// Unavailable is a device without biometric hardware.
type Unavailable struct{}

func (Unavailable) SupportedTypes(context.Context) ([]Type, error) { return nil, nil }

func (Unavailable) Authenticate(context.Context, Prompt) (Result, error) {
	return Result{}, ErrUnavailable
}
