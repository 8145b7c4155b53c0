package biometric

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var prompt = Prompt{Message: "Authenticate to reset your PIN", FallbackLabel: "Use PIN", CancelLabel: "Cancel"}

func requireShell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found")
	}
	return sh
}

func TestCommand_Success(t *testing.T) {
	sh := requireShell(t)
	c := &Command{Path: sh, Args: []string{"-c", `test -n "$GOPHLOCK_PROMPT"`}}

	assert.True(t, Available(context.Background(), c))
	res, err := c.Authenticate(context.Background(), prompt)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestCommand_Rejected(t *testing.T) {
	sh := requireShell(t)
	c := &Command{Path: sh, Args: []string{"-c", "echo no match; exit 1"}}

	res, err := c.Authenticate(context.Background(), prompt)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestCommand_Cancelled(t *testing.T) {
	sh := requireShell(t)
	c := &Command{Path: sh, Args: []string{"-c", "sleep 5"}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := c.Authenticate(ctx, prompt)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestCommand_Missing(t *testing.T) {
	c := &Command{Path: "/nonexistent/verifier"}
	types, err := c.SupportedTypes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, types)

	_, err = c.Authenticate(context.Background(), prompt)
	assert.Error(t, err)

	empty := &Command{}
	_, err = empty.Authenticate(context.Background(), prompt)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStatic(t *testing.T) {
	ok := Static{Types: []Type{Face}, Success: true}
	assert.True(t, Available(context.Background(), ok))
	res, err := ok.Authenticate(context.Background(), prompt)
	require.NoError(t, err)
	assert.True(t, res.Success)

	boom := errors.New("sensor error")
	_, err = Static{Err: boom}.Authenticate(context.Background(), prompt)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ok.Authenticate(ctx, prompt)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnavailable(t *testing.T) {
	assert.False(t, Available(context.Background(), Unavailable{}))
	_, err := Unavailable{}.Authenticate(context.Background(), prompt)
	assert.ErrorIs(t, err, ErrUnavailable)
}
