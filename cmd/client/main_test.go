package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atinyakov/GophLock/internal/biometric"
	"github.com/atinyakov/GophLock/internal/files"
	"github.com/atinyakov/GophLock/internal/pinlock"
	"github.com/atinyakov/GophLock/internal/seal"
	httpapi "github.com/atinyakov/GophLock/internal/server/handler/http"
	"github.com/atinyakov/GophLock/internal/service"
	"github.com/atinyakov/GophLock/internal/session"
	"github.com/atinyakov/GophLock/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startDaemon(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	sess := session.New(context.Background(), session.Config{
		Store:     store.NewMemory(),
		Cipher:    seal.New(seal.Params{Iterations: 1000}),
		Biometric: biometric.Static{Types: []biometric.Type{biometric.Fingerprint}, Success: true},
		Files: &files.Local{
			Root:      root,
			ShareDir:  filepath.Join(root, "shared"),
			ExportDir: filepath.Join(root, "exported"),
		},
		PinOptions: []pinlock.Option{pinlock.WithClearDelay(0)},
	})
	t.Cleanup(sess.Close)

	router := httpapi.NewRouter(
		&httpapi.PinHandler{PinService: service.NewPinService(sess.Pin, sess)},
		&httpapi.GateHandler{GateService: service.NewGateService(sess.Gate, sess.Guard)},
		sess,
		zap.NewNop(),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL, root
}

// run executes one gophlock command line and returns its output.
func run(t *testing.T, url, input string, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	a := newApp(strings.NewReader(input), out, io.Discard)
	root := newRootCmd(a)
	root.SetArgs(append(args, "--server", url))
	root.SetOut(out)
	root.SetErr(out)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_FullFlow(t *testing.T) {
	url, root := startDaemon(t)

	out, err := run(t, url, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Create PIN")
	assert.Contains(t, out, "gate: app is locked")

	out, err = run(t, url, "482913\n482913\n", "pin", "create")
	require.NoError(t, err)
	assert.Contains(t, out, "PIN saved")
	assert.Contains(t, out, "Enter PIN")

	out, err = run(t, url, "", "pin", "enter", "000000")
	require.NoError(t, err)
	assert.Contains(t, out, "Incorrect PIN. 2 attempts remaining.")

	out, err = run(t, url, "", "pin", "enter", "482913")
	require.NoError(t, err)
	assert.Contains(t, out, "unlocked")

	out, err = run(t, url, "", "code", "set", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "Security code saved!")

	target := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(target, []byte("secret"), 0o600))

	out, err = run(t, url, "beta\n", "files", "delete", target, "--return-to", "preview")
	require.Error(t, err)
	assert.Contains(t, out, "pending delete of notes.txt (awaiting verification)")
	assert.Contains(t, out, "security code does not match")
	_, err = os.Stat(target)
	require.NoError(t, err, "a wrong code must not run the action")

	out, err = run(t, url, "", "code", "verify", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "(verified)")

	out, err = run(t, url, "", "files", "resume", "--return-to", "preview")
	require.NoError(t, err)
	assert.Contains(t, out, "delete done: notes.txt")
	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))

	// the gate is left verified until the next action
	out, err = run(t, url, "", "code", "verify", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "already verified")

	// a second action asks for the code again
	second := filepath.Join(root, "draft.txt")
	require.NoError(t, os.WriteFile(second, []byte("secret"), 0o600))
	out, err = run(t, url, "", "files", "delete", second, "--code", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "security code verified")
	assert.Contains(t, out, "delete done: draft.txt")
	_, err = os.Stat(second)
	assert.True(t, os.IsNotExist(err))

	out, err = run(t, url, "", "lock")
	require.NoError(t, err)
	assert.Contains(t, out, "Enter PIN")

	_, err = run(t, url, "", "code", "verify", "alpha")
	assert.ErrorContains(t, err, "423")
}

func TestCLI_Shell(t *testing.T) {
	url, _ := startDaemon(t)

	input := "\nstatus\npin enter 12\nexit\nstatus\n"
	out, err := run(t, url, input, "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "Create PIN")
	assert.Contains(t, out, "Please enter all 6 digits.")
	assert.Contains(t, out, "Bye")
	assert.Equal(t, 1, strings.Count(out, "gate: app is locked"), "commands after exit must not run")
}

func TestDots(t *testing.T) {
	assert.Equal(t, "○○○○○○", dots(0))
	assert.Equal(t, "●●●○○○", dots(3))
	assert.Equal(t, "●●●●●●", dots(9))
}
