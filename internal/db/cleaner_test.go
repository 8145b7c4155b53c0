package db

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type fakeSweeper struct {
	calls   atomic.Int32
	cleared bool
	err     error
}

func (f *fakeSweeper) ClearExpiredLockout(_ context.Context, _ time.Time) (bool, error) {
	f.calls.Add(1)
	return f.cleared, f.err
}

// syncBuffer guards the log buffer shared with the sweeper goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger(buf *syncBuffer, level zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(buf),
		level,
	)
	return zap.New(core)
}

func TestStartLockoutSweeper_Cleared(t *testing.T) {
	sweeper := &fakeSweeper{cleared: true}
	var buf syncBuffer
	logger := bufferLogger(&buf, zapcore.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartLockoutSweeper(ctx, sweeper, 10*time.Millisecond, logger)

	time.Sleep(200 * time.Millisecond)
	cancel()

	if sweeper.calls.Load() == 0 {
		t.Fatal("expected sweeper to be called")
	}
	if !strings.Contains(buf.String(), "cleared expired pin lockout") {
		t.Errorf("expected info log, got:\n%s", buf.String())
	}
}

func TestStartLockoutSweeper_ErrorLogged(t *testing.T) {
	sweeper := &fakeSweeper{err: fmt.Errorf("db fail")}
	var buf syncBuffer
	logger := bufferLogger(&buf, zapcore.ErrorLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartLockoutSweeper(ctx, sweeper, 10*time.Millisecond, logger)

	time.Sleep(200 * time.Millisecond)
	cancel()

	out := buf.String()
	if !strings.Contains(out, "failed to clear expired lockout") {
		t.Errorf("expected error log, got:\n%s", out)
	}
}

func TestStartLockoutSweeper_CancelBeforeTicker(t *testing.T) {
	sweeper := &fakeSweeper{}
	ctx, cancel := context.WithCancel(context.Background())

	StartLockoutSweeper(ctx, sweeper, 100*time.Millisecond, zap.NewNop())
	cancel()

	time.Sleep(50 * time.Millisecond)

	if n := sweeper.calls.Load(); n != 0 {
		t.Errorf("expected no sweeps after cancel, got %d", n)
	}
}
