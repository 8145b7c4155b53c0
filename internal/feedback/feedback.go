// Package feedback delivers fire-and-forget haptic cues. Callers never
// consult a result.
package feedback

import (
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cue durations used by the PIN pad.
const (
	DigitVibration     = 20 * time.Millisecond
	DeleteVibration    = 30 * time.Millisecond
	DeleteAllVibration = 50 * time.Millisecond
)

// FailurePattern is the wait/vibrate/wait/vibrate pattern played on errors.
var FailurePattern = []time.Duration{0, 50 * time.Millisecond, 100 * time.Millisecond, 50 * time.Millisecond}

// Feedback is the haptic surface of the host device.
type Feedback interface {
	// Vibrate plays a single duration, or an alternating wait/vibrate pattern
	// when more than one duration is given.
	Vibrate(pattern ...time.Duration)
	// Pulse animates the entry dot at index.
	Pulse(index int)
	// Shake plays the failure animation.
	Shake()
}

// Nop discards every cue.
type Nop struct{}

func (Nop) Vibrate(...time.Duration) {}
func (Nop) Pulse(int)                {}
func (Nop) Shake()                   {}

// Logger records cues as debug events.
type Logger struct {
	Log *zap.Logger
}

func (l Logger) Vibrate(pattern ...time.Duration) {
	l.Log.Debug("vibrate", zap.Durations("pattern", pattern))
}

func (l Logger) Pulse(index int) {
	l.Log.Debug("pulse", zap.Int("index", index))
}

func (l Logger) Shake() {
	l.Log.Debug("shake")
}

// Terminal rings the terminal bell on failure cues and ignores the rest.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminal returns a Terminal writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) Vibrate(pattern ...time.Duration) {
	if len(pattern) > 1 {
		t.bell()
	}
}

func (t *Terminal) Pulse(int) {}

func (t *Terminal) Shake() { t.bell() }

func (t *Terminal) bell() {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.w, "\a")
}

// Recorder keeps every cue in memory.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *Recorder) Vibrate(pattern ...time.Duration) {
	parts := make([]string, len(pattern))
	for i, d := range pattern {
		parts[i] = d.String()
	}
	r.add("vibrate:" + strings.Join(parts, ","))
}

func (r *Recorder) Pulse(index int) {
	r.add("pulse:" + strconv.Itoa(index))
}

func (r *Recorder) Shake() { r.add("shake") }

// Events returns a copy of the recorded cues, such as "vibrate:20ms",
// "pulse:0" or "shake".
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Reset forgets the recorded cues.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func (r *Recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}
