package client

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestPrompter_Ask(t *testing.T) {
	out := new(bytes.Buffer)
	p := NewPrompter(strings.NewReader("  482913 \nalpha\n"), out)

	got, err := p.Ask("PIN: ")
	if err != nil || got != "482913" {
		t.Fatalf("Ask = %q, %v; want %q", got, err, "482913")
	}
	got, err = p.Ask("Code: ")
	if err != nil || got != "alpha" {
		t.Fatalf("Ask = %q, %v; want %q", got, err, "alpha")
	}
	if out.String() != "PIN: Code: " {
		t.Errorf("prompts = %q", out.String())
	}

	if _, err := p.Ask("more: "); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
