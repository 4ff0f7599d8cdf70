package main

import (
	"bufio"
	"os"
	"strings"
	"testing"

	"github.com/go-utreexo/utreexo/forest"
)

func withPipeOutput(t *testing.T, fn func(out *os.File)) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	fn(w)
	w.Close()

	var sb strings.Builder
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		sb.WriteString(sc.Text())
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestForestDriverAddCountDump(t *testing.T) {
	d := &forestDriver{f: forest.New(nil)}

	out := withPipeOutput(t, func(w *os.File) {
		if err := d.dispatch([]string{"add", "utxo-1"}, w); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := d.dispatch([]string{"count"}, w); err != nil {
			t.Fatalf("count: %v", err)
		}
		if err := d.dispatch([]string{"dump"}, w); err != nil {
			t.Fatalf("dump: %v", err)
		}
	})

	if !strings.Contains(out, "1\n") {
		t.Fatalf("expected count output of 1, got %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected count line + one dump line, got %v", lines)
	}
}

func TestForestDriverUnknownCommand(t *testing.T) {
	d := &forestDriver{f: forest.New(nil)}
	out := withPipeOutput(t, func(w *os.File) {
		if err := d.dispatch([]string{"frobnicate"}, w); err == nil {
			t.Fatal("expected error for unknown command")
		}
	})
	_ = out
}

func TestConfigValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "trie"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown backend")
	}
}

func TestConfigValidateRejectsBadMetricsPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics = true
	cfg.MetricsPort = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for port 0 with metrics enabled")
	}
}
