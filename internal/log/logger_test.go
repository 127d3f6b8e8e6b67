package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentSync, Output: &buf})
	l.Info("snapshot applied", FieldUserID, "u1")

	out := buf.String()
	if !strings.Contains(out, "component=sync") || !strings.Contains(out, "user_id=u1") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentApp, Output: &buf}).WithComponent(ComponentMutation)
	if l.Component() != ComponentMutation {
		t.Fatalf("unexpected component %q", l.Component())
	}
	l.Warn("rolled back")
	if !strings.Contains(buf.String(), "component=mutation") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentStore, Output: &buf})
	l.LogError(context.Background(), "write failed", errors.New("offline"), OpCreate, NewFields().WithUser("u1"))

	out := buf.String()
	for _, want := range []string{"level=ERROR", "error=offline", "operation=create", "user_id=u1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogFieldsTransaction(t *testing.T) {
	f := NewFields().WithTransaction("", "Mercado", 15050, "Alimentação", "expense", "pago")
	if _, ok := f[FieldTxID]; ok {
		t.Fatalf("empty id should be omitted")
	}
	if f[FieldAmountCents] != int64(15050) {
		t.Fatalf("unexpected amount: %v", f[FieldAmountCents])
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Fatalf("unexpected slice length")
	}
}
