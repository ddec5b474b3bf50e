package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatalf("expected logger from context")
	}
	if got := ContextWithLogger(ctx, nil); got != ctx {
		t.Fatalf("nil logger should keep the context")
	}
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected nil without a logger")
	}
}

func TestResolveOrder(t *testing.T) {
	ctxLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	if Resolve(ContextWithLogger(context.Background(), ctxLogger), fallback) != ctxLogger {
		t.Fatalf("context logger should win")
	}
	if Resolve(context.Background(), fallback) != fallback {
		t.Fatalf("fallback should be used without a context logger")
	}
	if Resolve(context.Background(), nil) != slog.Default() {
		t.Fatalf("expected slog.Default as last resort")
	}
}

func TestScopedAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	Scoped(context.Background(), base, "service", "EventService", "CreateEvent", "company", "c1").Info("hello")
	out := buf.String()
	for _, want := range []string{"service=EventService", "operation=CreateEvent", "company=c1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}

	buf.Reset()
	Scoped(context.Background(), base, "handler", "SlotHandler", "").Info("hello")
	if strings.Contains(buf.String(), "operation=") {
		t.Fatalf("empty operation should be omitted: %q", buf.String())
	}
}
