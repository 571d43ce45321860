package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tailored-agentic-units/relay/observability"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		name  string
		level observability.Level
		want  string
	}{
		{name: "trace range", level: 1, want: "TRACE"},
		{name: "verbose maps to DEBUG", level: observability.LevelVerbose, want: "DEBUG"},
		{name: "info maps to INFO", level: observability.LevelInfo, want: "INFO"},
		{name: "warning maps to WARN", level: observability.LevelWarning, want: "WARN"},
		{name: "error maps to ERROR", level: observability.LevelError, want: "ERROR"},
		{name: "fatal range", level: 21, want: "FATAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level observability.Level
		want  slog.Level
	}{
		{name: "verbose maps to Debug", level: observability.LevelVerbose, want: slog.LevelDebug},
		{name: "info maps to Info", level: observability.LevelInfo, want: slog.LevelInfo},
		{name: "warning maps to Warn", level: observability.LevelWarning, want: slog.LevelWarn},
		{name: "error maps to Error", level: observability.LevelError, want: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.SlogLevel(); got != tt.want {
				t.Errorf("Level(%d).SlogLevel() = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestSlogObserver_SortedAttributes(t *testing.T) {
	var buf bytes.Buffer
	obs := observability.NewSlogObserver(slog.New(slog.NewTextHandler(&buf, nil)))

	obs.OnEvent(context.Background(), observability.NewEvent("route.select", observability.LevelInfo, "routing.Select", map[string]any{
		"route":    "direct",
		"key":      "a->b:regular:text",
		"fallback": false,
	}))

	out := buf.String()
	fallback := strings.Index(out, "fallback=")
	key := strings.Index(out, "key=")
	route := strings.Index(out, "route=")
	if fallback < 0 || !(fallback < key && key < route) {
		t.Errorf("attributes not in key order: %s", out)
	}
}

func TestSlogObserver_NilLogger(t *testing.T) {
	obs := observability.NewSlogObserver(nil)
	obs.OnEvent(context.Background(), observability.Event{Type: "test.event", Level: observability.LevelVerbose})
}

func TestNoOpObserver(t *testing.T) {
	obs := observability.NoOpObserver{}
	obs.OnEvent(context.Background(), observability.Event{
		Type:      "test.event",
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "test",
		Data:      map[string]any{"key": "value"},
	})
}

func TestMultiObserver(t *testing.T) {
	obs1 := observability.NewRecorder()
	obs2 := observability.NewRecorder()

	multi := observability.NewMultiObserver(obs1, obs2)

	event := observability.Event{
		Type:      "test.event",
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "test",
		Data:      map[string]any{"key": "value"},
	}

	multi.OnEvent(context.Background(), event)

	if got := obs1.Count("test.event"); got != 1 {
		t.Errorf("observer 1 received %d events, want 1", got)
	}
	if got := obs2.Count("test.event"); got != 1 {
		t.Errorf("observer 2 received %d events, want 1", got)
	}
	if multi.Len() != 2 {
		t.Errorf("Len() = %d, want 2", multi.Len())
	}
}

func TestMultiObserver_NilFiltering(t *testing.T) {
	obs := observability.NewRecorder()

	multi := observability.NewMultiObserver(nil, obs, nil)

	multi.OnEvent(context.Background(), observability.Event{
		Type:  "test.event",
		Level: observability.LevelInfo,
	})

	if len(obs.Events()) != 1 {
		t.Errorf("received %d events, want 1 (nil observers should be filtered)", len(obs.Events()))
	}
}

func TestMultiObserver_Flattens(t *testing.T) {
	inner := observability.NewMultiObserver(observability.NewRecorder(), observability.NewRecorder())
	multi := observability.NewMultiObserver(inner, observability.NewRecorder())

	if multi.Len() != 3 {
		t.Errorf("Len() = %d, want 3", multi.Len())
	}
}

func TestMultiObserver_PanicIsolation(t *testing.T) {
	rec := observability.NewRecorder()
	panicking := observability.ObserverFunc(func(context.Context, observability.Event) {
		panic("broken sink")
	})

	multi := observability.NewMultiObserver(panicking, rec)
	multi.OnEvent(context.Background(), observability.Event{Type: "test.event", Level: observability.LevelInfo})

	if got := rec.Count("test.event"); got != 1 {
		t.Errorf("recorder received %d events after panicking observer, want 1", got)
	}
}

func TestSlogObserver_LevelMapping(t *testing.T) {
	tests := []struct {
		name      string
		level     observability.Level
		minLevel  slog.Level
		expectLog bool
	}{
		{name: "verbose at debug handler", level: observability.LevelVerbose, minLevel: slog.LevelDebug, expectLog: true},
		{name: "verbose at info handler", level: observability.LevelVerbose, minLevel: slog.LevelInfo, expectLog: false},
		{name: "info at info handler", level: observability.LevelInfo, minLevel: slog.LevelInfo, expectLog: true},
		{name: "info at warn handler", level: observability.LevelInfo, minLevel: slog.LevelWarn, expectLog: false},
		{name: "warning at warn handler", level: observability.LevelWarning, minLevel: slog.LevelWarn, expectLog: true},
		{name: "error at error handler", level: observability.LevelError, minLevel: slog.LevelError, expectLog: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
				Level: tt.minLevel,
			}))

			obs := observability.NewSlogObserver(logger)
			obs.OnEvent(context.Background(), observability.Event{
				Type:      "test.event",
				Level:     tt.level,
				Timestamp: time.Now(),
				Source:    "test",
			})

			hasOutput := buf.Len() > 0
			if hasOutput != tt.expectLog {
				t.Errorf("log output = %v, want %v (buf: %q)", hasOutput, tt.expectLog, buf.String())
			}
		})
	}
}

func TestSlogObserver_EventTypeAsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	obs := observability.NewSlogObserver(logger)
	obs.OnEvent(context.Background(), observability.Event{
		Type:      "queue.delivered",
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "queue.deliver",
		Data: map[string]any{
			"attempts": 2,
		},
	})

	output := buf.String()
	if !strings.Contains(output, "queue.delivered") {
		t.Errorf("expected event type as log message, got: %s", output)
	}
	if !strings.Contains(output, "source=queue.deliver") {
		t.Errorf("expected source attribute, got: %s", output)
	}
	if !strings.Contains(output, "attempts=2") {
		t.Errorf("expected data attributes, got: %s", output)
	}
}

func TestRegistry_GetObserver(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "noop exists", key: "noop", wantErr: false},
		{name: "slog exists", key: "slog", wantErr: false},
		{name: "unknown fails", key: "nonexistent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := observability.GetObserver(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetObserver(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if !tt.wantErr && obs == nil {
				t.Errorf("GetObserver(%q) returned nil observer", tt.key)
			}
		})
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	custom := observability.NewRecorder()

	observability.RegisterObserver("test-custom", custom)

	obs, err := observability.GetObserver("test-custom")
	if err != nil {
		t.Fatalf("GetObserver failed: %v", err)
	}

	obs.OnEvent(context.Background(), observability.Event{
		Type:  "test.event",
		Level: observability.LevelInfo,
	})

	if len(custom.Events()) != 1 {
		t.Errorf("received %d events, want 1", len(custom.Events()))
	}
}
