package slogobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/leofalp/qianfan/providers/observability"
)

func newTestObserver(level slog.Level) (*Observer, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(WithOutput(&buf), WithLevel(level), WithFormat(FormatCompact)), &buf
}

func TestObserver_SpanLifecycle(t *testing.T) {
	obs, buf := newTestObserver(slog.LevelDebug)

	ctx, span := obs.StartSpan(context.Background(), observability.SpanQianfanRequest,
		observability.String(observability.AttrQianfanModel, "ERNIE-Bot"))
	if observability.SpanFromContext(ctx) != span {
		t.Fatal("span should be stored in the returned context")
	}
	span.AddEvent(observability.EventResponseReceived, observability.Int(observability.AttrHTTPStatusCode, 200))
	span.SetStatus(observability.StatusOK, "")
	span.End()
	span.End()

	out := buf.String()
	if strings.Count(out, "span ended") != 1 {
		t.Errorf("End should log exactly once: %s", out)
	}
	for _, want := range []string{"span started", observability.EventResponseReceived, `"status":"ok"`, `"qianfan.model":"ERNIE-Bot"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestObserver_RecordError(t *testing.T) {
	obs, buf := newTestObserver(slog.LevelError)
	_, span := obs.StartSpan(context.Background(), "op")

	span.RecordError(nil)
	span.RecordError(errors.New("quota exceeded"))

	out := buf.String()
	if strings.Count(out, "span error") != 1 {
		t.Errorf("expected one error record: %s", out)
	}
	if !strings.Contains(out, "quota exceeded") {
		t.Errorf("error text missing: %s", out)
	}
}

func TestObserver_StreamChunkIsTrace(t *testing.T) {
	obs, buf := newTestObserver(slog.LevelDebug)
	_, span := obs.StartSpan(context.Background(), "stream")
	buf.Reset()

	span.AddEvent(observability.EventStreamChunk)
	if buf.Len() != 0 {
		t.Errorf("chunk events should be filtered at DEBUG: %s", buf.String())
	}
}

func TestObserver_Counters(t *testing.T) {
	obs, _ := newTestObserver(slog.LevelInfo)
	ctx := context.Background()

	c := obs.Counter(observability.MetricRequestCount)
	if obs.Counter(observability.MetricRequestCount) != c {
		t.Error("same name should return the same counter")
	}
	c.Add(ctx, 2)
	c.Add(ctx, 3)

	if got := obs.CounterValue(observability.MetricRequestCount); got != 5 {
		t.Errorf("CounterValue = %d, want 5", got)
	}
	if got := obs.CounterValue("missing"); got != 0 {
		t.Errorf("unknown counter = %d, want 0", got)
	}
}

func TestObserver_Histogram(t *testing.T) {
	obs, buf := newTestObserver(slog.LevelDebug)
	obs.Histogram(observability.MetricRequestDuration).Record(context.Background(), 0.25)

	if out := buf.String(); !strings.Contains(out, `"metric":"qianfan.request.duration"`) || !strings.Contains(out, `"value":0.25`) {
		t.Errorf("histogram record missing: %s", out)
	}
}

func TestObserver_Logging(t *testing.T) {
	obs, buf := newTestObserver(slog.LevelInfo)
	ctx := context.Background()

	obs.Trace(ctx, "trace-line")
	obs.Debug(ctx, "debug-line")
	obs.Info(ctx, "info-line", observability.String("k", "v"))
	obs.Warn(ctx, "warn-line")
	obs.Error(ctx, "error-line")

	out := buf.String()
	for _, hidden := range []string{"trace-line", "debug-line"} {
		if strings.Contains(out, hidden) {
			t.Errorf("%s should be filtered: %s", hidden, out)
		}
	}
	for _, shown := range []string{"info-line", `"k":"v"`, "warn-line", "error-line"} {
		if !strings.Contains(out, shown) {
			t.Errorf("missing %s: %s", shown, out)
		}
	}
}

func TestObserver_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	obs := New(WithLogger(logger), WithFormat(FormatJSON))

	if obs.Logger() != logger {
		t.Fatal("WithLogger should be used as-is")
	}
	obs.Info(context.Background(), "hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text handler output: %s", buf.String())
	}
}
