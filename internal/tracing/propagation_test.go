package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-xyz")
	ctx = WithAgentID(ctx, "agent-1")
	ctx = WithOperation(ctx, "search")

	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-xyz"`, `"agent_id":"agent-1"`, `"operation":"search"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, "request_id") {
		t.Errorf("empty fields should be omitted: %s", out)
	}
}

func TestMergeContext(t *testing.T) {
	source := WithTraceID(context.Background(), "trace-src")
	source = WithAgentID(source, "agent-src")

	target := WithAgentID(context.Background(), "agent-target")
	merged := MergeContext(target, source)

	if GetTraceID(merged) != "trace-src" {
		t.Error("trace id not merged")
	}
	if GetAgentID(merged) != "agent-target" {
		t.Error("existing agent id should win")
	}
}

func TestCloneContextDropsCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(WithTraceID(context.Background(), "trace-c"))
	cancel()

	clone := CloneContext(parent)
	if clone.Err() != nil {
		t.Error("clone should not inherit cancellation")
	}
	if GetTraceID(clone) != "trace-c" {
		t.Error("clone lost trace id")
	}
}

func TestStartSpanSetsTraceID(t *testing.T) {
	if err := InitOpenTelemetry("browsy-test", 1); err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, span := StartSpan(context.Background(), "test", "op")
	defer span.End()

	if GetTraceID(ctx) == "" {
		t.Error("trace id not recorded from span")
	}
}
