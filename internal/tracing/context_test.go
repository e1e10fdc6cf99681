package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithAgentID(ctx, "agent-a")
	ctx = WithLane(ctx, "agent:agent-a")
	ctx = WithOperation(ctx, "browse")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" || tc.RequestID != "req-1" {
		t.Errorf("unexpected ids: %+v", tc)
	}
	if tc.AgentID != "agent-a" || tc.Lane != "agent:agent-a" || tc.Operation != "browse" {
		t.Errorf("unexpected fields: %+v", tc)
	}
}

func TestGettersOnEmptyContext(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetAgentID(ctx) != "" || GetLane(ctx) != "" {
		t.Error("expected empty values from bare context")
	}
	if GetOperation(nil) != "" {
		t.Error("expected empty value from nil context")
	}
}

func TestNewRequestContextKeepsTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "existing")
	ctx = NewRequestContext(ctx)

	if GetTraceID(ctx) != "existing" {
		t.Errorf("trace id overwritten: %s", GetTraceID(ctx))
	}
	if GetRequestID(ctx) == "" {
		t.Error("request id not generated")
	}
}

func TestNewOperationContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	ctx = NewOperationContext(ctx, "agent-b", "click")

	if GetRequestID(ctx) != "req-9" {
		t.Error("request id should be preserved")
	}
	if GetAgentID(ctx) != "agent-b" || GetOperation(ctx) != "click" {
		t.Errorf("unexpected fields: %+v", FromContext(ctx))
	}
}
