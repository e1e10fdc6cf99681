package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds the tracing fields found in ctx to logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	fields := logger.With()
	if tc.TraceID != "" {
		fields = fields.Str("trace_id", tc.TraceID)
	}
	if tc.RequestID != "" {
		fields = fields.Str("request_id", tc.RequestID)
	}
	if tc.AgentID != "" {
		fields = fields.Str("agent_id", tc.AgentID)
	}
	if tc.Lane != "" {
		fields = fields.Str("lane", tc.Lane)
	}
	if tc.Operation != "" {
		fields = fields.Str("operation", tc.Operation)
	}

	return fields.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing fields from source that target lacks
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.RequestID != "" && GetRequestID(target) == "" {
		target = WithRequestID(target, tc.RequestID)
	}
	if tc.AgentID != "" && GetAgentID(target) == "" {
		target = WithAgentID(target, tc.AgentID)
	}
	if tc.Lane != "" && GetLane(target) == "" {
		target = WithLane(target, tc.Lane)
	}
	if tc.Operation != "" && GetOperation(target) == "" {
		target = WithOperation(target, tc.Operation)
	}

	return target
}

// CloneContext returns a background context carrying only ctx's tracing fields
func CloneContext(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}
