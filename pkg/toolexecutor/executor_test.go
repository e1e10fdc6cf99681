package toolexecutor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() ToolDefinition {
	return ToolDefinition{
		Name:        "echo",
		Description: "Echo tool",
		Parameters: []ToolParameter{
			{Name: "message", Type: "string", Description: "Message to echo", Required: true},
			{Name: "mode", Type: "string", Description: "Output mode", Enum: []string{"plain", "loud"}},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			msg := params["message"].(string)
			if params["mode"] == "loud" {
				msg = strings.ToUpper(msg)
			}
			return msg, nil
		},
	}
}

func TestToolExecutor_RegisterTool(t *testing.T) {
	te := New()

	require.NoError(t, te.RegisterTool(echoTool()))

	tool := te.GetTool("echo")
	require.NotNil(t, tool)
	assert.Equal(t, "echo", tool.Name)
	assert.Equal(t, 1, te.GetToolCount())
}

func TestToolExecutor_RegisterTool_Duplicate(t *testing.T) {
	te := New()

	require.NoError(t, te.RegisterTool(echoTool()))
	assert.Error(t, te.RegisterTool(echoTool()))
}

func TestToolExecutor_RegisterTool_InvalidDefinition(t *testing.T) {
	te := New()
	noop := func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return nil, nil }

	tests := []struct {
		name string
		def  ToolDefinition
	}{
		{name: "empty name", def: ToolDefinition{Description: "Test", Handler: noop}},
		{name: "empty description", def: ToolDefinition{Name: "test", Handler: noop}},
		{name: "nil handler", def: ToolDefinition{Name: "test", Description: "Test"}},
		{
			name: "bad parameter type",
			def: ToolDefinition{
				Name:        "test",
				Description: "Test",
				Handler:     noop,
				Parameters:  []ToolParameter{{Name: "x", Type: "date", Description: "x"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, te.RegisterTool(tt.def))
		})
	}
}

func TestToolExecutor_Execute_Success(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(echoTool()))

	result := te.Execute(context.Background(), "echo", map[string]interface{}{
		"message": "Hello, World!",
		"mode":    "loud",
	}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, "HELLO, WORLD!", result.Output)
	assert.Empty(t, result.Error)
	assert.Contains(t, result.Metadata, "duration")
}

func TestToolExecutor_Execute_ToolNotFound(t *testing.T) {
	te := New()

	result := te.Execute(context.Background(), "nonexistent", map[string]interface{}{}, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool not found")
}

func TestToolExecutor_Execute_ValidationError(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(echoTool()))

	cases := map[string]map[string]interface{}{
		"missing required": {},
		"wrong type":       {"message": 42},
		"unknown property": {"message": "hi", "extra": true},
		"not in enum":      {"message": "hi", "mode": "whisper"},
	}

	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			result := te.Execute(context.Background(), "echo", params, nil)
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, "parameter validation failed")
		})
	}
}

func TestToolExecutor_Execute_HandlerError(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "fails",
		Description: "Always fails",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, errors.New("upstream exploded")
		},
	}))

	result := te.Execute(context.Background(), "fails", nil, nil)
	assert.False(t, result.Success)
	assert.Equal(t, "upstream exploded", result.Error)
}

func TestToolExecutor_Execute_Timeout(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "slow",
		Description: "Sleeps",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	result := te.Execute(context.Background(), "slow", nil, &ExecutionContext{Timeout: 50 * time.Millisecond})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout")
}

func TestToolExecutor_Execute_Policy(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(echoTool()))

	result := te.Execute(context.Background(), "echo", map[string]interface{}{"message": "x"}, &ExecutionContext{
		AgentID:    "agent-1",
		ToolPolicy: &ToolPolicy{Allow: []string{"*"}, Deny: []string{"echo"}},
	})

	assert.False(t, result.Success)
	assert.Equal(t, true, result.Metadata["policy_violation"])
}

func TestToolExecutor_HandlerSeesExecutionContext(t *testing.T) {
	te := New()
	var seen string
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "who",
		Description: "Reports the agent",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			if ec := ExecContextFromContext(ctx); ec != nil {
				seen = ec.AgentID
			}
			return seen, nil
		},
	}))

	result := te.Execute(context.Background(), "who", nil, &ExecutionContext{AgentID: "agent-7"})
	assert.True(t, result.Success)
	assert.Equal(t, "agent-7", seen)
}

func TestToolExecutor_TruncatesLargeOutput(t *testing.T) {
	te := New()
	te.SetMaxOutput(16)
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "big",
		Description: "Large output",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return strings.Repeat("a", 100), nil
		},
	}))

	result := te.Execute(context.Background(), "big", nil, nil)
	assert.True(t, result.Success)
	assert.True(t, result.Truncated)
	assert.True(t, strings.HasPrefix(result.Output.(string), strings.Repeat("a", 16)))
}

func TestToolExecutor_InputSchema(t *testing.T) {
	te := New()
	require.NoError(t, te.RegisterTool(echoTool()))

	schema, ok := te.InputSchema("echo")
	require.True(t, ok)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"message"}, schema["required"])

	props := schema["properties"].(map[string]interface{})
	mode := props["mode"].(map[string]interface{})
	assert.Equal(t, []interface{}{"plain", "loud"}, mode["enum"])
}

func TestToolPolicy_IsToolAllowed(t *testing.T) {
	var nilPolicy *ToolPolicy
	assert.True(t, nilPolicy.IsToolAllowed("anything"))

	p := &ToolPolicy{Allow: []string{"browsy_browse"}}
	assert.True(t, p.IsToolAllowed("browsy_browse"))
	assert.False(t, p.IsToolAllowed("browsy_login"))
}
