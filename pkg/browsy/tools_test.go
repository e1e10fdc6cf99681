package browsy

import (
	"context"
	"testing"

	"github.com/harun/browsy/pkg/toolexecutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolSpecs_CoverEveryOperationButGetPage(t *testing.T) {
	covered := map[OperationName]bool{}
	for _, spec := range toolSpecs {
		assert.False(t, covered[spec.op], "operation %s has two tools", spec.op)
		covered[spec.op] = true
		assert.Contains(t, spec.name, ToolPrefix)
	}

	for _, name := range OperationNames() {
		if name == OpGetPage {
			assert.False(t, covered[name])
			continue
		}
		assert.True(t, covered[name], "operation %s has no tool", name)
	}
	assert.Len(t, ToolNames(), 13)
}

func TestRegisterBrowsyTools(t *testing.T) {
	bc := newTestContext(t, freePort(t))
	executor := toolexecutor.New()

	require.NoError(t, RegisterBrowsyTools(executor, bc))
	assert.Equal(t, 13, executor.GetToolCount())

	schema, ok := executor.InputSchema("browsy_type_text")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"id", "text"}, schema["required"])

	// Registering twice is rejected
	assert.Error(t, RegisterBrowsyTools(executor, bc))
}

func TestBrowsyTool_RunsForCallingAgent(t *testing.T) {
	mock := newMockUpstream()
	bc := newTestContext(t, mock.start(t))
	executor := toolexecutor.New()
	require.NoError(t, RegisterBrowsyTools(executor, bc))

	result := executor.Execute(context.Background(), "browsy_browse",
		map[string]interface{}{"url": "https://example.com"},
		&toolexecutor.ExecutionContext{AgentID: "agent-tool"})

	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Output, "Example Page")

	_, ok := bc.Sessions().Get("agent-tool")
	assert.True(t, ok)

	result = executor.Execute(context.Background(), "browsy_click",
		map[string]interface{}{"id": 2},
		&toolexecutor.ExecutionContext{AgentID: "agent-tool"})
	require.True(t, result.Success, result.Error)

	path, _, session, body := mock.last()
	assert.Equal(t, "/api/click", path)
	assert.Equal(t, "mock-session-1", session)
	assert.EqualValues(t, 2, body["id"])
}

func TestBrowsyTool_SchemaRejectsBadInput(t *testing.T) {
	mock := newMockUpstream()
	bc := newTestContext(t, mock.start(t))
	executor := toolexecutor.New()
	require.NoError(t, RegisterBrowsyTools(executor, bc))

	result := executor.Execute(context.Background(), "browsy_click",
		map[string]interface{}{"id": "first"}, nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "parameter validation failed")

	result = executor.Execute(context.Background(), "browsy_browse",
		map[string]interface{}{"url": "https://example.com", "scope": "sideways"}, nil)
	assert.False(t, result.Success)
	assert.Zero(t, mock.Requests())
}

func TestBrowsyTool_NoExecContextUsesDefaultAgent(t *testing.T) {
	mock := newMockUpstream()
	bc := newTestContext(t, mock.start(t))
	executor := toolexecutor.New()
	require.NoError(t, RegisterBrowsyTools(executor, bc))

	result := executor.Execute(context.Background(), "browsy_tables", nil, nil)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "[]\n", result.Output)

	_, ok := bc.Sessions().Get(DefaultAgentID)
	assert.True(t, ok)
}
