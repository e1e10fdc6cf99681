package plugin

import (
	"context"

	"github.com/harun/browsy/pkg/toolexecutor"
)

// Hook names used by Register
const (
	HookPreToolExecution = "preToolExecution"
	HookAgentBootstrap   = "agent:bootstrap"

	ServiceName = "browsy-server"
)

// ToolEvent is raised before an agent runs a tool
type ToolEvent struct {
	ToolName  string
	AgentName string
	AgentID   string

	abortReason string
	aborted     bool
}

// Abort stops the tool call; the reason is shown to the agent
func (e *ToolEvent) Abort(reason string) {
	e.aborted = true
	e.abortReason = reason
}

// Aborted returns the abort reason and whether Abort was called
func (e *ToolEvent) Aborted() (string, bool) {
	return e.abortReason, e.aborted
}

// BootstrapEvent is raised when an agent is assembled
type BootstrapEvent struct {
	AgentName string
	AgentID   string
	Tools     []toolexecutor.ToolDefinition
}

// ReplaceTools swaps the agent's tool list
func (e *BootstrapEvent) ReplaceTools(tools []toolexecutor.ToolDefinition) {
	e.Tools = tools
}

// PreToolHook may abort a tool call
type PreToolHook func(ctx context.Context, event *ToolEvent)

// BootstrapHook may change an agent's tools
type BootstrapHook func(ctx context.Context, event *BootstrapEvent)

// Service is a background component started and stopped by the host
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// GatewayMethod handles one remote call
type GatewayMethod func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Command is a text command; the handler output is shown verbatim
type Command struct {
	Description string
	Handler     func() string
}

// HostAPI is what an agent host offers to the bridge
type HostAPI interface {
	RegisterPreToolHook(name string, hook PreToolHook) error
	RegisterBootstrapHook(name string, hook BootstrapHook) error
	RegisterService(name string, service Service) error
	RegisterGatewayMethod(name string, method GatewayMethod) error
	RegisterCommand(name string, command Command) error
}
