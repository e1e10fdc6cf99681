package daemon

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/browsy/pkg/gateway"
	"github.com/harun/browsy/pkg/plugin"
	"github.com/harun/browsy/pkg/toolexecutor"
)

// registerRuntimeMethods exposes the tool executor and the text commands
// next to the browsy.* plugin methods
func (d *Daemon) registerRuntimeMethods(server *gateway.Server) {
	_ = server.RegisterMethod("tools.list", d.handleToolsList)
	_ = server.RegisterMethod("tools.execute", d.handleToolsExecute)
	_ = server.RegisterMethod("commands.run", d.handleCommandsRun)
}

func (d *Daemon) handleToolsList(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	defs := d.toolExecutor.Definitions()
	tools := make([]map[string]interface{}, 0, len(defs))
	for _, def := range defs {
		schema, _ := d.toolExecutor.InputSchema(def.Name)
		tools = append(tools, map[string]interface{}{
			"name":        def.Name,
			"description": def.Description,
			"inputSchema": schema,
		})
	}
	return map[string]interface{}{"tools": tools, "count": len(tools)}, nil
}

// handleToolsExecute runs a tool for an agent. Pre-tool hooks run first so a
// blocked generic browser tool reports the redirect message instead.
func (d *Daemon) handleToolsExecute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, _ := params["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &gateway.RPCError{Code: gateway.InvalidParams, Message: "name is required"}
	}
	agentID, _ := params["agentId"].(string)
	args, _ := params["params"].(map[string]interface{})

	event := &plugin.ToolEvent{ToolName: name, AgentID: agentID}
	if reason, aborted := d.registry.BeforeTool(ctx, event); aborted {
		return toolexecutor.ToolResult{Success: false, Error: reason}, nil
	}

	cfg := d.GetConfig()
	result := d.toolExecutor.Execute(ctx, name, args, &toolexecutor.ExecutionContext{
		AgentID:    agentID,
		Timeout:    cfg.ToolTimeout(),
		ToolPolicy: &cfg.Tools.Policy,
	})
	return result, nil
}

func (d *Daemon) handleCommandsRun(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, _ := params["name"].(string)
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	cmd, ok := d.registry.Command(name)
	if !ok {
		return nil, &gateway.RPCError{
			Code:    gateway.MethodNotFound,
			Message: fmt.Sprintf("unknown command: %s", name),
		}
	}
	return map[string]interface{}{"name": name, "output": cmd.Handler()}, nil
}
