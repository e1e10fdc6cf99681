package browsy

import (
	"context"
	"fmt"

	"github.com/harun/browsy/pkg/toolexecutor"
)

// ToolPrefix is shared by every tool the bridge exposes to agents
const ToolPrefix = "browsy_"

// toolSpec maps an agent-facing tool onto one operation
type toolSpec struct {
	name        string
	op          OperationName
	description string
	params      []toolexecutor.ToolParameter
}

func elementID(description string) toolexecutor.ToolParameter {
	return toolexecutor.ToolParameter{
		Name:        "id",
		Type:        "integer",
		Description: description,
		Required:    true,
	}
}

// getPage is reachable through the gateway and CLI but has no tool
var toolSpecs = []toolSpec{
	{
		name:        "browsy_browse",
		op:          OpBrowse,
		description: "Navigate to a URL and return the page content. Use this to browse websites.",
		params: []toolexecutor.ToolParameter{
			{Name: "url", Type: "string", Description: "URL to navigate to", Required: true},
			{Name: "format", Type: "string", Description: "Output format: 'compact' (default) or 'json'", Enum: []string{"compact", "json"}},
			{Name: "scope", Type: "string", Description: "Scope: 'all' (default), 'visible', 'above_fold', or 'visible_above_fold'", Enum: []string{"all", "visible", "above_fold", "visible_above_fold"}},
		},
	},
	{
		name:        "browsy_click",
		op:          OpClick,
		description: "Click an element by its ID. Links navigate to new pages, buttons submit forms.",
		params:      []toolexecutor.ToolParameter{elementID("Element ID to click")},
	},
	{
		name:        "browsy_type_text",
		op:          OpTypeText,
		description: "Type text into an input field or textarea by element ID.",
		params: []toolexecutor.ToolParameter{
			elementID("Element ID of the text input"),
			{Name: "text", Type: "string", Description: "Text to type into the input", Required: true},
		},
	},
	{
		name:        "browsy_check",
		op:          OpCheck,
		description: "Check a checkbox or radio button by element ID.",
		params:      []toolexecutor.ToolParameter{elementID("Element ID of the checkbox or radio button")},
	},
	{
		name:        "browsy_uncheck",
		op:          OpUncheck,
		description: "Uncheck a checkbox or radio button by element ID.",
		params:      []toolexecutor.ToolParameter{elementID("Element ID of the checkbox or radio button")},
	},
	{
		name:        "browsy_select",
		op:          OpSelect,
		description: "Select an option in a dropdown/select element by element ID and value.",
		params: []toolexecutor.ToolParameter{
			elementID("Element ID of the select element"),
			{Name: "value", Type: "string", Description: "Value to select", Required: true},
		},
	},
	{
		name:        "browsy_search",
		op:          OpSearch,
		description: "Search the web and return structured results with title, URL, and snippet.",
		params: []toolexecutor.ToolParameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "engine", Type: "string", Description: "Search engine: 'duckduckgo' (default) or 'google'", Enum: []string{"duckduckgo", "google"}},
		},
	},
	{
		name:        "browsy_login",
		op:          OpLogin,
		description: "Log in using detected login form fields. Requires a page with a login form loaded.",
		params: []toolexecutor.ToolParameter{
			{Name: "username", Type: "string", Description: "Username or email", Required: true},
			{Name: "password", Type: "string", Description: "Password", Required: true},
		},
	},
	{
		name:        "browsy_enter_code",
		op:          OpEnterCode,
		description: "Enter a verification or 2FA code into the detected code input field.",
		params: []toolexecutor.ToolParameter{
			{Name: "code", Type: "string", Description: "Verification or 2FA code", Required: true},
		},
	},
	{
		name:        "browsy_find",
		op:          OpFind,
		description: "Find elements on the current page by text content or ARIA role.",
		params: []toolexecutor.ToolParameter{
			{Name: "text", Type: "string", Description: "Find elements containing this text"},
			{Name: "role", Type: "string", Description: "Find elements with this ARIA role"},
		},
	},
	{
		name:        "browsy_page_info",
		op:          OpPageInfo,
		description: "Get page metadata: page type, suggested actions (login/search/consent), alerts, pagination, title, and URL.",
	},
	{
		name:        "browsy_tables",
		op:          OpTables,
		description: "Extract structured table data from the current page. Returns headers and rows.",
	},
	{
		name:        "browsy_back",
		op:          OpBack,
		description: "Go back to the previous page in browsing history.",
	},
}

// ToolDefinitions returns the agent-facing browsy tools bound to bc
func ToolDefinitions(bc *BrowsyContext) []toolexecutor.ToolDefinition {
	defs := make([]toolexecutor.ToolDefinition, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		defs = append(defs, toolexecutor.ToolDefinition{
			Name:        spec.name,
			Description: spec.description,
			Parameters:  spec.params,
			Handler:     toolHandler(bc, spec.op),
		})
	}
	return defs
}

// ToolNames lists the names of the agent-facing tools in registration order
func ToolNames() []string {
	names := make([]string, len(toolSpecs))
	for i, spec := range toolSpecs {
		names[i] = spec.name
	}
	return names
}

// RegisterBrowsyTools registers all browsy tools with the tool executor
func RegisterBrowsyTools(executor *toolexecutor.ToolExecutor, bc *BrowsyContext) error {
	for _, tool := range ToolDefinitions(bc) {
		if err := executor.RegisterTool(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func toolHandler(bc *BrowsyContext, op OperationName) toolexecutor.ToolHandler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		agentID := ""
		if execCtx := toolexecutor.ExecContextFromContext(ctx); execCtx != nil {
			agentID = execCtx.AgentID
		}
		return bc.ExecuteOperation(ctx, string(op), params, agentID)
	}
}
