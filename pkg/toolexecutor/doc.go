// Package toolexecutor holds the agent-facing tools and runs them with
// schema-checked input, a per-call timeout and an optional allow/deny policy.
//
// The calling agent travels in the ExecutionContext, which handlers read
// back with ExecContextFromContext. The browsy tools use it to pick the
// agent's session.
//
//	exec := toolexecutor.New()
//	_ = browsy.RegisterBrowsyTools(exec, bc)
//	res := exec.Execute(ctx, "browsy_browse",
//		map[string]interface{}{"url": "https://example.com"},
//		&toolexecutor.ExecutionContext{AgentID: "research", Timeout: 90 * time.Second})
package toolexecutor
