package plugin

import (
	"context"
	"fmt"

	"github.com/harun/browsy/pkg/browsy"
)

type idempotencyKeyCtx struct{}

// WithIdempotencyKey marks a gateway call as retry-safe under key
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKeyFrom returns the key set by WithIdempotencyKey
func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}

// GatewayMethods returns the remote management and execution methods
func GatewayMethods(bc *browsy.BrowsyContext) map[string]GatewayMethod {
	return map[string]GatewayMethod{
		"browsy.status": func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			return bc.Status(), nil
		},
		"browsy.restart": func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			return bc.Restart(ctx)
		},
		"browsy.sessions": func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{
				"sessions": bc.Sessions().List(),
				"count":    bc.Sessions().Count(),
			}, nil
		},
		"browsy.execute": func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return execute(ctx, bc, params)
		},
	}
}

// execute expects {"operation": "...", "params": {...}, "agentId": "..."}
func execute(ctx context.Context, bc *browsy.BrowsyContext, params map[string]interface{}) (interface{}, error) {
	operation, _ := params["operation"].(string)
	if operation == "" {
		return nil, fmt.Errorf("operation is required")
	}

	var opParams map[string]interface{}
	switch raw := params["params"].(type) {
	case nil:
	case map[string]interface{}:
		opParams = raw
	default:
		return nil, fmt.Errorf("params must be an object")
	}

	agentID, _ := params["agentId"].(string)

	var (
		text string
		err  error
	)
	if key := IdempotencyKeyFrom(ctx); key != "" {
		text, err = bc.ExecuteIdempotent(ctx, operation, opParams, agentID, key)
	} else {
		text, err = bc.ExecuteOperation(ctx, operation, opParams, agentID)
	}
	if err != nil {
		return nil, err
	}

	if agentID == "" {
		agentID = browsy.DefaultAgentID
	}
	return map[string]interface{}{
		"agentId": agentID,
		"text":    text,
	}, nil
}
