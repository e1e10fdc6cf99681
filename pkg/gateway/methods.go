package gateway

import (
	"context"

	"github.com/harun/browsy/pkg/plugin"
)

func (s *Server) registerBuiltinMethods() {
	_ = s.router.RegisterMethod("gateway.methods", s.handleMethods)
	_ = s.router.RegisterMethod("gateway.clients", s.handleClients)
	_ = s.router.RegisterMethod("gateway.ping", s.handlePing)
}

func (s *Server) handleMethods(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"methods": s.router.GetMethods(),
	}, nil
}

func (s *Server) handleClients(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	clients := s.clients.GetConnectedClients()
	return map[string]interface{}{
		"clients": clients,
		"count":   len(clients),
	}, nil
}

func (s *Server) handlePing(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	result := map[string]interface{}{"pong": true}
	if clientID := ClientIDFromContext(ctx); clientID != "" {
		result["clientId"] = clientID
	}
	return result, nil
}

// RegisterPluginMethods exposes every method a plugin registered
func (s *Server) RegisterPluginMethods(methods map[string]plugin.GatewayMethod) error {
	for name, method := range methods {
		if err := s.router.RegisterMethod(name, RequestHandler(method)); err != nil {
			return err
		}
	}
	return nil
}
