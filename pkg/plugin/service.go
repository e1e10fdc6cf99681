package plugin

import (
	"context"

	"github.com/harun/browsy/pkg/browsy"
)

// ServerService ties the browsy server to the host lifecycle
type ServerService struct {
	bc *browsy.BrowsyContext
}

// NewServerService creates the lifecycle service for bc
func NewServerService(bc *browsy.BrowsyContext) *ServerService {
	return &ServerService{bc: bc}
}

// Start launches the server when auto start is on
func (s *ServerService) Start(ctx context.Context) error {
	if !s.bc.Config().AutoStart {
		return nil
	}
	return s.bc.EnsureServer(ctx)
}

// Stop stops an owned server
func (s *ServerService) Stop(ctx context.Context) error {
	return s.bc.Server().Stop(ctx)
}
