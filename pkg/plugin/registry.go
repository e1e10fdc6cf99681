package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/browsy/pkg/toolexecutor"
	"github.com/rs/zerolog"
)

type namedService struct {
	name    string
	service Service
}

// Registry is an in-process HostAPI. It keeps what was registered and lets
// the owner run hooks, services, methods and commands.
type Registry struct {
	mu             sync.RWMutex
	preToolHooks   []PreToolHook
	bootstrapHooks []BootstrapHook
	services       []namedService
	methods        map[string]GatewayMethod
	commands       map[string]Command
	names          map[string]struct{}
	logger         zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		methods:  make(map[string]GatewayMethod),
		commands: make(map[string]Command),
		names:    make(map[string]struct{}),
		logger:   logger.With().Str("component", "plugin").Logger(),
	}
}

func (r *Registry) claim(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	key := kind + ":" + name
	if _, exists := r.names[key]; exists {
		return fmt.Errorf("%s %s already registered", kind, name)
	}
	r.names[key] = struct{}{}
	return nil
}

// RegisterPreToolHook implements HostAPI
func (r *Registry) RegisterPreToolHook(name string, hook PreToolHook) error {
	if hook == nil {
		return fmt.Errorf("hook cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim("hook", name); err != nil {
		return err
	}
	r.preToolHooks = append(r.preToolHooks, hook)
	r.logger.Debug().Str("hook", name).Msg("Registered hook")
	return nil
}

// RegisterBootstrapHook implements HostAPI
func (r *Registry) RegisterBootstrapHook(name string, hook BootstrapHook) error {
	if hook == nil {
		return fmt.Errorf("hook cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim("hook", name); err != nil {
		return err
	}
	r.bootstrapHooks = append(r.bootstrapHooks, hook)
	r.logger.Debug().Str("hook", name).Msg("Registered hook")
	return nil
}

// RegisterService implements HostAPI
func (r *Registry) RegisterService(name string, service Service) error {
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim("service", name); err != nil {
		return err
	}
	r.services = append(r.services, namedService{name: name, service: service})
	return nil
}

// RegisterGatewayMethod implements HostAPI
func (r *Registry) RegisterGatewayMethod(name string, method GatewayMethod) error {
	if method == nil {
		return fmt.Errorf("method cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim("method", name); err != nil {
		return err
	}
	r.methods[name] = method
	return nil
}

// RegisterCommand implements HostAPI
func (r *Registry) RegisterCommand(name string, command Command) error {
	if command.Handler == nil {
		return fmt.Errorf("command handler cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim("command", name); err != nil {
		return err
	}
	r.commands[name] = command
	return nil
}

// BeforeTool runs the pre-tool hooks and reports the first abort reason
func (r *Registry) BeforeTool(ctx context.Context, event *ToolEvent) (string, bool) {
	r.mu.RLock()
	hooks := append([]PreToolHook(nil), r.preToolHooks...)
	r.mu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, event)
		if reason, aborted := event.Aborted(); aborted {
			return reason, true
		}
	}
	return "", false
}

// Bootstrap runs the bootstrap hooks and returns the final tool list
func (r *Registry) Bootstrap(ctx context.Context, agentName, agentID string, tools []toolexecutor.ToolDefinition) []toolexecutor.ToolDefinition {
	r.mu.RLock()
	hooks := append([]BootstrapHook(nil), r.bootstrapHooks...)
	r.mu.RUnlock()

	event := &BootstrapEvent{AgentName: agentName, AgentID: agentID, Tools: tools}
	for _, hook := range hooks {
		hook(ctx, event)
	}
	return event.Tools
}

// StartServices starts services in registration order
func (r *Registry) StartServices(ctx context.Context) error {
	r.mu.RLock()
	services := append([]namedService(nil), r.services...)
	r.mu.RUnlock()

	for _, s := range services {
		if err := s.service.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", s.name, err)
		}
		r.logger.Info().Str("service", s.name).Msg("Service started")
	}
	return nil
}

// StopServices stops services in reverse order and joins the errors
func (r *Registry) StopServices(ctx context.Context) error {
	r.mu.RLock()
	services := append([]namedService(nil), r.services...)
	r.mu.RUnlock()

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].service.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", services[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// Methods returns a copy of the registered gateway methods
func (r *Registry) Methods() map[string]GatewayMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]GatewayMethod, len(r.methods))
	for name, m := range r.methods {
		out[name] = m
	}
	return out
}

// CallMethod invokes a gateway method by name
func (r *Registry) CallMethod(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	method, ok := r.methods[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("method not found: %s", name)
	}
	return method(ctx, params)
}

// Command returns a registered command
func (r *Registry) Command(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// CommandNames lists the registered commands, sorted
func (r *Registry) CommandNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.commands)
}
