package plugin

import (
	"fmt"
	"sort"

	"github.com/harun/browsy/pkg/browsy"
)

// Register installs the bridge on host: hooks, the server service, gateway
// methods and commands, in that order. It stops at the first refusal.
func Register(host HostAPI, bc *browsy.BrowsyContext) error {
	if err := host.RegisterPreToolHook(HookPreToolExecution, NewPreToolExecutionHook(bc)); err != nil {
		return fmt.Errorf("register %s hook: %w", HookPreToolExecution, err)
	}
	if err := host.RegisterBootstrapHook(HookAgentBootstrap, NewAgentBootstrapHook(bc)); err != nil {
		return fmt.Errorf("register %s hook: %w", HookAgentBootstrap, err)
	}

	if err := host.RegisterService(ServiceName, NewServerService(bc)); err != nil {
		return fmt.Errorf("register service: %w", err)
	}

	methods := GatewayMethods(bc)
	for _, name := range sortedKeys(methods) {
		if err := host.RegisterGatewayMethod(name, methods[name]); err != nil {
			return fmt.Errorf("register gateway method %s: %w", name, err)
		}
	}

	commands := Commands(bc)
	for _, name := range sortedKeys(commands) {
		if err := host.RegisterCommand(name, commands[name]); err != nil {
			return fmt.Errorf("register command %s: %w", name, err)
		}
	}

	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
