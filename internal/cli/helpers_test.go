package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/harun/browsy/pkg/gateway"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns what it printed
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cfgFile, logLevel = "", ""
	execAgent, execJSON, execIdempotent = "", false, false
	stopTimeout = 30

	cmd := GetRootCmd()
	// flag values outlive a single Execute
	for _, c := range append(cmd.Commands(), cmd) {
		for _, name := range []string{"help", "version"} {
			if f := c.Flags().Lookup(name); f != nil {
				_ = f.Value.Set("false")
			}
		}
	}

	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return output.String(), err
}

// writeConfig writes a config file pointing at gatewayAddr and returns its path
func writeConfig(t *testing.T, gatewayAddr, secret string) string {
	t.Helper()
	dir := t.TempDir()

	// nothing listens on the fallback port
	host, port := "127.0.0.1", 3999
	if gatewayAddr != "" {
		h, p, err := net.SplitHostPort(gatewayAddr)
		require.NoError(t, err)
		host = h
		port, err = strconv.Atoi(p)
		require.NoError(t, err)
	}

	data, err := json.Marshal(map[string]interface{}{
		"data_dir": dir,
		"gateway": map[string]interface{}{
			"enabled":       true,
			"host":          host,
			"port":          port,
			"shared_secret": secret,
		},
	})
	require.NoError(t, err)

	path := filepath.Join(dir, "browsy.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// fakeBridge is a gateway serving canned bridge methods
type fakeBridge struct {
	server *gateway.Server

	mu    sync.Mutex
	calls []map[string]interface{}
	keys  []string
}

func startFakeBridge(t *testing.T, secret string) *fakeBridge {
	t.Helper()
	server, err := gateway.NewServer(gateway.Config{
		Port:         0,
		SharedSecret: secret,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	fb := &fakeBridge{server: server}
	require.NoError(t, server.RegisterMethod("commands.run", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"name": params["name"], "output": "output of " + params["name"].(string)}, nil
	}))
	require.NoError(t, server.RegisterMethod("browsy.execute", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		fb.mu.Lock()
		fb.calls = append(fb.calls, params)
		fb.mu.Unlock()
		if params["operation"] == "tables" {
			return map[string]interface{}{"agentId": "a", "text": `[{"headers":["x"]}]`}, nil
		}
		return map[string]interface{}{"agentId": params["agentId"], "text": "Example Page"}, nil
	}))
	require.NoError(t, server.RegisterMethod("browsy.restart", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"status": "running", "port": 3847, "pid": 4242, "owned": true}, nil
	}))
	require.NoError(t, server.RegisterMethod("tools.list", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{
			"tools": []map[string]interface{}{{"name": "browsy_browse", "description": "Navigate to a URL"}},
			"count": 1,
		}, nil
	}))

	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop(context.Background()) })
	return fb
}

func (fb *fakeBridge) lastCall() map[string]interface{} {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.calls) == 0 {
		return nil
	}
	return fb.calls[len(fb.calls)-1]
}
