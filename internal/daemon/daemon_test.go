package daemon

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/harun/browsy/internal/config"
	"github.com/harun/browsy/internal/logger"
	"github.com/harun/browsy/pkg/browsy"
	"github.com/harun/browsy/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startUpstream serves a minimal browsy API and returns its port
func startUpstream(t *testing.T) (int, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		calls.Add(1)
		session := r.Header.Get(browsy.SessionHeader)
		if session == "" {
			session = "daemon-session"
		}
		w.Header().Set(browsy.SessionHeader, session)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().(*net.TCPAddr).Port, &calls
}

func testDaemonConfig(t *testing.T, upstreamPort int) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Logging.Console = false
	cfg.Gateway.Port = 0
	cfg.Metrics.Enabled = false
	cfg.Browsy.Port = &upstreamPort
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	log, err := logger.New(cfg.LoggerConfig())
	require.NoError(t, err)

	d, err := New(cfg, "", log)
	require.NoError(t, err)
	return d
}

func callRPC(t *testing.T, d *Daemon, method string, params map[string]interface{}) gateway.RPCResponse {
	t.Helper()
	body, err := json.Marshal(gateway.RPCRequest{ID: "1", Method: method, Params: params, JSONRPC: "2.0"})
	require.NoError(t, err)

	res, err := http.Post("http://"+d.Gateway().Addr()+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()

	var resp gateway.RPCResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	return resp
}

func TestNew_RejectsInvalidBrowsyConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Logging.Console = false
	bad := 70000
	cfg.Browsy.Port = &bad

	log, err := logger.New(cfg.LoggerConfig())
	require.NoError(t, err)
	_, err = New(cfg, "", log)
	assert.Error(t, err)
}

func TestDaemon_StartStop(t *testing.T) {
	port, _ := startUpstream(t)
	d := newTestDaemon(t, testDaemonConfig(t, port))

	require.NoError(t, d.Start(t.Context()))
	assert.Error(t, d.Start(t.Context()), "second start must fail")

	status := d.Status()
	assert.True(t, status.Running)
	assert.Equal(t, browsy.StatusRunning, status.Server.Status)
	assert.False(t, status.Server.Owned)
	assert.NotEmpty(t, status.Gateway)

	pid, err := ReadPID(d.lifecycle.PIDFile())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, d.Stop())
	assert.Error(t, d.Stop())
	assert.False(t, d.Status().Running)

	_, err = os.Stat(d.lifecycle.PIDFile())
	assert.True(t, os.IsNotExist(err))
}

func TestDaemon_GatewayExposesBridge(t *testing.T) {
	port, calls := startUpstream(t)
	d := newTestDaemon(t, testDaemonConfig(t, port))
	require.NoError(t, d.Start(t.Context()))
	defer d.Stop()

	resp := callRPC(t, d, "gateway.methods", nil)
	require.Nil(t, resp.Error)
	methods := resp.Result.(map[string]interface{})["methods"]
	for _, name := range []string{"browsy.status", "browsy.execute", "browsy.sessions", "browsy.restart", "tools.list", "tools.execute", "commands.run"} {
		assert.Contains(t, methods, name)
	}

	resp = callRPC(t, d, "browsy.execute", map[string]interface{}{
		"operation": "browse",
		"params":    map[string]interface{}{"url": "https://example.com"},
		"agentId":   "agent-gw",
	})
	require.Nil(t, resp.Error)
	assert.EqualValues(t, 1, calls.Load())

	sess, ok := d.Browsy().Sessions().Get("agent-gw")
	require.True(t, ok)
	assert.Equal(t, "daemon-session", sess.Token)
}

func TestDaemon_ToolsExecute(t *testing.T) {
	port, calls := startUpstream(t)
	d := newTestDaemon(t, testDaemonConfig(t, port))
	require.NoError(t, d.Start(t.Context()))
	defer d.Stop()

	resp := callRPC(t, d, "tools.list", nil)
	require.Nil(t, resp.Error)
	assert.EqualValues(t, 13, resp.Result.(map[string]interface{})["count"])

	resp = callRPC(t, d, "tools.execute", map[string]interface{}{
		"name":    "browsy_click",
		"agentId": "agent-tool",
		"params":  map[string]interface{}{"id": 4},
	})
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "ok /api/click", result["output"])
	assert.EqualValues(t, 1, calls.Load())

	// Generic browser tools are redirected while browsy is preferred
	resp = callRPC(t, d, "tools.execute", map[string]interface{}{"name": "browser"})
	require.Nil(t, resp.Error)
	result = resp.Result.(map[string]interface{})
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "browsy_browse")

	resp = callRPC(t, d, "tools.execute", map[string]interface{}{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, gateway.InvalidParams, resp.Error.Code)
}

func TestDaemon_ToolPolicyDenies(t *testing.T) {
	port, calls := startUpstream(t)
	cfg := testDaemonConfig(t, port)
	cfg.Tools.Policy.Deny = []string{"browsy_back"}
	d := newTestDaemon(t, cfg)
	require.NoError(t, d.Start(t.Context()))
	defer d.Stop()

	resp := callRPC(t, d, "tools.execute", map[string]interface{}{"name": "browsy_back"})
	require.Nil(t, resp.Error)
	assert.Equal(t, false, resp.Result.(map[string]interface{})["success"])
	assert.Zero(t, calls.Load())
}

func TestDaemon_CommandsRun(t *testing.T) {
	port, _ := startUpstream(t)
	d := newTestDaemon(t, testDaemonConfig(t, port))
	require.NoError(t, d.Start(t.Context()))
	defer d.Stop()

	resp := callRPC(t, d, "commands.run", map[string]interface{}{"name": "/browsy-status"})
	require.Nil(t, resp.Error)
	output := resp.Result.(map[string]interface{})["output"].(string)
	assert.Contains(t, output, "=== Browsy Status ===")
	assert.Contains(t, output, "Port: "+strconv.Itoa(port))

	resp = callRPC(t, d, "commands.run", map[string]interface{}{"name": "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, gateway.MethodNotFound, resp.Error.Code)
}

func TestDaemon_GatewayDisabled(t *testing.T) {
	port, _ := startUpstream(t)
	cfg := testDaemonConfig(t, port)
	cfg.Gateway.Enabled = false
	cfg.Watchdog.Enabled = false
	d := newTestDaemon(t, cfg)

	assert.Nil(t, d.Gateway())
	require.NoError(t, d.Start(t.Context()))
	assert.Empty(t, d.Status().Gateway)
	require.NoError(t, d.Stop())
}

func TestDaemon_Reload(t *testing.T) {
	port, _ := startUpstream(t)
	cfg := testDaemonConfig(t, port)
	d := newTestDaemon(t, cfg)
	require.NoError(t, d.Start(t.Context()))
	defer d.Stop()

	next := testDaemonConfig(t, port)
	next.Gateway.Port = 3849
	prefer := false
	next.Browsy.PreferBrowsy = &prefer
	require.NoError(t, d.Reload(next))

	assert.False(t, d.Browsy().Config().PreferBrowsy)
	assert.Same(t, next, d.GetConfig())
	assert.True(t, d.Browsy().Server().IsRunning(), "flag changes keep the server")

	invalid := testDaemonConfig(t, port)
	invalid.Gateway.Port = 3849
	invalid.Watchdog.Schedule = "sometimes"
	assert.Error(t, d.Reload(invalid))
	assert.Same(t, next, d.GetConfig())
}
