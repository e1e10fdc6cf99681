package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/harun/browsy/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePID(t *testing.T, configPath string, pid int) {
	t.Helper()
	pidFile := daemon.PIDFilePath(filepath.Dir(configPath))
	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644))
}

func TestStatusCommand(t *testing.T) {
	t.Run("no PID file", func(t *testing.T) {
		path := writeConfig(t, "", "")

		out, err := runCLI(t, "", "status", "--config", path)
		require.NoError(t, err)
		assert.Equal(t, "Bridge: stopped\n", out)
	})

	t.Run("stale PID file", func(t *testing.T) {
		path := writeConfig(t, "", "")
		writePID(t, path, 0)

		out, err := runCLI(t, "", "status", "--config", path)
		require.NoError(t, err)
		assert.Equal(t, "Bridge: stopped\n", out)
	})

	t.Run("running with gateway", func(t *testing.T) {
		fb := startFakeBridge(t, "")
		path := writeConfig(t, fb.server.Addr(), "")
		writePID(t, path, os.Getpid())

		out, err := runCLI(t, "", "status", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Bridge: running")
		assert.Contains(t, out, "PID: "+strconv.Itoa(os.Getpid()))
		assert.Contains(t, out, "Uptime: ")
		assert.Contains(t, out, "output of browsy-status")
	})

	t.Run("running but gateway down", func(t *testing.T) {
		path := writeConfig(t, "", "")
		writePID(t, path, os.Getpid())

		out, err := runCLI(t, "", "status", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Bridge: running")
		assert.Contains(t, out, "Gateway: unreachable")
		assert.NotContains(t, out, "browsy-status")
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{1400 * time.Millisecond, "1s"},
		{90 * time.Second, "1m30s"},
		{26*time.Hour + 5*time.Second, "26h0m5s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in), tt.in.String())
	}
}
