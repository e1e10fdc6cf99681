package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Version(t *testing.T) {
	out, err := runCLI(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "browsy-bridge version "+GetVersion()+"\n", out)
}

func TestRootCommand_Subcommands(t *testing.T) {
	var names []string
	for _, c := range GetRootCmd().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "stop", "status", "sessions", "exec", "restart", "tools", "configure"} {
		assert.Contains(t, names, want)
	}
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	path := writeConfig(t, "", "")
	cfgFile, logLevel = path, "debug"
	defer func() { cfgFile, logLevel = "", "" }()

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	logLevel = "loud"
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_InvalidFileFailsCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browsy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"gateway": {"enabled": true, "port": -5}}`), 0o600))

	_, err := runCLI(t, "", "status", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "gateway port")
}
