package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/harun/browsy/internal/config"
	"github.com/harun/browsy/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLifecycleForTest(t *testing.T) *LifecycleManager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	return NewLifecycleManager(&Daemon{config: cfg, logger: log})
}

func TestLifecycle_WritesAndRemovesPIDFile(t *testing.T) {
	l := newLifecycleForTest(t)

	require.NoError(t, l.Start())
	pid, err := ReadPID(l.PIDFile())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, l.Stop())
	require.NoError(t, l.Stop())
	_, err = os.Stat(l.PIDFile())
	assert.True(t, os.IsNotExist(err))
}

func TestLifecycle_StalePIDFileIsReplaced(t *testing.T) {
	l := newLifecycleForTest(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(l.PIDFile()), 0o755))
	// PID 0 is never a live process
	require.NoError(t, os.WriteFile(l.PIDFile(), []byte("0"), 0o644))

	require.NoError(t, l.Start())
	pid, err := ReadPID(l.PIDFile())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLifecycle_RefusesLiveOwner(t *testing.T) {
	l := newLifecycleForTest(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(l.PIDFile()), 0o755))
	require.NoError(t, os.WriteFile(l.PIDFile(), []byte(strconv.Itoa(os.Getppid())), 0o644))

	err := l.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestReadPID_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), PIDFileName)
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	_, err := ReadPID(path)
	assert.Error(t, err)

	_, err = ReadPID(filepath.Join(t.TempDir(), "missing.pid"))
	assert.Error(t, err)
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
	assert.False(t, ProcessAlive(0))
	assert.False(t, ProcessAlive(-5))
}
