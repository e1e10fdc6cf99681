package browsy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(port int) Config {
	cfg := DefaultConfig()
	cfg.Port = port
	cfg.ServerTimeoutMs = 5000
	return cfg
}

func newTestManager(cfg Config) *ServerManager {
	return NewServerManager(cfg, zerolog.Nop())
}

func TestServerManager_InitialState(t *testing.T) {
	sm := newTestManager(testConfig(freePort(t)))

	assert.False(t, sm.IsRunning())
	info := sm.Status()
	assert.Equal(t, StatusStopped, info.Status)
	assert.Zero(t, info.PID)
	assert.Empty(t, info.Error)
}

func TestServerManager_AdoptsHealthyServer(t *testing.T) {
	mock := newMockUpstream()
	port := mock.start(t)

	sm := newTestManager(testConfig(port))
	require.NoError(t, sm.Start(context.Background()))

	assert.True(t, sm.IsRunning())
	assert.True(t, sm.Adopted())
	info := sm.Status()
	assert.False(t, info.Owned)
	assert.Zero(t, info.PID)

	// Adopted servers are never signalled
	require.NoError(t, sm.Stop(context.Background()))
	assert.Equal(t, StatusStopped, sm.Status().Status)
	assert.True(t, IsPortInUse(context.Background(), port))
}

func TestServerManager_StartIsNoopWhenRunning(t *testing.T) {
	mock := newMockUpstream()
	port := mock.start(t)

	sm := newTestManager(testConfig(port))
	require.NoError(t, sm.Start(context.Background()))
	before := mock.Requests()

	require.NoError(t, sm.Start(context.Background()))
	assert.Equal(t, before, mock.Requests())
}

func TestServerManager_PortConflict(t *testing.T) {
	mock := newMockUpstream()
	mock.healthy.Store(false)
	port := mock.start(t)

	spawnLog := filepath.Join(t.TempDir(), "spawns")
	t.Setenv(helperSpawnLogEnv, spawnLog)
	cfg := testConfig(port)
	cfg.BinaryPath = helperBinary(t, "serve")

	sm := newTestManager(cfg)
	started := time.Now()
	err := sm.Start(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPortConflict))
	assert.Equal(t, "Port "+strconv.Itoa(port)+" is already in use by another process", err.Error())
	assert.Less(t, time.Since(started), 3*time.Second)

	info := sm.Status()
	assert.Equal(t, StatusError, info.Status)
	assert.Equal(t, err.Error(), info.Error)

	_, statErr := os.Stat(spawnLog)
	assert.True(t, os.IsNotExist(statErr), "no process should have been spawned")
}

func TestServerManager_BinaryNotFound(t *testing.T) {
	t.Setenv(BinaryEnvVar, "")
	t.Setenv("PATH", t.TempDir())

	sm := newTestManager(testConfig(freePort(t)))
	err := sm.Start(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBinaryNotFound)
	assert.Equal(t, "browsy binary not found in PATH", err.Error())
	assert.Equal(t, StatusError, sm.Status().Status)
}

func TestServerManager_SpawnStartStop(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	cfg.BinaryPath = helperBinary(t, "serve")

	var mu sync.Mutex
	var transitions []ServerStatus
	sm := newTestManager(cfg)
	sm.OnStateChange(func(from, to ServerStatus, info ServerInfo) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	require.NoError(t, sm.Start(context.Background()))

	info := sm.Status()
	assert.Equal(t, StatusRunning, info.Status)
	assert.True(t, info.Owned)
	assert.Positive(t, info.PID)
	assert.False(t, sm.Adopted())
	assert.NoError(t, sm.CheckHealth(context.Background()))

	require.NoError(t, sm.Stop(context.Background()))
	assert.Equal(t, StatusStopped, sm.Status().Status)
	assert.Empty(t, sm.Status().Error)
	assert.Eventually(t, func() bool {
		return !IsPortInUse(context.Background(), port)
	}, 3*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ServerStatus{StatusStarting, StatusRunning, StatusStopped}, transitions)
}

func TestServerManager_ConcurrentStartSpawnsOnce(t *testing.T) {
	port := freePort(t)
	spawnLog := filepath.Join(t.TempDir(), "spawns")
	t.Setenv(helperSpawnLogEnv, spawnLog)

	cfg := testConfig(port)
	cfg.BinaryPath = helperBinary(t, "serve")
	sm := newTestManager(cfg)
	defer sm.Stop(context.Background())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = sm.Start(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.True(t, sm.IsRunning())

	data, err := os.ReadFile(spawnLog)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(string(data)), 1)
}

func TestServerManager_ProcessExitDuringStartup(t *testing.T) {
	cfg := testConfig(freePort(t))
	cfg.BinaryPath = helperBinary(t, "exit3")

	sm := newTestManager(cfg)
	err := sm.Start(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessExit)
	assert.Contains(t, err.Error(), "browsy exited with code 3")

	info := sm.Status()
	assert.Equal(t, StatusError, info.Status)
	assert.Contains(t, info.Error, "browsy exited with code 3")
	assert.False(t, info.Owned)
}

func TestServerManager_StartupTimeout(t *testing.T) {
	cfg := testConfig(freePort(t))
	cfg.ServerTimeoutMs = 600
	cfg.BinaryPath = helperBinary(t, "hang")

	sm := newTestManager(cfg)
	defer sm.Stop(context.Background())

	started := time.Now()
	err := sm.Start(context.Background())
	elapsed := time.Since(started)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartupTimeout)
	assert.Equal(t, "browsy server did not become ready within 600ms", err.Error())
	assert.GreaterOrEqual(t, elapsed, 550*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, StatusError, sm.Status().Status)

	// The hung process is still owned, so Stop terminates it and clears the error
	assert.True(t, sm.Status().Owned)
	require.NoError(t, sm.Stop(context.Background()))
	assert.Equal(t, StatusStopped, sm.Status().Status)
	assert.Empty(t, sm.Status().Error)
}

func TestServerManager_RetryAfterTimeoutKeepsOneChild(t *testing.T) {
	cfg := testConfig(freePort(t))
	cfg.ServerTimeoutMs = 400
	cfg.BinaryPath = helperBinary(t, "hang")

	sm := newTestManager(cfg)
	defer sm.Stop(context.Background())

	require.ErrorIs(t, sm.Start(context.Background()), ErrStartupTimeout)
	first := sm.Status().PID
	require.NotZero(t, first)

	// The retry waits on the same hung child
	require.ErrorIs(t, sm.Start(context.Background()), ErrStartupTimeout)
	assert.Equal(t, first, sm.Status().PID)
	assert.True(t, sm.Status().Owned)

	require.NoError(t, sm.Stop(context.Background()))
	assert.Error(t, syscall.Kill(first, 0), "child should be gone after Stop")
	assert.Equal(t, StatusStopped, sm.Status().Status)
	assert.False(t, sm.Status().Owned)
}

func TestServerManager_CallerCancelDoesNotAbortSharedStart(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	cfg.BinaryPath = helperBinary(t, "serve")
	sm := newTestManager(cfg)
	defer sm.Stop(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sm.Start(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Eventually(t, sm.IsRunning, 5*time.Second, 20*time.Millisecond)
}

func TestServerManager_StopWithoutProcessKeepsError(t *testing.T) {
	t.Setenv(BinaryEnvVar, "")
	t.Setenv("PATH", t.TempDir())

	sm := newTestManager(testConfig(freePort(t)))
	require.Error(t, sm.Start(context.Background()))

	require.NoError(t, sm.Stop(context.Background()))
	info := sm.Status()
	assert.Equal(t, StatusStopped, info.Status)
	assert.Equal(t, "browsy binary not found in PATH", info.Error)
}

func TestServerManager_CheckHealthWhenStopped(t *testing.T) {
	sm := newTestManager(testConfig(freePort(t)))
	assert.Error(t, sm.CheckHealth(context.Background()))
}
