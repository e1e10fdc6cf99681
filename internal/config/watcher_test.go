package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "browsy.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"browsy": {"port": 4000}}`), 0o644))

	var mu sync.Mutex
	var ports []int
	w, err := NewWatcher(NewLoader(configPath), 50*time.Millisecond, func(cfg *Config) error {
		browsyCfg, err := cfg.BrowsyConfig()
		if err != nil {
			return err
		}
		mu.Lock()
		ports = append(ports, browsyCfg.Port)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// Several quick writes collapse into one reload
	for _, port := range []string{"4001", "4002", "4003"} {
		require.NoError(t, os.WriteFile(configPath, []byte(`{"browsy": {"port": `+port+`}}`), 0o644))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ports) > 0 && ports[len(ports)-1] == 4003
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_SkipsInvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "browsy.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0o644))

	calls := make(chan struct{}, 4)
	w, err := NewWatcher(NewLoader(configPath), 20*time.Millisecond, func(cfg *Config) error {
		calls <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "loud"}}`), 0o644))

	select {
	case <-calls:
		t.Fatal("invalid config must not be applied")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "browsy.json")

	calls := make(chan struct{}, 4)
	w, err := NewWatcher(NewLoader(configPath), 20*time.Millisecond, func(cfg *Config) error {
		calls <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case <-calls:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestNewWatcher_RequiresCallback(t *testing.T) {
	_, err := NewWatcher(NewLoader(filepath.Join(t.TempDir(), "browsy.json")), 0, nil)
	assert.Error(t, err)
}
