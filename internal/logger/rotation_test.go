package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates file and directory", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "bridge.log")

		rw, err := NewRotatingWriter(logFile, 10, 7, false)
		require.NoError(t, err)
		defer rw.Close()

		_, err = os.Stat(logFile)
		assert.NoError(t, err)
	})

	t.Run("appends to existing file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "bridge.log")
		require.NoError(t, os.WriteFile(logFile, []byte("earlier\n"), 0o644))

		rw, err := NewRotatingWriter(logFile, 10, 7, false)
		require.NoError(t, err)
		_, err = rw.Write([]byte("later\n"))
		require.NoError(t, err)
		require.NoError(t, rw.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Equal(t, "earlier\nlater\n", string(content))
	})
}

func TestRotatingWriter_RotatesWhenFull(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "bridge.log")

	rw, err := NewRotatingWriter(logFile, 1, 7, false)
	require.NoError(t, err)
	rw.maxSize = 64

	first := []byte(strings.Repeat("a", 50) + "\n")
	second := []byte(strings.Repeat("b", 50) + "\n")
	_, err = rw.Write(first)
	require.NoError(t, err)
	_, err = rw.Write(second)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	current, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, string(second), string(current))

	rotated, err := filepath.Glob(logFile + ".*")
	require.NoError(t, err)
	require.Len(t, rotated, 1)
	old, err := os.ReadFile(rotated[0])
	require.NoError(t, err)
	assert.Equal(t, string(first), string(old))
}

func TestRotatingWriter_CompressesRotatedFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "bridge.log")

	rw, err := NewRotatingWriter(logFile, 1, 7, true)
	require.NoError(t, err)
	rw.maxSize = 16

	_, err = rw.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	_, err = rw.Write([]byte("next"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	gz, err := filepath.Glob(logFile + ".*.gz")
	require.NoError(t, err)
	assert.Len(t, gz, 1)

	all, err := filepath.Glob(logFile + ".*")
	require.NoError(t, err)
	assert.Len(t, all, 1, "uncompressed copy should be removed")
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "bridge.log"), 1, 0, false)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	_, err = rw.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRotatingWriter_RemoveExpired(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "bridge.log")

	stale := logFile + ".20200101-000000.000.gz"
	fresh := logFile + ".20990101-000000.000"
	unrelated := filepath.Join(dir, "other.log.1")
	for _, path := range []string{stale, fresh, unrelated} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	rw := &RotatingWriter{filename: logFile, maxAge: 7}
	rw.removeExpired(time.Now())

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
}
