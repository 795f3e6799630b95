package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/killallgit/agentstream/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithConfig(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "logs", "system.log")

	t.Run("should create log file and directory", func(t *testing.T) {
		err := InitWithConfig(config.LoggingConfig{LogFile: logPath, Level: "debug"})
		require.NoError(t, err)

		WithComponent("decoder").Debug("frame decoded", "node", "n1")
		require.NoError(t, Close())

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "frame decoded")
		assert.Contains(t, string(content), "component=decoder")
		assert.Contains(t, string(content), "node=n1")
	})

	t.Run("should truncate when preserve is false", func(t *testing.T) {
		require.NoError(t, os.WriteFile(logPath, []byte("old session\n"), 0644))

		require.NoError(t, InitWithConfig(config.LoggingConfig{LogFile: logPath}))
		require.NoError(t, Close())

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.NotContains(t, string(content), "old session")
	})

	t.Run("should append when preserve is true", func(t *testing.T) {
		require.NoError(t, os.WriteFile(logPath, []byte("old session\n"), 0644))

		require.NoError(t, InitWithConfig(config.LoggingConfig{LogFile: logPath, Preserve: true}))
		Info("new session %d", 2)
		require.NoError(t, Close())

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "old session")
		assert.Contains(t, string(content), "new session 2")
	})
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("warn")
	defer Close()

	log := WithComponent("store")
	log.Info("hidden")
	log.Warn("shown", "session", "s1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "session=s1")
}

func TestFields(t *testing.T) {
	f := fields([]any{"a", 1, "b"})
	assert.Equal(t, 1, f["a"])
	assert.Equal(t, "b", f["!BADKEY"])

	f = fields([]any{42, "x"})
	assert.Equal(t, "x", f["42"])
}

func TestUninitializedLoggerDiscards(t *testing.T) {
	require.NoError(t, Close())
	assert.NotPanics(t, func() {
		Debug("nothing %s", "here")
		WithComponent("x").Error("still nothing")
	})
}
