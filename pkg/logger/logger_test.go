package logger_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"leaderbus/pkg/logger"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elector.log")
	cfg := logger.DefaultConfig("elector-test")
	cfg.OutputPath = path
	cfg.Level = "debug"

	l, err := logger.New(cfg, zap.NewAtomicLevel())
	require.NoError(t, err)
	l.Debug("candidacy started", zap.String("token", "abc"))
	require.NoError(t, l.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(raw)
	assert.True(t, strings.Contains(line, `"message":"candidacy started"`), line)
	assert.True(t, strings.Contains(line, `"service":"elector-test"`), line)
	assert.True(t, strings.Contains(line, `"token":"abc"`), line)
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elector.log")
	cfg := logger.DefaultConfig("elector-test")
	cfg.OutputPath = path
	cfg.Level = "warn"

	l, err := logger.New(cfg, zap.NewAtomicLevel())
	require.NoError(t, err)
	l.Info("dropped")
	l.Warn("kept")
	require.NoError(t, l.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "dropped")
	assert.Contains(t, string(raw), "kept")
}

func TestGet_DefaultsOnce(t *testing.T) {
	a := logger.Get()
	b := logger.Get()
	assert.Same(t, a, b)
}

func TestSetLevel_AppliesToGlobalLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elector.log")
	cfg := logger.DefaultConfig("elector-test")
	cfg.OutputPath = path
	_, err := logger.Init(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.SetLevel("info") })

	logger.Debug("before")
	require.NoError(t, logger.SetLevel("debug"))
	assert.Equal(t, "debug", logger.Level())
	logger.Debug("after")
	logger.Named("elector").Debug("derived")
	logger.Warn("warned")
	logger.Error("failed")
	logger.Info("informed")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.NotContains(t, out, `"message":"before"`)
	assert.Contains(t, out, `"message":"after"`)
	assert.Contains(t, out, `"message":"derived"`)
	assert.Contains(t, out, `"message":"warned"`)
	assert.Contains(t, out, `"message":"failed"`)
	assert.Contains(t, out, `"message":"informed"`)
	// helpers skip their own frame
	assert.Contains(t, out, "logger_test.go")
	assert.NotContains(t, out, "logger/logger.go")
}

func TestSetLevel_RejectsUnknown(t *testing.T) {
	require.NoError(t, logger.SetLevel("warn"))
	t.Cleanup(func() { _ = logger.SetLevel("info") })

	assert.Error(t, logger.SetLevel("loud"))
	assert.Equal(t, "warn", logger.Level())
}
