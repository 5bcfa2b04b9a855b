package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitConfiguresLevel(t *testing.T) {
	t.Cleanup(Replace(nil))

	require.NoError(t, Init(Options{Level: "debug"}))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))

	require.NoError(t, Init(Options{Level: "not-a-level"}))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestInitWritesRotatedFile(t *testing.T) {
	t.Cleanup(Replace(nil))

	path := filepath.Join(t.TempDir(), "crmhub.log")
	require.NoError(t, Init(Options{Level: "info", File: path}))

	WithModule("test").Info("file entry", zap.String("k", "v"))
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "file entry")
	require.Contains(t, string(data), `"module":"test"`)
}

func TestReplaceRestores(t *testing.T) {
	before := Logger()
	core, recorded := observer.New(zap.DebugLevel)
	restore := Replace(zap.New(core))

	WithModule("tenancy").Debug("scoped")
	require.Equal(t, 1, recorded.Len())
	require.Equal(t, "tenancy", recorded.All()[0].ContextMap()["module"])

	restore()
	require.Same(t, before, Logger())
}
