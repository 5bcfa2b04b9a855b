package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/crmhub/pkg/logger"
)

func TestConfigureLoggingDefaultsToInfo(t *testing.T) {
	t.Cleanup(logger.Replace(nil))
	require.NoError(t, ConfigureLogging(ServerConfig{}))
	require.False(t, logger.Logger().Core().Enabled(zap.DebugLevel))
}

func TestConfigureLoggingWritesFile(t *testing.T) {
	t.Cleanup(logger.Replace(nil))
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, ConfigureLogging(ServerConfig{LogLevel: "debug", LogFile: path}))

	logger.WithModule("app").Info("configured")
	_ = logger.Sync()

	_, err := os.Stat(path)
	require.NoError(t, err)
}
