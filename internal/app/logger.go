package app

import (
	"strings"

	"github.com/charlesng35/crmhub/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server settings, defaulting to info.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.Init(logger.Options{
		Level: level,
		File:  strings.TrimSpace(cfg.LogFile),
	})
}
