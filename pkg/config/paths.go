package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultSettingsDir is used when no settings file was found
const DefaultSettingsDir = "./.agentstream"

// BaseSettingsDir returns the directory of the settings file in use
func BaseSettingsDir() string {
	if configPath := viper.GetString("config.path"); configPath != "" {
		return configPath
	}

	if used := viper.ConfigFileUsed(); used != "" {
		return filepath.Dir(used)
	}
	return DefaultSettingsDir
}

func BuildSettingsPath(target string) string {
	return filepath.Join(BaseSettingsDir(), target)
}
