package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// BaseSettingsDir returns the directory holding the active settings file,
// or an empty string when running on defaults only.
func BaseSettingsDir() string {
	if configPath := viper.GetString("config.path"); configPath != "" {
		return configPath
	}

	currentConfig := viper.ConfigFileUsed()
	if currentConfig == "" {
		return ""
	}
	return filepath.Dir(currentConfig)
}

// ResolvePath places a relative path next to the settings file. Absolute
// paths, and any path when no settings file is in use, are returned as given.
func ResolvePath(target string) string {
	if filepath.IsAbs(target) {
		return target
	}
	base := BaseSettingsDir()
	if base == "" {
		return target
	}
	return filepath.Join(base, filepath.Base(target))
}
