package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for gameflow.yaml/.yml in
// standard locations. The search requires an explicit YAML extension so a
// binary named "gameflow" in the working directory is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by Load).
		viper.SetConfigName("gameflow")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: GAMEFLOW_ENGINE_EVAL_INTERVAL_MS
	viper.SetEnvPrefix("GAMEFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a gameflow config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".gameflow"),
		"/etc/gameflow",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "gameflow"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys so environment overrides work
// without a config file present.
func bindNestedEnvKeys() {
	keys := []string{
		"log.level",
		"log.format",
		"engine.eval_interval_ms",
		"engine.poll_interval_ms",
		"engine.cache_size",
		"snapshot.path",
		"telemetry.enabled",
	}
	for _, key := range keys {
		_ = viper.BindEnv(key)
	}
}
