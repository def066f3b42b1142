package config

import "github.com/spf13/viper"

// SetDefaults registers default values for every configuration key.
func SetDefaults() {
	// Backend
	viper.SetDefault("backend.base_url", "http://localhost:11434")
	viper.SetDefault("backend.model", "gpt-4o-mini")
	viper.SetDefault("backend.timeout", "5m")
	viper.SetDefault("backend.temperature", 0.7)
	viper.SetDefault("backend.top_p", 0.95)

	// Session
	viper.SetDefault("session.system_prompt", "")

	// Compression
	viper.SetDefault("compression.auto", true)
	viper.SetDefault("compression.threshold", 0.7)
	viper.SetDefault("compression.preserve_fraction", 0.3)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")
}
