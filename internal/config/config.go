// Package config loads tinyfs's runtime configuration through
// github.com/spf13/viper, bound to github.com/spf13/cobra persistent flags —
// the same pattern the teacher's internal/disk and internal/device
// LoadDMGConfig functions use for APFS-specific configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds tinyfs's process-wide settings.
type Config struct {
	ImagePath    string `mapstructure:"image_path"`
	CacheSizeMB  int    `mapstructure:"cache_size_mb"`
	Verbose      bool   `mapstructure:"verbose"`
	Quiet        bool   `mapstructure:"quiet"`
	OutputFormat string `mapstructure:"output_format"`
}

// Load reads tinyfs configuration from (in order of increasing precedence) a
// config file, environment variables prefixed TINYFS_, and whatever has
// already been bound to viper from cobra flags by the caller.
func Load() (*Config, error) {
	viper.SetConfigName("tinyfs-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.tinyfs")
	viper.AddConfigPath("/etc/tinyfs")

	viper.SetDefault("image_path", "")
	viper.SetDefault("cache_size_mb", 16)
	viper.SetDefault("output_format", "table")
	viper.SetDefault("verbose", false)
	viper.SetDefault("quiet", false)

	viper.SetEnvPrefix("TINYFS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, nil
}
