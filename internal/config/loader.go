package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads a YAML config file into a Config. Environment variables with
// the DISSECT_ prefix override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	fileExt := filepath.Ext(filename)
	nameWithoutExt := strings.TrimSuffix(filename, fileExt)

	v.SetConfigName(nameWithoutExt)
	v.SetConfigType(strings.TrimPrefix(fileExt, "."))
	v.AddConfigPath(dir)

	v.SetEnvPrefix("DISSECT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	applyDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(err) // defaults are static; a failure here is a programming error
	}
	return cfg
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("capture.snap_len", 65535)
	v.SetDefault("capture.promiscuous", true)
	v.SetDefault("capture.timeout_ms", 100)
	v.SetDefault("capture.buffer_size_mb", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9115")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("report.batch_size", 100)
	v.SetDefault("report.batch_timeout", "100ms")
	v.SetDefault("report.compression", "snappy")
}
