// Package config handles configuration loading using viper.
package config

import (
	"firestige.xyz/dissect/internal/dissect"
	"firestige.xyz/dissect/internal/log"
)

// Config is the top-level configuration of the dissection agent.
type Config struct {
	Capture CaptureConfig         `mapstructure:"capture"`
	Engine  dissect.NetworkConfig `mapstructure:"engine"`
	Log     log.LoggerConfig      `mapstructure:"log"`
	Metrics MetricsConfig         `mapstructure:"metrics"`
	Report  ReportConfig          `mapstructure:"report"`
}

// CaptureConfig configures the live capture source.
type CaptureConfig struct {
	Device       string `mapstructure:"device"`
	SnapLen      int    `mapstructure:"snap_len"`
	Promiscuous  bool   `mapstructure:"promiscuous"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	BPFFilter    string `mapstructure:"bpf_filter"`
	UseAfpacket  bool   `mapstructure:"use_afpacket"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// ReportConfig configures the Kafka traffic reporter. An empty broker
// list disables reporting.
type ReportConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	BatchSize    int      `mapstructure:"batch_size"`
	BatchTimeout string   `mapstructure:"batch_timeout"`
	Compression  string   `mapstructure:"compression"`
}
