package dissect

import "time"

// NetworkConfig bounds the resources the engine may spend on hostile or
// malformed traffic. Every field is clamped on engine construction; the
// zero value yields the defaults.
type NetworkConfig struct {
	// FragTimeout is how long an incomplete fragment group may live.
	FragTimeout time.Duration `mapstructure:"frag_timeout"`
	// FragClearInterval is the minimum gap between eviction sweeps.
	FragClearInterval time.Duration `mapstructure:"frag_clear_interval"`
	// MaxReassembleSize caps the size of any one reassembled datagram.
	MaxReassembleSize uint32 `mapstructure:"max_reassemble_size"`
	// MaxFragmentCount caps the fragments tolerated per group.
	MaxFragmentCount uint32 `mapstructure:"max_fragment_count"`
	// MaxFragSize caps the payload bytes of any one fragment.
	MaxFragSize uint32 `mapstructure:"max_frag_size"`
	// MaxCacheCount caps the distinct fragment groups cached concurrently.
	MaxCacheCount uint32 `mapstructure:"max_cache_count"`
	// MaxRecursionDepth caps reassembly re-entries per top-level parse.
	MaxRecursionDepth int `mapstructure:"max_recursion_depth"`
}

// clampNetworkConfig forces every field into its sane range.
func clampNetworkConfig(cfg NetworkConfig) NetworkConfig {
	// Fragments older than 5 minutes cannot be normal network latency.
	if cfg.FragTimeout < time.Second || cfg.FragTimeout > 300*time.Second {
		cfg.FragTimeout = time.Second
	}
	// Sweeping slower than the timeout leaves zombie groups around; faster
	// than 100ms burns CPU for nothing.
	if cfg.FragClearInterval < 100*time.Millisecond || cfg.FragClearInterval > 60*time.Second ||
		cfg.FragClearInterval > cfg.FragTimeout {
		cfg.FragClearInterval = cfg.FragTimeout / 5
	}
	// 1280 is the IPv6 minimum MTU; 16MB is far beyond any sane datagram.
	if cfg.MaxReassembleSize < 1280 || cfg.MaxReassembleSize > 16777216 {
		cfg.MaxReassembleSize = 65535
	}
	// 256 fragments per group is the ceiling suggested by RFC 791 practice.
	if cfg.MaxFragmentCount == 0 || cfg.MaxFragmentCount > 256 {
		cfg.MaxFragmentCount = 32
	}
	// A single fragment above 16KB is a clear attack signal.
	if cfg.MaxFragSize < 8 || cfg.MaxFragSize > 16384 {
		cfg.MaxFragSize = 8192
	}
	if cfg.MaxCacheCount == 0 || cfg.MaxCacheCount > 5000 {
		cfg.MaxCacheCount = 1000
	}
	// 5 nested reassemblies is already deep; beyond that the risk curve
	// climbs sharply.
	if cfg.MaxRecursionDepth <= 0 || cfg.MaxRecursionDepth > 5 {
		cfg.MaxRecursionDepth = 3
	}
	return cfg
}
