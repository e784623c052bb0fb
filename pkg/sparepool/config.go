package sparepool

import "time"

// PoolConfig configures one OS family's slice of the hot spare pool.
type PoolConfig struct {
	OSFamily         string
	PlatformInstance string
	TemplateID       string
	MinSpares        int
	MaxSpares        int
	Cores            int
	MemoryMB         int
	DiskGB           int
	IPRangeStart     string
	IPRangeEnd       string
	HealthCheckInterval time.Duration
}

// DefaultPoolConfigs returns the preset per-OS-family pool configuration
// named throughout the spec (min 5 / max 8 spares), keyed by OS family.
// Callers needing a non-default sizing or IP range build their own
// PoolConfig; this exists so the common case needs none.
func DefaultPoolConfigs(platformInstance, ubuntuRangeStart, ubuntuRangeEnd, windowsRangeStart, windowsRangeEnd string) map[string]PoolConfig {
	return map[string]PoolConfig{
		"ubuntu": {
			OSFamily:            "ubuntu",
			PlatformInstance:    platformInstance,
			TemplateID:          "9003",
			MinSpares:           5,
			MaxSpares:           8,
			Cores:               2,
			MemoryMB:            2048,
			DiskGB:              20,
			IPRangeStart:        ubuntuRangeStart,
			IPRangeEnd:          ubuntuRangeEnd,
			HealthCheckInterval: 60 * time.Second,
		},
		"windows10": {
			OSFamily:            "windows10",
			PlatformInstance:    platformInstance,
			TemplateID:          "9011",
			MinSpares:           5,
			MaxSpares:           8,
			Cores:               4,
			MemoryMB:            4096,
			DiskGB:              60,
			IPRangeStart:        windowsRangeStart,
			IPRangeEnd:          windowsRangeEnd,
			HealthCheckInterval: 60 * time.Second,
		},
	}
}
