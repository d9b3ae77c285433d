package docker

import "time"

type Config struct {
	Image       string
	MemoryLimit int64 // bytes
	CPULimit    float64
	PidsLimit   int64
	Timeout     time.Duration
	PoolSize    int
}

// DefaultConfig runs Python in a small, network-less container.
func DefaultConfig() Config {
	return Config{
		Image:       "python:3.12-alpine",
		MemoryLimit: 128 * 1024 * 1024,
		CPULimit:    0.5,
		PidsLimit:   64,
		Timeout:     5 * time.Second,
		PoolSize:    3,
	}
}
