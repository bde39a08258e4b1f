package export

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

const (
	// DefaultMaxQueueDepth is the encoder backlog that triggers a flush.
	DefaultMaxQueueDepth = 15

	// DefaultRetries is the number of extra render attempts per frame.
	DefaultRetries = 1
)

// Config tunes the exporter.
type Config struct {
	// Workers is the number of parallel renderers. 0 picks one from the
	// logical core count; 1 exports sequentially.
	Workers       int `yaml:"workers" toml:"workers"`
	MaxQueueDepth int `yaml:"max_queue_depth" toml:"max_queue_depth"`
	Retries       int `yaml:"retries" toml:"retries"`
}

// DefaultConfig returns automatic parallelism with the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxQueueDepth: DefaultMaxQueueDepth,
		Retries:       DefaultRetries,
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = AutoWorkers()
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	return c
}

// AutoWorkers returns max(2, cores-2) using the logical core count.
func AutoWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	return max(2, n-2)
}
