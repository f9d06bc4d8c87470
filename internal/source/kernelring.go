package source

import "time"

// KernelRingConfig configures the kernel ring source.
type KernelRingConfig struct {
	// PinPath is the bpffs path of the BPF_MAP_TYPE_RINGBUF map the tc
	// program submits records to, e.g. /sys/fs/bpf/tc/globals/pipe.
	PinPath string `mapstructure:"pin_path" yaml:"pin_path"`
	// PollInterval bounds how long Read blocks before rechecking ctx.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// KernelRingStats counts records read from the kernel.
type KernelRingStats struct {
	Records   uint64 `json:"records"`
	Malformed uint64 `json:"malformed"`
}
