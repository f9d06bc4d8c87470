package source

import "time"

const (
	defaultSnapLen      = 65535
	defaultBufferSizeMB = 64
	defaultPollTimeout  = 100 * time.Millisecond
)

// AFPacketConfig configures live capture.
type AFPacketConfig struct {
	Interface    string        `mapstructure:"interface" yaml:"interface"`
	BPFFilter    string        `mapstructure:"bpf_filter" yaml:"bpf_filter,omitempty"`
	SnapLen      int           `mapstructure:"snap_len" yaml:"snap_len"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb" yaml:"buffer_size_mb"`
	FanoutID     uint16        `mapstructure:"fanout_id" yaml:"fanout_id"` // 0 = no fanout
	PollTimeout  time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

func (c *AFPacketConfig) applyDefaults() {
	if c.SnapLen <= 0 {
		c.SnapLen = defaultSnapLen
	}
	if c.BufferSizeMB <= 0 {
		c.BufferSizeMB = defaultBufferSizeMB
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
}
