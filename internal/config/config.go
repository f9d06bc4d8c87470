// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"firestige.xyz/flat/internal/source"
)

// EnvPrefix is the environment prefix produced by the `flat.` root key
// (e.g. key "flat.log.level" maps to FLAT_LOG_LEVEL).
const EnvPrefix = "FLAT"

// Capture modes.
const (
	CaptureModePcap     = "pcap"
	CaptureModeAFPacket = "afpacket"
	CaptureModeKernel   = "kernel"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `flat:` root key in YAML.
type GlobalConfig struct {
	Node      NodeConfig       `mapstructure:"node" yaml:"node"`
	Capture   CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Ring      RingConfig       `mapstructure:"ring" yaml:"ring"`
	Emitter   EmitterConfig    `mapstructure:"emitter" yaml:"emitter"`
	FlowTable FlowTableConfig  `mapstructure:"flowtable" yaml:"flowtable"`
	Reporters []ReporterConfig `mapstructure:"reporters" yaml:"reporters"`
	API       APIConfig        `mapstructure:"api" yaml:"api"`
	Log       LogConfig        `mapstructure:"log" yaml:"log"`
}

// ─── Node Identity ───

// NodeConfig identifies this tap in emitted events.
type NodeConfig struct {
	ID       string            `mapstructure:"id" yaml:"id"`             // Empty = hostname
	Hostname string            `mapstructure:"hostname" yaml:"hostname"` // Empty = os.Hostname()
	Tags     map[string]string `mapstructure:"tags" yaml:"tags,omitempty"`
}

// ─── Capture ───

// CaptureConfig selects and configures the frame source.
type CaptureConfig struct {
	Mode     string                  `mapstructure:"mode" yaml:"mode"` // pcap | afpacket | kernel
	Path     string                  `mapstructure:"path" yaml:"path,omitempty"`
	AFPacket source.AFPacketConfig   `mapstructure:"afpacket" yaml:"afpacket"`
	Kernel   source.KernelRingConfig `mapstructure:"kernel" yaml:"kernel"`
}

// ─── Record path ───

// RingConfig sizes the record ring.
type RingConfig struct {
	CapacityBytes int `mapstructure:"capacity_bytes" yaml:"capacity_bytes"`
}

// EmitterConfig configures the emitter workers.
type EmitterConfig struct {
	MSSCeiling uint16 `mapstructure:"mss_ceiling" yaml:"mss_ceiling"` // 0 = no clamp
	Workers    int    `mapstructure:"workers" yaml:"workers"`
	BufferSize int    `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// FlowTableConfig configures handshake matching.
type FlowTableConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL             time.Duration `mapstructure:"ttl" yaml:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// ReporterConfig names a registered reporter and its plugin-specific
// settings, passed verbatim to Reporter.Init.
type ReporterConfig struct {
	Name   string         `mapstructure:"name" yaml:"name"`
	Config map[string]any `mapstructure:"config" yaml:"config,omitempty"`
}

// ─── API ───

// APIConfig configures the HTTP endpoint.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	Listen         string   `mapstructure:"listen" yaml:"listen"`
	MetricsPath    string   `mapstructure:"metrics_path" yaml:"metrics_path"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `flat: ...`.
type configRoot struct {
	Flat GlobalConfig `mapstructure:"flat" yaml:"flat"`
}

// Load loads configuration from file. An empty path loads defaults and
// environment overrides only.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `flat.` key prefix maps to FLAT_ in env vars via the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Flat

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// decodeHook accepts "10s" style durations and comma separated lists from
// env vars.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// setDefaults sets default values for configuration.
// All keys use the "flat." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Capture defaults
	v.SetDefault("flat.capture.mode", CaptureModeAFPacket)
	v.SetDefault("flat.capture.afpacket.snap_len", 65535)
	v.SetDefault("flat.capture.afpacket.buffer_size_mb", 64)
	v.SetDefault("flat.capture.afpacket.poll_timeout", "100ms")
	v.SetDefault("flat.capture.kernel.pin_path", "/sys/fs/bpf/flat/records")
	v.SetDefault("flat.capture.kernel.poll_interval", "200ms")

	// Record path defaults
	v.SetDefault("flat.ring.capacity_bytes", 512<<10)
	v.SetDefault("flat.emitter.workers", 1)
	v.SetDefault("flat.emitter.buffer_size", 4096)
	v.SetDefault("flat.flowtable.enabled", true)
	v.SetDefault("flat.flowtable.ttl", "10s")
	v.SetDefault("flat.flowtable.cleanup_interval", "10s")

	// API defaults
	v.SetDefault("flat.api.enabled", true)
	v.SetDefault("flat.api.listen", ":9091")
	v.SetDefault("flat.api.metrics_path", "/metrics")

	// Log defaults
	v.SetDefault("flat.log.level", "info")
	v.SetDefault("flat.log.format", "json")
	v.SetDefault("flat.log.outputs.file.enabled", false)
	v.SetDefault("flat.log.outputs.file.path", "/var/log/flat/flat.log")
	v.SetDefault("flat.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("flat.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("flat.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("flat.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Node identity ──
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}
	if cfg.Node.ID == "" {
		cfg.Node.ID = cfg.Node.Hostname
	}

	// ── Capture ──
	switch cfg.Capture.Mode {
	case CaptureModePcap:
		if cfg.Capture.Path == "" {
			return fmt.Errorf("capture.path is required when capture.mode=pcap")
		}
	case CaptureModeAFPacket:
		if cfg.Capture.AFPacket.Interface == "" {
			return fmt.Errorf("capture.afpacket.interface is required when capture.mode=afpacket")
		}
	case CaptureModeKernel:
		if cfg.Capture.Kernel.PinPath == "" {
			return fmt.Errorf("capture.kernel.pin_path is required when capture.mode=kernel")
		}
	default:
		return fmt.Errorf("invalid capture mode: %s (must be pcap/afpacket/kernel)", cfg.Capture.Mode)
	}

	// ── Record path ──
	if cfg.Emitter.Workers <= 0 {
		return fmt.Errorf("emitter.workers must be positive, got %d", cfg.Emitter.Workers)
	}
	if cfg.Ring.CapacityBytes <= 0 {
		return fmt.Errorf("ring.capacity_bytes must be positive, got %d", cfg.Ring.CapacityBytes)
	}
	if cfg.FlowTable.Enabled && cfg.FlowTable.TTL <= 0 {
		return fmt.Errorf("flowtable.ttl must be positive when flowtable.enabled=true")
	}

	// ── Reporters ──
	seen := make(map[string]bool, len(cfg.Reporters))
	for i, r := range cfg.Reporters {
		if r.Name == "" {
			return fmt.Errorf("reporters[%d].name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate reporter: %s", r.Name)
		}
		seen[r.Name] = true
	}

	return nil
}

// YAML renders the effective configuration under the `flat:` root key.
func (cfg *GlobalConfig) YAML() ([]byte, error) {
	return yaml.Marshal(configRoot{Flat: *cfg})
}
