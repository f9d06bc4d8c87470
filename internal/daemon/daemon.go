// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/flat/internal/api"
	"firestige.xyz/flat/internal/config"
	logpkg "firestige.xyz/flat/internal/log"
	"firestige.xyz/flat/internal/pipeline"
	"firestige.xyz/flat/internal/source"
)

// Daemon manages the flat process lifecycle.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string
	pidFile    string

	components *components
	apiServer  *api.Server // nil if api disabled
	logCloser  io.Closer
}

// Stats is what GET /stats serves.
type Stats struct {
	NodeID     string                  `json:"node_id"`
	Capture    string                  `json:"capture_mode"`
	Pipeline   pipeline.Stats          `json:"pipeline"`
	KernelRing *source.KernelRingStats `json:"kernel_ring,omitempty"`
}

// New loads configuration, initializes logging and builds all components.
// An empty pidFile disables the PID file.
func New(configPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		pidFile:    pidFile,
	}

	if err := d.initLogging(); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	d.components, err = buildComponents(cfg)
	if err != nil {
		d.closeLog()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	if cfg.API.Enabled {
		d.apiServer = api.NewServer(cfg.API.Listen, api.NewRouter(api.RouterConfig{
			MetricsPath:    cfg.API.MetricsPath,
			AllowedOrigins: cfg.API.AllowedOrigins,
			Stats:          func() any { return d.Stats() },
		}))
	}
	return d, nil
}

// Run blocks until the source is exhausted, ctx is cancelled, or SIGINT /
// SIGTERM arrives. SIGHUP reloads the log configuration.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting flat daemon",
		"node_id", d.config.Node.ID,
		"hostname", d.config.Node.Hostname,
		"capture_mode", d.config.Capture.Mode,
		"config", d.configPath,
	)

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer d.shutdown()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		// A finished replay ends the whole run.
		defer cancel()
		return d.components.pipeline.Run(runCtx)
	})

	if d.apiServer != nil {
		g.Go(func() error {
			return d.apiServer.Run(runCtx)
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-runCtx.Done():
				return nil
			case <-hup:
				if err := d.Reload(); err != nil {
					slog.Error("reload failed", "error", err)
				}
			}
		}
	})

	err := g.Wait()
	if err != nil {
		slog.Error("daemon stopped with error", "error", err)
	} else {
		slog.Info("daemon stopped")
	}
	return err
}

// Reload re-reads the config file and applies the hot-reloadable part:
// log level, format and outputs. Everything else requires a restart.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	old := d.logCloser
	d.config.Log = newConfig.Log
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}
	if old != nil {
		_ = old.Close()
	}

	var requiresRestart []string
	if newConfig.Capture != d.config.Capture {
		requiresRestart = append(requiresRestart, "capture")
	}
	if newConfig.API.Listen != d.config.API.Listen {
		requiresRestart = append(requiresRestart, "api.listen")
	}
	slog.Info("configuration reloaded", "requires_restart", strings.Join(requiresRestart, ","))
	return nil
}

// Stats returns a snapshot of the running pipeline.
func (d *Daemon) Stats() Stats {
	st := Stats{
		NodeID:   d.config.Node.ID,
		Capture:  d.config.Capture.Mode,
		Pipeline: d.components.pipeline.Stats(),
	}
	if kr := d.components.kernelRing; kr != nil {
		krs := kr.Stats()
		st.KernelRing = &krs
	}
	return st
}

func (d *Daemon) shutdown() {
	d.components.close()
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}
	d.closeLog()
}

func (d *Daemon) initLogging() error {
	closer, err := logpkg.Init(d.config.Log, "node_id", d.config.Node.ID)
	if err != nil {
		return err
	}
	d.logCloser = closer
	return nil
}

func (d *Daemon) closeLog() {
	if d.logCloser != nil {
		_ = d.logCloser.Close()
	}
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
