package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"firestige.xyz/flat/internal/clock"
	"firestige.xyz/flat/internal/emitter"
	"firestige.xyz/flat/internal/flowtable"
	"firestige.xyz/flat/internal/pipeline"
	"firestige.xyz/flat/internal/source"
	"firestige.xyz/flat/plugins/reporter/console"
)

var replayOpts struct {
	file       string
	mssCeiling uint16
	format     string
	workers    int
	handshakes bool
	stats      bool
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a pcap or pcapng trace and print the records",
	Long: `Replay a capture file through the decoder and print one line per
emitted record. Needs no config file.`,
	Example: `  flat replay -f trace.pcap
  flat replay -f trace.pcapng --mss-ceiling 1400 --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd.Context(), cmd)
	},
}

func init() {
	f := replayCmd.Flags()
	f.StringVarP(&replayOpts.file, "file", "f", "", "pcap or pcapng file (required)")
	f.Uint16Var(&replayOpts.mssCeiling, "mss-ceiling", 0, "clamp reported MSS to this value (0 = off)")
	f.StringVar(&replayOpts.format, "format", "text", "output format: text|json")
	f.IntVar(&replayOpts.workers, "workers", 1, "emitter workers (more than 1 may reorder output)")
	f.BoolVar(&replayOpts.handshakes, "handshakes", true, "match SYN / SYN-ACK pairs")
	f.BoolVar(&replayOpts.stats, "stats", false, "print pipeline stats to stderr when done")
	_ = replayCmd.MarkFlagRequired("file")
}

func runReplay(ctx context.Context, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	src, err := source.OpenPcapFile(replayOpts.file)
	if err != nil {
		return err
	}
	defer src.Close()

	out := console.NewWriterReporter(cmd.OutOrStdout())
	if err := out.Init(map[string]any{"format": replayOpts.format}); err != nil {
		return err
	}

	b := pipeline.NewBuilder().
		WithSource(src).
		WithWorkers(replayOpts.workers).
		WithEmitter(emitter.Config{MSSCeiling: replayOpts.mssCeiling, Clock: clock.Monotonic}).
		WithReporters(out)
	if replayOpts.handshakes {
		b.WithFlowTable(flowtable.New(flowtable.Config{}))
	}

	p, err := b.Build()
	if err != nil {
		return err
	}
	slog.Debug("replaying", "file", replayOpts.file)
	if err := p.Run(ctx); err != nil {
		return err
	}

	st := p.Stats()
	if st.Emitter == nil {
		return nil
	}
	if st.Emitter.Dropped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d record(s) dropped\n", st.Emitter.Dropped)
	}
	if replayOpts.stats {
		fmt.Fprintf(cmd.ErrOrStderr(), "frames=%d decoded=%d truncated=%d inapplicable=%d filtered=%d dropped=%d handshakes=%d\n",
			st.Frames, st.Emitter.Decoded, st.Emitter.Truncated, st.Emitter.Inapplicable,
			st.Emitter.Filtered, st.Emitter.Dropped, st.Consumer.Handshakes)
	}
	return nil
}
