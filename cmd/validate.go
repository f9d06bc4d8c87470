package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/flat/internal/config"
	"firestige.xyz/flat/internal/daemon"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without opening any capture
source. Reporter settings are checked by initializing each reporter.`,
	Example: `  flat validate -c config.yml`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("INVALID: %w", err)
		}
		if _, err := daemon.NewReporters(cfg.Reporters); err != nil {
			return fmt.Errorf("INVALID: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "VALID: node %q, capture %s, %d worker(s), %d reporter(s)\n",
			cfg.Node.ID,
			cfg.Capture.Mode,
			cfg.Emitter.Workers,
			len(cfg.Reporters),
		)
		return nil
	},
}
