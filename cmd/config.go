package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/flat/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, environment overrides
(FLAT_<SECTION>_<KEY>) and validation have been applied.`,
	Example: `  FLAT_LOG_LEVEL=debug flat config -c config.yml`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
