// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	// Register built-in reporters.
	_ "firestige.xyz/flat/plugins"
)

// Global flags
var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flat",
	Short: "flat - SYN/UDP flow-metadata tap",
	Long: `flat inspects every frame crossing an interception point, decodes
Ethernet / IPv4 / IPv6 / TCP / UDP headers with strict bounds checks, and
emits a fixed-size metadata record for UDP datagrams and TCP SYN segments,
including the negotiated MSS. Records are matched into handshakes and sent
to console, Kafka, NATS or ClickHouse reporters.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/flat/config.yml",
		"config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statsCmd)
}
