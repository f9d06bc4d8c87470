package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/flat/internal/daemon"
)

var pidFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tap in the foreground",
	Long: `Run the capture pipeline described by the config file.

The daemon will:
  1. Load configuration and initialize logging
  2. Open the capture source (pcap, afpacket or kernel ring)
  3. Start the reporters and the HTTP API (/health, /stats, /metrics)
  4. Run until the source is exhausted or SIGINT/SIGTERM arrives
  5. Reload log settings on SIGHUP`,
	Example: `  flat run -c /etc/flat/config.yml
  flat run -c config.yml --pidfile /run/flat.pid`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New(configFile, pidFile)
		if err != nil {
			return err
		}
		return d.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "/var/run/flat.pid", "PID file path (empty to disable)")
}
