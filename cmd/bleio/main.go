// Command bleio discovers, connects to, and watches BLE peripherals
// through the coordinator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/srg/bleio/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bleio",
		Short: "Discover and watch BLE peripherals",
		Long: `bleio coordinates discovery, connection, and data exchange with BLE
peripherals. Use "scan" to find devices matching a name or service filter
and "watch" to connect and stream characteristic updates.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose (debug) logging")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newWatchCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective config: defaults, optionally overlaid
// by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
