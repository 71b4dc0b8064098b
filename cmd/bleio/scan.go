package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/bleio/coordinator"
	"github.com/srg/bleio/internal/bledb"
	"github.com/srg/bleio/transport"
	"github.com/srg/bleio/transport/goble"
)

func newScanCommand() *cobra.Command {
	var (
		wantedName string
		serviceIDs []string
		maxDevices int
		duration   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE peripherals matching a name or service filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := configureLogger(cmd)
			if err != nil {
				return err
			}
			if duration == 0 {
				duration = cfg.ScanDuration
			}

			central := goble.NewCentral(logger, cfg.ConnectTimeout)
			coord := coordinator.New(central, &coordinator.Options{
				Logger:            logger,
				DeliveryQueueSize: cfg.DeliveryQueueSize,
			})

			found := make(chan transport.Device, 64)
			filter := coordinator.Filter{
				Name:       wantedName,
				ServiceIDs: serviceIDs,
				MaxDevices: maxDevices,
			}
			if err := coord.DiscoverPeripherals(filter, func(dev transport.Device) {
				found <- dev
			}); err != nil {
				return err
			}
			defer func() { _ = coord.Stop() }()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			deadline := time.After(duration)

			header := color.New(color.FgCyan, color.Bold)
			header.Fprintf(cmd.OutOrStdout(), "Scanning for %s...\n", duration)

		loop:
			for {
				select {
				case dev := <-found:
					printDevice(cmd, cfg.OutputFormat, dev)
					if maxDevices > 0 && len(coord.MatchedDevices()) >= maxDevices {
						break loop
					}
				case <-deadline:
					break loop
				case <-sig:
					break loop
				}
			}

			devices := coord.MatchedDevices()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d device(s) matched\n", len(devices))
			return nil
		},
	}

	cmd.Flags().StringVar(&wantedName, "name", "", "Match devices advertising this exact name")
	cmd.Flags().StringSliceVar(&serviceIDs, "service", nil, "Match devices advertising any of these service UUIDs")
	cmd.Flags().IntVar(&maxDevices, "max", 0, "Stop after this many matches (0 = unbounded)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Scan duration (default from config)")

	return cmd
}

func printDevice(cmd *cobra.Command, format string, dev transport.Device) {
	if format == "json" {
		out, _ := json.Marshal(map[string]string{"id": dev.ID(), "name": dev.Name()})
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return
	}

	name := dev.Name()
	if name == "" {
		name = "(unnamed)"
	}
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "  %-24s", name)
	fmt.Fprintf(cmd.OutOrStdout(), " %s\n", dev.ID())
}

// describeService renders a service UUID with its SIG name when known.
func describeService(id string) string {
	if name := bledb.LookupService(id); name != "" {
		return fmt.Sprintf("%s (%s)", id, name)
	}
	return id
}
