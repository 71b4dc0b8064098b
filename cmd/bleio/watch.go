package main

import (
	"encoding/hex"
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

func newWatchCommand() *cobra.Command {
	var (
		wantedName string
		serviceIDs []string
		charIDs    []string
		duration   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to a peripheral and stream characteristic updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if wantedName == "" && len(serviceIDs) == 0 {
				return fmt.Errorf("either --name or --service is required")
			}

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
			defer func() { _ = coord.Stop() }()

			out := cmd.OutOrStdout()
			valueColor := color.New(color.FgGreen)

			printEvent := func(ev coordinator.CharacteristicEvent) error {
				switch ev.Kind {
				case coordinator.EventValueUpdated:
					if ev.Err != nil {
						return ev.Err
					}
					valueColor.Fprintf(out, "%s  %s  %s\n",
						time.Now().Format(time.RFC3339),
						ev.Characteristic.ID(),
						hex.EncodeToString(ev.Data))
				case coordinator.EventNotificationState:
					state := "disabled"
					if ev.NotifyEnabled {
						state = "enabled"
					}
					fmt.Fprintf(out, "notifications %s for %s\n", state, ev.Characteristic.ID())
				}
				return nil
			}

			// Handlers are registered before discovery so that no early
			// notification is lost; they stay valid across reconnects.
			for _, id := range charIDs {
				coord.RegisterHandlers(map[string]coordinator.Handler{
					transport.NormalizeUUID(id): printEvent,
				})
			}

			connected := make(chan transport.Device, 1)
			coord.SetConnectionCallback(func(res coordinator.ConnectionResult) {
				if res.Err != nil {
					fmt.Fprintf(out, "connection failed: %v\n", res.Err)
					return
				}
				select {
				case connected <- res.Device:
				default:
				}
			})
			coord.SetDisconnectionCallback(func(d coordinator.Disconnection) {
				fmt.Fprintf(out, "disconnected from %s\n", d.Device.ID())
			})
			coord.SetServicesCallback(func(res coordinator.ServicesResult) {
				if res.Err != nil {
					fmt.Fprintf(out, "service discovery failed: %v\n", res.Err)
					return
				}
				for _, svc := range res.Services {
					fmt.Fprintf(out, "service %s\n", describeService(svc.ID()))
					if err := coord.DiscoverCharacteristics(svc, charIDs, nil); err != nil {
						fmt.Fprintf(out, "characteristic discovery request failed: %v\n", err)
					}
				}
			})
			coord.SetCharacteristicsCallback(func(res coordinator.CharacteristicsResult) {
				if res.Err != nil {
					fmt.Fprintf(out, "characteristic discovery failed: %v\n", res.Err)
					return
				}
				for _, ch := range res.Characteristics {
					name := bledb.LookupCharacteristic(ch.ID())
					fmt.Fprintf(out, "  characteristic %s %s [%s]\n", ch.ID(), name, ch.Properties())
					if len(charIDs) == 0 {
						// Watching everything: attach the printer to each
						// characteristic as it turns up.
						coord.RegisterHandlers(map[string]coordinator.Handler{ch.ID(): printEvent})
					}
					if ch.Properties().CanNotify() {
						if err := coord.SetNotify(ch, true); err != nil {
							fmt.Fprintf(out, "  subscribe failed: %v\n", err)
						}
					} else if ch.Properties().CanRead() {
						if err := coord.ReadValue(ch); err != nil {
							fmt.Fprintf(out, "  read failed: %v\n", err)
						}
					}
				}
			})

			// Scan for the first matching device, then connect to it.
			filter := coordinator.Filter{
				Name:       wantedName,
				ServiceIDs: serviceIDs,
				MaxDevices: 1,
			}
			if err := coord.DiscoverPeripherals(filter, func(dev transport.Device) {
				fmt.Fprintf(out, "found %s (%s), connecting...\n", dev.Name(), dev.ID())
				if err := coord.Connect([]transport.Device{dev}, nil); err != nil {
					fmt.Fprintf(out, "connect request failed: %v\n", err)
				}
			}); err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			deadline := time.After(duration)

			for {
				select {
				case dev := <-connected:
					if err := coord.DiscoverServices(dev, serviceIDs, nil); err != nil {
						return err
					}
				case <-deadline:
					return nil
				case <-sig:
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&wantedName, "name", "", "Advertised name of the target device")
	cmd.Flags().StringSliceVar(&serviceIDs, "service", nil, "Service UUIDs to discover")
	cmd.Flags().StringSliceVar(&charIDs, "char", nil, "Characteristic UUIDs to watch (empty = all)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "How long to watch (default from config)")

	return cmd
}
