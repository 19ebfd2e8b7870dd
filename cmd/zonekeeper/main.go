package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetdns/zonekeeper/pkg/config"
	"github.com/fleetdns/zonekeeper/pkg/engine"
	"github.com/fleetdns/zonekeeper/pkg/events"
	"github.com/fleetdns/zonekeeper/pkg/fleet"
	"github.com/fleetdns/zonekeeper/pkg/log"
	"github.com/fleetdns/zonekeeper/pkg/metrics"
	"github.com/fleetdns/zonekeeper/pkg/notify"
	"github.com/fleetdns/zonekeeper/pkg/provider"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zonekeeper",
	Short: "Zonekeeper - DNS membership reconciler for node fleets",
	Long: `Zonekeeper keeps DNS A records in sync with the health of a node
fleet. It polls a fleet API on a fixed interval, classifies each node,
applies load hysteresis, and reconciles the published records of every
configured zone against the set of nodes that should be serving it.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Zonekeeper version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "Path to configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(zonesCmd)
	rootCmd.AddCommand(validateCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciliation loop",
	Long: `Run starts the engine: an immediate first pass, then one pass per
check-interval until SIGINT or SIGTERM. The configuration file is
re-read before every pass, so threshold and zone edits apply without a
restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		initLogging(cfg)
		logger := log.WithComponent("main")

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		telegram, err := notify.NewTelegram(cfg.Telegram)
		if err != nil {
			return err
		}
		if telegram != nil {
			telegram.Run(broker)
			defer telegram.Stop()
			logger.Info().Int64("chat", cfg.Telegram.ChatID).Msg("telegram notifications enabled")
		}

		if cfg.Metrics.Enabled {
			go func() {
				logger.Info().Str("listen", cfg.Metrics.Listen).Msg("metrics endpoint started")
				if err := metrics.Serve(cfg.Metrics.Listen); err != nil {
					logger.Error().Err(err).Msg("metrics endpoint failed")
				}
			}()
		}

		dns, err := provider.NewCloudflare(cfg.Cloudflare.Token, cfg.DNSTimeout())
		if err != nil {
			return fmt.Errorf("failed to create dns provider: %v", err)
		}

		eng := engine.New(engine.Options{
			Config:   cfg,
			Fleet:    fleet.NewClient(cfg.Fleet.URL, cfg.Fleet.Token, cfg.FleetTimeout()),
			Provider: dns,
			Notifier: broker,
			Reloader: func() (*config.Config, error) { return config.Load(configPath) },
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng.LogZones(ctx)

		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Show configured zones and their published records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		initLogging(cfg)

		dns, err := provider.NewCloudflare(cfg.Cloudflare.Token, cfg.DNSTimeout())
		if err != nil {
			return fmt.Errorf("failed to create dns provider: %v", err)
		}

		eng := engine.New(engine.Options{
			Config:   cfg,
			Fleet:    fleet.NewClient(cfg.Fleet.URL, cfg.Fleet.Token, cfg.FleetTimeout()),
			Provider: dns,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng.LogZones(ctx)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		zones := cfg.Zones()
		fmt.Printf("Configuration OK: %d domain(s), %d zone(s)\n", len(cfg.Domains), len(zones))
		for _, z := range zones {
			fmt.Printf("  %s -> %v (ttl=%d proxied=%t)\n", z.FQDN(), z.IPs, z.TTL, z.Proxied)
		}
		return nil
	},
}

func initLogging(cfg *config.Config) {
	log.Init(log.Config{
		Level:      log.Level(cfg.Logging.Level),
		JSONOutput: cfg.Logging.JSON,
	})
}
