package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/bft-labs/edgemetrics/internal/adapters/log"
	"github.com/bft-labs/edgemetrics/internal/cliconfig"
	"github.com/bft-labs/edgemetrics/internal/ports"
	"github.com/bft-labs/edgemetrics/pkg/edgemetrics"
)

const helpDescription = `
Sample CPU utilization and die temperature and publish them as individual
datapoints to an MQTT telemetry backend, relaying OTA lifecycle events.

Highlights:
  - Publishes only while the device is connected; failed publishes are not retried.
  - Confirms pending OTA reboots back to the backend.
  - Configure via file, env (EDGEMETRICS_*), or flags.
  - Optional InfluxDB mirror and Prometheus metrics.
`

var exampleUsage = strings.TrimSpace(`
  edgemetrics --device-id my-device --broker tcp://broker.local:1883
  edgemetrics --config $HOME/.edgemetrics/config.toml --duration 10m
  edgemetrics --device-home /var/lib/edgemetrics --tls --ca-file /etc/edgemetrics/ca.pem
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := logAdapter.NewZerologAdapter(zerolog.InfoLevel)

	root := &cobra.Command{
		Use:          "edgemetrics",
		Short:        "Publish device CPU and temperature telemetry over MQTT",
		Long:         strings.TrimSpace(helpDescription),
		Example:      exampleUsage,
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default $HOME/.edgemetrics/config.toml), then apply flag overrides
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Environment overrides the file, flags override both
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			level, err := logAdapter.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			log = logAdapter.NewZerologAdapter(level)

			if err := cliconfig.LoadDeviceInfo(&cfg); err != nil {
				return err
			}

			agent, err := edgemetrics.New(cfg, edgemetrics.WithLogger(log))
			if err != nil {
				return err
			}

			// Log configuration (masking secrets)
			logCfg := cfg
			if logCfg.CredentialSecret != "" {
				logCfg.CredentialSecret = "*****"
			}
			if logCfg.InfluxToken != "" {
				logCfg.InfluxToken = "*****"
			}
			log.Info("configuration", ports.Any("config", logCfg))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := agent.Run(ctx); err != nil {
				return fmt.Errorf("run edgemetrics: %w", err)
			}
			log.Info("edgemetrics stopped")
			return nil
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.edgemetrics/config.toml)")

	flags.StringVar(&cfg.DeviceHome, "device-home", cfg.DeviceHome, "directory holding device.json with the device identity")
	flags.StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "device ID (defaults to device.json in device-home)")
	flags.StringVar(&cfg.CredentialSecret, "credential-secret", cfg.CredentialSecret, "device credential secret")

	flags.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker URL")
	flags.StringVar(&cfg.Realm, "realm", cfg.Realm, "first topic level of device topics")
	flags.IntVar(&cfg.QoS, "qos", cfg.QoS, "MQTT QoS for datapoints and confirmations")
	flags.BoolVar(&cfg.TLS, "tls", cfg.TLS, "require TLS with the configured CA files")
	flags.StringVar(&cfg.CAFile, "ca-file", cfg.CAFile, "telemetry backend CA bundle (PEM)")
	flags.StringVar(&cfg.OTACAFile, "ota-ca-file", cfg.OTACAFile, "OTA backend CA bundle (PEM)")
	flags.BoolVar(&cfg.OTARelay, "ota-relay", cfg.OTARelay, "relay OTA events and confirm pending reboots")

	flags.DurationVar(&cfg.Duration, "duration", cfg.Duration, "how long to run (0 runs until interrupted)")
	flags.DurationVar(&cfg.SamplePeriod, "sample-period", cfg.SamplePeriod, "sampling period")
	flags.DurationVar(&cfg.DevicePollPeriod, "device-poll-period", cfg.DevicePollPeriod, "device poll period")
	flags.DurationVar(&cfg.SupervisorPeriod, "supervisor-period", cfg.SupervisorPeriod, "connectivity health check period")
	flags.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "broker connect timeout")
	flags.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "bound of a single device poll")
	flags.DurationVar(&cfg.PublishTimeout, "publish-timeout", cfg.PublishTimeout, "datapoint publish timeout")
	flags.DurationVar(&cfg.TelemetryPeriod, "telemetry-period", cfg.TelemetryPeriod, "system status telemetry period (0 disables)")
	flags.DurationVar(&cfg.RelayWaitPeriod, "relay-wait-period", cfg.RelayWaitPeriod, "OTA relay event wait bound")
	flags.DurationVar(&cfg.RelayPublishTimeout, "relay-publish-timeout", cfg.RelayPublishTimeout, "OTA reboot confirmation publish timeout")
	flags.DurationVar(&cfg.RelayJoinTimeout, "relay-join-timeout", cfg.RelayJoinTimeout, "maximum wait for the OTA relay to exit")

	flags.StringVar(&cfg.Iface, "iface", cfg.Iface, "network interface to wait for (default: any non-loopback)")
	flags.StringVar(&cfg.ProbeTarget, "probe-target", cfg.ProbeTarget, "host:port that must accept TCP (default: broker address)")
	flags.DurationVar(&cfg.LinkTimeout, "link-timeout", cfg.LinkTimeout, "maximum wait for connectivity at startup")
	flags.StringVar(&cfg.NTPServer, "ntp-server", cfg.NTPServer, "NTP server used to correct sample timestamps")

	flags.StringVar(&cfg.ProcRoot, "proc-root", cfg.ProcRoot, "procfs mount point")
	flags.StringVar(&cfg.SysRoot, "sys-root", cfg.SysRoot, "sysfs mount point")
	for _, name := range []string{"proc-root", "sys-root"} {
		if err := flags.MarkHidden(name); err != nil {
			log.Info("failed to hide flag", ports.String("flag", name), ports.Err(err))
		}
	}
	flags.StringVar(&cfg.ThermalZone, "thermal-zone", cfg.ThermalZone, "thermal zone number (default: lowest zone)")

	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	flags.StringVar(&cfg.InfluxURL, "influx-url", cfg.InfluxURL, "mirror samples to this InfluxDB server")
	flags.StringVar(&cfg.InfluxToken, "influx-token", cfg.InfluxToken, "InfluxDB token")
	flags.StringVar(&cfg.InfluxOrg, "influx-org", cfg.InfluxOrg, "InfluxDB organization")
	flags.StringVar(&cfg.InfluxBucket, "influx-bucket", cfg.InfluxBucket, "InfluxDB bucket")

	if err := root.Execute(); err != nil {
		log.Error("edgemetrics", ports.Err(err))
		os.Exit(1)
	}
}
