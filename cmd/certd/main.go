package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	clientcmd "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/cmd/client"
	serverrun "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/cmd/server"
	cfgpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/config"
	pebblestore "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/storage/pebble"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "certd",
		Short:         "certd certificate batch engine",
		Long:          "certd renders certificate PDFs and emails them in resumable, rate-limited batches.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start certd (HTTP and gRPC)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			mode, err := parseFsync(fsyncMode)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Fsync: mode, Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	f := serverStartCmd.Flags()
	f.String("config", os.Getenv("CERTD_CONFIG"), "Config file (JSON)")
	f.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	f.String("output-dir", "", "Directory for generated certificates (default <data-dir>/certificates)")
	f.String("http", "", "HTTP listen address")
	f.String("grpc", "", "gRPC listen address")
	f.String("redis", "", "Redis address for the shared email limiter")
	f.String("fsync", "default", "Archive fsync mode: default|always|never")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	f.Int("batch-size", 0, "Items per batch")
	f.Int("step-delay-ms", -1, "Pause between batches in ms")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	clientcmd.AddCommands(rootCmd, clientcmd.HTTPBaseFromEnv)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, CERTD_* variables and
// finally explicit flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	f := cmd.Flags()
	cfg := cfgpkg.Default()
	if path, _ := f.GetString("config"); path != "" {
		loaded, err := cfgpkg.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfgpkg.FromEnv(&cfg)

	str := func(name string, dst *string) {
		if v, _ := f.GetString(name); v != "" {
			*dst = v
		}
	}
	str("data-dir", &cfg.DataDir)
	str("output-dir", &cfg.OutputDir)
	str("http", &cfg.HTTPAddr)
	str("grpc", &cfg.GRPCAddr)
	str("redis", &cfg.RedisAddr)
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	if v, _ := f.GetInt("batch-size"); v > 0 {
		cfg.Batch.Size = v
	}
	if v, _ := f.GetInt("step-delay-ms"); v >= 0 {
		cfg.Batch.StepDelayMs = v
	}
	return cfg, nil
}

func parseFsync(mode string) (pebblestore.FsyncMode, error) {
	switch mode {
	case "", "default":
		return pebblestore.FsyncModeDefault, nil
	case "always":
		return pebblestore.FsyncModeAlways, nil
	case "never":
		return pebblestore.FsyncModeNever, nil
	default:
		return 0, fmt.Errorf("invalid --fsync; use default|always|never")
	}
}
