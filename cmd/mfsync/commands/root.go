package commands

import (
	"context"
	"fmt"
	"os"

	"mfsync/internal/components/telemetry"
	"mfsync/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	debug      *bool

	cfg  Config
	otel telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "mfsync",
	Short: "mfsync copies household-budget transactions from an open browser session to a remote endpoint.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = loadConfig(*configPath)
		telemetry.InitSlog(*debug || cfg.Debug)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		otel, err = telemetry.SetupFromEnv(cmd.Context(), "mfsync")
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		otel.Shutdown(context.Background())
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file to read.")
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Show debug reports.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mustOpenApp() *app {
	a, err := openApp(cfg)
	if err != nil {
		serviceutil.Fatal("failed to initialize", err)
	}
	return a
}
