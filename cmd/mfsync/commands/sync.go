package commands

import (
	"os"

	"mfsync/internal/notify"
	"mfsync/internal/session"
	"mfsync/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var syncFull *bool

func init() {
	syncFull = syncCmd.Flags().Bool("full", false, "Sync the whole history regardless of the endpoint's mode.")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync [--full]",
	Short: "Syncs from the current month backward, resuming an interrupted sync first.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpenApp()
		defer a.Close()

		notifier := notify.NewInteractive(os.Stdin, os.Stdout)

		address, err := a.endpointAddress(ctx, notifier)
		if err != nil {
			serviceutil.Fatal("no endpoint", err)
		}

		page, err := a.connectPage(ctx)
		if err != nil {
			serviceutil.Fatal("failed to connect to the browser", err)
		}
		defer page.Close()

		mode := session.ModeManual
		if *syncFull {
			mode = session.ModeForceFull
		}

		res, err := a.sync(ctx, page, address, mode)
		if err != nil {
			notifier.Failure(ctx, err)
			page.Close()
			a.Close()
			os.Exit(1)
		}
		notifier.Result(ctx, res)
	},
}
