package commands

import (
	"fmt"

	"mfsync/pkg/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resetCmd)
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discards the pending sync session and its collected records.",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp()
		defer a.Close()

		err := a.sessions.Clear(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to clear session", err)
		}
		fmt.Println("Session cleared.")
	},
}
