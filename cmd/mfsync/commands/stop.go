package commands

import (
	"fmt"

	"mfsync/pkg/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd)
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Asks the running sync to stop at its next checkpoint without sending anything.",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp()
		defer a.Close()

		err := a.sessions.RequestStop(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to request stop", err)
		}
		fmt.Println("Stop requested.")
	},
}
