package commands

import (
	"fmt"

	"mfsync/pkg/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	endpointCmd.AddCommand(endpointSetCmd)
	endpointCmd.AddCommand(endpointShowCmd)
	rootCmd.AddCommand(endpointCmd)
}

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Manages the address of the remote endpoint.",
}

var endpointSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Stores the endpoint address.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp()
		defer a.Close()

		err := validateEndpoint(args[0])
		if err != nil {
			serviceutil.Fatal("invalid endpoint", err)
		}
		err = a.sessions.SetEndpoint(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to store endpoint", err)
		}
		fmt.Println("Endpoint stored.")
	},
}

var endpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the endpoint address in use.",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp()
		defer a.Close()

		address, err := a.endpointAddress(cmd.Context(), nil)
		if err != nil {
			serviceutil.Fatal("no endpoint", err)
		}
		fmt.Println(address)
	},
}
