package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"mfsync/internal/period"
	"mfsync/pkg/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

func describeQueue(queue []period.Period) string {
	switch len(queue) {
	case 0:
		return "-"
	case 1:
		return queue[0].String()
	}
	return fmt.Sprintf("%s .. %s (%d months)", queue[0], queue[len(queue)-1], len(queue))
}

func printStatus(ctx context.Context, a *app, out io.Writer) error {
	t := newTable(out)
	t.AppendHeader(table.Row{"Key", "Value"})

	address, err := a.endpointAddress(ctx, nil)
	if err != nil {
		address = "(not set)"
	}
	t.AppendRow(table.Row{"Endpoint", address})

	last, ok, err := a.sessions.LastSync(ctx)
	if err != nil {
		return err
	}
	lastText := "never"
	if ok {
		lastText = last.In(a.clock.Location()).Format(time.DateTime)
	}
	t.AppendRow(table.Row{"Last sync", lastText})

	pending, ok, err := a.sessions.Peek(ctx)
	if err != nil {
		return err
	}
	if !ok {
		t.AppendRow(table.Row{"Session", "none"})
	} else {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Session", pending.RunID.String()})
		mode := string(pending.Mode)
		if !pending.Mode.Valid() {
			mode += " (unknown, discarded by the next sync)"
		}
		t.AppendRow(table.Row{"Mode", mode})
		if pending.Planned {
			t.AppendRow(table.Row{"Remaining", describeQueue(pending.Queue)})
		} else {
			t.AppendRow(table.Row{"Remaining", "not planned yet"})
		}
		t.AppendRow(table.Row{"Collected", len(pending.Collected)})
	}

	stop, err := a.sessions.StopRequested(ctx)
	if err != nil {
		return err
	}
	if stop {
		t.AppendRow(table.Row{"Stop requested", "yes"})
	}

	t.Render()
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the pending session and the last sync time.",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp()
		defer a.Close()

		err := printStatus(cmd.Context(), a, os.Stdout)
		if err != nil {
			serviceutil.Fatal("failed to read status", err)
		}
	},
}
