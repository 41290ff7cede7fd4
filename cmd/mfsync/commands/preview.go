package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"mfsync/internal/browser"
	"mfsync/internal/scrapers/moneyforward"
	"mfsync/pkg/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	previewFile = previewCmd.Flags().String("file", "", "Read a saved page instead of the open browser.")
	previewURL = previewCmd.Flags().String("url", "", "The address the saved page was loaded from.")
	rootCmd.AddCommand(previewCmd)
}

var (
	previewFile *string
	previewURL  *string
)

// preview prints the records of the displayed month without sending or
// storing anything.
func preview(ctx context.Context, a *app, page browser.Page, out io.Writer) error {
	doc, err := page.Document(ctx)
	if err != nil {
		return err
	}
	address, err := page.URL(ctx)
	if err != nil {
		return err
	}
	resolver := moneyforward.NewResolver(a.selectors, a.clock, a.tel)
	target, source := resolver.Resolve(address, doc)

	locator := moneyforward.NewLocator(a.selectors.Table, a.tel)
	found, err := locator.Wait(
		ctx, page,
		millis(a.cfg.Sync.LocateTimeoutMs),
		millis(a.cfg.Sync.PollIntervalMs),
	)
	if err != nil {
		return err
	}
	extraction := moneyforward.NewNormalizer(a.selectors).Extract(found, target)

	fmt.Fprintf(out, "Period %s (from %s)\n", target, source)
	t := newTable(out)
	t.AppendHeader(table.Row{"Date", "Description", "Amount", "Counterparty", "Category"})
	for _, r := range extraction.Records {
		t.AppendRow(table.Row{r.Date, r.Description, r.Amount, r.Counterparty, r.Category})
	}
	t.AppendFooter(table.Row{"", "", len(extraction.Records), "", ""})
	t.Render()

	fmt.Fprintf(
		out, "%d rows, %d excluded, %d from another month\n",
		extraction.Rows, extraction.Excluded, extraction.Stale,
	)
	return nil
}

func openStaticPage(path, address string) (*browser.StaticPage, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return browser.NewStaticPage(address, string(content))
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Prints the transactions of the displayed month without sending them.",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp()
		defer a.Close()

		var page browser.Page
		if *previewFile != "" {
			address := *previewURL
			if address == "" {
				address = a.selectors.Address.Base
			}
			static, err := openStaticPage(*previewFile, address)
			if err != nil {
				serviceutil.Fatal("failed to read page", err)
			}
			page = static
		} else {
			rod, err := a.connectPage(cmd.Context())
			if err != nil {
				serviceutil.Fatal("failed to connect to browser", err)
			}
			defer rod.Close()
			page = rod
		}

		err := preview(cmd.Context(), a, page, os.Stdout)
		if err != nil {
			serviceutil.Fatal("failed to preview", err)
		}
	},
}
