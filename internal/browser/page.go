// Package browser abstracts the single browser tab the synchronizer drives.
// Everything above this package sees the page only through DOM snapshots,
// clicks and full navigations.
package browser

import (
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// Page is the tab displaying the household-budgeting site.
type Page interface {
	// Document returns a snapshot of the current DOM. Callers must re-fetch it
	// after anything that could re-render the page.
	Document(ctx context.Context) (*goquery.Document, error)
	// URL returns the address currently displayed.
	URL(ctx context.Context) (*url.URL, error)
	// Click clicks the first element matching selector. It returns false
	// without error when nothing matches.
	Click(ctx context.Context, selector string) (bool, error)
	// Navigate performs a full page load of address and waits for it.
	Navigate(ctx context.Context, address string) error
	// Changes receives whenever the DOM may have changed, it may be nil if the
	// implementation cannot observe mutations.
	Changes() <-chan struct{}
}
