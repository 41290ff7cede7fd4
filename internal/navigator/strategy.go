package navigator

import (
	"context"
	"errors"

	"mfsync/internal/browser"
	"mfsync/internal/period"
	"mfsync/internal/scrapers/moneyforward"

	"github.com/PuerkitoBio/goquery"
)

var errNoControl = errors.New("no previous-month control could be clicked")

// Strategy is one way of moving the page back by a month.
type Strategy interface {
	Name() string
	// Available reports whether the strategy can be used on doc, which
	// currently displays current.
	Available(doc *goquery.Document, current period.Period) bool
	// Previous moves the page to current.Prev(). reloaded is true when the
	// whole page was replaced instead of re-rendered in place.
	Previous(ctx context.Context, page browser.Page, current period.Period) (reloaded bool, err error)
}

// ClickStrategy clicks the first previous-month control that is present.
type ClickStrategy struct {
	Candidates []string
}

func (s ClickStrategy) Name() string {
	return "click"
}

func (s ClickStrategy) Available(doc *goquery.Document, current period.Period) bool {
	for _, candidate := range s.Candidates {
		if doc.Find(candidate).Length() > 0 {
			return true
		}
	}
	return false
}

func (s ClickStrategy) Previous(ctx context.Context, page browser.Page, current period.Period) (bool, error) {
	for _, candidate := range s.Candidates {
		clicked, err := page.Click(ctx, candidate)
		if err != nil {
			return false, err
		}
		if clicked {
			return false, nil
		}
	}
	return false, errNoControl
}

// AddressStrategy navigates straight to the address of the previous month.
// It always reloads the page.
type AddressStrategy struct {
	Address moneyforward.Address
}

func (s AddressStrategy) Name() string {
	return "address"
}

func (s AddressStrategy) Available(doc *goquery.Document, current period.Period) bool {
	return current.Valid() && s.Address.Base != ""
}

func (s AddressStrategy) Previous(ctx context.Context, page browser.Page, current period.Period) (bool, error) {
	err := page.Navigate(ctx, s.Address.For(current.Prev()))
	if err != nil {
		return false, err
	}
	return true, nil
}
