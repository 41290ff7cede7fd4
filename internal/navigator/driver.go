// Package navigator moves the transaction page between months.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mfsync/internal/browser"
	"mfsync/internal/components/telemetry"
	"mfsync/internal/period"
	"mfsync/internal/scrapers/moneyforward"
	"mfsync/pkg/waitutil"
)

const (
	report_driver_redirect = "driver.redirect"
	report_driver_previous = "driver.previous"
	report_driver_settle   = "driver.settle"
)

// ErrNavigationStuck means neither a previous-month control nor a known
// current period was available, so the page cannot go further back.
var ErrNavigationStuck = errors.New("navigation stuck")

type Options struct {
	// SettleDelay is waited after the loading indicators disappeared.
	SettleDelay time.Duration
	// LoadingTimeout bounds the wait for loading indicators to disappear.
	LoadingTimeout time.Duration
	PollInterval   time.Duration
}

// Outcome describes a completed move to the previous month.
type Outcome struct {
	Strategy string
	From     period.Period
	Reloaded bool
}

type Driver struct {
	page       browser.Page
	sel        moneyforward.Selectors
	resolver   moneyforward.Resolver
	strategies []Strategy
	opts       Options
	tel        telemetry.API
}

func NewDriver(
	page browser.Page,
	sel moneyforward.Selectors,
	resolver moneyforward.Resolver,
	opts Options,
	tel telemetry.API,
) *Driver {
	return &Driver{
		page:     page,
		sel:      sel,
		resolver: resolver,
		strategies: []Strategy{
			ClickStrategy{Candidates: sel.PrevMonth},
			AddressStrategy{Address: sel.Address},
		},
		opts: opts,
		tel:  telemetry.NewScopedAPI("navigator", tel),
	}
}

// WithStrategies replaces the strategies tried by Previous, in order.
func (d *Driver) WithStrategies(strategies ...Strategy) *Driver {
	d.strategies = strategies
	return d
}

// Current resolves the period the page displays right now.
func (d *Driver) Current(ctx context.Context) (period.Period, moneyforward.Source, error) {
	address, err := d.page.URL(ctx)
	if err != nil {
		return period.Period{}, "", err
	}
	doc, err := d.page.Document(ctx)
	if err != nil {
		return period.Period{}, "", err
	}
	p, source := d.resolver.Resolve(address, doc)
	return p, source, nil
}

// AtPeriod reports whether the page already displays target, either
// because the address encodes it or because the header shows it.
func (d *Driver) AtPeriod(ctx context.Context, target period.Period) (bool, error) {
	address, err := d.page.URL(ctx)
	if err != nil {
		return false, err
	}
	if p, ok := moneyforward.FromQuery(address, d.sel.Address); ok {
		return p == target, nil
	}
	doc, err := d.page.Document(ctx)
	if err != nil {
		return false, err
	}
	return d.resolver.HeaderMatches(doc, target), nil
}

// Redirect loads the canonical address of target. The page is replaced, so
// anything the caller needs afterwards must already be persisted.
func (d *Driver) Redirect(ctx context.Context, target period.Period) error {
	address := d.sel.Address.For(target)
	d.tel.ReportDebug(report_driver_redirect, address)

	err := d.page.Navigate(ctx, address)
	if err != nil {
		d.tel.ReportBroken(report_driver_redirect, fmt.Errorf("navigate: %w", err), address)
		return err
	}
	return d.AwaitSettle(ctx)
}

// Previous moves the page one month back using the first available
// strategy. It returns ErrNavigationStuck when no strategy applies.
func (d *Driver) Previous(ctx context.Context) (Outcome, error) {
	doc, err := d.page.Document(ctx)
	if err != nil {
		return Outcome{}, err
	}
	address, err := d.page.URL(ctx)
	if err != nil {
		return Outcome{}, err
	}

	current, source := d.resolver.Resolve(address, doc)
	if source == moneyforward.SourceClock {
		// a guess is not a derivable period
		current = period.Period{}
	}

	for _, strategy := range d.strategies {
		if !strategy.Available(doc, current) {
			continue
		}
		d.tel.ReportDebug(report_driver_previous, strategy.Name(), current.String())

		reloaded, err := strategy.Previous(ctx, d.page, current)
		if errors.Is(err, errNoControl) {
			continue
		}
		if err != nil {
			d.tel.ReportBroken(
				report_driver_previous,
				fmt.Errorf("%s: %w", strategy.Name(), err),
				current.String(),
			)
			return Outcome{}, err
		}

		err = d.AwaitSettle(ctx)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Strategy: strategy.Name(),
			From:     current,
			Reloaded: reloaded,
		}, nil
	}

	d.tel.ReportWarning(report_driver_previous, "no strategy available", address.String())
	return Outcome{}, ErrNavigationStuck
}

// AwaitSettle waits for loading indicators to disappear, then pauses for the
// settle delay. Indicators that never disappear are reported and ignored.
func (d *Driver) AwaitSettle(ctx context.Context) error {
	err := waitutil.Await(ctx, func(ctx context.Context) (bool, error) {
		doc, err := d.page.Document(ctx)
		if err != nil {
			return false, err
		}
		return !moneyforward.Visible(doc, d.sel.Loading), nil
	}, waitutil.Options{
		Timeout:      d.opts.LoadingTimeout,
		PollInterval: d.opts.PollInterval,
		Notify:       d.page.Changes(),
	})
	if errors.Is(err, waitutil.ErrTimeout) {
		d.tel.ReportWarning(report_driver_settle, "loading indicator still visible", d.opts.LoadingTimeout.String())
	} else if err != nil {
		return err
	}
	return waitutil.Sleep(ctx, d.opts.SettleDelay)
}
