// Package orchestrator drives a sync run: it walks the transaction page back
// month by month, collects records and hands them to the endpoint, persisting
// its progress so a reload of the page never loses collected data.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mfsync/internal/browser"
	"mfsync/internal/components/assert"
	"mfsync/internal/components/chrono"
	"mfsync/internal/components/telemetry"
	"mfsync/internal/endpoint"
	"mfsync/internal/navigator"
	"mfsync/internal/period"
	"mfsync/internal/scrapers/moneyforward"
	"mfsync/internal/session"
	"mfsync/pkg/waitutil"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/orchestrator")

const (
	report_run_state   = "run.state"
	report_run_plan    = "run.plan"
	report_run_period  = "run.period"
	report_run_collect = "run.collect"
	report_run_send    = "run.send"
)

// ErrInterrupted is returned when a stop was requested during the run.
var ErrInterrupted = errors.New("sync interrupted by stop request")

var errPeriodTimeout = errors.New("period did not render in time")

type State string

const (
	StateIdle                State = "idle"
	StateRedirecting         State = "redirecting"
	StateAwaitingPeriodMatch State = "awaiting_period_match"
	StateScrapingPeriod      State = "scraping_period"
	StateDeduplicating       State = "deduplicating"
	StateSending             State = "sending"
	StateDone                State = "done"
	StateFailed              State = "failed"
	StateInterrupted         State = "interrupted"
)

type Options struct {
	// IncrementalMonths is the depth of an incremental sync and the minimum
	// depth of a full one.
	IncrementalMonths int
	// FullAnchor is the oldest period a full sync reaches.
	FullAnchor period.Period
	// PollInterval and MaxPolls bound the wait for each period to render.
	PollInterval time.Duration
	MaxPolls     int
	Navigation   navigator.Options
}

// Result summarizes a run.
type Result struct {
	RunID uuid.UUID
	Mode  session.Mode
	State State
	// Periods is the number of periods scraped by this process.
	Periods int
	Scraped int
	Unique  int
	// Stored is the number of records the endpoint newly stored.
	Stored int
	// Stuck is set when navigation stopped before the queue was drained.
	Stuck bool
}

type Orchestrator struct {
	page       browser.Page
	sel        moneyforward.Selectors
	driver     *navigator.Driver
	locator    moneyforward.Locator
	normalizer moneyforward.Normalizer
	resolver   moneyforward.Resolver
	sessions   session.Store
	sink       Sink
	clock      chrono.API
	opts       Options
	tel        telemetry.API
}

func New(
	page browser.Page,
	sel moneyforward.Selectors,
	sessions session.Store,
	sink Sink,
	clock chrono.API,
	opts Options,
	tel telemetry.API,
) *Orchestrator {
	assert.NotNil(page)
	assert.NotNil(sink)
	assert.NotNil(clock)
	assert.NotNil(tel)
	assert.Positive("incremental months", opts.IncrementalMonths)
	assert.Positive("max polls", opts.MaxPolls)

	tel = telemetry.NewScopedAPI("orchestrator", tel)
	resolver := moneyforward.NewResolver(sel, clock, tel)

	return &Orchestrator{
		page:       page,
		sel:        sel,
		driver:     navigator.NewDriver(page, sel, resolver, opts.Navigation, tel),
		locator:    moneyforward.NewLocator(sel.Table, tel),
		normalizer: moneyforward.NewNormalizer(sel),
		resolver:   resolver,
		sessions:   sessions,
		sink:       sink,
		clock:      clock,
		opts:       opts,
		tel:        tel,
	}
}

// Run starts a new sync from the current month, replacing any pending
// session.
func (o *Orchestrator) Run(ctx context.Context, mode session.Mode) (Result, error) {
	err := o.sessions.ClearStop(ctx)
	if err != nil {
		return Result{Mode: mode, State: StateFailed}, err
	}
	s := session.New(mode)
	// the mode must be persisted before the page can be redirected
	err = o.sessions.Save(ctx, s)
	if err != nil {
		return Result{RunID: s.RunID, Mode: mode, State: StateFailed}, err
	}
	return o.drive(ctx, s)
}

// Resume continues the pending session, ok is false when there is none.
func (o *Orchestrator) Resume(ctx context.Context) (Result, bool, error) {
	s, ok, err := o.sessions.Load(ctx)
	if err != nil {
		return Result{State: StateFailed}, false, err
	}
	if !ok {
		return Result{}, false, nil
	}
	res, err := o.drive(ctx, s)
	return res, true, err
}

func (o *Orchestrator) drive(ctx context.Context, s session.Session) (Result, error) {
	ctx, span := tracer.Start(ctx, "Sync")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", s.RunID.String()),
		attribute.String("mode", string(s.Mode)),
	)

	res := Result{RunID: s.RunID, Mode: s.Mode, State: StateIdle}
	err := o.run(ctx, &s, &res)
	span.SetAttributes(
		attribute.String("state", string(res.State)),
		attribute.Int("periods", res.Periods),
		attribute.Int("unique", res.Unique),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, s *session.Session, res *Result) error {
	if !s.Planned {
		start := period.Of(o.clock.Now())

		err := o.ensureAt(ctx, s, res, start)
		if errors.Is(err, ErrInterrupted) {
			return o.interrupt(ctx, res)
		}
		if err != nil {
			return o.fail(res, err)
		}

		o.enter(res, StateAwaitingPeriodMatch)
		depth, err := o.plan(ctx, s.Mode, start)
		if err != nil {
			// nothing was collected yet, a later run starts from scratch
			clearErr := o.sessions.Clear(ctx)
			return o.fail(res, errors.Join(err, clearErr))
		}
		s.Planned = true
		s.Queue = period.Backward(start, depth)
		err = o.sessions.Save(ctx, *s)
		if err != nil {
			return o.fail(res, err)
		}
	} else if len(s.Queue) > 0 {
		err := o.ensureAt(ctx, s, res, s.Queue[0])
		if errors.Is(err, ErrInterrupted) {
			return o.interrupt(ctx, res)
		}
		if err != nil {
			return o.fail(res, err)
		}
	}

	err := o.collect(ctx, s, res)
	if errors.Is(err, ErrInterrupted) {
		return o.interrupt(ctx, res)
	}
	if err != nil {
		return o.fail(res, err)
	}

	err = o.checkStop(ctx)
	if errors.Is(err, ErrInterrupted) {
		return o.interrupt(ctx, res)
	}
	if err != nil {
		return o.fail(res, err)
	}
	return o.send(ctx, s, res)
}

// ensureAt redirects the page to target unless it already displays it.
func (o *Orchestrator) ensureAt(ctx context.Context, s *session.Session, res *Result, target period.Period) error {
	at, err := o.driver.AtPeriod(ctx, target)
	if err != nil {
		return err
	}
	if at {
		return nil
	}

	o.enter(res, StateRedirecting)
	err = o.sessions.Save(ctx, *s)
	if err != nil {
		return err
	}
	err = o.driver.Redirect(ctx, target)
	if err != nil {
		return err
	}
	return o.reload(ctx, s)
}

// reload re-reads the session after the page was replaced.
func (o *Orchestrator) reload(ctx context.Context, s *session.Session) error {
	loaded, ok, err := o.sessions.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		// reset while the page was loading
		return ErrInterrupted
	}
	if loaded.RunID != s.RunID {
		return fmt.Errorf("session was replaced by run %s", loaded.RunID)
	}
	*s = loaded
	return nil
}

func (o *Orchestrator) plan(ctx context.Context, mode session.Mode, start period.Period) (int, error) {
	syncMode := endpoint.SyncFull
	if mode != session.ModeForceFull {
		config, err := o.sink.GetSyncConfig(ctx)
		if err != nil {
			return 0, fmt.Errorf("get sync config: %w", err)
		}
		syncMode = config.Mode
	}

	depth := Depth(syncMode, o.opts.IncrementalMonths, o.opts.FullAnchor, start)
	o.tel.ReportDebug(report_run_plan, string(mode), string(syncMode), start.String(), depth)
	return depth, nil
}

func (o *Orchestrator) collect(ctx context.Context, s *session.Session, res *Result) error {
	fingerprint := ""
	for len(s.Queue) > 0 {
		target := s.Queue[0]

		err := o.checkStop(ctx)
		if err != nil {
			return err
		}

		extraction, err := o.scrapePeriod(ctx, s, res, target, fingerprint)
		if err != nil {
			return err
		}
		fingerprint = extraction.Fingerprint

		s.Collected = append(s.Collected, extraction.Records...)
		s.Queue = s.Queue[1:]
		res.Periods++
		res.Scraped += len(extraction.Records)
		err = o.sessions.Save(ctx, *s)
		if err != nil {
			return err
		}

		if len(s.Queue) == 0 {
			return nil
		}

		outcome, err := o.driver.Previous(ctx)
		if errors.Is(err, navigator.ErrNavigationStuck) {
			o.tel.ReportWarning(
				report_run_collect,
				"navigation stuck, finishing with collected records",
				target.String(),
				len(s.Queue),
			)
			res.Stuck = true
			s.Queue = nil
			return o.sessions.Save(ctx, *s)
		}
		if err != nil {
			return err
		}
		if outcome.Reloaded {
			err = o.reload(ctx, s)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) scrapePeriod(
	ctx context.Context,
	s *session.Session,
	res *Result,
	target period.Period,
	previous string,
) (moneyforward.Extraction, error) {
	ctx, span := tracer.Start(ctx, "Period")
	defer span.End()
	span.SetAttributes(attribute.String("period", target.String()))

	o.enter(res, StateAwaitingPeriodMatch)
	extraction, err := o.awaitPeriod(ctx, target, previous)
	if errors.Is(err, errPeriodTimeout) {
		at, atErr := o.driver.AtPeriod(ctx, target)
		if atErr != nil {
			return moneyforward.Extraction{}, atErr
		}
		if !at {
			// navigation landed elsewhere, load the period directly once
			o.enter(res, StateRedirecting)
			err = o.driver.Redirect(ctx, target)
			if err != nil {
				return moneyforward.Extraction{}, err
			}
			err = o.reload(ctx, s)
			if err != nil {
				return moneyforward.Extraction{}, err
			}
			o.enter(res, StateAwaitingPeriodMatch)
			extraction, err = o.awaitPeriod(ctx, target, previous)
		}
	}
	if errors.Is(err, errPeriodTimeout) {
		o.tel.ReportWarning(
			report_run_period,
			fmt.Errorf("%w: %s", moneyforward.ErrTargetNotFound, target),
			"continuing with zero records",
		)
		span.SetAttributes(attribute.Bool("timeout", true))
		return moneyforward.Extraction{}, nil
	}
	if err != nil {
		if !errors.Is(err, ErrInterrupted) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return moneyforward.Extraction{}, err
	}

	o.enter(res, StateScrapingPeriod)
	o.tel.ReportDebug(
		report_run_period,
		target.String(),
		len(extraction.Records),
		extraction.Rows,
		extraction.Excluded,
		extraction.Stale,
	)
	span.SetAttributes(
		attribute.Int("records", len(extraction.Records)),
		attribute.Int("stale", extraction.Stale),
	)
	return extraction, nil
}

// awaitPeriod polls the page until either the table content differs from
// the previous period's and holds rows of target, or the header shows target
// with nothing loading. The second condition accepts months without any
// transaction.
func (o *Orchestrator) awaitPeriod(ctx context.Context, target period.Period, previous string) (moneyforward.Extraction, error) {
	var extraction moneyforward.Extraction
	err := waitutil.Await(ctx, func(ctx context.Context) (bool, error) {
		err := o.checkStop(ctx)
		if err != nil {
			return false, err
		}

		doc, err := o.page.Document(ctx)
		if err != nil {
			return false, err
		}

		extraction = moneyforward.Extraction{}
		table, _, found := o.locator.Find(doc)
		if found {
			extraction = o.normalizer.Extract(table, target)
			if extraction.Fingerprint != "" && extraction.Fingerprint != previous && !wrongMonth(extraction) {
				return true, nil
			}
		}
		return o.resolver.HeaderMatches(doc, target) && !moneyforward.Visible(doc, o.sel.Loading), nil
	}, waitutil.Options{
		Timeout:      o.opts.PollInterval * time.Duration(o.opts.MaxPolls),
		PollInterval: o.opts.PollInterval,
		Notify:       o.page.Changes(),
	})
	if errors.Is(err, waitutil.ErrTimeout) {
		return extraction, errPeriodTimeout
	}
	return extraction, err
}

// wrongMonth reports a table whose dated rows all belong to another month,
// the page landed somewhere other than the target.
func wrongMonth(extraction moneyforward.Extraction) bool {
	return extraction.Stale > 0 && len(extraction.Records) == 0
}

func (o *Orchestrator) send(ctx context.Context, s *session.Session, res *Result) error {
	o.enter(res, StateDeduplicating)
	unique := moneyforward.Dedupe(s.Collected)
	res.Unique = len(unique)
	o.tel.ReportCount(report_run_collect, int64(res.Unique))

	if len(unique) == 0 {
		o.tel.ReportWarning(report_run_send, "no records collected, nothing to send")
		return o.complete(ctx, res)
	}

	s.Collected = unique
	err := o.sessions.Save(ctx, *s)
	if err != nil {
		return o.fail(res, err)
	}

	o.enter(res, StateSending)
	stored, err := o.sink.SyncData(ctx, unique)
	if err != nil {
		// the session keeps the records, resuming goes straight to sending
		o.tel.ReportBroken(report_run_send, err, len(unique))
		return o.fail(res, err)
	}
	res.Stored = stored
	o.tel.ReportCount(report_run_send, int64(stored))
	return o.complete(ctx, res)
}

func (o *Orchestrator) complete(ctx context.Context, res *Result) error {
	err := o.sessions.Clear(ctx)
	if err != nil {
		return o.fail(res, err)
	}
	err = o.sessions.SetLastSync(ctx, o.clock.Now())
	if err != nil {
		return o.fail(res, err)
	}
	o.enter(res, StateDone)
	return nil
}

func (o *Orchestrator) checkStop(ctx context.Context) error {
	stop, err := o.sessions.StopRequested(ctx)
	if err != nil {
		return err
	}
	if stop {
		return ErrInterrupted
	}
	return nil
}

// interrupt discards the session, partial data is never sent.
func (o *Orchestrator) interrupt(ctx context.Context, res *Result) error {
	err := o.sessions.Clear(ctx)
	if err != nil {
		return o.fail(res, errors.Join(ErrInterrupted, err))
	}
	o.enter(res, StateInterrupted)
	return ErrInterrupted
}

func (o *Orchestrator) fail(res *Result, err error) error {
	o.enter(res, StateFailed)
	return err
}

func (o *Orchestrator) enter(res *Result, state State) {
	res.State = state
	o.tel.ReportDebug(report_run_state, string(state), res.RunID.String())
}
