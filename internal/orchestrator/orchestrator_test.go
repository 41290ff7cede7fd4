package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"mfsync/internal/browser"
	"mfsync/internal/components/chrono"
	"mfsync/internal/components/telemetry"
	"mfsync/internal/endpoint"
	"mfsync/internal/navigator"
	mock_orchestrator "mfsync/internal/orchestrator/mocks"
	"mfsync/internal/period"
	"mfsync/internal/scrapers/moneyforward"
	"mfsync/internal/scrapers/moneyforward/mftest"
	"mfsync/internal/session"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var (
	now   = time.Date(2024, time.March, 20, 10, 0, 0, 0, time.UTC)
	march = period.New(2024, time.March)
	feb   = period.New(2024, time.February)
	jan   = period.New(2024, time.January)
)

// site imitates the transaction page: clicking the previous-month control
// re-renders in place, navigating renders the month in the address.
type site struct {
	page        *browser.StaticPage
	current     period.Period
	rows        map[period.Period][]mftest.Row
	pageOpts    func(p period.Period) mftest.PageOptions
	onShow      func(p period.Period)
	onNavigate  func(address *url.URL)
	clicks      int
	navigations int
}

func newSite(t *testing.T, address string, current period.Period) *site {
	t.Helper()
	page, err := browser.NewStaticPage(address, "")
	require.NoError(t, err)

	s := &site{
		page: page,
		rows: map[period.Period][]mftest.Row{},
		pageOpts: func(period.Period) mftest.PageOptions {
			return mftest.PageOptions{}
		},
	}
	page.OnClick = func(_ *browser.StaticPage, _ string) error {
		s.clicks++
		s.show(s.current.Prev())
		return nil
	}
	page.OnNavigate = func(_ *browser.StaticPage, address *url.URL) error {
		s.navigations++
		if s.onNavigate != nil {
			s.onNavigate(address)
		}
		p, ok := moneyforward.FromQuery(address, moneyforward.DefaultSelectors().Address)
		if !ok {
			return fmt.Errorf("no period in %s", address)
		}
		s.show(p)
		return nil
	}
	s.current = current
	page.SetHTML(mftest.Page(current, s.pageOpts(current)))
	return s
}

func (s *site) withRows(p period.Period, rows ...mftest.Row) *site {
	s.rows[p] = rows
	if p == s.current {
		s.page.SetHTML(mftest.Page(p, s.pageOpts(p), rows...))
	}
	return s
}

func (s *site) show(p period.Period) {
	s.current = p
	if s.onShow != nil {
		s.onShow(p)
	}
	s.page.SetHTML(mftest.Page(p, s.pageOpts(p), s.rows[p]...))
}

func expected(p period.Period, n int, tag string) []moneyforward.Record {
	out := make([]moneyforward.Record, n)
	for i := range out {
		out[i] = moneyforward.NewRecord(
			fmt.Sprintf("%04d/%02d/%02d", p.Year, int(p.Month), i+1),
			fmt.Sprintf("%s-%d", tag, i),
			fmt.Sprintf("-%d000", i+1),
			"三井住友カード",
			"食費/外食",
		)
	}
	return out
}

type harness struct {
	sessions session.Store
	sink     *mock_orchestrator.MockSink
	rec      *telemetry.Recorder
	sel      moneyforward.Selectors
	opts     Options
}

func newHarness(t *testing.T) *harness {
	rec := &telemetry.Recorder{}
	return &harness{
		sessions: session.NewStore(session.NewMemoryKV(), rec),
		sink:     mock_orchestrator.NewMockSink(gomock.NewController(t)),
		rec:      rec,
		sel:      moneyforward.DefaultSelectors(),
		opts: Options{
			IncrementalMonths: 6,
			FullAnchor:        period.New(2021, time.September),
			PollInterval:      time.Millisecond,
			MaxPolls:          20,
			Navigation: navigator.Options{
				LoadingTimeout: 20 * time.Millisecond,
				PollInterval:   time.Millisecond,
			},
		},
	}
}

func (h *harness) orchestrator(page browser.Page) *Orchestrator {
	return New(page, h.sel, h.sessions, h.sink, chrono.NewFixedImpl(now), h.opts, h.rec)
}

func (h *harness) expectConfig(mode endpoint.SyncMode) {
	h.sink.EXPECT().GetSyncConfig(gomock.Any()).Return(endpoint.SyncConfig{Mode: mode}, nil)
}

func (h *harness) expectSync(sent *[]moneyforward.Record) {
	h.sink.EXPECT().SyncData(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, records []moneyforward.Record) (int, error) {
			*sent = records
			return len(records), nil
		},
	)
}

func requireCleared(t *testing.T, h *harness) {
	t.Helper()
	_, pending, err := h.sessions.Load(context.Background())
	require.NoError(t, err)
	require.False(t, pending)
}

func TestRunIncremental(t *testing.T) {
	h := newHarness(t)
	h.expectConfig(endpoint.SyncIncremental)
	var sent []moneyforward.Record
	h.expectSync(&sent)

	s := newSite(t, "https://moneyforward.com/cf", march).
		withRows(march, mftest.Rows(march, 2, "mar")...).
		withRows(feb, mftest.Rows(feb, 2, "feb")...).
		withRows(jan, mftest.Rows(jan, 2, "jan")...)

	res, err := h.orchestrator(s.page).Run(context.Background(), session.ModeManual)
	require.NoError(t, err)
	require.Equal(t, StateDone, res.State)
	require.Equal(t, 6, res.Periods)
	require.Equal(t, 6, res.Scraped)
	require.Equal(t, 6, res.Unique)
	require.Equal(t, 6, res.Stored)
	require.False(t, res.Stuck)
	require.Equal(t, 5, s.clicks)
	require.Zero(t, s.navigations)

	want := append(append(expected(march, 2, "mar"), expected(feb, 2, "feb")...), expected(jan, 2, "jan")...)
	if diff := cmp.Diff(want, sent); diff != "" {
		t.Fatalf("sent records differ (-want +got):\n%s", diff)
	}

	requireCleared(t, h)
	last, ok, err := h.sessions.LastSync(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, now.Equal(last))
}

func TestRunForceFullIgnoresRemoteConfig(t *testing.T) {
	h := newHarness(t)
	h.opts.IncrementalMonths = 2
	h.opts.FullAnchor = period.New(2023, time.December)
	var sent []moneyforward.Record
	h.expectSync(&sent)

	s := newSite(t, "https://moneyforward.com/cf", march).
		withRows(feb, mftest.Rows(feb, 1, "feb")...)

	res, err := h.orchestrator(s.page).Run(context.Background(), session.ModeForceFull)
	require.NoError(t, err)
	require.Equal(t, 4, res.Periods)
	require.Equal(t, period.New(2023, time.December), s.current)
	require.Equal(t, expected(feb, 1, "feb"), sent)
}

func TestDepth(t *testing.T) {
	table := []struct {
		name     string
		mode     endpoint.SyncMode
		anchor   period.Period
		expected int
	}{
		{name: "incremental", mode: endpoint.SyncIncremental, anchor: period.New(2021, time.September), expected: 6},
		{name: "full", mode: endpoint.SyncFull, anchor: period.New(2021, time.September), expected: 31},
		{name: "full never shorter than incremental", mode: endpoint.SyncFull, anchor: period.New(2024, time.January), expected: 6},
		{name: "anchor in the future", mode: endpoint.SyncFull, anchor: period.New(2025, time.January), expected: 6},
	}

	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			require.Equal(t, row.expected, Depth(row.mode, 6, row.anchor, march))
		})
	}
}

func TestResumeDeduplicatesAcrossPeriods(t *testing.T) {
	h := newHarness(t)
	var sent []moneyforward.Record
	h.expectSync(&sent)

	first := expected(march, 2, "a")
	second := expected(feb, 2, "b")
	third := []moneyforward.Record{expected(jan, 1, "c")[0], first[0]}

	ctx := context.Background()
	pending := session.New(session.ModeManual)
	pending.Planned = true
	pending.Collected = append(append(append([]moneyforward.Record{}, first...), second...), third...)
	require.NoError(t, h.sessions.Save(ctx, pending))

	s := newSite(t, "https://moneyforward.com/cf", march)
	res, ok, err := h.orchestrator(s.page).Resume(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pending.RunID, res.RunID)
	require.Equal(t, 5, res.Unique)

	want := []moneyforward.Record{first[0], first[1], second[0], second[1], third[0]}
	if diff := cmp.Diff(want, sent); diff != "" {
		t.Fatalf("sent records differ (-want +got):\n%s", diff)
	}
	requireCleared(t, h)
}

func TestResumeWithoutSession(t *testing.T) {
	h := newHarness(t)
	s := newSite(t, "https://moneyforward.com/cf", march)

	_, ok, err := h.orchestrator(s.page).Resume(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNavigationStuckSendsCollected(t *testing.T) {
	h := newHarness(t)
	h.sel.Address.Base = ""
	h.expectConfig(endpoint.SyncIncremental)
	var sent []moneyforward.Record
	h.expectSync(&sent)

	s := newSite(t, "https://moneyforward.com/cf", march)
	s.pageOpts = func(period.Period) mftest.PageOptions {
		return mftest.PageOptions{PrevHref: "-"}
	}
	s.withRows(march, mftest.Rows(march, 2, "mar")...)

	res, err := h.orchestrator(s.page).Run(context.Background(), session.ModeAuto)
	require.NoError(t, err)
	require.True(t, res.Stuck)
	require.Equal(t, StateDone, res.State)
	require.Equal(t, 1, res.Periods)
	require.Equal(t, expected(march, 2, "mar"), sent)
	require.NotEmpty(t, h.rec.Reports("warning", report_run_collect))
	requireCleared(t, h)
}

func TestResumesAfterReloadingNavigation(t *testing.T) {
	h := newHarness(t)
	h.opts.IncrementalMonths = 3
	h.expectConfig(endpoint.SyncIncremental)
	var sent []moneyforward.Record
	h.expectSync(&sent)

	s := newSite(t, "https://moneyforward.com/cf?year=2024&month=3", march)
	s.pageOpts = func(period.Period) mftest.PageOptions {
		return mftest.PageOptions{PrevHref: "-"}
	}
	s.withRows(march, mftest.Rows(march, 2, "mar")...).
		withRows(feb, mftest.Rows(feb, 2, "feb")...).
		withRows(jan, mftest.Rows(jan, 2, "jan")...)

	var persisted []period.Period
	s.onNavigate = func(address *url.URL) {
		// whatever the page is about to show must already be on disk
		pending, ok, err := h.sessions.Load(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		persisted = append(persisted, pending.Queue[0])
	}

	res, err := h.orchestrator(s.page).Run(context.Background(), session.ModeManual)
	require.NoError(t, err)
	require.Equal(t, StateDone, res.State)
	require.Equal(t, 2, s.navigations)
	require.Zero(t, s.clicks)
	require.Equal(t, []period.Period{feb, jan}, persisted)
	require.Len(t, sent, 6)
}

func TestResumesPlannedSessionElsewhere(t *testing.T) {
	h := newHarness(t)
	var sent []moneyforward.Record
	h.expectSync(&sent)

	ctx := context.Background()
	pending := session.New(session.ModeManual)
	pending.Planned = true
	pending.Queue = []period.Period{feb, jan}
	pending.Collected = expected(march, 2, "mar")
	require.NoError(t, h.sessions.Save(ctx, pending))

	s := newSite(t, "https://moneyforward.com/cf", march).
		withRows(feb, mftest.Rows(feb, 1, "feb")...).
		withRows(jan, mftest.Rows(jan, 1, "jan")...)

	res, ok, err := h.orchestrator(s.page).Resume(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, res.Periods)
	require.Equal(t, 1, s.navigations)

	want := append(append(expected(march, 2, "mar"), expected(feb, 1, "feb")...), expected(jan, 1, "jan")...)
	require.Equal(t, want, sent)
}

func TestRedirectsToCurrentMonth(t *testing.T) {
	h := newHarness(t)
	h.opts.IncrementalMonths = 1
	h.expectConfig(endpoint.SyncIncremental)
	var sent []moneyforward.Record
	h.expectSync(&sent)

	december := period.New(2023, time.December)
	s := newSite(t, "https://moneyforward.com/cf?year=2023&month=12", december).
		withRows(march, mftest.Rows(march, 2, "mar")...)

	s.onNavigate = func(address *url.URL) {
		pending, ok, err := h.sessions.Load(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, session.ModeManual, pending.Mode)
		require.False(t, pending.Planned)
	}

	res, err := h.orchestrator(s.page).Run(context.Background(), session.ModeManual)
	require.NoError(t, err)
	require.Equal(t, 1, s.navigations)
	require.Equal(t, march, s.current)
	require.Equal(t, StateDone, res.State)
	require.Equal(t, expected(march, 2, "mar"), sent)
}

func TestStopRequestDiscardsRun(t *testing.T) {
	h := newHarness(t)
	h.expectConfig(endpoint.SyncIncremental)

	s := newSite(t, "https://moneyforward.com/cf", march).
		withRows(march, mftest.Rows(march, 2, "mar")...)
	s.onShow = func(p period.Period) {
		if p == feb {
			require.NoError(t, h.sessions.RequestStop(context.Background()))
		}
	}

	res, err := h.orchestrator(s.page).Run(context.Background(), session.ModeManual)
	require.ErrorIs(t, err, ErrInterrupted)
	require.Equal(t, StateInterrupted, res.State)
	require.Equal(t, 1, res.Periods)
	requireCleared(t, h)

	stop, err := h.sessions.StopRequested(context.Background())
	require.NoError(t, err)
	require.False(t, stop)
}

func TestSendFailureKeepsCollectedRecords(t *testing.T) {
	h := newHarness(t)
	h.opts.IncrementalMonths = 1
	h.expectConfig(endpoint.SyncIncremental)
	h.sink.EXPECT().SyncData(gomock.Any(), gomock.Any()).
		Return(0, &endpoint.NetworkError{Attempts: 3, Err: errors.New("connection refused")})

	s := newSite(t, "https://moneyforward.com/cf", march).
		withRows(march, mftest.Rows(march, 2, "mar")...)
	orchestrator := h.orchestrator(s.page)

	res, err := orchestrator.Run(context.Background(), session.ModeManual)
	var netErr *endpoint.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, StateFailed, res.State)

	pending, ok, err := h.sessions.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, pending.Planned)
	require.Empty(t, pending.Queue)
	require.Equal(t, expected(march, 2, "mar"), pending.Collected)

	var sent []moneyforward.Record
	h.expectSync(&sent)
	res, ok, err = orchestrator.Resume(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateDone, res.State)
	require.Zero(t, res.Periods)
	require.Equal(t, expected(march, 2, "mar"), sent)
	requireCleared(t, h)
}

func TestUnrenderedPeriodCountsAsEmpty(t *testing.T) {
	h := newHarness(t)
	h.opts.IncrementalMonths = 3
	h.expectConfig(endpoint.SyncIncremental)
	var sent []moneyforward.Record
	h.expectSync(&sent)

	s := newSite(t, "https://moneyforward.com/cf", march)
	s.pageOpts = func(p period.Period) mftest.PageOptions {
		return mftest.PageOptions{Loading: p == feb}
	}
	s.withRows(march, mftest.Rows(march, 2, "mar")...).
		withRows(jan, mftest.Rows(jan, 2, "jan")...)

	res, err := h.orchestrator(s.page).Run(context.Background(), session.ModeManual)
	require.NoError(t, err)
	require.Equal(t, 3, res.Periods)
	require.Equal(t, append(expected(march, 2, "mar"), expected(jan, 2, "jan")...), sent)

	warnings := h.rec.Reports("warning", report_run_period)
	require.Len(t, warnings, 1)
	require.True(t, strings.Contains(fmt.Sprint(warnings[0].Params...), "target element not found"))
}

func TestClickLandingOnWrongMonthIsRedirected(t *testing.T) {
	h := newHarness(t)
	h.opts.IncrementalMonths = 3
	h.expectConfig(endpoint.SyncIncremental)
	var sent []moneyforward.Record
	h.expectSync(&sent)

	s := newSite(t, "https://moneyforward.com/cf", march).
		withRows(march, mftest.Rows(march, 2, "mar")...).
		withRows(feb, mftest.Rows(feb, 2, "feb")...).
		withRows(jan, mftest.Rows(jan, 2, "jan")...)
	// the first click skips a month
	s.page.OnClick = func(_ *browser.StaticPage, _ string) error {
		s.clicks++
		if s.clicks == 1 {
			s.show(s.current.Prev().Prev())
			return nil
		}
		s.show(s.current.Prev())
		return nil
	}

	res, err := h.orchestrator(s.page).Run(context.Background(), session.ModeManual)
	require.NoError(t, err)
	require.Equal(t, StateDone, res.State)
	require.Equal(t, 3, res.Periods)
	require.Equal(t, 2, s.clicks)
	require.Equal(t, 1, s.navigations)

	want := append(append(expected(march, 2, "mar"), expected(feb, 2, "feb")...), expected(jan, 2, "jan")...)
	if diff := cmp.Diff(want, sent); diff != "" {
		t.Fatalf("sent records differ (-want +got):\n%s", diff)
	}
	require.Empty(t, h.rec.Reports("warning", report_run_period))
}

func TestCancelledContextKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.expectConfig(endpoint.SyncIncremental)

	ctx, cancel := context.WithCancel(context.Background())
	s := newSite(t, "https://moneyforward.com/cf", march).
		withRows(march, mftest.Rows(march, 2, "mar")...)
	s.onShow = func(p period.Period) {
		if p == feb {
			cancel()
		}
	}

	res, err := h.orchestrator(s.page).Run(ctx, session.ModeManual)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateFailed, res.State)

	pending, ok, err := h.sessions.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, period.Backward(feb, 5), pending.Queue)
	require.Equal(t, expected(march, 2, "mar"), pending.Collected)
}
