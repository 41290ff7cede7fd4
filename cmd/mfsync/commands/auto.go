package commands

import (
	"context"
	"sync"
	"time"

	"mfsync/internal/components/chrono"
	"mfsync/internal/components/telemetry"
	"mfsync/internal/notify"
	"mfsync/internal/session"
	"mfsync/pkg/serviceutil"

	"github.com/spf13/cobra"
)

const report_auto_run = "auto.run"

var (
	autoCron *string
	autoOnce *bool

	// one tab, one run: a tick that fires while a sync is running is dropped
	autoRunning sync.Mutex
)

func init() {
	autoCron = autoCmd.Flags().String("cron", "", "Cron schedule of unattended syncs, overrides auto.cron.")
	autoOnce = autoCmd.Flags().Bool("once", false, "Run a single unattended sync and exit.")
	rootCmd.AddCommand(autoCmd)
}

// runAuto performs one unattended sync. A pending session is always resumed,
// a new one is only started when the last sync is old enough.
func runAuto(ctx context.Context, a *app, notifier notify.Notifier) {
	if !autoRunning.TryLock() {
		a.tel.ReportDebug(report_auto_run, "skipping, a sync is still running")
		return
	}
	defer autoRunning.Unlock()

	pending, hasPending, err := a.sessions.Load(ctx)
	if err != nil {
		notifier.Failure(ctx, err)
		return
	}

	if !hasPending {
		last, ok, err := a.sessions.LastSync(ctx)
		if err != nil {
			notifier.Failure(ctx, err)
			return
		}
		minInterval := time.Duration(a.cfg.Auto.MinIntervalHours) * time.Hour
		if ok && a.clock.Now().Sub(last) < minInterval {
			a.tel.ReportDebug(report_auto_run, "skipping, synced recently", last.String())
			return
		}
	} else {
		a.tel.ReportDebug(report_auto_run, "resuming pending session", pending.RunID.String())
	}

	address, err := a.endpointAddress(ctx, nil)
	if err != nil {
		notifier.Failure(ctx, err)
		return
	}

	page, err := a.connectPage(ctx)
	if err != nil {
		notifier.Failure(ctx, err)
		return
	}
	defer page.Close()

	res, err := a.sync(ctx, page, address, session.ModeAuto)
	if err != nil {
		notifier.Failure(ctx, err)
		return
	}
	notifier.Result(ctx, res)
}

var autoCmd = &cobra.Command{
	Use:   "auto [--cron <spec>] [--once]",
	Short: "Runs unattended syncs on a schedule, failures are only logged.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpenApp()
		defer a.Close()

		notifier := notify.NewUnattended(a.tel)

		if *autoOnce {
			runAuto(ctx, a, notifier)
			return
		}

		spec := a.cfg.Auto.Cron
		if *autoCron != "" {
			spec = *autoCron
		}

		telemetry.InstrumentPerfStats(ctx, a.tel, time.Duration(a.cfg.Auto.PerfStatsSeconds)*time.Second)

		cron := chrono.NewStandardCron(a.clock, a.tel)
		err := cron.Cron(spec, func() {
			runAuto(ctx, a, notifier)
		})
		if err != nil {
			serviceutil.Fatal("invalid cron schedule", err)
		}

		// picks up a session left pending by a reload or a crash
		runAuto(ctx, a, notifier)

		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cron.Stop(stopCtx)
	},
}
