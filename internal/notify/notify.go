// Package notify tells the user how a sync ended. Runs a user started wait
// for an acknowledgement, unattended runs only log.
package notify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"mfsync/internal/components/telemetry"
	"mfsync/internal/endpoint"
	"mfsync/internal/navigator"
	"mfsync/internal/orchestrator"
)

const (
	report_notify_result  = "notify.result"
	report_notify_failure = "notify.failure"
)

type Notifier interface {
	Result(ctx context.Context, res orchestrator.Result)
	Failure(ctx context.Context, err error)
}

// Describe turns a run error into a message a user can act on.
func Describe(err error) string {
	var invalid *endpoint.InvalidResponseError
	var appErr *endpoint.ApplicationError
	var netErr *endpoint.NetworkError

	switch {
	case errors.Is(err, orchestrator.ErrInterrupted):
		return "Sync stopped. Nothing was sent."
	case errors.As(err, &invalid):
		return fmt.Sprintf("The endpoint returned an unexpected response (HTTP %d).\n%s", invalid.Status, invalid.Guidance())
	case errors.As(err, &appErr):
		return fmt.Sprintf("The endpoint reported an error: %s", appErr.Message)
	case errors.As(err, &netErr):
		return fmt.Sprintf(
			"Could not reach the endpoint after %d attempts: %s\nCollected records were kept, run `mfsync sync` again to send them.",
			netErr.Attempts, netErr.Err,
		)
	case errors.Is(err, navigator.ErrNavigationStuck):
		return "Could not move to the previous month."
	}
	return fmt.Sprintf("Sync failed: %s", err)
}

// Summary is the one-line outcome of a finished run.
func Summary(res orchestrator.Result) string {
	msg := fmt.Sprintf(
		"Sync finished: %d months, %d records (%d unique), %d newly stored.",
		res.Periods, res.Scraped, res.Unique, res.Stored,
	)
	if res.Stuck {
		msg += " Navigation stopped early, older months were skipped."
	}
	return msg
}

// Interactive writes to out and reads answers from in. A single goroutine
// reads in line by line, a wait given up on ctx leaves the next line to the
// next reader.
type Interactive struct {
	in    io.Reader
	out   io.Writer
	once  sync.Once
	lines chan string
	err   error
}

func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: in, out: out, lines: make(chan string)}
}

func (n *Interactive) scan() {
	reader := bufio.NewReader(n.in)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			n.lines <- strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			n.err = err
			close(n.lines)
			return
		}
	}
}

func (n *Interactive) readLine(ctx context.Context) (string, error) {
	n.once.Do(func() { go n.scan() })
	select {
	case line, ok := <-n.lines:
		if !ok {
			return "", n.err
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Ask prints question and returns the next line of input.
func (n *Interactive) Ask(ctx context.Context, question string) (string, error) {
	fmt.Fprint(n.out, question)
	return n.readLine(ctx)
}

func (n *Interactive) Result(ctx context.Context, res orchestrator.Result) {
	fmt.Fprintln(n.out, Summary(res))
}

func (n *Interactive) Failure(ctx context.Context, err error) {
	fmt.Fprintln(n.out, Describe(err))
	n.Ask(ctx, "Press Enter to continue...")
	fmt.Fprintln(n.out)
}

// Unattended reports through telemetry and never blocks.
type Unattended struct {
	tel telemetry.API
}

func NewUnattended(tel telemetry.API) Unattended {
	return Unattended{tel: telemetry.NewScopedAPI("notify", tel)}
}

func (n Unattended) Result(ctx context.Context, res orchestrator.Result) {
	n.tel.ReportDebug(report_notify_result, Summary(res), res.RunID.String())
}

func (n Unattended) Failure(ctx context.Context, err error) {
	if errors.Is(err, orchestrator.ErrInterrupted) {
		n.tel.ReportWarning(report_notify_failure, Describe(err))
		return
	}
	n.tel.ReportBroken(report_notify_failure, err, Describe(err))
}
