// Package waitutil waits for conditions over sources that change on their
// own schedule, like a DOM being re-rendered by a single-page application.
package waitutil

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Await when the condition never held within the timeout.
var ErrTimeout = errors.New("condition not met before timeout")

// Condition reports whether the awaited state has been reached. A non-nil
// error aborts the wait.
type Condition func(ctx context.Context) (bool, error)

type Options struct {
	// Timeout bounds the whole wait. It must be positive.
	Timeout time.Duration
	// PollInterval re-evaluates the condition even if Notify stays silent.
	PollInterval time.Duration
	// Notify, if non-nil, re-evaluates the condition whenever it receives.
	Notify <-chan struct{}
}

const defaultPollInterval = 250 * time.Millisecond

// Await evaluates cond right away and then after every notification or poll
// tick until it returns true. It returns ErrTimeout when the timeout elapses
// and ctx.Err() when ctx is cancelled first.
func Await(ctx context.Context, cond Condition, opts Options) error {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	ok, err := cond(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrTimeout
		case <-ticker.C:
		case _, open := <-opts.Notify:
			if !open {
				opts.Notify = nil
			}
		}

		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

// Sleep pauses for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
