// Package poll implements bounded, cooperative waiting for asynchronous
// remote state changes: wall-clock-budgeted polling loops and fixed-count
// retry on contention. Nothing in the library polls by itself; these loops
// are driven by CLI commands and tests, which own the policy decisions
// (budgets, intervals, attempt counts).
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/rerobots/client-go/pkg/api"
	"github.com/rerobots/client-go/pkg/telemetry"
)

// Observed service behavior sets these defaults: add-on toggles settle
// within seconds, while camera and drive startup can take up to two
// minutes on slow hardware.
const (
	// DefaultInterval is the sleep between probes.
	DefaultInterval = time.Second

	// AddOnToggleBudget bounds waits for add-on activation and deactivation.
	AddOnToggleBudget = 20 * time.Second

	// CamReadyBudget bounds waits for the camera add-on to become usable.
	CamReadyBudget = 120 * time.Second

	// DriveReadyBudget bounds waits for the drive add-on to become usable.
	DriveReadyBudget = 120 * time.Second

	// BusyRetryAttempts is the provisioning retry count on deployment contention.
	BusyRetryAttempts = 5

	// BusyRetrySleep is the fixed sleep between provisioning retries.
	BusyRetrySleep = time.Second

	// TerminateRetryAttempts is the terminate retry count on instance contention.
	TerminateRetryAttempts = 7

	// TerminateRetrySleep is the fixed sleep between terminate retries.
	TerminateRetrySleep = 4 * time.Second
)

// Probe checks the remote state once. Returning done ends the wait with
// success. Returning an error ends it immediately; probes decide for
// themselves whether a fetch failure is terminal or worth riding out by
// returning (false, nil).
type Probe func(ctx context.Context) (done bool, err error)

// Options configures one bounded wait.
type Options struct {
	// Target names what is being waited for, used in errors, logs and
	// metrics (e.g. "instance ready", "cam active").
	Target string

	// Budget is the wall-clock limit. Zero or negative means no limit;
	// cancellation then comes only from ctx.
	Budget time.Duration

	// Interval is the sleep between probes. Zero means DefaultInterval.
	Interval time.Duration

	// Logger receives per-probe debug events. The zero value is silent.
	Logger zerolog.Logger

	// Metrics, when non-nil, records the wait duration and timeouts.
	Metrics *telemetry.Metrics

	// Tracer, when non-nil, wraps the wait in a span.
	Tracer *telemetry.Tracer
}

// Wait repeatedly probes until the target condition is reached, the probe
// reports a terminal failure, the budget runs out, or ctx is canceled.
// Budget exhaustion returns a timeout-kind error, distinct from any remote
// error.
func Wait(ctx context.Context, opts Options, probe Probe) (err error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	if opts.Tracer != nil {
		var span trace.Span
		ctx, span = opts.Tracer.StartWaitSpan(ctx, opts.Target)
		defer func() {
			if err != nil {
				telemetry.RecordError(span, err)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}()
	}

	start := time.Now()
	defer func() {
		if opts.Metrics != nil {
			opts.Metrics.ObserveWait(opts.Target, time.Since(start), api.IsTimeout(err))
		}
	}()

	for attempt := 1; ; attempt++ {
		done, probeErr := probe(ctx)
		if probeErr != nil {
			return probeErr
		}
		if done {
			return nil
		}

		elapsed := time.Since(start)
		if opts.Budget > 0 && elapsed+interval > opts.Budget {
			return api.NewTimeoutError(opts.Target,
				fmt.Sprintf("not reached within %s", opts.Budget))
		}

		opts.Logger.Debug().
			Str("target", opts.Target).
			Int("attempt", attempt).
			Dur("elapsed", elapsed).
			Msg("still waiting")

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RetryOptions configures RetryBusy.
type RetryOptions struct {
	// Op names the retried operation for errors, logs and metrics.
	Op string

	// Attempts is the total attempt count. Zero means BusyRetryAttempts.
	Attempts int

	// Sleep is the fixed sleep between attempts. Zero means BusyRetrySleep.
	Sleep time.Duration

	// Logger receives per-retry debug events. The zero value is silent.
	Logger zerolog.Logger

	// Metrics, when non-nil, counts retries.
	Metrics *telemetry.Metrics
}

// RetryBusy calls fn until it succeeds or fails with something other than
// contention, sleeping a fixed interval between attempts. When every
// attempt comes back busy, the last busy error is returned rather than
// masked.
func RetryBusy(ctx context.Context, opts RetryOptions, fn func(ctx context.Context) error) error {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = BusyRetryAttempts
	}
	sleep := opts.Sleep
	if sleep <= 0 {
		sleep = BusyRetrySleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !api.IsBusy(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		if opts.Metrics != nil {
			opts.Metrics.RecordBusyRetry(opts.Op)
		}
		opts.Logger.Debug().
			Str("op", opts.Op).
			Int("attempt", attempt).
			Int("attempts", attempts).
			Msg("busy, retrying")

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
