// SPDX-License-Identifier: MPL-2.0

package readiness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

const (
	// DefaultTimeout bounds the whole wait.
	DefaultTimeout = 60 * time.Second
	// DefaultInterval is the first retry delay.
	DefaultInterval = 500 * time.Millisecond
	// MaxInterval caps the retry delay.
	MaxInterval = 5 * time.Second
	// checkTimeout bounds a single probe check.
	checkTimeout = 5 * time.Second
)

// ErrNotReady is the sentinel error wrapped by NotReadyError.
var ErrNotReady = errors.New("service not ready")

type (
	// Options configures Wait.
	Options struct {
		Service  string
		Timeout  time.Duration
		Interval time.Duration
		Logger   *log.Logger
		// OnAttempt is called after every check with its outcome.
		OnAttempt func(ready bool)
	}

	// NotReadyError is returned when a probe never succeeded before the deadline.
	NotReadyError struct {
		Service  string
		Attempts int
		Timeout  time.Duration
		LastErr  error
	}
)

func (e *NotReadyError) Error() string {
	msg := fmt.Sprintf("service %q not ready after %d attempts in %s", e.Service, e.Attempts, e.Timeout)
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

// Unwrap returns ErrNotReady and the last probe error.
func (e *NotReadyError) Unwrap() []error {
	if e.LastErr != nil {
		return []error{ErrNotReady, e.LastErr}
	}
	return []error{ErrNotReady}
}

// Wait polls probe until it succeeds. Failed attempts are logged at debug
// level. It returns *NotReadyError when the timeout passes, or the context
// error when ctx is cancelled by the caller.
func Wait(ctx context.Context, probe Probe, opts Options) error {
	if probe == nil {
		return nil
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(opts.Interval),
		backoff.WithMaxInterval(max(MaxInterval, opts.Interval)),
		backoff.WithMaxElapsedTime(0),
	)

	var (
		attempts int
		lastErr  error
	)
	check := func() error {
		attempts++
		checkCtx, cancelCheck := context.WithTimeout(waitCtx, checkTimeout)
		defer cancelCheck()

		err := probe.Check(checkCtx)
		if opts.OnAttempt != nil {
			opts.OnAttempt(err == nil)
		}
		if err != nil {
			lastErr = err
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Debug("not ready yet", "service", opts.Service, "probe", probe.String(),
			"attempt", attempts, "retry_in", next, "err", err)
	}

	err := backoff.RetryNotify(check, backoff.WithContext(b, waitCtx), notify)
	if err == nil {
		logger.Debug("ready", "service", opts.Service, "attempts", attempts)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if lastErr == nil {
		lastErr = err
	}
	return &NotReadyError{Service: opts.Service, Attempts: attempts, Timeout: opts.Timeout, LastErr: lastErr}
}
