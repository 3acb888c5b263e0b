// Package oauthcb coordinates the rendezvous between an in-flight
// OAuth2 authorization flow and the HTTP redirect callback that
// completes it. At most one flow can be pending at a time.
package oauthcb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout is how long a flow waits for the user to finish the
// browser consent step.
const DefaultTimeout = 5 * time.Minute

// ErrFlowInProgress is returned by AwaitCallback when another flow is
// already waiting on this coordinator.
var ErrFlowInProgress = errors.New("authorization flow already in progress")

// Result carries the query parameters delivered to the redirect
// endpoint. Err is set when the provider reported an error instead of
// issuing a code.
type Result struct {
	Code  string
	State string
	Err   string
}

// Coordinator is the single-waiter event joining AwaitCallback and
// Deliver. The result slot is cleared when a waiter registers and when
// it leaves, so a stale delivery from an abandoned flow can never
// complete a later one.
type Coordinator struct {
	logger *slog.Logger

	mu      sync.Mutex
	waiting bool
	results chan Result
}

// New creates an idle coordinator.
func New(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger:  logger,
		results: make(chan Result, 1),
	}
}

// AwaitCallback blocks until Deliver hands over a callback result, the
// timeout elapses, or ctx is canceled. A second concurrent call fails
// immediately with ErrFlowInProgress rather than queueing; two waiters
// must never both receive the same delivered result.
func (c *Coordinator) AwaitCallback(ctx context.Context, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if err := c.begin(); err != nil {
		return Result{}, err
	}
	defer c.end()

	c.logger.Info("waiting for authorization callback", "timeout", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-c.results:
		if res.Err != "" {
			c.logger.Error("authorization callback failed", "error", res.Err)
			return Result{}, fmt.Errorf("authorization callback failed: %s", res.Err)
		}
		c.logger.Info("authorization callback received")
		return res, nil
	case <-timer.C:
		c.logger.Error("authorization callback timeout", "timeout", timeout)
		return Result{}, fmt.Errorf("authorization callback timeout after %s", timeout)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Deliver hands a redirect callback result to the pending flow. With
// no flow waiting the result is dropped; the redirect arrived for a
// flow that already gave up.
func (c *Coordinator) Deliver(res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.waiting {
		c.logger.Warn("authorization callback dropped, no flow waiting")
		return
	}

	select {
	case c.results <- res:
	default:
		// Slot already holds an undrained result, keep the first.
		c.logger.Warn("authorization callback dropped, result slot full")
	}
}

// Pending reports whether a flow is currently waiting for a callback.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// begin registers the caller as the single waiter, clearing any result
// left over from a previous flow.
func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.waiting {
		return ErrFlowInProgress
	}

	select {
	case <-c.results:
	default:
	}
	c.waiting = true
	return nil
}

// end deregisters the waiter and clears the result slot so a late
// delivery cannot resurrect a finished or timed-out flow.
func (c *Coordinator) end() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.waiting = false
	select {
	case <-c.results:
	default:
	}
}
