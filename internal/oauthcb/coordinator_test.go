package oauthcb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testCoordinator() *Coordinator {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAwaitReceivesDelivery(t *testing.T) {
	c := testCoordinator()

	go func() {
		// Give the waiter a moment to register.
		for !c.Pending() {
			time.Sleep(time.Millisecond)
		}
		c.Deliver(Result{Code: "auth-code-123", State: "xyzzy"})
	}()

	res, err := c.AwaitCallback(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("AwaitCallback: %v", err)
	}
	if res.Code != "auth-code-123" || res.State != "xyzzy" {
		t.Errorf("result = %+v", res)
	}
	if c.Pending() {
		t.Error("coordinator still pending after flow completed")
	}
}

func TestAwaitTimeout(t *testing.T) {
	c := testCoordinator()

	start := time.Now()
	_, err := c.AwaitCallback(context.Background(), 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %s, before the timeout", elapsed)
	}

	// A delivery after the timeout must not complete a later flow.
	c.Deliver(Result{Code: "stale"})
	_, err = c.AwaitCallback(context.Background(), 50*time.Millisecond)
	if err == nil {
		t.Fatal("stale delivery resurrected a timed-out flow")
	}
}

func TestAwaitProviderError(t *testing.T) {
	c := testCoordinator()

	go func() {
		for !c.Pending() {
			time.Sleep(time.Millisecond)
		}
		c.Deliver(Result{Err: "access_denied"})
	}()

	_, err := c.AwaitCallback(context.Background(), time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "authorization callback failed: access_denied" {
		t.Errorf("error = %q", got)
	}
}

func TestSecondWaiterRejected(t *testing.T) {
	c := testCoordinator()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.AwaitCallback(ctx, time.Second)
	}()

	for !c.Pending() {
		time.Sleep(time.Millisecond)
	}

	_, err := c.AwaitCallback(context.Background(), time.Second)
	if !errors.Is(err, ErrFlowInProgress) {
		t.Fatalf("err = %v, want ErrFlowInProgress", err)
	}

	cancel()
	wg.Wait()

	// Once the first flow ends, a new one may start.
	go func() {
		for !c.Pending() {
			time.Sleep(time.Millisecond)
		}
		c.Deliver(Result{Code: "second-flow"})
	}()
	res, err := c.AwaitCallback(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("second flow: %v", err)
	}
	if res.Code != "second-flow" {
		t.Errorf("code = %q", res.Code)
	}
}

func TestAwaitContextCanceled(t *testing.T) {
	c := testCoordinator()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.AwaitCallback(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if c.Pending() {
		t.Error("coordinator still pending after cancellation")
	}
}

func TestDeliverWithoutWaiterDropped(t *testing.T) {
	c := testCoordinator()

	c.Deliver(Result{Code: "orphan"})

	_, err := c.AwaitCallback(context.Background(), 50*time.Millisecond)
	if err == nil {
		t.Fatal("orphan delivery should not satisfy a later flow")
	}
}

func TestZeroTimeoutUsesDefault(t *testing.T) {
	c := testCoordinator()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for !c.Pending() {
			time.Sleep(time.Millisecond)
		}
		c.Deliver(Result{Code: "ok"})
	}()

	res, err := c.AwaitCallback(context.Background(), 0)
	if err != nil {
		t.Fatalf("AwaitCallback: %v", err)
	}
	if res.Code != "ok" {
		t.Errorf("code = %q", res.Code)
	}
	<-done
}
