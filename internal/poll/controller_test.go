package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartInvokesImmediately(t *testing.T) {
	c := New("test", zap.NewNop())
	var calls atomic.Int32
	if err := c.Start(context.Background(), time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	waitFor(t, func() bool { return calls.Load() == 1 })
	if c.State() != Active {
		t.Errorf("state = %s, want ACTIVE", c.State())
	}
}

func TestTicksRepeat(t *testing.T) {
	c := New("test", nil)
	var calls atomic.Int32
	if err := c.Start(context.Background(), 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()
	waitFor(t, func() bool { return calls.Load() >= 3 })
}

func TestStopHaltsFutureTicks(t *testing.T) {
	c := New("test", nil)
	var calls atomic.Int32
	if err := c.Start(context.Background(), 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return calls.Load() >= 2 })

	c.Stop()
	<-c.Done()
	if c.State() != Idle {
		t.Errorf("state = %s, want IDLE", c.State())
	}
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("calls grew from %d to %d after Stop", after, calls.Load())
	}
}

func TestStopCancelsInFlightAction(t *testing.T) {
	c := New("test", nil)
	started := make(chan struct{})
	release := make(chan struct{})
	var sawCancel atomic.Bool
	var hookCalls atomic.Int32
	c.OnError(func(error) { hookCalls.Add(1) })

	if err := c.Start(context.Background(), time.Hour, func(ctx context.Context) error {
		close(started)
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return errors.New("fetch aborted")
	}); err != nil {
		t.Fatal(err)
	}

	<-started
	c.Stop()
	close(release)
	<-c.Done()

	if !sawCancel.Load() {
		t.Error("in-flight action did not observe cancellation")
	}
	if hookCalls.Load() != 0 {
		t.Errorf("error hook called %d times for post-stop failure", hookCalls.Load())
	}
}

func TestFailuresDoNotStopLoop(t *testing.T) {
	c := New("test", nil)
	var calls, hookCalls atomic.Int32
	c.OnError(func(error) { hookCalls.Add(1) })
	if err := c.Start(context.Background(), 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("network down")
	}); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	waitFor(t, func() bool { return calls.Load() >= 3 })
	waitFor(t, func() bool { return hookCalls.Load() >= 3 })
}

func TestPanicIsReportedNotPropagated(t *testing.T) {
	c := New("test", nil)
	errCh := make(chan error, 1)
	c.OnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})
	if err := c.Start(context.Background(), time.Hour, func(context.Context) error {
		panic("boom")
	}); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("nil error from panic")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("panic not reported")
	}
}

func TestStartTwiceFails(t *testing.T) {
	c := New("test", nil)
	noop := func(context.Context) error { return nil }
	if err := c.Start(context.Background(), time.Hour, noop); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()
	if err := c.Start(context.Background(), time.Hour, noop); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second Start error = %v, want ErrAlreadyActive", err)
	}
}

func TestRestartAfterStop(t *testing.T) {
	c := New("test", nil)
	var calls atomic.Int32
	action := func(context.Context) error {
		calls.Add(1)
		return nil
	}
	if err := c.Start(context.Background(), time.Hour, action); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return calls.Load() == 1 })
	c.Stop()

	if err := c.Start(context.Background(), time.Hour, action); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	defer c.Stop()
	waitFor(t, func() bool { return calls.Load() == 2 })
}

func TestInvalidArguments(t *testing.T) {
	c := New("test", nil)
	if err := c.Start(context.Background(), 0, func(context.Context) error { return nil }); err == nil {
		t.Error("expected error for zero interval")
	}
	if err := c.Start(context.Background(), time.Second, nil); err == nil {
		t.Error("expected error for nil action")
	}
	if c.State() != Idle {
		t.Errorf("state = %s, want IDLE", c.State())
	}
}

func TestKickRunsExtraTick(t *testing.T) {
	c := New("test", nil)
	var calls atomic.Int32
	if err := c.Start(context.Background(), time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()
	waitFor(t, func() bool { return calls.Load() == 1 })

	c.Kick()
	waitFor(t, func() bool { return calls.Load() == 2 })
}

func TestParentCancelReturnsToIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New("test", nil)
	if err := c.Start(ctx, time.Hour, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	cancel()
	<-c.Done()
	if c.State() != Idle {
		t.Errorf("state = %s, want IDLE after parent cancel", c.State())
	}
}

func TestStopIdleIsNoop(t *testing.T) {
	c := New("test", nil)
	c.Stop()
	c.Kick()
	select {
	case <-c.Done():
	default:
		t.Error("Done() of a never-started controller should be closed")
	}
}
