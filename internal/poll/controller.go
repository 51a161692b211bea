// Package poll drives periodic re-fetches on a fixed interval.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the controller's lifecycle state.
type State string

const (
	Idle   State = "IDLE"
	Active State = "ACTIVE"
)

// ErrAlreadyActive is returned by Start on a running controller.
var ErrAlreadyActive = errors.New("poll: controller already active")

// Action is invoked on every tick. ctx is cancelled by Stop; an action that
// completes after cancellation must not apply its results.
type Action func(ctx context.Context) error

// Controller invokes an Action immediately on Start and then every interval
// until Stop. Failed actions are logged and reported to the error hook; the
// next tick proceeds regardless.
type Controller struct {
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	kick    chan struct{}
	onError func(error)
}

// New creates an idle controller. name appears in log lines.
func New(name string, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	closed := make(chan struct{})
	close(closed)
	return &Controller{
		name:   name,
		logger: logger.With(zap.String("poller", name)),
		state:  Idle,
		done:   closed,
	}
}

// OnError sets a hook called with every failed action that was not caused by
// Stop. It runs on the polling goroutine.
func (c *Controller) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start transitions Idle→Active and begins polling.
func (c *Controller) Start(ctx context.Context, interval time.Duration, action Action) error {
	if interval <= 0 {
		return fmt.Errorf("poll: invalid interval %s", interval)
	}
	if action == nil {
		return errors.New("poll: nil action")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Active {
		return ErrAlreadyActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	kick := make(chan struct{}, 1)
	c.state = Active
	c.cancel = cancel
	c.done = done
	c.kick = kick

	c.logger.Debug("polling started", zap.Duration("interval", interval))
	go c.loop(runCtx, interval, action, done, kick)
	return nil
}

// Stop transitions Active→Idle. Future ticks are cancelled; an in-flight
// action sees its context cancelled. Stop does not wait for it to return.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return
	}
	c.cancel()
	c.state = Idle
	c.cancel = nil
	c.kick = nil
	c.logger.Debug("polling stopped")
}

// Kick requests an extra invocation as soon as the current one finishes.
// It is a no-op on an idle controller.
func (c *Controller) Kick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return
	}
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Done returns a channel closed once the most recent polling goroutine has
// exited, including any in-flight action.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Controller) loop(ctx context.Context, interval time.Duration, action Action, done, kick chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.done == done && c.state == Active {
			// Parent context ended without Stop.
			c.state = Idle
			c.cancel = nil
			c.kick = nil
		}
		c.mu.Unlock()
		close(done)
	}()

	c.invoke(ctx, action)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.invoke(ctx, action)
		case <-kick:
			c.invoke(ctx, action)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) invoke(ctx context.Context, action Action) {
	if ctx.Err() != nil {
		return
	}
	err := safeRun(ctx, action)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		c.logger.Debug("action ended after stop", zap.Error(err))
		return
	}
	c.logger.Warn("poll action failed", zap.Error(err))

	c.mu.Lock()
	hook := c.onError
	c.mu.Unlock()
	if hook != nil {
		hook(err)
	}
}

func safeRun(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll action panicked: %v", r)
		}
	}()
	return action(ctx)
}
