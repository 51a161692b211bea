package inbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/picklepick/ppchat/internal/api"
	"github.com/picklepick/ppchat/internal/bus"
	"github.com/picklepick/ppchat/internal/poll"
	"go.uber.org/zap"
)

// DefaultPollInterval is the inbox refresh cadence.
const DefaultPollInterval = 10 * time.Second

// Lister fetches the current user's conversations.
type Lister interface {
	ListConversations(ctx context.Context) ([]api.WireConversation, error)
}

// Observer is told the outcome of every inbox fetch.
type Observer interface {
	Observe(err error)
}

// Deps are the collaborators of a Watcher.
type Deps struct {
	Lister   Lister
	Interval time.Duration
	Bus      *bus.Bus
	Observer Observer
	Logger   *zap.Logger
}

// Updated is the payload of inbox.updated.
type Updated struct {
	Conversations []Conversation
	Advanced      []string
}

// PollFailed is the payload of inbox.poll_failed.
type PollFailed struct {
	Err error
}

// Watcher keeps an Index current by polling the conversation list.
type Watcher struct {
	lister   Lister
	interval time.Duration
	bus      *bus.Bus
	observer Observer
	logger   *zap.Logger

	index  *Index
	poller *poll.Controller

	mu      sync.Mutex
	stopped bool
}

// NewWatcher creates an idle watcher.
func NewWatcher(deps Deps) (*Watcher, error) {
	if deps.Lister == nil {
		return nil, errors.New("inbox: lister required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w := &Watcher{
		lister:   deps.Lister,
		interval: interval,
		bus:      deps.Bus,
		observer: deps.Observer,
		logger:   logger,
		index:    NewIndex(),
		poller:   poll.New("inbox", logger),
	}
	w.poller.OnError(func(err error) {
		w.bus.Emit(bus.InboxPollFailed, PollFailed{Err: err})
	})
	return w, nil
}

// Index returns the watcher's conversation index.
func (w *Watcher) Index() *Index { return w.index }

// Start begins polling; the first fetch runs immediately.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = false
	w.mu.Unlock()
	return w.poller.Start(ctx, w.interval, w.Refresh)
}

// Stop halts polling. Once Stop returns, no fetch still in flight changes
// the index or publishes.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.poller.Stop()
}

// Done is closed when the polling goroutine has exited.
func (w *Watcher) Done() <-chan struct{} { return w.poller.Done() }

// Refresh fetches the conversation list once and applies it. The result is
// discarded if ctx is cancelled or the watcher stopped meanwhile.
func (w *Watcher) Refresh(ctx context.Context) error {
	wire, err := w.lister.ListConversations(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if w.stopped {
		w.logger.Debug("discarding inbox fetch after stop")
		return nil
	}
	if w.observer != nil {
		w.observer.Observe(err)
	}
	if err != nil {
		return err
	}

	convs := make([]Conversation, 0, len(wire))
	for i := range wire {
		convs = append(convs, FromWire(&wire[i]))
	}
	advanced := w.index.Update(convs)
	w.logger.Debug("inbox refreshed",
		zap.Int("conversations", w.index.Len()),
		zap.Int("advanced", len(advanced)),
	)
	w.bus.Emit(bus.InboxUpdated, Updated{Conversations: w.index.List(), Advanced: advanced})
	return nil
}

// FromWire normalizes a conversation payload.
func FromWire(c *api.WireConversation) Conversation {
	return Conversation{
		CounterpartID:        c.Counterpart(),
		CounterpartName:      c.CounterpartDisplayName(),
		LastMessageBody:      c.LastBody(),
		LastMessageTimestamp: c.LastAt(),
		LastMessageSenderID:  c.LastSender(),
		UnreadCount:          c.Unread(),
	}
}
