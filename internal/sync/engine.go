// Package sync mirrors the inbox and the threads that changed into the
// local history cache.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/picklepick/ppchat/internal/api"
	"github.com/picklepick/ppchat/internal/bus"
	"github.com/picklepick/ppchat/internal/chat"
	"github.com/picklepick/ppchat/internal/inbox"
	"github.com/picklepick/ppchat/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds simultaneous thread fetches.
const DefaultConcurrency = 4

// Checkpoint keys in sync_state.
const (
	InboxCheckpoint    = "inbox.synced_at"
	threadCheckpointNS = "thread."
)

// ThreadCheckpoint returns the sync_state key for a thread.
func ThreadCheckpoint(counterpartID string) string {
	return threadCheckpointNS + counterpartID + ".synced_at"
}

// Fetcher loads a conversation thread.
type Fetcher interface {
	ListMessages(ctx context.Context, counterpartID string) ([]api.WireMessage, error)
}

// Result is the payload of history.synced.
type Result struct {
	Conversations int
	Threads       []string
	Failed        int
}

// Engine ingests inbox updates into the store. It subscribes to
// "inbox.updated" on the bus and refreshes every thread whose last message
// moved forward.
type Engine struct {
	db          *store.DB
	bus         *bus.Bus
	fetcher     Fetcher
	codec       chat.Codec
	logger      *zap.Logger
	concurrency int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, fetcher Fetcher, codec chat.Codec, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:          db,
		bus:         b,
		fetcher:     fetcher,
		codec:       codec,
		logger:      logger,
		concurrency: DefaultConcurrency,
	}
}

// Start subscribes to inbox updates on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe(bus.InboxUpdated, 16)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				up, ok := evt.Payload.(inbox.Updated)
				if !ok {
					continue
				}
				if _, err := e.Apply(ctx, up); err != nil && ctx.Err() == nil {
					e.logger.Error("history sync failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the current batch to finish.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

// Apply stores the conversation list and refreshes advanced threads.
// A thread that fails to refresh is counted and logged; the others still
// complete.
func (e *Engine) Apply(ctx context.Context, up inbox.Updated) (*Result, error) {
	convs := make([]store.Conversation, 0, len(up.Conversations))
	for _, c := range up.Conversations {
		convs = append(convs, store.Conversation{
			CounterpartID:   c.CounterpartID,
			CounterpartName: c.CounterpartName,
			LastMessageBody: c.LastMessageBody,
			LastMessageAt:   millis(c.LastMessageTimestamp),
			LastSenderID:    c.LastMessageSenderID,
			UnreadCount:     c.UnreadCount,
		})
	}
	if err := e.db.BulkUpsertConversations(convs); err != nil {
		return nil, fmt.Errorf("upsert conversations: %w", err)
	}

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, id := range up.Advanced {
		g.Go(func() error {
			if err := e.SyncThread(ctx, id); err != nil {
				failed.Add(1)
				if ctx.Err() == nil {
					e.logger.Warn("thread sync failed", zap.String("counterpart", id), zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.db.SetSyncState(InboxCheckpoint, strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}

	res := &Result{Conversations: len(convs), Threads: up.Advanced, Failed: int(failed.Load())}
	e.logger.Info("history synced",
		zap.Int("conversations", res.Conversations),
		zap.Int("threads", len(res.Threads)),
		zap.Int("failed", res.Failed),
	)
	e.bus.Emit(bus.HistorySynced, *res)
	return res, nil
}

// SyncThread fetches one thread and upserts its decoded messages.
func (e *Engine) SyncThread(ctx context.Context, counterpartID string) error {
	if e.fetcher == nil || e.codec == nil {
		return errors.New("sync: no fetcher configured")
	}
	wire, err := e.fetcher.ListMessages(ctx, counterpartID)
	if err != nil {
		return err
	}
	msgs := make([]store.Message, 0, len(wire))
	for i := range wire {
		m := chat.FromWire(e.codec, &wire[i])
		msgs = append(msgs, store.Message{
			CounterpartID: counterpartID,
			MsgID:         messageKey(m),
			SenderID:      m.SenderID,
			SenderName:    m.SenderName,
			Body:          m.Body,
			Timestamp:     millis(m.Timestamp),
		})
	}
	if err := e.db.UpsertMessages(msgs); err != nil {
		return fmt.Errorf("upsert messages: %w", err)
	}
	return e.db.SetSyncState(ThreadCheckpoint(counterpartID), strconv.FormatInt(time.Now().UnixMilli(), 10))
}

// LastSync returns the time of the last completed inbox sync.
func (e *Engine) LastSync() (time.Time, bool) {
	v, ok, err := e.db.GetSyncState(InboxCheckpoint)
	if err != nil || !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// messageKey identifies a message within its thread. Servers that omit ids
// get a key derived from author and send time.
func messageKey(m chat.Message) string {
	if m.ID != "" {
		return m.ID
	}
	return fmt.Sprintf("%s@%d", m.SenderID, millis(m.Timestamp))
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
