package daemon

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/picklepick/ppchat/internal/bus"
	"github.com/picklepick/ppchat/internal/inbox"
	"github.com/picklepick/ppchat/internal/status"
	"github.com/picklepick/ppchat/internal/store"
	intsync "github.com/picklepick/ppchat/internal/sync"
	"go.uber.org/zap"
)

// sync_state keys written by the Recorder.
const (
	keyState     = "status.state"
	keySince     = "status.since"
	keyLastError = "status.last_error"
)

// Recorder persists status changes and poll failures so that other
// processes of the same session can report them.
type Recorder struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder creates a recorder.
func NewRecorder(db *store.DB, b *bus.Bus, logger *zap.Logger) *Recorder {
	return &Recorder{db: db, bus: b, logger: logger}
}

// Start subscribes to session and inbox events.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	sessionCh, unsubSession := r.bus.Subscribe("session.", 16)
	failCh, unsubFail := r.bus.Subscribe(bus.InboxPollFailed, 16)

	go func() {
		defer close(r.done)
		defer unsubSession()
		defer unsubFail()
		for {
			select {
			case evt := <-sessionCh:
				if change, ok := evt.Payload.(status.StatusChange); ok {
					r.recordState(change.To, evt.Timestamp)
				}
			case evt := <-failCh:
				if f, ok := evt.Payload.(inbox.PollFailed); ok && f.Err != nil {
					r.set(keyLastError, f.Err.Error())
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the recorder.
func (r *Recorder) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Recorder) recordState(s status.State, at time.Time) {
	r.set(keyState, string(s))
	r.set(keySince, strconv.FormatInt(at.UnixMilli(), 10))
	if s == status.Ready {
		r.set(keyLastError, "")
	}
}

func (r *Recorder) set(key, value string) {
	if err := r.db.SetSyncState(key, value); err != nil {
		r.logger.Warn("failed to record state", zap.String("key", key), zap.Error(err))
	}
}

// Snapshot is the persisted view of a session's daemon.
type Snapshot struct {
	State     status.State
	Since     time.Time
	LastError string
	LastSync  time.Time
}

// ErrNoStatus is returned by ReadSnapshot when no daemon has recorded state.
var ErrNoStatus = errors.New("daemon: no recorded status")

// ReadSnapshot loads the persisted status from a session's store.
func ReadSnapshot(db *store.DB) (*Snapshot, error) {
	state, ok, err := db.GetSyncState(keyState)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoStatus
	}
	snap := &Snapshot{State: status.State(state)}
	snap.Since = readMillis(db, keySince)
	snap.LastSync = readMillis(db, intsync.InboxCheckpoint)
	snap.LastError, _, _ = db.GetSyncState(keyLastError)
	return snap, nil
}

func readMillis(db *store.DB, key string) time.Time {
	v, ok, err := db.GetSyncState(key)
	if err != nil || !ok {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
