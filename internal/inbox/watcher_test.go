package inbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/picklepick/ppchat/internal/api"
	"github.com/picklepick/ppchat/internal/bus"
)

type fakeLister struct {
	mu    sync.Mutex
	convs []api.WireConversation
	err   error
	calls int

	// When gate is non-nil, ListConversations signals entered and blocks
	// until gate is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeLister) ListConversations(_ context.Context) ([]api.WireConversation, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]api.WireConversation(nil), f.convs...), nil
}

type recordingObserver struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingObserver) Observe(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func sp(s string) *string { return &s }
func ip(n int) *int       { return &n }

func TestWatcherRequiresLister(t *testing.T) {
	if _, err := NewWatcher(Deps{}); err == nil {
		t.Error("expected error without lister")
	}
}

func TestRefreshNormalizesAndPublishes(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.InboxUpdated, 1)
	defer unsub()

	lister := &fakeLister{convs: []api.WireConversation{
		{UserID: sp("u2"), UserName: sp("Sam"), LastMessage: sp("New message"), LastMessageTime: sp("2025-03-01T10:00:00")},
		{CounterpartID: sp("u3"), LastMessageTime: sp("2025-03-01T11:00:00Z"), UnreadCount: ip(2)},
	}}
	obs := &recordingObserver{}
	w, err := NewWatcher(Deps{Lister: lister, Bus: b, Observer: obs})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	list := w.Index().List()
	if len(list) != 2 || list[0].CounterpartID != "u3" {
		t.Fatalf("list = %+v", list)
	}
	if list[0].CounterpartName != api.FallbackSenderName || list[0].UnreadCount != 2 {
		t.Errorf("u3 = %+v", list[0])
	}
	if list[1].CounterpartName != "Sam" || list[1].LastMessageBody != "New message" {
		t.Errorf("u2 = %+v", list[1])
	}

	select {
	case evt := <-ch:
		up, ok := evt.Payload.(Updated)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if len(up.Conversations) != 2 || len(up.Advanced) != 2 {
			t.Errorf("payload = %+v", up)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbox.updated event")
	}

	if len(obs.errs) != 1 || obs.errs[0] != nil {
		t.Errorf("observer saw %v, want one nil", obs.errs)
	}
}

func TestRefreshFailureKeepsIndex(t *testing.T) {
	lister := &fakeLister{convs: []api.WireConversation{{UserID: sp("u2")}}}
	obs := &recordingObserver{}
	w, _ := NewWatcher(Deps{Lister: lister, Observer: obs})
	if err := w.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	failure := &api.TransportError{Op: "list conversations", StatusCode: 401}
	lister.mu.Lock()
	lister.err = failure
	lister.mu.Unlock()

	err := w.Refresh(context.Background())
	if !errors.Is(err, failure) {
		t.Fatalf("error = %v, want the transport error", err)
	}
	if w.Index().Len() != 1 {
		t.Error("failed fetch cleared the index")
	}
	if len(obs.errs) != 2 || !api.IsUnauthorized(obs.errs[1]) {
		t.Errorf("observer saw %v", obs.errs)
	}
}

func TestWatcherPollsAndReportsFailures(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.InboxPollFailed, 4)
	defer unsub()

	lister := &fakeLister{err: errors.New("connection refused")}
	w, _ := NewWatcher(Deps{Lister: lister, Bus: b, Interval: 10 * time.Millisecond})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	select {
	case evt := <-ch:
		if p, ok := evt.Payload.(PollFailed); !ok || p.Err == nil {
			t.Errorf("payload = %+v", evt.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no inbox.poll_failed event")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		lister.mu.Lock()
		calls := lister.calls
		lister.mu.Unlock()
		if calls >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("calls = %d, polling stopped after failure", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}

	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("poller did not exit")
	}
}

func TestRefreshCancelledDiscards(t *testing.T) {
	lister := &fakeLister{convs: []api.WireConversation{{UserID: sp("u2")}}}
	w, _ := NewWatcher(Deps{Lister: lister})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if w.Index().Len() != 0 {
		t.Error("cancelled refresh applied results")
	}
}

func TestStopDiscardsInFlightFetch(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("inbox.", 4)
	defer unsub()

	lister := &fakeLister{
		convs:   []api.WireConversation{{CounterpartID: sp("u2"), LastMessageTime: sp("2025-03-01T10:00:00Z")}},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	obs := &recordingObserver{}
	w, err := NewWatcher(Deps{Lister: lister, Bus: b, Observer: obs})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Refresh(context.Background()) }()
	<-lister.entered
	w.Stop()
	close(lister.gate)

	if err := <-done; err != nil {
		t.Fatalf("Refresh = %v", err)
	}
	if n := w.Index().Len(); n != 0 {
		t.Errorf("index has %d conversations after Stop, want 0", n)
	}
	obs.mu.Lock()
	observed := len(obs.errs)
	obs.mu.Unlock()
	if observed != 0 {
		t.Errorf("observer called %d times after Stop", observed)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event after Stop: %s", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}
