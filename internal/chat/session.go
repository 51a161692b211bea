package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/picklepick/ppchat/internal/api"
	"github.com/picklepick/ppchat/internal/auth"
	"github.com/picklepick/ppchat/internal/bus"
	"github.com/picklepick/ppchat/internal/poll"
	"go.uber.org/zap"
)

// DefaultPollInterval is the conversation refresh cadence.
const DefaultPollInterval = 3 * time.Second

// Transport is the subset of the API client a session needs.
type Transport interface {
	ListMessages(ctx context.Context, counterpartID string) ([]api.WireMessage, error)
	SendMessage(ctx context.Context, receiverID, encoded string) (*api.SendAck, error)
}

// Codec transforms message bodies for the wire.
type Codec interface {
	Encode(plaintext string) string
	Decode(wire string) string
}

// Deps are the collaborators of a Session.
type Deps struct {
	Transport Transport
	Codec     Codec
	Self      auth.Identity
	Interval  time.Duration
	Bus       *bus.Bus
	Logger    *zap.Logger
	Now       func() time.Time
}

// Event is the payload of chat.* bus events.
type Event struct {
	CounterpartID string
	Err           error
}

// Session is one open conversation. It owns its MessageStore and poller
// exclusively; nothing is shared between sessions.
type Session struct {
	counterpartID string
	transport     Transport
	codec         Codec
	self          auth.Identity
	interval      time.Duration
	bus           *bus.Bus
	logger        *zap.Logger
	now           func() time.Time

	store  *MessageStore
	poller *poll.Controller

	mu     sync.Mutex
	closed bool
	loaded bool
}

// New creates a session for counterpartID without starting polling.
func New(counterpartID string, deps Deps) (*Session, error) {
	if counterpartID == "" {
		return nil, errors.New("chat: counterpart id required")
	}
	if deps.Transport == nil || deps.Codec == nil {
		return nil, errors.New("chat: transport and codec required")
	}
	if deps.Self.ID == "" {
		return nil, errors.New("chat: current user id required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("counterpart", counterpartID))
	interval := deps.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		counterpartID: counterpartID,
		transport:     deps.Transport,
		codec:         deps.Codec,
		self:          deps.Self,
		interval:      interval,
		bus:           deps.Bus,
		logger:        logger,
		now:           now,
		store:         NewMessageStore(),
		poller:        poll.New("chat", logger),
	}
	s.store.SetClock(now)
	s.poller.OnError(func(err error) {
		s.bus.Emit(bus.ChatPollFailed, Event{CounterpartID: counterpartID, Err: err})
	})
	return s, nil
}

// Open creates a session and starts polling it.
func Open(ctx context.Context, counterpartID string, deps Deps) (*Session, error) {
	s, err := New(counterpartID, deps)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins polling. The first refresh runs immediately.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.poller.Start(ctx, s.interval, s.Refresh)
}

// CounterpartID returns the other participant's id.
func (s *Session) CounterpartID() string { return s.counterpartID }

// Self returns the identity messages are sent as.
func (s *Session) Self() auth.Identity { return s.self }

// Loaded reports whether at least one fetch has been applied.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Snapshot returns the conversation in display order.
func (s *Session) Snapshot() []Message {
	return s.store.Snapshot()
}

// Refresh fetches the conversation and merges it into the store. Results
// are discarded if ctx is cancelled or the session closed meanwhile.
func (s *Session) Refresh(ctx context.Context) error {
	wire, err := s.transport.ListMessages(ctx, s.counterpartID)
	if err != nil {
		return err
	}
	msgs := make([]Message, 0, len(wire))
	for i := range wire {
		msgs = append(msgs, s.decode(&wire[i]))
	}

	s.mu.Lock()
	if s.closed || ctx.Err() != nil {
		s.mu.Unlock()
		s.logger.Debug("discarding fetch for closed session")
		return nil
	}
	s.store.Merge(msgs)
	s.loaded = true
	s.mu.Unlock()

	s.logger.Debug("conversation merged", zap.Int("messages", len(msgs)))
	s.bus.Emit(bus.ChatUpdated, Event{CounterpartID: s.counterpartID})
	return nil
}

// Send validates, encodes and transmits text. On success the message is in
// Snapshot before Send returns. A failed transmission leaves the store
// untouched and returns a *api.TransportError.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	body, err := ValidateText(text)
	if err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Message{}, ErrClosed
	}

	if _, err := s.transport.SendMessage(ctx, s.counterpartID, s.codec.Encode(body)); err != nil {
		var te *api.TransportError
		if !errors.As(err, &te) {
			err = &api.TransportError{Op: "send message", Err: err}
		}
		s.logger.Warn("message not delivered", zap.Error(err))
		s.bus.Emit(bus.ChatSendFailed, Event{CounterpartID: s.counterpartID, Err: err})
		return Message{}, err
	}

	m := Message{
		ID:         "local-" + uuid.NewString(),
		SenderID:   s.self.ID,
		SenderName: s.self.Name,
		Body:       body,
		Timestamp:  s.now().UTC(),
		Origin:     OptimisticLocal,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return m, nil
	}
	s.store.AddOptimistic(m)
	s.mu.Unlock()

	s.bus.Emit(bus.ChatUpdated, Event{CounterpartID: s.counterpartID})
	s.poller.Kick()
	return m, nil
}

// Close stops polling and releases the store. It is idempotent.
func (s *Session) Close() {
	s.poller.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.store.Release()
}

// Done is closed once the polling goroutine has exited after Close.
func (s *Session) Done() <-chan struct{} {
	return s.poller.Done()
}

func (s *Session) decode(w *api.WireMessage) Message {
	return FromWire(s.codec, w)
}

// FromWire normalizes a server payload into a ServerConfirmed message,
// decoding the body with c. Payloads without an encoded body fall back to
// their plain body.
func FromWire(c Codec, w *api.WireMessage) Message {
	body := w.PlainBody()
	if enc, ok := w.EncodedBody(); ok {
		body = c.Decode(enc)
	}
	return Message{
		ID:         w.MessageID(),
		SenderID:   w.Sender(),
		SenderName: w.SenderDisplayName(),
		Body:       body,
		Timestamp:  w.CreatedAt(),
		Origin:     ServerConfirmed,
	}
}
