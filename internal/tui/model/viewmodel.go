// Package model holds the state the TUI renders: the inbox, the open
// conversation and the session's connectivity.
package model

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/picklepick/ppchat/internal/auth"
	"github.com/picklepick/ppchat/internal/chat"
	"github.com/picklepick/ppchat/internal/inbox"
	"github.com/picklepick/ppchat/internal/status"
	"github.com/picklepick/ppchat/internal/store"
	"github.com/picklepick/ppchat/internal/tui/ui"
)

// SearchLimit caps history search results.
const SearchLimit = 50

var (
	// ErrNoConversation is returned by Send when no chat is open.
	ErrNoConversation = errors.New("no conversation open")
	// ErrNoHistory is returned by Search without a history cache.
	ErrNoHistory = errors.New("history search unavailable: ppchatd is not running for this session")
)

// Opener starts a ChatSession for a counterpart.
type Opener func(ctx context.Context, counterpartID string) (*chat.Session, error)

// Searcher queries the local history cache.
type Searcher interface {
	SearchMessages(query, counterpartID string, limit int) ([]store.Message, error)
}

// Deps are the collaborators of a ViewModel.
type Deps struct {
	Session string
	Self    auth.Identity
	Inbox   *inbox.Index
	Status  *status.Machine
	Open    Opener
	History Searcher // optional
}

// ViewModel is the TUI's view of the session. At most one conversation is
// open at a time; opening another closes the previous one.
type ViewModel struct {
	session string
	self    auth.Identity
	inbox   *inbox.Index
	status  *status.Machine
	open    Opener
	history Searcher
	started time.Time

	Flash *ui.FlashModel

	mu     sync.RWMutex
	active *chat.Session
}

// NewViewModel creates a view model over the given components.
func NewViewModel(deps Deps) *ViewModel {
	return &ViewModel{
		session: deps.Session,
		self:    deps.Self,
		inbox:   deps.Inbox,
		status:  deps.Status,
		open:    deps.Open,
		history: deps.History,
		started: time.Now(),
		Flash:   ui.NewFlashModel(),
	}
}

// Self returns the signed-in user.
func (vm *ViewModel) Self() auth.Identity { return vm.self }

// Conversations returns the inbox in display order.
func (vm *ViewModel) Conversations() []inbox.Conversation {
	return vm.inbox.List()
}

// Conversation looks up one inbox entry.
func (vm *ViewModel) Conversation(counterpartID string) (inbox.Conversation, bool) {
	return vm.inbox.Get(counterpartID)
}

// OpenChat closes the active conversation, if any, and opens counterpartID.
func (vm *ViewModel) OpenChat(ctx context.Context, counterpartID string) (*chat.Session, error) {
	vm.CloseChat()
	s, err := vm.open(ctx, counterpartID)
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.active = s
	vm.mu.Unlock()
	return s, nil
}

// CloseChat closes the active conversation. Late poll results for it are
// discarded by the session itself.
func (vm *ViewModel) CloseChat() {
	vm.mu.Lock()
	s := vm.active
	vm.active = nil
	vm.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// ActiveID returns the open counterpart id, or empty.
func (vm *ViewModel) ActiveID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.active == nil {
		return ""
	}
	return vm.active.CounterpartID()
}

// Messages returns the open conversation, or nil.
func (vm *ViewModel) Messages() []chat.Message {
	vm.mu.RLock()
	s := vm.active
	vm.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.Snapshot()
}

// Send transmits text to the open conversation.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	vm.mu.RLock()
	s := vm.active
	vm.mu.RUnlock()
	if s == nil {
		return ErrNoConversation
	}
	_, err := s.Send(ctx, text)
	return err
}

// Search queries the history cache.
func (vm *ViewModel) Search(query string) ([]store.Message, error) {
	if vm.history == nil {
		return nil, ErrNoHistory
	}
	return vm.history.SearchMessages(query, "", SearchLimit)
}

// SessionData summarizes the session for the header.
func (vm *ViewModel) SessionData() *ui.SessionData {
	convs := vm.inbox.List()
	unread := 0
	for _, c := range convs {
		unread += c.UnreadCount
	}
	state := status.Booting
	if vm.status != nil {
		state = vm.status.Current()
	}
	return &ui.SessionData{
		Session:       vm.session,
		User:          vm.self.Name + " (" + vm.self.ID + ")",
		Status:        string(state),
		Conversations: len(convs),
		Unread:        unread,
		Uptime:        time.Since(vm.started),
	}
}
