package chat

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// DefaultMatchWindow is how far apart an optimistic message and its server
// copy may be stamped and still be treated as the same message.
const DefaultMatchWindow = 2 * time.Minute

type entry struct {
	msg Message
	seq uint64
}

// MessageStore is the ordered message log of one conversation.
//
// Merge replaces every server-confirmed message with the fetched batch.
// Optimistic messages survive merges until a merged message from the same
// sender with the same body, stamped within the match window, supersedes
// them. Each server message supersedes at most one optimistic message.
// An optimistic message stamped more than the match window before the
// store's clock is dropped by the next Merge whether or not it matched.
type MessageStore struct {
	mu        sync.Mutex
	confirmed []entry
	pending   []entry
	seq       uint64
	window    time.Duration
	now       func() time.Time
	released  bool
}

// NewMessageStore creates an empty store using DefaultMatchWindow and the
// wall clock.
func NewMessageStore() *MessageStore {
	return &MessageStore{window: DefaultMatchWindow, now: time.Now}
}

// SetClock replaces the clock used to expire optimistic messages.
func (s *MessageStore) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// SetMatchWindow overrides the optimistic match window.
func (s *MessageStore) SetMatchWindow(d time.Duration) {
	s.mu.Lock()
	s.window = d
	s.mu.Unlock()
}

// Merge replaces the server-confirmed set with incoming.
func (s *MessageStore) Merge(incoming []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}

	confirmed := make([]entry, 0, len(incoming))
	for _, m := range incoming {
		m.Origin = ServerConfirmed
		confirmed = append(confirmed, entry{msg: m, seq: s.next()})
	}
	s.confirmed = confirmed
	s.pending = s.expire(s.unmatched(confirmed))
}

// AddOptimistic appends a locally originated message.
func (s *MessageStore) AddOptimistic(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	m.Origin = OptimisticLocal
	s.pending = append(s.pending, entry{msg: m, seq: s.next()})
}

// Snapshot returns every message ordered by timestamp, ties in insertion
// order.
func (s *MessageStore) Snapshot() []Message {
	s.mu.Lock()
	all := make([]entry, 0, len(s.confirmed)+len(s.pending))
	all = append(all, s.confirmed...)
	all = append(all, s.pending...)
	s.mu.Unlock()

	slices.SortFunc(all, func(a, b entry) int {
		if c := a.msg.Timestamp.Compare(b.msg.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]Message, len(all))
	for i, e := range all {
		out[i] = e.msg
	}
	return out
}

// PendingCount returns the number of unconfirmed optimistic messages.
func (s *MessageStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Release drops all messages; later mutations are ignored.
func (s *MessageStore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.confirmed = nil
	s.pending = nil
}

func (s *MessageStore) next() uint64 {
	s.seq++
	return s.seq
}

// expire drops optimistic entries older than the match window.
func (s *MessageStore) expire(pending []entry) []entry {
	if len(pending) == 0 {
		return nil
	}
	cutoff := s.now().Add(-s.window)
	return slices.DeleteFunc(pending, func(e entry) bool {
		return e.msg.Timestamp.Before(cutoff)
	})
}

// unmatched returns the pending entries not superseded by confirmed. Each
// pending entry claims the closest-stamped unclaimed candidate.
func (s *MessageStore) unmatched(confirmed []entry) []entry {
	if len(s.pending) == 0 {
		return nil
	}
	claimed := make([]bool, len(confirmed))
	var keep []entry
	for _, p := range s.pending {
		best := -1
		var bestGap time.Duration
		for i, c := range confirmed {
			if claimed[i] || c.msg.SenderID != p.msg.SenderID || c.msg.Body != p.msg.Body {
				continue
			}
			if c.msg.Timestamp.IsZero() {
				continue
			}
			gap := c.msg.Timestamp.Sub(p.msg.Timestamp).Abs()
			if gap > s.window {
				continue
			}
			if best < 0 || gap < bestGap {
				best, bestGap = i, gap
			}
		}
		if best >= 0 {
			claimed[best] = true
			continue
		}
		keep = append(keep, p)
	}
	return keep
}
