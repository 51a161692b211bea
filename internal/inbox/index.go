// Package inbox tracks the user's conversation list.
package inbox

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// PreviewLength is the rune limit of a conversation preview.
const PreviewLength = 50

// Conversation is one row of the inbox.
type Conversation struct {
	CounterpartID        string
	CounterpartName      string
	LastMessageBody      string
	LastMessageTimestamp time.Time
	LastMessageSenderID  string
	UnreadCount          int
}

// Preview returns LastMessageBody cut to PreviewLength runes, with "..."
// appended when cut.
func (c Conversation) Preview() string {
	r := []rune(c.LastMessageBody)
	if len(r) <= PreviewLength {
		return c.LastMessageBody
	}
	return string(r[:PreviewLength]) + "..."
}

// PreviewFor is Preview prefixed with "You: " when selfID sent the last
// message.
func (c Conversation) PreviewFor(selfID string) string {
	if selfID != "" && c.LastMessageSenderID == selfID {
		return "You: " + c.Preview()
	}
	return c.Preview()
}

// Index holds the latest conversation list. Every Update replaces the whole
// list; there is never more than one entry per counterpart.
type Index struct {
	mu      sync.RWMutex
	entries []Conversation
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Update replaces the index with entries. When a counterpart appears more
// than once the entry with the latest timestamp wins. It returns the ids of
// counterparts that are new or whose last message moved forward.
func (x *Index) Update(entries []Conversation) []string {
	byID := make(map[string]Conversation, len(entries))
	for _, e := range entries {
		if e.CounterpartID == "" {
			continue
		}
		if cur, ok := byID[e.CounterpartID]; ok && cur.LastMessageTimestamp.After(e.LastMessageTimestamp) {
			continue
		}
		byID[e.CounterpartID] = e
	}

	next := make([]Conversation, 0, len(byID))
	for _, e := range byID {
		next = append(next, e)
	}
	slices.SortFunc(next, compareRecency)

	x.mu.Lock()
	prev := make(map[string]time.Time, len(x.entries))
	for _, e := range x.entries {
		prev[e.CounterpartID] = e.LastMessageTimestamp
	}
	x.entries = next
	x.mu.Unlock()

	var advanced []string
	for _, e := range next {
		if last, ok := prev[e.CounterpartID]; !ok || e.LastMessageTimestamp.After(last) {
			advanced = append(advanced, e.CounterpartID)
		}
	}
	return advanced
}

// List returns conversations, most recent first. Equal timestamps are
// ordered by counterpart id.
func (x *Index) List() []Conversation {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.entries)
}

// Get returns the entry for counterpartID.
func (x *Index) Get(counterpartID string) (Conversation, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, e := range x.entries {
		if e.CounterpartID == counterpartID {
			return e, true
		}
	}
	return Conversation{}, false
}

// Len returns the number of conversations.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func compareRecency(a, b Conversation) int {
	if c := b.LastMessageTimestamp.Compare(a.LastMessageTimestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.CounterpartID, b.CounterpartID)
}
