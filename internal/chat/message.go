// Package chat holds the per-conversation message log and the session that
// keeps it in step with the server.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength is the longest accepted message body, in characters.
const MaxMessageLength = 500

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("chat: session closed")

// Origin says where a message in the store came from.
type Origin int

const (
	// ServerConfirmed messages were returned by a fetch.
	ServerConfirmed Origin = iota
	// OptimisticLocal messages were inserted after a successful send and
	// have not yet been seen in a fetch.
	OptimisticLocal
)

func (o Origin) String() string {
	switch o {
	case ServerConfirmed:
		return "server"
	case OptimisticLocal:
		return "local"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// Message is a decoded chat message. Body is always human-readable text.
type Message struct {
	ID         string
	SenderID   string
	SenderName string
	Body       string
	Timestamp  time.Time
	Origin     Origin
}

// Pending reports whether the message is awaiting server confirmation.
func (m Message) Pending() bool { return m.Origin == OptimisticLocal }

// ValidationError rejects local input before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

// ValidateText trims text and checks it is non-empty and at most
// MaxMessageLength characters. It returns the trimmed text.
func ValidateText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &ValidationError{Reason: "message is empty"}
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxMessageLength {
		return "", &ValidationError{Reason: fmt.Sprintf("message is %d characters, limit is %d", n, MaxMessageLength)}
	}
	return trimmed, nil
}
