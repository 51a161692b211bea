package bus

import "time"

// Event kinds published by the chat, inbox and session components.
// Subscribers filter by namespace prefix ("chat.", "inbox.", "session.").
const (
	ChatUpdated          = "chat.updated"
	ChatPollFailed       = "chat.poll_failed"
	ChatSendFailed       = "chat.send_failed"
	InboxUpdated         = "inbox.updated"
	InboxPollFailed      = "inbox.poll_failed"
	SessionStatusChanged = "session.status_changed"
	HistorySynced        = "history.synced"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
