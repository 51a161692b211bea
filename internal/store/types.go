package store

// Conversation is a cached inbox row. Times are Unix milliseconds.
type Conversation struct {
	CounterpartID   string
	CounterpartName string
	LastMessageBody string
	LastMessageAt   int64
	LastSenderID    string
	UnreadCount     int
}

// Message is a cached, already decoded message.
type Message struct {
	ID            int64
	CounterpartID string
	MsgID         string
	SenderID      string
	SenderName    string
	Body          string
	Timestamp     int64
}
