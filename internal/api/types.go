package api

import (
	"strings"
	"time"
)

// Fallbacks used when the server omits optional fields.
const (
	FallbackSenderName = "Anonymous"
	FallbackBody       = "Message not available"
)

// WireMessage is one element of the list-messages response. Every field is
// optional on the wire; accessors apply the documented fallbacks. Both the
// current field names and the legacy backend's names are accepted.
type WireMessage struct {
	ID               *string `json:"id,omitempty"`
	LegacyID         *string `json:"_id,omitempty"`
	SenderID         *string `json:"sender_id,omitempty"`
	ReceiverID       *string `json:"receiver_id,omitempty"`
	SenderName       *string `json:"sender_name,omitempty"`
	MessageEncoded   *string `json:"message_encoded,omitempty"`
	MessageEncrypted *string `json:"message_encrypted,omitempty"`
	Message          *string `json:"message,omitempty"`
	Timestamp        *string `json:"timestamp,omitempty"`
}

// MessageID returns the server-assigned id, or "" if none was sent.
func (w *WireMessage) MessageID() string {
	return firstOf(w.ID, w.LegacyID)
}

// Sender returns the author's user id.
func (w *WireMessage) Sender() string {
	return deref(w.SenderID)
}

// SenderDisplayName returns the author's name, or FallbackSenderName.
func (w *WireMessage) SenderDisplayName() string {
	if name := strings.TrimSpace(deref(w.SenderName)); name != "" {
		return name
	}
	return FallbackSenderName
}

// EncodedBody returns the encoded body and true when the server sent one.
func (w *WireMessage) EncodedBody() (string, bool) {
	if w.MessageEncoded != nil && *w.MessageEncoded != "" {
		return *w.MessageEncoded, true
	}
	if w.MessageEncrypted != nil && *w.MessageEncrypted != "" {
		return *w.MessageEncrypted, true
	}
	return "", false
}

// PlainBody returns the unencoded body field, or FallbackBody.
func (w *WireMessage) PlainBody() string {
	if w.Message != nil && *w.Message != "" {
		return *w.Message
	}
	return FallbackBody
}

// CreatedAt parses the timestamp; the zero time means absent or unparseable.
func (w *WireMessage) CreatedAt() time.Time {
	return ParseTimestamp(deref(w.Timestamp))
}

// WireConversation is one element of the list-conversations response.
type WireConversation struct {
	CounterpartID   *string `json:"counterpart_id,omitempty"`
	UserID          *string `json:"user_id,omitempty"`
	CounterpartName *string `json:"counterpart_name,omitempty"`
	UserName        *string `json:"user_name,omitempty"`
	LastMessage     *string `json:"last_message,omitempty"`
	LastMessageTime *string `json:"last_message_time,omitempty"`
	LastSenderID    *string `json:"last_sender_id,omitempty"`
	UnreadCount     *int    `json:"unread_count,omitempty"`
}

// Counterpart returns the other participant's user id.
func (w *WireConversation) Counterpart() string {
	return firstOf(w.CounterpartID, w.UserID)
}

// CounterpartDisplayName returns the other participant's name, or
// FallbackSenderName.
func (w *WireConversation) CounterpartDisplayName() string {
	if name := strings.TrimSpace(firstOf(w.CounterpartName, w.UserName)); name != "" {
		return name
	}
	return FallbackSenderName
}

// LastBody returns the last-message preview text.
func (w *WireConversation) LastBody() string {
	return deref(w.LastMessage)
}

// LastAt parses the last message time; zero when absent.
func (w *WireConversation) LastAt() time.Time {
	return ParseTimestamp(deref(w.LastMessageTime))
}

// LastSender returns the id of the last message's author.
func (w *WireConversation) LastSender() string {
	return deref(w.LastSenderID)
}

// Unread returns the unread count, 0 when absent.
func (w *WireConversation) Unread() int {
	if w.UnreadCount == nil || *w.UnreadCount < 0 {
		return 0
	}
	return *w.UnreadCount
}

// SendRequest is the body of the send-message call.
type SendRequest struct {
	ReceiverID string `json:"receiver_id"`
	Message    string `json:"message"`
}

// SendAck is the send-message response. The server may return either a bare
// acknowledgement or the created message resource.
type SendAck struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
}

// ParseTimestamp accepts RFC 3339 and zone-less ISO-8601 instants. Zone-less
// values are read as UTC. Unparseable input yields the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstOf(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
