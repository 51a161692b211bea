package views

import (
	"fmt"

	"github.com/picklepick/ppchat/internal/inbox"
	"github.com/picklepick/ppchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders conversation details.
func (ci *ConversationInfo) Update(c inbox.Conversation) {
	ci.Clear()

	fg := ui.ColorName(ci.theme.FgColor)
	ct := ui.ColorName(ci.theme.CounterColor)

	lastActive := formatTimestamp(c.LastMessageTimestamp)
	if lastActive == "" {
		lastActive = "-"
	}
	lastSender := c.LastMessageSenderID
	if lastSender == "" {
		lastSender = "-"
	}
	name := tview.Escape(sanitizeForTerminal(displayName(c)))

	_, _ = fmt.Fprintf(ci,
		"\n [%s::b]Name:[-:-:-]         [%s]%s[-]\n"+
			" [%s::b]ID:[-:-:-]           [%s]%s[-]\n"+
			" [%s::b]Unread:[-:-:-]       [%s]%d[-]\n"+
			" [%s::b]Last Active:[-:-:-]  [%s]%s[-]\n"+
			" [%s::b]Last Sender:[-:-:-]  [%s]%s[-]\n"+
			" [%s::b]Last Message:[-:-:-] [%s]%s[-]",
		fg, ct, name,
		fg, ct, tview.Escape(c.CounterpartID),
		fg, ct, c.UnreadCount,
		fg, ct, lastActive,
		fg, ct, tview.Escape(lastSender),
		fg, ct, tview.Escape(sanitizeForTerminal(c.LastMessageBody)),
	)
	ci.SetTitle(fmt.Sprintf(" %s Details ", name))
}
