package views

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/picklepick/ppchat/internal/inbox"
	"github.com/picklepick/ppchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the inbox view.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	selfID  string
	convs   []inbox.Conversation
	visible []inbox.Conversation
	filter  string
}

// NewConversationList creates the inbox table. Previews of messages sent
// by selfID read "You: ...".
func NewConversationList(theme *ui.Theme, selfID string) *ConversationList {
	table := newTable(theme, " Conversations ")

	cl := &ConversationList{
		Table:  table,
		theme:  theme,
		selfID: selfID,
	}
	cl.render()
	return cl
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "d", Description: "Details"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "0-9", Description: "Jump", Numeric: true},
	}
}

// Update refreshes the list. convs must already be in display order.
// The selected conversation stays selected when it is still visible.
func (cl *ConversationList) Update(convs []inbox.Conversation) {
	selected := cl.SelectedChat()
	cl.convs = convs
	cl.render()
	cl.selectID(selected)
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = strings.TrimSpace(filter)
	cl.render()
	cl.Select(1, 0)
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.SetFilter("")
}

// Filter returns the active filter.
func (cl *ConversationList) Filter() string { return cl.filter }

var conversationColumns = []column{
	{title: " NAME", expansion: 1},
	{title: " LAST MESSAGE", expansion: 2},
	{title: " TIME", align: tview.AlignRight},
	{title: " UNREAD", align: tview.AlignRight},
}

func (cl *ConversationList) render() {
	setHeader(cl.Table, cl.theme, conversationColumns)

	cl.visible = cl.visible[:0]
	for _, c := range cl.convs {
		if matches(c, cl.filter) {
			cl.visible = append(cl.visible, c)
		}
	}

	fg := cl.theme.FgColor
	for i, c := range cl.visible {
		nameColor, unread := fg, ""
		if c.UnreadCount > 0 {
			nameColor, unread = cl.theme.UnreadColor, strconv.Itoa(c.UnreadCount)
		}
		setRow(cl.Table, i+1, conversationColumns,
			[]tcell.Color{nameColor, fg, fg, nameColor},
			" "+sanitizeForTerminal(displayName(c)),
			" "+sanitizeForTerminal(c.PreviewFor(cl.selfID)),
			formatTimestamp(c.LastMessageTimestamp),
			unread,
		)
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// SelectedChat returns the counterpart id of the selected row.
func (cl *ConversationList) SelectedChat() string {
	row, _ := cl.GetSelection()
	return cl.ChatByIndex(row)
}

// ChatByIndex returns the counterpart id of the Nth visible conversation
// (1-based).
func (cl *ConversationList) ChatByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].CounterpartID
}

func (cl *ConversationList) selectID(id string) {
	for i, c := range cl.visible {
		if c.CounterpartID == id {
			cl.Select(i+1, 0)
			return
		}
	}
	if len(cl.visible) > 0 {
		row, _ := cl.GetSelection()
		if row < 1 || row > len(cl.visible) {
			cl.Select(1, 0)
		}
	}
}

func displayName(c inbox.Conversation) string {
	if c.CounterpartName != "" {
		return c.CounterpartName
	}
	return c.CounterpartID
}

func matches(c inbox.Conversation, filter string) bool {
	if filter == "" {
		return true
	}
	f := strings.ToLower(filter)
	return strings.Contains(strings.ToLower(displayName(c)), f) ||
		strings.Contains(strings.ToLower(c.CounterpartID), f) ||
		strings.Contains(strings.ToLower(c.LastMessageBody), f)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
