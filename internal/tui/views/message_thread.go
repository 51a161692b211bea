package views

import (
	"fmt"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/picklepick/ppchat/internal/chat"
	"github.com/picklepick/ppchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays messages and a composer for a single chat.
type MessageThread struct {
	*tview.Flex
	theme         *ui.Theme
	messages      *tview.TextView
	composer      *tview.InputField
	chatName      string
	counterpartID string
	selfID        string
	sending       bool
	onSend        func(text string)
}

// NewMessageThread creates a new message thread view. Messages from selfID
// are rendered as the user's own.
func NewMessageThread(theme *ui.Theme, selfID string) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		selfID:   selfID,
	}

	composer.SetAcceptanceFunc(func(text string, _ rune) bool {
		return utf8.RuneCountInString(text) <= chat.MaxMessageLength
	})
	composer.SetChangedFunc(func(string) { mt.updateComposerTitle() })
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil || mt.sending {
			return
		}
		if text := composer.GetText(); text != "" {
			mt.sending = true
			mt.updateComposerTitle()
			mt.onSend(text)
		}
	})
	mt.updateComposerTitle()

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.chatName != "" {
		return mt.chatName
	}
	return "Messages"
}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Reset points the thread at a new conversation and empties it.
func (mt *MessageThread) Reset(counterpartID, name string) {
	mt.counterpartID = counterpartID
	mt.chatName = name
	mt.sending = false
	mt.messages.Clear()
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(name))))
	mt.composer.SetText("")
}

// CounterpartID returns the conversation shown.
func (mt *MessageThread) CounterpartID() string {
	return mt.counterpartID
}

// SetOnSend sets the callback for a submitted composer text. The composer
// stays locked until SendFinished is called.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SendFinished unlocks the composer. The text is cleared only when the send
// was delivered, so a failed message can be retried.
func (mt *MessageThread) SendFinished(delivered bool) {
	mt.sending = false
	if delivered {
		mt.composer.SetText("")
	}
	mt.updateComposerTitle()
}

// Update re-renders the conversation. msgs are in display order.
func (mt *MessageThread) Update(msgs []chat.Message) {
	mt.messages.Clear()

	self := ui.ColorName(mt.theme.SelfColor)
	peer := ui.ColorName(mt.theme.PeerColor)
	pending := ui.ColorName(mt.theme.PendingColor)

	for _, m := range msgs {
		color := peer
		if m.SenderID == mt.selfID {
			color = self
		}
		ts := formatTimestamp(m.Timestamp)
		if m.Pending() {
			ts = fmt.Sprintf("[%s]%s sending[-]", pending, ts)
		}
		_, _ = fmt.Fprintf(mt.messages, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
			color, tview.Escape(sanitizeForTerminal(m.SenderName)), ts,
			tview.Escape(sanitizeForTerminal(m.Body)))
	}

	mt.messages.ScrollToEnd()
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

func (mt *MessageThread) updateComposerTitle() {
	n := utf8.RuneCountInString(mt.composer.GetText())
	state := "i to focus"
	if mt.sending {
		state = "sending"
	}
	mt.composer.SetTitle(fmt.Sprintf(" Compose (%s) %d/%d ", state, n, chat.MaxMessageLength))
}
