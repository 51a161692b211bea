package views

import (
	"fmt"

	"github.com/picklepick/ppchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

type helpEntry struct {
	key, desc string
}

var helpSections = []struct {
	title   string
	entries []helpEntry
}{
	{"Global Keys", []helpEntry{
		{":", "Command mode"},
		{"Esc", "Cancel / Go back"},
		{"?", "Help"},
		{"q", "Quit (inbox) / Back"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Conversation List", []helpEntry{
		{"Enter", "Open conversation"},
		{"/", "Filter by name or message"},
		{"0", "Clear filter"},
		{"1-9", "Open Nth conversation"},
		{"d", "Conversation details"},
		{"j/k", "Move down / up"},
	}},
	{"Conversation", []helpEntry{
		{"i", "Focus composer"},
		{"Enter", "Send (in composer, max 500 characters)"},
		{"Esc", "Leave composer"},
		{"d", "Conversation details"},
	}},
	{"Commands", []helpEntry{
		{":chat <id>", "Open conversation by counterpart id"},
		{":search <text>", "Search cached history"},
		{":inbox", "Back to the conversation list"},
		{":refresh", "Refresh the inbox now"},
		{":help / :h", "Show this help"},
		{":quit / :q", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.ColorName(hv.theme.MenuKeyColor)
	for _, s := range helpSections {
		_, _ = fmt.Fprintf(hv, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, e := range s.entries {
			_, _ = fmt.Fprintf(hv, "  [%s]%-16s[-:-:-] %s\n", kc, tview.Escape(e.key), e.desc)
		}
	}
}
