package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/picklepick/ppchat/internal/store"
	"github.com/picklepick/ppchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// SearchView searches the local history cache.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []store.Message
}

// NewSearchView creates a new search view.
func NewSearchView(theme *ui.Theme) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := newTable(theme, " Results ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil && sv.input.GetText() != "" {
			sv.onQuery(sv.input.GetText())
		}
	})
	sv.Update(nil)

	return sv
}

// Name implements Component.
func (sv *SearchView) Name() string { return "Search" }

// Hints implements Component.
func (sv *SearchView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Search/Open"},
		{Key: "Tab", Description: "Results"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnQuery sets the callback when a search query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// SetQuery fills the input, as when searching from the command prompt.
func (sv *SearchView) SetQuery(q string) {
	sv.input.SetText(q)
}

var resultColumns = []column{
	{title: " CHAT", maxWidth: 25},
	{title: " FROM", maxWidth: 20},
	{title: " MESSAGE", expansion: 1},
	{title: " TIME", maxWidth: 12},
}

// Update refreshes search results.
func (sv *SearchView) Update(results []store.Message) {
	sv.data = results
	setHeader(sv.results, sv.theme, resultColumns)

	fg := sv.theme.FgColor
	colors := []tcell.Color{fg, fg, fg, fg}
	for i, m := range results {
		ts := ""
		if m.Timestamp > 0 {
			ts = formatTimestamp(time.UnixMilli(m.Timestamp))
		}
		setRow(sv.results, i+1, resultColumns, colors,
			" "+m.CounterpartID,
			" "+sanitizeForTerminal(m.SenderName),
			" "+sanitizeForTerminal(m.Body),
			" "+ts,
		)
	}
	sv.results.SetTitle(fmt.Sprintf(" Results (%d) ", len(results)))
}

// SelectedResult returns the counterpart id of the selected result.
func (sv *SearchView) SelectedResult() string {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.data) {
		return sv.data[idx].CounterpartID
	}
	return ""
}

// Input returns the search input field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
