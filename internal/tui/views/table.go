package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/picklepick/ppchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// column describes one table column; row cells inherit its layout.
type column struct {
	title     string
	expansion int
	maxWidth  int
	align     int
}

// newTable returns a bordered, row-selectable table with a fixed header row.
func newTable(theme *ui.Theme, title string) *tview.Table {
	t := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetSelectedStyle(tcell.StyleDefault.Foreground(theme.TableCursorFg).Background(theme.TableCursorBg))
	t.SetBorder(true).
		SetBorderColor(theme.BorderColor).
		SetTitleColor(theme.TitleColor).
		SetTitle(title).
		SetBackgroundColor(theme.BgColor)
	return t
}

// setHeader clears t and writes the header row.
func setHeader(t *tview.Table, theme *ui.Theme, cols []column) {
	t.Clear()
	for i, c := range cols {
		t.SetCell(0, i, tview.NewTableCell(c.title).
			SetSelectable(false).
			SetTextColor(theme.TableHeaderFg).
			SetBackgroundColor(theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(c.expansion))
	}
}

// setRow writes one data row. Text is escaped for tview; callers sanitize.
func setRow(t *tview.Table, row int, cols []column, colors []tcell.Color, values ...string) {
	for i, v := range values {
		c := cols[i]
		t.SetCell(row, i, tview.NewTableCell(tview.Escape(v)).
			SetTextColor(colors[i]).
			SetExpansion(c.expansion).
			SetMaxWidth(c.maxWidth).
			SetAlign(c.align))
	}
}
