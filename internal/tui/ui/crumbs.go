package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Crumbs shows the page stack, the top page highlighted.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates an empty breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	c := &Crumbs{TextView: tview.NewTextView(), theme: theme}
	c.SetDynamicColors(true).SetBackgroundColor(theme.BgColor)
	return c
}

// Update renders names in stack order.
func (c *Crumbs) Update(names []string) {
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i == len(names)-1 {
			b.WriteString(styleTag(c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"))
		} else {
			b.WriteString(styleTag(c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""))
		}
		b.WriteString(" " + tview.Escape(name) + " [-:-:-]")
	}
	c.SetText(b.String())
}

// styleTag builds a tview color tag.
func styleTag(fg, bg tcell.Color, attrs string) string {
	return "[" + ColorName(fg) + ":" + ColorName(bg) + ":" + attrs + "]"
}

// ColorName renders c as a tview color tag value.
func ColorName(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
