package ui

import (
	"strings"

	"github.com/rivo/tview"
)

var logoArt = []string{
	"╔═╗╔═╗",
	"╠═╝╠═╝",
	"╩  ╩  ",
}

const logoCaption = "PicklePick chat"

// Logo is the top-right brand box.
type Logo struct {
	*tview.TextView
}

// NewLogo renders the logo in the theme's title color.
func NewLogo(theme *Theme) *Logo {
	l := &Logo{TextView: tview.NewTextView()}
	l.SetDynamicColors(true).SetBackgroundColor(theme.BgColor)
	l.SetBorderPadding(1, 0, 1, 0)

	var b strings.Builder
	for _, row := range logoArt {
		b.WriteString("[" + ColorName(theme.TitleColor) + "::b] " + row + "[-:-:-]\n")
	}
	b.WriteString("[" + ColorName(theme.FgColor) + "]" + logoCaption + "[-]")
	l.SetText(b.String())
	return l
}
