package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
)

// Theme holds the colors of every TUI role. Roles can be overridden by
// name from the [tui.colors] config table.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
	SelfColor         tcell.Color
	PeerColor         tcell.Color
	PendingColor      tcell.Color
	UnreadColor       tcell.Color
}

// roles maps config names to theme fields.
func (t *Theme) roles() map[string]*tcell.Color {
	return map[string]*tcell.Color{
		"background":     &t.BgColor,
		"foreground":     &t.FgColor,
		"border":         &t.BorderColor,
		"border_focus":   &t.BorderFocusColor,
		"header_fg":      &t.TableHeaderFg,
		"header_bg":      &t.TableHeaderBg,
		"cursor_fg":      &t.TableCursorFg,
		"cursor_bg":      &t.TableCursorBg,
		"crumb_fg":       &t.CrumbActiveFg,
		"crumb_bg":       &t.CrumbActiveBg,
		"crumb_other_fg": &t.CrumbInactiveFg,
		"crumb_other_bg": &t.CrumbInactiveBg,
		"menu_key":       &t.MenuKeyColor,
		"numeric_key":    &t.NumericKeyColor,
		"title":          &t.TitleColor,
		"counter":        &t.CounterColor,
		"flash_info":     &t.FlashInfoColor,
		"flash_warn":     &t.FlashWarnColor,
		"flash_error":    &t.FlashErrColor,
		"prompt_border":  &t.PromptBorderColor,
		"self":           &t.SelfColor,
		"peer":           &t.PeerColor,
		"pending":        &t.PendingColor,
		"unread":         &t.UnreadColor,
	}
}

var defaultPalette = map[string]string{
	"background":     "black",
	"foreground":     "cadetblue",
	"border":         "dodgerblue",
	"border_focus":   "lightskyblue",
	"header_fg":      "white",
	"header_bg":      "black",
	"cursor_fg":      "black",
	"cursor_bg":      "aqua",
	"crumb_fg":       "black",
	"crumb_bg":       "orange",
	"crumb_other_fg": "black",
	"crumb_other_bg": "aqua",
	"menu_key":       "dodgerblue",
	"numeric_key":    "fuchsia",
	"title":          "yellowgreen",
	"counter":        "papayawhip",
	"flash_info":     "navajowhite",
	"flash_warn":     "orange",
	"flash_error":    "orangered",
	"prompt_border":  "dodgerblue",
	"self":           "yellowgreen",
	"peer":           "lightskyblue",
	"pending":        "gray",
	"unread":         "orange",
}

// DefaultTheme returns the dark theme used by pptui.
func DefaultTheme() *Theme {
	t := &Theme{}
	if err := t.Apply(defaultPalette); err != nil {
		panic(err)
	}
	return t
}

// Apply overrides roles by name. Colors are tcell names ("orange") or
// hex ("#ff8800"). Unknown roles and colors are reported together and
// leave the theme untouched.
func (t *Theme) Apply(colors map[string]string) error {
	roles := t.roles()
	resolved := make(map[*tcell.Color]tcell.Color, len(colors))
	var bad []string
	for role, name := range colors {
		field, ok := roles[strings.ToLower(role)]
		if !ok {
			bad = append(bad, fmt.Sprintf("unknown role %q", role))
			continue
		}
		c := tcell.GetColor(strings.ToLower(strings.TrimSpace(name)))
		if c == tcell.ColorDefault {
			bad = append(bad, fmt.Sprintf("%s: unknown color %q", role, name))
			continue
		}
		resolved[field] = c
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return fmt.Errorf("theme: %s", strings.Join(bad, "; "))
	}
	for field, c := range resolved {
		*field = c
	}
	return nil
}

// Roles lists the names accepted by Apply.
func (t *Theme) Roles() []string {
	names := make([]string, 0, len(defaultPalette))
	for name := range t.roles() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
