package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what a submitted prompt means.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
)

const historySize = 50

var promptLabels = map[PromptMode]struct{ label, title string }{
	PromptCommand: {":", " Command "},
	PromptFilter:  {"/", " Filter "},
}

// Prompt is the single-line input shown above the pages for ":" commands
// and "/" filters. Submitted commands are remembered and recalled with
// Up and Down.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	active   bool
	history  []string
	cursor   int
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates an inactive prompt.
func NewPrompt(theme *Theme) *Prompt {
	p := &Prompt{InputField: tview.NewInputField()}
	p.SetBorder(true).
		SetBorderColor(theme.PromptBorderColor).
		SetBackgroundColor(theme.BgColor)
	p.SetFieldBackgroundColor(theme.BgColor).
		SetFieldTextColor(theme.FgColor).
		SetLabelColor(theme.MenuKeyColor)
	p.SetDoneFunc(p.done)
	p.SetInputCapture(p.recall)
	return p
}

func (p *Prompt) done(key tcell.Key) {
	if key != tcell.KeyEnter && key != tcell.KeyEscape {
		return
	}
	text := p.GetText()
	p.SetText("")
	p.active = false
	if key == tcell.KeyEscape {
		if p.onCancel != nil {
			p.onCancel()
		}
		return
	}
	if p.mode == PromptCommand {
		p.remember(text)
	}
	if p.onSubmit != nil {
		p.onSubmit(p.mode, text)
	}
}

func (p *Prompt) remember(text string) {
	if text == "" || (len(p.history) > 0 && p.history[len(p.history)-1] == text) {
		return
	}
	p.history = append(p.history, text)
	if len(p.history) > historySize {
		p.history = p.history[len(p.history)-historySize:]
	}
}

func (p *Prompt) recall(event *tcell.EventKey) *tcell.EventKey {
	if p.mode != PromptCommand || len(p.history) == 0 {
		return event
	}
	switch event.Key() {
	case tcell.KeyUp:
		if p.cursor > 0 {
			p.cursor--
		}
	case tcell.KeyDown:
		if p.cursor < len(p.history) {
			p.cursor++
		}
	default:
		return event
	}
	if p.cursor == len(p.history) {
		p.SetText("")
	} else {
		p.SetText(p.history[p.cursor])
	}
	return nil
}

// History returns the remembered commands, oldest first.
func (p *Prompt) History() []string {
	return append([]string(nil), p.history...)
}

// SetOnSubmit sets the submit callback. Filters are submitted even when
// empty so they can be cleared.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback for Esc.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate clears the prompt and shows it in mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.active = true
	p.cursor = len(p.history)
	p.SetText("")
	l := promptLabels[mode]
	p.SetLabel(l.label)
	p.SetTitle(l.title)
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}

// Active reports whether the prompt is waiting for input.
func (p *Prompt) Active() bool {
	return p.active
}
