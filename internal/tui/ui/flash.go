package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// FlashLevel is the severity of a flash notice.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// ttl is how long a notice of the level stays on screen.
func (l FlashLevel) ttl() time.Duration {
	switch l {
	case FlashWarn:
		return 8 * time.Second
	case FlashErr:
		return 10 * time.Second
	default:
		return 4 * time.Second
	}
}

func (l FlashLevel) color(t *Theme) tcell.Color {
	switch l {
	case FlashWarn:
		return t.FlashWarnColor
	case FlashErr:
		return t.FlashErrColor
	default:
		return t.FlashInfoColor
	}
}

// FlashMessage is one notice and the time it stops being shown.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

func (m FlashMessage) live(now time.Time) bool {
	return m.Text != "" && now.Before(m.Expires)
}

// FlashModel keeps the latest notice. Every new notice is also offered,
// without blocking, to the Watch channel.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	notify  chan FlashMessage
}

// NewFlashModel creates an empty model.
func NewFlashModel() *FlashModel {
	return &FlashModel{notify: make(chan FlashMessage, 8)}
}

// Info shows an informational notice.
func (f *FlashModel) Info(msg string) { f.post(FlashInfo, msg) }

// Warn shows a warning.
func (f *FlashModel) Warn(msg string) { f.post(FlashWarn, msg) }

// Err shows err as an error notice.
func (f *FlashModel) Err(err error) { f.post(FlashErr, err.Error()) }

// Clear drops the current notice.
func (f *FlashModel) Clear() { f.post(FlashInfo, "") }

func (f *FlashModel) post(level FlashLevel, text string) {
	m := FlashMessage{Text: text, Level: level, Expires: time.Now().Add(level.ttl())}
	f.mu.Lock()
	f.current = m
	f.mu.Unlock()
	select {
	case f.notify <- m:
	default:
	}
}

// Get returns the live notice text, or "".
func (f *FlashModel) Get() string {
	if m := f.GetMessage(); m != nil {
		return m.Text
	}
	return ""
}

// GetMessage returns a copy of the live notice, or nil once it expired.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.RLock()
	m := f.current
	f.mu.RUnlock()
	if !m.live(time.Now()) {
		return nil
	}
	return &m
}

// Watch delivers notices as they are posted.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.notify
}

// FlashBar renders the live notice on the bottom line.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates an empty bar.
func NewFlashBar(theme *Theme) *FlashBar {
	fb := &FlashBar{TextView: tview.NewTextView(), theme: theme}
	fb.SetDynamicColors(true).SetBackgroundColor(theme.BgColor)
	return fb
}

// Update shows msg, or blanks the bar for nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	if msg == nil {
		fb.SetText("")
		return
	}
	fb.SetText(fmt.Sprintf(" [%s]%s[-]", ColorName(msg.Level.color(fb.theme)), tview.Escape(msg.Text)))
}
