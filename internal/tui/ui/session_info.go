package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/picklepick/ppchat/internal/status"
	"github.com/rivo/tview"
)

// SessionData is the header summary of the running session.
type SessionData struct {
	Session       string
	User          string
	Status        string
	Conversations int
	Unread        int
	Uptime        time.Duration
}

// SessionInfo is the top-left header box.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates an empty header box.
func NewSessionInfo(theme *Theme) *SessionInfo {
	si := &SessionInfo{TextView: tview.NewTextView(), theme: theme}
	si.SetDynamicColors(true).SetBackgroundColor(theme.BgColor)
	si.SetBorderPadding(0, 0, 1, 1)
	return si
}

// Update renders data; nil clears the box.
func (si *SessionInfo) Update(data *SessionData) {
	if data == nil {
		si.SetText("")
		return
	}
	user := data.User
	if user == "" {
		user = "-"
	}
	value := ColorName(si.theme.CounterColor)
	rows := []struct {
		label, value, color string
	}{
		{"Session", data.Session, value},
		{"User", user, value},
		{"Status", data.Status, ColorName(si.statusColor(status.State(data.Status)))},
		{"Chats", strconv.Itoa(data.Conversations), value},
		{"Unread", strconv.Itoa(data.Unread), value},
		{"Uptime", formatUptime(data.Uptime), value},
	}

	label := ColorName(si.theme.FgColor)
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("[%s::b]%-8s[-:-:-] [%s]%s[-]", label, r.label+":", r.color, tview.Escape(r.value))
	}
	si.SetText(strings.Join(lines, "\n"))
}

func (si *SessionInfo) statusColor(s status.State) tcell.Color {
	switch s {
	case status.Ready:
		return si.theme.CounterColor
	case status.AuthRequired, status.Error:
		return si.theme.FlashErrColor
	default:
		return si.theme.FlashWarnColor
	}
}

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Minute)
	if d < time.Hour {
		return strconv.Itoa(int(d.Minutes())) + "m"
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
