package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// SessionData holds session information for display.
type SessionData struct {
	Profile       string
	User          string
	Status        string
	Conversations int
	Online        int
	Unread        int
	Uptime        time.Duration
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		return
	}

	fg := ColorName(si.theme.FgColor)
	counter := ColorName(si.theme.CounterColor)

	user := data.User
	if user == "" {
		user = "-"
	}
	unread := fmt.Sprintf("[%s]%d[-]", counter, data.Unread)
	if data.Unread > 0 {
		unread = fmt.Sprintf("[%s::b]%d[-:-:-]", ColorName(si.theme.UnreadColor), data.Unread)
	}

	text := fmt.Sprintf(
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Status:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Chats:[-:-:-]   [%s]%d[-] [%s](%d online)[-]\n"+
			"[%s::b]Unread:[-:-:-]  %s\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fg, counter, tview.Escape(data.Profile),
		fg, counter, tview.Escape(user),
		fg, counter, data.Status,
		fg, counter, data.Conversations, ColorName(si.theme.OnlineColor), data.Online,
		fg, unread,
		fg, counter, formatDuration(data.Uptime),
	)

	_, _ = fmt.Fprint(si, text)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
