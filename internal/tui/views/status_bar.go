package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/layover/internal/status"
	"github.com/matheus3301/layover/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the profile, session status and counters.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	status  status.State
	online  int
	unread  int
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetStatus updates the session status display.
func (sb *StatusBar) SetStatus(s status.State) {
	sb.status = s
	sb.render()
}

// SetCounts updates the online and unread counters.
func (sb *StatusBar) SetCounts(online, unread int) {
	sb.online = online
	sb.unread = unread
	sb.render()
}

func (sb *StatusBar) statusColor() string {
	switch sb.status {
	case status.Live:
		return ui.ColorName(sb.theme.OnlineColor)
	case status.Degraded, status.Attaching:
		return ui.ColorName(sb.theme.FlashWarnColor)
	case status.Error:
		return ui.ColorName(sb.theme.FlashErrColor)
	}
	return ui.ColorName(sb.theme.DimColor)
}

func (sb *StatusBar) render() {
	sb.Clear()

	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-] | %d online",
		tview.Escape(sb.profile), sb.statusColor(), sb.status, sb.online)
	if sb.unread > 0 {
		line += fmt.Sprintf(" | [%s]%d unread[-]", ui.ColorName(sb.theme.UnreadColor), sb.unread)
	}
	line += " | " + sb.now().Format("15:04")

	_, _ = fmt.Fprint(sb, line)
}
