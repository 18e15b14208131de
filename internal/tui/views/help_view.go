package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/layover/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "help" }

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

type helpSection struct {
	title string
	rows  [][2]string
}

var helpSections = []helpSection{
	{"Global Keys", [][2]string{
		{":", "Command mode"},
		{"?", "Help"},
		{"n", "Notifications"},
		{"r", "Travel requests"},
		{"o", "Run the action of the alert on screen"},
		{"q", "Quit"},
		{"Esc", "Back"},
	}},
	{"Conversation List", [][2]string{
		{"Up/Down", "Preview a conversation"},
		{"Enter", "Open conversation"},
		{"1-9", "Open the Nth conversation"},
		{"/", "Filter"},
		{"0", "Clear filter"},
	}},
	{"Message Thread", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Send (in composer)"},
		{"d", "Conversation details"},
	}},
	{"Notifications", [][2]string{
		{"Enter", "Open and mark read"},
		{"x", "Dismiss"},
		{"a", "Mark all read"},
	}},
	{"Travel Requests", [][2]string{
		{"y", "Accept the selected request"},
		{"D", "Decline the selected request"},
		{"c", "Withdraw the selected sent request"},
	}},
	{"Commands", [][2]string{
		{":chat <name>", "Open a conversation by name"},
		{":image <path>", "Send a photo"},
		{":react <emoji>", "React to the last message"},
		{":edit <text>", "Edit your last message"},
		{":delete", "Delete your last message"},
		{":block", "Block the counterpart"},
		{":report <reason>", "Report the counterpart"},
		{":read", "Mark every notification read"},
		{":accept <id>", "Accept a travel request"},
		{":decline <id>", "Decline a travel request"},
		{":cancel <id>", "Withdraw one of your requests"},
		{":login <token>", "Sign in"},
		{":logout", "Sign out"},
		{":quit", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.ColorName(hv.theme.MenuKeyColor)

	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
