package views

import (
	"fmt"

	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays details about a conversation's counterpart.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Component.
func (ci *ConversationInfo) Name() string { return "details" }

// Hints implements ui.Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":block", Description: "Block"},
		{Key: ":report", Description: "Report"},
	}
}

// Update renders conversation details. messages is the loaded message count.
func (ci *ConversationInfo) Update(conv chat.Conversation, messages int) {
	ci.Clear()

	fg := ui.ColorName(ci.theme.FgColor)
	ct := ui.ColorName(ci.theme.CounterColor)

	presence := fmt.Sprintf("[%s]offline[-]", ui.ColorName(ci.theme.DimColor))
	if conv.Online {
		presence = fmt.Sprintf("[%s]online[-]", ui.ColorName(ci.theme.OnlineColor))
	}
	lastActive := formatTimestamp(conv.LastMessageAt)
	if lastActive == "" {
		lastActive = "-"
	}
	avatar := conv.Avatar
	if avatar == "" {
		avatar = "-"
	}

	text := fmt.Sprintf(
		"\n [%s::b]Name:[-:-:-]         [%s]%s[-]\n"+
			" [%s::b]User:[-:-:-]         [%s]%s[-]\n"+
			" [%s::b]Presence:[-:-:-]     %s\n"+
			" [%s::b]Avatar:[-:-:-]       [%s]%s[-]\n"+
			" [%s::b]Messages:[-:-:-]     [%s]%d[-]\n"+
			" [%s::b]Last Active:[-:-:-]  [%s]%s[-]\n"+
			" [%s::b]Last Message:[-:-:-] [%s]%s[-]",
		fg, ct, tview.Escape(singleLine(conv.Name)),
		fg, ct, tview.Escape(conv.CounterpartID),
		fg, presence,
		fg, ct, tview.Escape(avatar),
		fg, ct, messages,
		fg, ct, lastActive,
		fg, ct, tview.Escape(singleLine(conv.LastMessage)),
	)

	_, _ = fmt.Fprint(ci, text)
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(singleLine(conv.Name))))
}
