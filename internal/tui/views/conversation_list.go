package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the main conversation table.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	convs   []chat.Conversation
	visible []chat.Conversation
	unread  map[string]int
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Name implements ui.Component.
func (cl *ConversationList) Name() string { return "conversations" }

// Hints implements ui.Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: "0-9", Description: "Jump", Numeric: true},
	}
}

// Update replaces the conversations. unread counts unread notifications per
// conversation id.
func (cl *ConversationList) Update(convs []chat.Conversation, unread map[string]int) {
	selected := cl.SelectedConversation()
	cl.convs = convs
	cl.unread = unread
	cl.render()
	cl.SelectConversation(selected)
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
	cl.Table.Select(1, 0)
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.SetFilter("")
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" ", 0},
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	cl.visible = cl.visible[:0]
	for _, conv := range cl.convs {
		if !matches(conv, cl.filter) {
			continue
		}
		cl.visible = append(cl.visible, conv)
		row := len(cl.visible)

		dot := tview.NewTableCell(" ○").SetTextColor(cl.theme.DimColor)
		if conv.Online {
			dot = tview.NewTableCell(" ●").SetTextColor(cl.theme.OnlineColor)
		}
		name := tview.Escape(singleLine(conv.Name))
		nameColor := cl.theme.FgColor
		if n := cl.unread[conv.ID]; n > 0 {
			name = fmt.Sprintf("(%d) %s", n, name)
			nameColor = cl.theme.UnreadColor
		}

		cl.SetCell(row, 0, dot)
		cl.SetCell(row, 1, tview.NewTableCell(" "+name).SetExpansion(1).SetTextColor(nameColor))
		cl.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(singleLine(conv.LastMessage))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 3, tview.NewTableCell(formatTimestamp(conv.LastMessageAt)).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// SelectConversation moves the cursor to a conversation, keeping it in place when the
// conversation is not listed.
func (cl *ConversationList) SelectConversation(conversationID string) {
	for i, conv := range cl.visible {
		if conv.ID == conversationID {
			cl.Table.Select(i+1, 0)
			return
		}
	}
}

// SelectedConversation returns the id under the cursor.
func (cl *ConversationList) SelectedConversation() string {
	row, _ := cl.GetSelection()
	return cl.ConversationAt(row)
}

// ConversationAt returns the id shown on a table row.
func (cl *ConversationList) ConversationAt(row int) string {
	idx := row - 1
	if idx < 0 || idx >= len(cl.visible) {
		return ""
	}
	return cl.visible[idx].ID
}

// ConversationByIndex returns the id of the Nth visible conversation
// (1-based).
func (cl *ConversationList) ConversationByIndex(n int) string {
	return cl.ConversationAt(n)
}

// Find returns the first listed conversation whose name contains name.
func (cl *ConversationList) Find(name string) (chat.Conversation, bool) {
	for _, conv := range cl.convs {
		if containsFold(conv.Name, name) {
			return conv, true
		}
	}
	return chat.Conversation{}, false
}

func matches(conv chat.Conversation, filter string) bool {
	return filter == "" || containsFold(conv.Name, filter) || containsFold(conv.LastMessage, filter)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
