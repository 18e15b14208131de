package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/layover/internal/notify"
	"github.com/matheus3301/layover/internal/tui/ui"
	"github.com/rivo/tview"
)

// NotificationList shows the notification feed, newest first.
type NotificationList struct {
	*tview.Table
	theme   *ui.Theme
	only    notify.Type
	visible []notify.Notification
}

// NewNotificationList creates a new notification table.
func NewNotificationList(theme *ui.Theme) *NotificationList {
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
	table.SetTitleColor(theme.TitleColor)

	return &NotificationList{
		Table: table,
		theme: theme,
	}
}

// Name implements ui.Component.
func (nl *NotificationList) Name() string { return "notifications" }

// Hints implements ui.Component.
func (nl *NotificationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "x", Description: "Dismiss"},
		{Key: "a", Description: "Mark all read"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnly limits the list to one notification type; "" shows every type.
func (nl *NotificationList) SetOnly(t notify.Type) {
	nl.only = t
}

// Update replaces the notifications.
func (nl *NotificationList) Update(items []notify.Notification) {
	nl.Clear()

	for col, h := range []string{" ", " TITLE", " MESSAGE", " TIME"} {
		cell := tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(nl.theme.TableHeaderFg).
			SetBackgroundColor(nl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold)
		if col == 2 {
			cell.SetExpansion(1)
		}
		nl.SetCell(0, col, cell)
	}

	nl.visible = nl.visible[:0]
	unread := 0
	for _, n := range items {
		if nl.only != "" && n.Type != nl.only {
			continue
		}
		nl.visible = append(nl.visible, n)
		row := len(nl.visible)

		mark := tview.NewTableCell(" ")
		color := nl.theme.DimColor
		if !n.Read {
			unread++
			mark = tview.NewTableCell(" •").SetTextColor(nl.theme.UnreadColor)
			color = nl.theme.FgColor
		}
		nl.SetCell(row, 0, mark)
		nl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(n.Title)).SetTextColor(color))
		nl.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(singleLine(n.Message))).SetExpansion(1).SetTextColor(color))
		nl.SetCell(row, 3, tview.NewTableCell(formatTimestamp(n.CreatedAt)).SetTextColor(color).SetAlign(tview.AlignRight))
	}

	title := "Notifications"
	if nl.only == notify.TypeRequest {
		title = "Travel Requests"
	}
	nl.SetTitle(fmt.Sprintf(" %s (%d unread) ", title, unread))
}

// Selected returns the notification under the cursor.
func (nl *NotificationList) Selected() (notify.Notification, bool) {
	row, _ := nl.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(nl.visible) {
		return notify.Notification{}, false
	}
	return nl.visible[idx], true
}
