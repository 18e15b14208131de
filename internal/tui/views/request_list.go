package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/tui/ui"
	"github.com/rivo/tview"
)

// RequestList shows pending travel requests, incoming first.
type RequestList struct {
	*tview.Table
	theme *ui.Theme
	rows  []chat.Request
	in    int
}

// NewRequestList creates an empty request table.
func NewRequestList(theme *ui.Theme) *RequestList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)
	rl := &RequestList{Table: table, theme: theme}
	rl.Update(nil, nil)
	return rl
}

// Name implements ui.Component.
func (rl *RequestList) Name() string { return "requests" }

// Hints implements ui.Component.
func (rl *RequestList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "y", Description: "Accept"},
		{Key: "D", Description: "Decline"},
		{Key: "c", Description: "Cancel sent"},
		{Key: "Esc", Description: "Back"},
	}
}

// Update replaces the requests.
func (rl *RequestList) Update(incoming, outgoing []chat.Request) {
	rl.Clear()
	for col, h := range []string{" ", " NAME", " TRIP"} {
		cell := tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(rl.theme.TableHeaderFg).
			SetBackgroundColor(rl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold)
		if col == 1 {
			cell.SetExpansion(1)
		}
		rl.SetCell(0, col, cell)
	}

	rl.rows = append(append(rl.rows[:0], incoming...), outgoing...)
	rl.in = len(incoming)
	for i, r := range rl.rows {
		dir, color := " ←", rl.theme.UnreadColor
		if i >= rl.in {
			dir, color = " →", rl.theme.DimColor
		}
		trip := r.TripID
		if trip == "" {
			trip = "-"
		}
		rl.SetCell(i+1, 0, tview.NewTableCell(dir).SetTextColor(color))
		rl.SetCell(i+1, 1, tview.NewTableCell(" "+tview.Escape(singleLine(r.Name))).SetExpansion(1).SetTextColor(rl.theme.FgColor))
		rl.SetCell(i+1, 2, tview.NewTableCell(" "+tview.Escape(trip)).SetTextColor(rl.theme.DimColor))
	}
	rl.SetTitle(fmt.Sprintf(" Travel Requests (%d incoming, %d sent) ", rl.in, len(rl.rows)-rl.in))
}

// Selected returns the request under the cursor and whether it is incoming.
func (rl *RequestList) Selected() (chat.Request, bool, bool) {
	row, _ := rl.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(rl.rows) {
		return chat.Request{}, false, false
	}
	return rl.rows[idx], idx < rl.in, true
}

// SelectRequest moves the cursor to request id, if listed.
func (rl *RequestList) SelectRequest(id string) {
	for i, r := range rl.rows {
		if r.ID == id {
			rl.Select(i+1, 0)
			return
		}
	}
}
