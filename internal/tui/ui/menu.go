package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Menu is the shortcut column on the right of the header.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates an empty shortcut column.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)
	return &Menu{TextView: tv, theme: theme}
}

// Update shows hints one per line. When two hints share a key the earlier
// one wins, so page hints shadow the global ones appended after them.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	seen := make(map[string]bool, len(hints))
	for _, h := range hints {
		if seen[h.Key] {
			continue
		}
		seen[h.Key] = true
		color := m.theme.MenuKeyColor
		if h.Numeric {
			color = m.theme.NumericKeyColor
		}
		_, _ = fmt.Fprintf(m, "[%s::b]<%s>[-:-:-] %s\n", ColorName(color), h.Key, h.Description)
	}
}
