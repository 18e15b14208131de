package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Crumbs is a breadcrumb bar showing the current route.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the trail. The last crumb is the active one.
func (c *Crumbs) Update(trail []string) {
	c.Clear()
	if len(trail) == 0 {
		return
	}

	var parts []string
	for i, name := range trail {
		name = tview.Escape(name)
		if i == len(trail)-1 {
			parts = append(parts, fmt.Sprintf("[%s:%s:b] %s [-:-:-]",
				ColorName(c.theme.CrumbActiveFg), ColorName(c.theme.CrumbActiveBg), name))
		} else {
			parts = append(parts, fmt.Sprintf("[%s:%s:] %s [-:-:-]",
				ColorName(c.theme.CrumbInactiveFg), ColorName(c.theme.CrumbInactiveBg), name))
		}
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " > "))
}

// Trail turns a route path into breadcrumb labels. label names path
// segments, for example a conversation id; it may be nil.
func Trail(path string, label func(segment string) string) []string {
	trail := []string{"home"}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		if label != nil {
			if l := label(seg); l != "" {
				seg = l
			}
		}
		trail = append(trail, seg)
	}
	return trail
}
