package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // shown in the numeric key color
}

// Component is a page of the TUI.
type Component interface {
	tview.Primitive
	// Name is the page name and its breadcrumb label.
	Name() string
	Hints() []MenuHint
}
