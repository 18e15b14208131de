// Package keys maps key events to actions, per page and globally.
package keys

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/layover/internal/tui/ui"
)

// Action represents a keybinding action.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Label   string // key as shown in hints, e.g. "Enter"
	Help    string
	Handler func()
	Visible bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

func (a *Action) hint() ui.MenuHint {
	label := a.Label
	if label == "" {
		label = string(a.Rune)
	}
	return ui.MenuHint{Key: label, Description: a.Help}
}

type binding struct {
	name   string
	action *Action
}

// Registry holds keybindings organized by scope, in registration order.
type Registry struct {
	global []binding
	views  map[string][]binding
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]binding)}
}

// AddGlobal registers a global keybinding. Registering a name again replaces
// the earlier action.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global = upsert(r.global, name, action)
}

// AddView registers a keybinding that only applies on view.
func (r *Registry) AddView(view, name string, action *Action) {
	r.views[view] = upsert(r.views[view], name, action)
}

func upsert(bs []binding, name string, action *Action) []binding {
	for i := range bs {
		if bs[i].name == name {
			bs[i].action = action
			return bs
		}
	}
	return append(bs, binding{name: name, action: action})
}

// Hints returns the visible bindings of view followed by the global ones.
func (r *Registry) Hints(view string) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, b := range r.views[view] {
		if b.action.Visible {
			hints = append(hints, b.action.hint())
		}
	}
	for _, b := range r.global {
		if b.action.Visible {
			hints = append(hints, b.action.hint())
		}
	}
	return hints
}

// HandleEvent dispatches a key event to the matching action of view, then
// to the global ones. It returns true if a handler ran.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	for _, bs := range [][]binding{r.views[view], r.global} {
		for _, b := range bs {
			if b.action.Matches(ev) {
				b.action.Handler()
				return true
			}
		}
	}
	return false
}
