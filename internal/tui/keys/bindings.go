// Package keys maps key events to named actions, globally and per page.
package keys

import (
	"slices"

	"github.com/gdamore/tcell/v2"
)

// Action represents a keybinding action.
type Action struct {
	Name        string
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings organized by scope, in registration order.
type Registry struct {
	global []*Action
	views  map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{
		views: make(map[string][]*Action),
	}
}

// AddGlobal registers a global keybinding, replacing one with the same name.
func (r *Registry) AddGlobal(name string, action *Action) {
	action.Name = name
	r.global = upsert(r.global, action)
}

// AddView registers a view-specific keybinding, replacing one with the same
// name.
func (r *Registry) AddView(view, name string, action *Action) {
	action.Name = name
	r.views[view] = upsert(r.views[view], action)
}

// Hints returns visible keybinding descriptions for a given view, view
// bindings first.
func (r *Registry) Hints(view string) []string {
	var hints []string
	for _, a := range r.views[view] {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	for _, a := range r.global {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	return hints
}

// HandleEvent dispatches a key event to matching action in the given view.
// View bindings shadow global ones. Returns true if a handler matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	if a := find(r.views[view], ev); a != nil {
		a.Handler()
		return true
	}
	if a := find(r.global, ev); a != nil {
		a.Handler()
		return true
	}
	return false
}

func find(actions []*Action, ev *tcell.EventKey) *Action {
	for _, a := range actions {
		if a.Matches(ev) {
			return a
		}
	}
	return nil
}

func upsert(actions []*Action, action *Action) []*Action {
	if i := slices.IndexFunc(actions, func(a *Action) bool { return a.Name == action.Name }); i >= 0 {
		actions[i] = action
		return actions
	}
	return append(actions, action)
}
