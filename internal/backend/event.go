package backend

import "slices"

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// ChangeEvent is a push notification of a row change. Old is only set for
// deletes.
type ChangeEvent struct {
	Type  EventType
	Table string
	New   Row
	Old   Row
}

// Record returns the row the event is about.
func (e ChangeEvent) Record() Row {
	if e.Type == Delete {
		return e.Old
	}
	return e.New
}

// Matcher selects the change events a subscription receives.
type Matcher struct {
	Table  string
	Events []EventType // empty means every type
	Filter map[string]any
}

// Matches reports whether evt should be delivered.
func (m Matcher) Matches(evt ChangeEvent) bool {
	if m.Table != "" && m.Table != evt.Table {
		return false
	}
	if len(m.Events) > 0 && !slices.Contains(m.Events, evt.Type) {
		return false
	}
	rec := evt.Record()
	for col, v := range m.Filter {
		if !Equal(rec[col], v) {
			return false
		}
	}
	return true
}

// PresenceKind is the kind of presence event.
type PresenceKind string

const (
	PresenceSync  PresenceKind = "sync"
	PresenceJoin  PresenceKind = "join"
	PresenceLeave PresenceKind = "leave"
)

// PresenceEvent carries a full key set for sync, or the delta for join and
// leave.
type PresenceEvent struct {
	Kind PresenceKind
	Keys []string
}
