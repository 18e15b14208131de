package redisrt

import (
	"encoding/json"
	"fmt"

	"github.com/matheus3301/layover/internal/backend"
)

// envelope is the JSON frame carried on every redis channel.
type envelope struct {
	Kind    string         `json:"kind"`
	Type    string         `json:"type,omitempty"`
	Table   string         `json:"table,omitempty"`
	New     map[string]any `json:"new,omitempty"`
	Old     map[string]any `json:"old,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Keys    []string       `json:"keys,omitempty"`
}

const (
	kindChange    = "change"
	kindBroadcast = "broadcast"
	kindPresence  = "presence"
)

func encodeChange(evt backend.ChangeEvent) ([]byte, error) {
	return json.Marshal(envelope{
		Kind:  kindChange,
		Type:  string(evt.Type),
		Table: evt.Table,
		New:   evt.New,
		Old:   evt.Old,
	})
}

func encodeBroadcast(payload backend.Row) ([]byte, error) {
	return json.Marshal(envelope{Kind: kindBroadcast, Payload: payload})
}

func encodePresence(pe backend.PresenceEvent) ([]byte, error) {
	return json.Marshal(envelope{Kind: kindPresence, Type: string(pe.Kind), Keys: pe.Keys})
}

func decode(data string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func (e envelope) change() (backend.ChangeEvent, bool) {
	if e.Kind != kindChange || e.Table == "" {
		return backend.ChangeEvent{}, false
	}
	evt := backend.ChangeEvent{Type: backend.EventType(e.Type), Table: e.Table}
	if e.New != nil {
		evt.New = backend.Row(e.New)
	}
	if e.Old != nil {
		evt.Old = backend.Row(e.Old)
	}
	switch evt.Type {
	case backend.Insert, backend.Update, backend.Delete:
		return evt, true
	}
	return backend.ChangeEvent{}, false
}

func (e envelope) presence() (backend.PresenceEvent, bool) {
	if e.Kind != kindPresence {
		return backend.PresenceEvent{}, false
	}
	pe := backend.PresenceEvent{Kind: backend.PresenceKind(e.Type), Keys: e.Keys}
	switch pe.Kind {
	case backend.PresenceSync, backend.PresenceJoin, backend.PresenceLeave:
		return pe, true
	}
	return backend.PresenceEvent{}, false
}
