// Package realtime is the in-process realtime transport. It carries row
// changes, broadcasts and presence over the local event bus, so a single
// process can run the whole client core without a network backend.
package realtime

import (
	"slices"
	"sync"

	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
	"go.uber.org/zap"
)

const (
	changeNS    = "rt.change/"
	broadcastNS = "rt.broadcast/"
	presenceNS  = "rt.presence/"

	defaultBuffer = 256
)

var (
	_ backend.Realtime        = (*Hub)(nil)
	_ backend.ChangePublisher = (*Hub)(nil)
)

// Hub implements backend.Realtime and backend.ChangePublisher on a bus.
// Each subscription gets its own delivery goroutine, so callbacks for one
// subscription run in order and never concurrently with each other.
type Hub struct {
	bus    *bus.Bus
	logger *zap.Logger

	mu       sync.Mutex
	presence map[string]map[string]int // topic -> key -> tracker count
}

// NewHub creates a hub publishing on b.
func NewHub(b *bus.Bus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		bus:      b,
		logger:   logger,
		presence: make(map[string]map[string]int),
	}
}

// PublishChange fans a row change out to matching change subscriptions.
func (h *Hub) PublishChange(evt backend.ChangeEvent) {
	h.bus.Emit(changeNS+evt.Table+"/"+string(evt.Type), evt)
}

// SubscribeChanges delivers change events accepted by m to fn.
func (h *Hub) SubscribeChanges(topic string, m backend.Matcher, fn func(backend.ChangeEvent)) (backend.Subscription, error) {
	ns := changeNS
	if m.Table != "" {
		ns += m.Table + "/"
	}
	return h.listen(topic, ns, func(evt bus.Event) {
		ce, ok := evt.Payload.(backend.ChangeEvent)
		if !ok || !m.Matches(ce) {
			return
		}
		if ce.New != nil {
			ce.New = ce.New.Clone()
		}
		if ce.Old != nil {
			ce.Old = ce.Old.Clone()
		}
		fn(ce)
	}, nil), nil
}

// Send broadcasts payload to every listener of event on topic.
func (h *Hub) Send(topic, event string, payload backend.Row) error {
	h.bus.Emit(broadcastNS+topic+"/"+event, payload.Clone())
	return nil
}

// OnBroadcast delivers broadcasts of event on topic to fn.
func (h *Hub) OnBroadcast(topic, event string, fn func(backend.Row)) (backend.Subscription, error) {
	kind := broadcastNS + topic + "/" + event
	return h.listen(topic, kind, func(evt bus.Event) {
		if evt.Kind != kind {
			return
		}
		payload, ok := evt.Payload.(backend.Row)
		if !ok {
			return
		}
		fn(payload.Clone())
	}, nil), nil
}

// TrackPresence joins key to topic and reports presence changes to fn. The
// first event fn sees is a sync that includes key itself.
func (h *Hub) TrackPresence(topic, key string, _ backend.Row, fn func(backend.PresenceEvent)) (backend.Subscription, error) {
	ns := presenceNS + topic + "/"
	sub := h.listen(topic, ns, func(evt bus.Event) {
		pe, ok := evt.Payload.(backend.PresenceEvent)
		if !ok {
			return
		}
		pe.Keys = slices.Clone(pe.Keys)
		fn(pe)
	}, func() { h.untrack(topic, key) })

	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.presence[topic]
	if members == nil {
		members = make(map[string]int)
		h.presence[topic] = members
	}
	members[key]++
	if members[key] == 1 {
		h.bus.Emit(ns+"join", backend.PresenceEvent{Kind: backend.PresenceJoin, Keys: []string{key}})
	}
	h.bus.Emit(ns+"sync", backend.PresenceEvent{Kind: backend.PresenceSync, Keys: keysOf(members)})
	return sub, nil
}

func (h *Hub) untrack(topic, key string) {
	ns := presenceNS + topic + "/"
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.presence[topic]
	if members == nil || members[key] == 0 {
		return
	}
	members[key]--
	if members[key] > 0 {
		return
	}
	delete(members, key)
	h.bus.Emit(ns+"leave", backend.PresenceEvent{Kind: backend.PresenceLeave, Keys: []string{key}})
	h.bus.Emit(ns+"sync", backend.PresenceEvent{Kind: backend.PresenceSync, Keys: keysOf(members)})
	if len(members) == 0 {
		delete(h.presence, topic)
	}
}

// Online returns the keys currently tracked on topic.
func (h *Hub) Online(topic string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return keysOf(h.presence[topic])
}

func (h *Hub) listen(topic, ns string, deliver func(bus.Event), onStop func()) *subscription {
	ch, unsub := h.bus.Subscribe(ns, defaultBuffer)
	go func() {
		for evt := range ch {
			deliver(evt)
		}
	}()
	h.logger.Debug("realtime subscription opened", zap.String("topic", topic), zap.String("namespace", ns))
	return &subscription{topic: topic, stop: func() {
		unsub()
		if onStop != nil {
			onStop()
		}
		h.logger.Debug("realtime subscription closed", zap.String("topic", topic))
	}}
}

type subscription struct {
	topic string
	stop  func()
	once  sync.Once
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Unsubscribe() error {
	s.once.Do(s.stop)
	return nil
}

func keysOf(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
