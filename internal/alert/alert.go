// Package alert raises ephemeral, dismissible user-facing messages.
package alert

import (
	"sync"

	"github.com/matheus3301/layover/internal/bus"
	"go.uber.org/zap"
)

// Variant is the visual weight of an alert.
type Variant string

const (
	Default     Variant = "default"
	Destructive Variant = "destructive"
	Blocked     Variant = "blocked"
)

// Action is the optional button on an alert.
type Action struct {
	Label string
	Do    func()
}

// Alert is one user-facing message.
type Alert struct {
	Title       string
	Description string
	Variant     Variant
	Action      *Action
}

// Sink shows alerts to the user.
type Sink interface {
	Raise(a Alert)
}

// BusSink logs alerts and publishes them on bus.KindAlertRaised for the UI.
type BusSink struct {
	bus    *bus.Bus
	logger *zap.Logger
}

// NewBusSink creates a sink. b may be nil, in which case alerts are only
// logged.
func NewBusSink(b *bus.Bus, logger *zap.Logger) *BusSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BusSink{bus: b, logger: logger}
}

// Raise implements Sink.
func (s *BusSink) Raise(a Alert) {
	if a.Variant == "" {
		a.Variant = Default
	}
	s.logger.Info("alert",
		zap.String("title", a.Title),
		zap.String("description", a.Description),
		zap.String("variant", string(a.Variant)),
		zap.Bool("has_action", a.Action != nil))
	s.bus.Emit(bus.KindAlertRaised, a)
}

// Recorder keeps every alert raised. Tests and headless runs use it.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

// Raise implements Sink.
func (r *Recorder) Raise(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

// Alerts returns a copy of the alerts raised so far.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}
