package presence

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/matheus3301/layover/internal/backend"
	"go.uber.org/zap"
)

// Topic is the channel every signed-in client tracks itself on.
const Topic = "presence:global"

// Tracker announces the current user on the global presence channel and
// mirrors the channel into a Store.
type Tracker struct {
	rt     backend.Presence
	store  *Store
	logger *zap.Logger

	mu     sync.Mutex
	userID string
	sub    backend.Subscription
	gen    atomic.Uint64 // events from older attachments are ignored

	// applyMu orders event application against the clear on detach, so an
	// event already past the generation check lands before the clear.
	applyMu sync.Mutex
}

// NewTracker creates a detached tracker.
func NewTracker(rt backend.Presence, store *Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{rt: rt, store: store, logger: logger}
}

// Attach tracks userID, replacing any previous identity.
func (t *Tracker) Attach(userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if userID == t.userID && t.sub != nil {
		return nil
	}
	t.detachLocked()
	if userID == "" {
		return nil
	}
	gen := t.gen.Add(1)
	sub, err := t.rt.TrackPresence(Topic, userID, backend.Row{"user_id": userID}, func(pe backend.PresenceEvent) {
		t.apply(gen, pe)
	})
	if err != nil {
		return fmt.Errorf("track presence: %w", err)
	}
	t.userID, t.sub = userID, sub
	t.logger.Info("presence attached", zap.String("user_id", userID))
	return nil
}

// Detach stops tracking and clears the store.
func (t *Tracker) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detachLocked()
}

func (t *Tracker) detachLocked() {
	if t.sub == nil {
		return
	}
	t.gen.Add(1)
	if err := t.sub.Unsubscribe(); err != nil {
		t.logger.Warn("presence unsubscribe failed", zap.Error(err))
	}
	t.logger.Info("presence detached", zap.String("user_id", t.userID))
	t.sub, t.userID = nil, ""

	t.applyMu.Lock()
	t.store.SetAll(nil)
	t.applyMu.Unlock()
}

func (t *Tracker) apply(gen uint64, pe backend.PresenceEvent) {
	t.applyMu.Lock()
	defer t.applyMu.Unlock()
	if t.gen.Load() != gen {
		return
	}
	switch pe.Kind {
	case backend.PresenceSync:
		t.store.SetAll(pe.Keys)
	case backend.PresenceJoin:
		for _, id := range pe.Keys {
			t.store.Add(id)
		}
	case backend.PresenceLeave:
		for _, id := range pe.Keys {
			t.store.Remove(id)
		}
	}
}
