package notify

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
	"go.uber.org/zap"
)

// FeedTopic is the realtime topic the feed subscribes on.
const FeedTopic = "notifications"

// Feed mirrors the current user's notification list. Any change to one of
// their notifications triggers a refetch, and the new list is published on
// bus.KindNotificationsChanged.
type Feed struct {
	rt     backend.Changes
	agg    *Aggregator
	bus    *bus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	userID string
	sub    backend.Subscription
	gen    uint64
	items  []Notification
}

// NewFeed creates a detached feed.
func NewFeed(rt backend.Changes, agg *Aggregator, b *bus.Bus, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{rt: rt, agg: agg, bus: b, logger: logger}
}

// Attach follows userID's notifications and loads the first page. An empty
// id detaches.
func (f *Feed) Attach(ctx context.Context, userID string) error {
	f.mu.Lock()
	if userID == f.userID && f.sub != nil {
		f.mu.Unlock()
		return nil
	}
	f.detachLocked()
	if userID == "" {
		f.mu.Unlock()
		f.publish(nil)
		return nil
	}
	f.gen++
	gen := f.gen
	sub, err := f.rt.SubscribeChanges(FeedTopic, backend.Matcher{
		Table:  Table,
		Filter: map[string]any{"user_id": userID},
	}, func(backend.ChangeEvent) {
		if err := f.refresh(context.Background(), gen); err != nil {
			f.logger.Warn("notification refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("subscribe to notifications: %w", err)
	}
	f.userID, f.sub = userID, sub
	f.mu.Unlock()

	return f.refresh(ctx, gen)
}

// Detach stops following and clears the cached list.
func (f *Feed) Detach() {
	f.mu.Lock()
	had := f.sub != nil
	f.detachLocked()
	f.mu.Unlock()
	if had {
		f.publish(nil)
	}
}

func (f *Feed) detachLocked() {
	if f.sub == nil {
		return
	}
	f.gen++
	if err := f.sub.Unsubscribe(); err != nil {
		f.logger.Warn("notification unsubscribe failed", zap.Error(err))
	}
	f.sub, f.userID, f.items = nil, "", nil
}

// Refresh refetches the list now.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	gen := f.gen
	attached := f.sub != nil
	f.mu.Unlock()
	if !attached {
		return nil
	}
	return f.refresh(ctx, gen)
}

func (f *Feed) refresh(ctx context.Context, gen uint64) error {
	f.mu.Lock()
	userID := f.userID
	f.mu.Unlock()

	items, err := f.agg.List(ctx, userID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		return nil
	}
	f.items = items
	f.mu.Unlock()
	f.publish(items)
	return nil
}

func (f *Feed) publish(items []Notification) {
	f.bus.Emit(bus.KindNotificationsChanged, slices.Clone(items))
}

// Notifications returns the cached list, newest first.
func (f *Feed) Notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

// Unread counts unread notifications in the cached list.
func (f *Feed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, it := range f.items {
		if !it.Read {
			n++
		}
	}
	return n
}
