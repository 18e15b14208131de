package chat

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
	"go.uber.org/zap"
)

const (
	unknownName    = "Unknown"
	noMessagesText = "No messages yet"
)

// Conversation is a matched pair of users as seen by one of them.
type Conversation struct {
	ID            string
	CounterpartID string
	Name          string
	Avatar        string
	LastMessage   string
	LastMessageAt time.Time
	Online        bool
}

// OnlineChecker reports presence. *presence.Store implements it.
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// Directory is the list of the current user's conversations, most recent
// first.
type Directory struct {
	store    backend.RecordStore
	presence OnlineChecker
	bus      *bus.Bus
	logger   *zap.Logger

	mu    sync.Mutex
	convs []Conversation
}

// NewDirectory creates an empty directory. presence and b may be nil.
func NewDirectory(store backend.RecordStore, presence OnlineChecker, b *bus.Bus, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: store, presence: presence, bus: b, logger: logger}
}

// Load fetches every conversation of userID with its counterpart profile and
// last message.
func (d *Directory) Load(ctx context.Context, userID string) error {
	conns, err := d.store.Select(ctx, TableConnections, backend.Query{}.AnyOf(
		backend.Cond{Column: "user1_id", Value: userID},
		backend.Cond{Column: "user2_id", Value: userID},
	))
	if err != nil {
		return fmt.Errorf("fetch connections: %w", err)
	}

	convs := make([]Conversation, 0, len(conns))
	counterparts := make([]any, 0, len(conns))
	for _, c := range conns {
		other := c.String("user1_id")
		if other == userID {
			other = c.String("user2_id")
		}
		convs = append(convs, Conversation{ID: c.String("id"), CounterpartID: other, Name: unknownName})
		counterparts = append(counterparts, other)
	}

	if len(counterparts) > 0 {
		profiles, err := d.store.Select(ctx, TableUsers, backend.Query{}.WhereIn("id", counterparts...))
		if err != nil {
			d.logger.Warn("fetch counterpart profiles failed", zap.Error(err))
		}
		byID := make(map[string]backend.Row, len(profiles))
		for _, p := range profiles {
			byID[p.String("id")] = p
		}
		for i := range convs {
			if p, ok := byID[convs[i].CounterpartID]; ok {
				if name := p.String("name"); name != "" {
					convs[i].Name = name
				}
				convs[i].Avatar = p.String("photo")
			}
		}
	}

	for i := range convs {
		last, err := d.store.Select(ctx, TableMessages,
			backend.Eq("connection_id", convs[i].ID).OrderBy("timestamp", true).Take(1))
		if err != nil {
			d.logger.Warn("fetch last message failed", zap.String("conversation_id", convs[i].ID), zap.Error(err))
			continue
		}
		convs[i].LastMessage = noMessagesText
		if len(last) == 0 {
			continue
		}
		if m, ok := messageFromRow(last[0]); ok {
			convs[i].LastMessage = m.Preview()
			convs[i].LastMessageAt = m.Timestamp
		}
	}
	sortConversations(convs)

	d.mu.Lock()
	d.convs = convs
	d.mu.Unlock()

	d.logger.Info("conversations loaded", zap.String("user_id", userID), zap.Int("count", len(convs)))
	d.bus.Emit(bus.KindConversationsLoaded, len(convs))
	return nil
}

// Clear forgets every conversation.
func (d *Directory) Clear() {
	d.mu.Lock()
	d.convs = nil
	d.mu.Unlock()
	d.bus.Emit(bus.KindConversationsLoaded, 0)
}

// Touch records a newer last message on a conversation. Older or unknown
// conversations are left alone; it reports whether anything changed.
func (d *Directory) Touch(conversationID, text string, at time.Time) bool {
	d.mu.Lock()
	i := d.indexLocked(conversationID)
	if i < 0 || at.Before(d.convs[i].LastMessageAt) {
		d.mu.Unlock()
		return false
	}
	d.convs[i].LastMessage = text
	d.convs[i].LastMessageAt = at
	conv := d.convs[i]
	sortConversations(d.convs)
	d.mu.Unlock()

	conv.Online = d.online(conv.CounterpartID)
	d.bus.Emit(bus.KindConversationUpdated, conv)
	return true
}

// Add inserts or replaces a conversation, e.g. after a request is accepted.
func (d *Directory) Add(conv Conversation) {
	d.mu.Lock()
	if i := d.indexLocked(conv.ID); i >= 0 {
		d.convs[i] = conv
	} else {
		d.convs = append(d.convs, conv)
	}
	sortConversations(d.convs)
	d.mu.Unlock()
	d.bus.Emit(bus.KindConversationUpdated, conv)
}

// Get returns one conversation.
func (d *Directory) Get(conversationID string) (Conversation, bool) {
	d.mu.Lock()
	i := d.indexLocked(conversationID)
	if i < 0 {
		d.mu.Unlock()
		return Conversation{}, false
	}
	conv := d.convs[i]
	d.mu.Unlock()
	conv.Online = d.online(conv.CounterpartID)
	return conv, true
}

// Conversations returns every conversation, most recent first, with the
// online flag taken from presence.
func (d *Directory) Conversations() []Conversation {
	d.mu.Lock()
	out := slices.Clone(d.convs)
	d.mu.Unlock()
	for i := range out {
		out[i].Online = d.online(out[i].CounterpartID)
	}
	return out
}

func (d *Directory) online(userID string) bool {
	return d.presence != nil && d.presence.IsOnline(userID)
}

func (d *Directory) indexLocked(id string) int {
	return slices.IndexFunc(d.convs, func(c Conversation) bool { return c.ID == id })
}

func sortConversations(convs []Conversation) {
	slices.SortStableFunc(convs, func(a, b Conversation) int {
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})
}
