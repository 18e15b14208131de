// Package listeners bridges push events addressed to the signed-in user into
// notifications and alerts, whatever screen the user is on.
package listeners

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/matheus3301/layover/internal/alert"
	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/notify"
	"go.uber.org/zap"
)

// Realtime topics and tables the listeners follow.
const (
	MessagesTopic = "messages"
	RequestsTopic = "requests"

	tableMessages = "messages"
	tableMatches  = "matches"
	tableUsers    = "users"

	fallbackName = "someone"
)

// Navigator is the router the listeners consult and drive.
type Navigator interface {
	Navigate(path string)
	CurrentPath() string
}

// Notifier persists notifications. *notify.Aggregator implements it.
type Notifier interface {
	Create(ctx context.Context, d notify.Draft) (*notify.Notification, error)
	Delete(ctx context.Context, id string) error
}

// Deps are the collaborators of Listeners. Alerts and Navigator are optional.
type Deps struct {
	Realtime  backend.Changes
	Store     backend.RecordStore
	Notifier  Notifier
	Alerts    alert.Sink
	Navigator Navigator
	Logger    *zap.Logger
}

// Listeners owns the session-lifetime subscriptions for one user at a time.
type Listeners struct {
	deps   Deps
	logger *zap.Logger

	mu     sync.Mutex
	userID string
	subs   []backend.Subscription
	gen    uint64
}

// New creates detached listeners.
func New(deps Deps) *Listeners {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Listeners{deps: deps, logger: deps.Logger}
}

// Attach subscribes for userID. The same id again is a no-op, a new id drops
// the previous subscriptions first, and an empty id only detaches.
func (l *Listeners) Attach(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if userID == l.userID && len(l.subs) > 0 {
		return nil
	}
	l.detachLocked()
	if userID == "" {
		return nil
	}

	l.gen++
	gen := l.gen
	msgSub, err := l.deps.Realtime.SubscribeChanges(MessagesTopic, backend.Matcher{
		Table:  tableMessages,
		Events: []backend.EventType{backend.Insert},
		Filter: map[string]any{"receiver_id": userID},
	}, func(evt backend.ChangeEvent) { l.onMessage(gen, userID, evt.New) })
	if err != nil {
		return fmt.Errorf("subscribe to messages: %w", err)
	}
	reqSub, err := l.deps.Realtime.SubscribeChanges(RequestsTopic, backend.Matcher{
		Table:  tableMatches,
		Events: []backend.EventType{backend.Insert},
		Filter: map[string]any{"to_user": userID},
	}, func(evt backend.ChangeEvent) { l.onRequest(gen, userID, evt.New) })
	if err != nil {
		_ = msgSub.Unsubscribe()
		return fmt.Errorf("subscribe to requests: %w", err)
	}

	l.userID = userID
	l.subs = []backend.Subscription{msgSub, reqSub}
	l.logger.Info("listeners attached", zap.String("user_id", userID))
	return nil
}

// Detach releases every subscription. Events already in flight are dropped.
func (l *Listeners) Detach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.detachLocked()
}

func (l *Listeners) detachLocked() {
	if len(l.subs) == 0 {
		return
	}
	l.gen++
	for _, sub := range l.subs {
		if err := sub.Unsubscribe(); err != nil {
			l.logger.Warn("listener unsubscribe failed", zap.String("topic", sub.Topic()), zap.Error(err))
		}
	}
	l.logger.Info("listeners detached", zap.String("user_id", l.userID))
	l.subs, l.userID = nil, ""
}

// UserID returns the attached user, or "".
func (l *Listeners) UserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userID
}

func (l *Listeners) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

func (l *Listeners) onMessage(gen uint64, userID string, rec backend.Row) {
	conv, sender := rec.String("connection_id"), rec.String("sender_id")
	if rec.String("id") == "" || conv == "" || sender == "" {
		l.logger.Debug("dropping malformed message event")
		return
	}
	if !l.current(gen) {
		return
	}
	name := l.sender(sender)
	link := notify.ChatLink(conv)
	n := l.create(notify.Draft{
		UserID:  userID,
		Type:    notify.TypeMessage,
		Title:   "New Message",
		Message: "You have a new message from " + name,
		Link:    link,
		Icon:    notify.IconMessage,
	})

	if l.viewing("/chat") {
		return
	}
	text := rec.String("text")
	if text == "" && rec.String("type") == "image" {
		text = "Photo"
	}
	l.raise("New Message", name+": "+text, n, link)
}

func (l *Listeners) onRequest(gen uint64, userID string, rec backend.Row) {
	id, from := rec.String("id"), rec.String("from_user")
	if id == "" || from == "" {
		l.logger.Debug("dropping malformed request event")
		return
	}
	if !l.current(gen) {
		return
	}
	name := l.sender(from)
	link := notify.RequestLink(id)
	n := l.create(notify.Draft{
		UserID:  userID,
		Type:    notify.TypeRequest,
		Title:   "New Travel Request",
		Message: "You have a new travel request from " + name,
		Link:    link,
		Icon:    notify.IconRequest,
	})

	if l.viewing("/requests") {
		return
	}
	l.raise("New Request", name+" sent you a request.", n, link)
}

// sender resolves a display name, falling back to "someone".
func (l *Listeners) sender(userID string) string {
	rows, err := l.deps.Store.Select(context.Background(), tableUsers, backend.Eq("id", userID))
	if err != nil {
		l.logger.Warn("resolve sender failed", zap.String("sender_id", userID), zap.Error(err))
		return fallbackName
	}
	if len(rows) == 0 || rows[0].String("name") == "" {
		return fallbackName
	}
	return rows[0].String("name")
}

func (l *Listeners) create(d notify.Draft) *notify.Notification {
	n, err := l.deps.Notifier.Create(context.Background(), d)
	if err != nil {
		l.logger.Warn("create notification failed", zap.String("link", d.Link), zap.Error(err))
		return nil
	}
	return n
}

func (l *Listeners) viewing(prefix string) bool {
	return l.deps.Navigator != nil && strings.HasPrefix(l.deps.Navigator.CurrentPath(), prefix)
}

// raise shows an alert whose action clears the notification and opens link.
func (l *Listeners) raise(title, description string, n *notify.Notification, link string) {
	if l.deps.Alerts == nil {
		return
	}
	l.deps.Alerts.Raise(alert.Alert{
		Title:       title,
		Description: description,
		Variant:     alert.Default,
		Action: &alert.Action{
			Label: "Open",
			Do: func() {
				if n != nil {
					if err := l.deps.Notifier.Delete(context.Background(), n.ID); err != nil {
						l.logger.Warn("delete notification failed", zap.String("id", n.ID), zap.Error(err))
					}
				}
				if l.deps.Navigator != nil {
					l.deps.Navigator.Navigate(link)
				}
			},
		},
	})
}
