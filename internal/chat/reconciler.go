package chat

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/layover/internal/alert"
	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
	"github.com/matheus3301/layover/internal/notify"
	"go.uber.org/zap"
)

// ConversationNotifications clears the notifications that point at a
// conversation. *notify.Aggregator implements it.
type ConversationNotifications interface {
	DeleteByConversation(ctx context.Context, userID, conversationID string) error
}

// Deps are the collaborators of a Reconciler. Directory, Notifications,
// Alerts and Bus are optional.
type Deps struct {
	Store         backend.RecordStore
	Realtime      backend.Changes
	Directory     *Directory
	Notifications ConversationNotifications
	Alerts        alert.Sink
	Bus           *bus.Bus
	Logger        *zap.Logger
}

// MessagesChanged is published on bus.KindMessagesChanged.
type MessagesChanged struct {
	ConversationID string
	Count          int
}

// Reconciler maintains the message list of one conversation for one user.
// The list holds each message id once, ordered by timestamp.
type Reconciler struct {
	deps           Deps
	conversationID string
	userID         string
	logger         *zap.Logger

	mu       sync.Mutex
	messages []Message
	active   bool
	closed   bool
	focused  bool
	denied   bool
	subs     []backend.Subscription
}

// NewReconciler creates a reconciler for conversationID as seen by userID.
func NewReconciler(deps Deps, conversationID, userID string) *Reconciler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Reconciler{
		deps:           deps,
		conversationID: conversationID,
		userID:         userID,
		logger:         deps.Logger.With(zap.String("conversation_id", conversationID)),
	}
}

// ConversationID returns the conversation this reconciler follows.
func (r *Reconciler) ConversationID() string { return r.conversationID }

// Open subscribes to the conversation, probes access, then fetches the
// existing messages and merges them with anything that arrived meanwhile.
// ErrAccessDenied leaves the subscriptions in place.
func (r *Reconciler) Open(ctx context.Context) error {
	r.mu.Lock()
	if r.active || r.closed {
		r.mu.Unlock()
		return nil
	}
	r.active = true
	r.mu.Unlock()

	msgSub, err := r.deps.Realtime.SubscribeChanges("messages:"+r.conversationID, backend.Matcher{
		Table:  TableMessages,
		Filter: map[string]any{"connection_id": r.conversationID},
	}, r.handleMessage)
	if err != nil {
		return r.fail("subscribe to messages", err)
	}
	r.keep(msgSub)
	reactSub, err := r.deps.Realtime.SubscribeChanges("reactions:"+r.conversationID, backend.Matcher{
		Table: TableReactions,
	}, r.handleReaction)
	if err != nil {
		return r.fail("subscribe to reactions", err)
	}
	r.keep(reactSub)
	notifSub, err := r.deps.Realtime.SubscribeChanges("notifications:"+r.conversationID, backend.Matcher{
		Table:  notify.Table,
		Events: []backend.EventType{backend.Insert},
		Filter: map[string]any{"user_id": r.userID, "link": notify.ChatLink(r.conversationID)},
	}, r.handleNotification)
	if err != nil {
		return r.fail("subscribe to notifications", err)
	}
	r.keep(notifSub)

	if _, err := r.deps.Store.Select(ctx, TableConnections, backend.Eq("id", r.conversationID)); err != nil {
		if backend.IsAccessDenied(err) {
			r.mu.Lock()
			r.denied = true
			r.mu.Unlock()
			r.logger.Warn("conversation access denied", zap.Error(err))
			r.raise(alert.Alert{
				Title:       "Access denied",
				Description: "You can't view this conversation. This user may have blocked you.",
				Variant:     alert.Blocked,
			})
			return ErrAccessDenied
		}
		return r.fail("probe conversation", err)
	}

	rows, err := r.deps.Store.Select(ctx, TableMessages,
		backend.Eq("connection_id", r.conversationID).OrderBy("timestamp", false))
	if err != nil {
		return r.fail("fetch messages", err)
	}
	fetched := make([]Message, 0, len(rows))
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		if m, ok := messageFromRow(row); ok {
			fetched = append(fetched, m)
			ids = append(ids, m.ID)
		}
	}
	var reactions []Reaction
	if len(ids) > 0 {
		rrows, err := r.deps.Store.Select(ctx, TableReactions, backend.Query{}.WhereIn("message_id", ids...))
		if err != nil {
			r.logger.Warn("fetch reactions failed", zap.Error(err))
		}
		for _, row := range rrows {
			if re, ok := reactionFromRow(row); ok {
				reactions = append(reactions, re)
			}
		}
	}

	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		r.logger.Debug("discarding fetch after close")
		return nil
	}
	for _, m := range fetched {
		if r.indexLocked(m.ID) < 0 {
			r.insertLocked(m)
		}
	}
	for _, re := range reactions {
		r.addReactionLocked(re)
	}
	last, hasLast := r.lastLocked()
	focused := r.focused
	count := len(r.messages)
	r.mu.Unlock()

	r.logger.Debug("messages loaded", zap.Int("fetched", len(fetched)), zap.Int("count", count))
	r.publish(count)
	if hasLast && r.deps.Directory != nil {
		r.deps.Directory.Touch(r.conversationID, last.Preview(), last.Timestamp)
	}
	if focused {
		r.reconcileRead(ctx)
	}
	return nil
}

// Close releases the subscriptions. Events and fetch results that arrive
// later are discarded.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.active = false
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Warn("unsubscribe failed", zap.String("topic", sub.Topic()), zap.Error(err))
		}
	}
}

// Messages returns a copy of the current list.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	for i, m := range r.messages {
		out[i] = m.clone()
	}
	return out
}

// Message returns one message by id.
func (r *Reconciler) Message(id string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return Message{}, false
	}
	return r.messages[i].clone(), true
}

// AccessDenied reports whether the backend refused this conversation.
func (r *Reconciler) AccessDenied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.denied
}

// SetFocused records whether the user is looking at the conversation.
// Gaining focus marks incoming messages read.
func (r *Reconciler) SetFocused(ctx context.Context, focused bool) {
	r.mu.Lock()
	was := r.focused
	r.focused = focused
	r.mu.Unlock()
	if focused && !was {
		r.reconcileRead(ctx)
	}
}

func (r *Reconciler) handleMessage(evt backend.ChangeEvent) {
	switch evt.Type {
	case backend.Insert:
		r.applyInsert(evt.New)
	case backend.Update:
		r.applyUpdate(evt.New)
	case backend.Delete:
		r.applyDelete(evt.Old)
	}
}

func (r *Reconciler) applyInsert(row backend.Row) {
	m, ok := messageFromRow(row)
	if !ok {
		r.logger.Debug("dropping malformed message insert")
		return
	}
	r.mu.Lock()
	if !r.active || r.indexLocked(m.ID) >= 0 {
		r.mu.Unlock()
		return
	}
	r.insertLocked(m)
	count := len(r.messages)
	focused := r.focused
	r.mu.Unlock()

	r.publish(count)
	if r.deps.Directory != nil {
		r.deps.Directory.Touch(r.conversationID, m.Preview(), m.Timestamp)
	}
	if focused && m.ReceiverID == r.userID && !m.Read {
		r.reconcileRead(context.Background())
	}
}

func (r *Reconciler) applyUpdate(row backend.Row) {
	id := row.String("id")
	r.mu.Lock()
	i := r.indexLocked(id)
	if !r.active || i < 0 {
		r.mu.Unlock()
		return
	}
	m := &r.messages[i]
	if row.Has("read") {
		m.Read = row.Bool("read")
	}
	if row.Has("edited") {
		m.Edited = row.Bool("edited")
	}
	if _, ok := row["text"]; ok {
		m.Text = row.String("text")
	}
	if _, ok := row["image_url"]; ok {
		m.ImageURL = row.String("image_url")
	}
	count := len(r.messages)
	r.mu.Unlock()
	r.publish(count)
}

func (r *Reconciler) applyDelete(row backend.Row) {
	id := row.String("id")
	r.mu.Lock()
	i := r.indexLocked(id)
	if !r.active || i < 0 {
		r.mu.Unlock()
		return
	}
	r.messages = slices.Delete(r.messages, i, i+1)
	count := len(r.messages)
	r.mu.Unlock()
	r.publish(count)
}

func (r *Reconciler) handleReaction(evt backend.ChangeEvent) {
	re, ok := reactionFromRow(evt.Record())
	if !ok {
		return
	}
	r.mu.Lock()
	if !r.active || r.indexLocked(re.MessageID) < 0 {
		r.mu.Unlock()
		return
	}
	switch evt.Type {
	case backend.Insert:
		r.addReactionLocked(re)
	case backend.Delete:
		m := &r.messages[r.indexLocked(re.MessageID)]
		m.Reactions = slices.DeleteFunc(m.Reactions, func(x Reaction) bool { return x.ID == re.ID })
	}
	count := len(r.messages)
	r.mu.Unlock()
	r.publish(count)
}

// handleNotification clears a notification for this conversation that was
// created while the user is already reading it. The listener that creates
// it and the read reconciliation run independently, so the delete can come
// first.
func (r *Reconciler) handleNotification(evt backend.ChangeEvent) {
	if evt.New.String("id") == "" {
		return
	}
	r.mu.Lock()
	focused := r.active && r.focused && r.deps.Notifications != nil
	r.mu.Unlock()
	if !focused {
		return
	}
	if err := r.deps.Notifications.DeleteByConversation(context.Background(), r.userID, r.conversationID); err != nil {
		r.logger.Warn("clear late notification failed", zap.Error(err))
	}
}

// reconcileRead marks every unread message addressed to the user as read
// and clears the conversation's notifications. It only runs while the
// conversation is focused and has messages.
func (r *Reconciler) reconcileRead(ctx context.Context) {
	r.mu.Lock()
	if !r.active || !r.focused || len(r.messages) == 0 {
		r.mu.Unlock()
		return
	}
	unread := 0
	for i := range r.messages {
		if m := &r.messages[i]; m.ReceiverID == r.userID && !m.Read {
			m.Read = true
			unread++
		}
	}
	count := len(r.messages)
	r.mu.Unlock()

	if unread > 0 {
		r.publish(count)
		q := backend.Eq("connection_id", r.conversationID).And("receiver_id", r.userID).And("read", false)
		if err := r.deps.Store.Update(ctx, TableMessages, q, backend.Row{"read": true}); err != nil {
			r.logger.Warn("mark read failed", zap.Error(err))
		}
	}
	if r.deps.Notifications != nil {
		if err := r.deps.Notifications.DeleteByConversation(ctx, r.userID, r.conversationID); err != nil {
			r.logger.Warn("clear conversation notifications failed", zap.Error(err))
		}
	}
}

func (r *Reconciler) keep(sub backend.Subscription) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	r.subs = append(r.subs, sub)
	r.mu.Unlock()
}

func (r *Reconciler) fail(op string, err error) error {
	r.logger.Error(op+" failed", zap.Error(err))
	r.raise(alert.Alert{
		Title:       "Error",
		Description: "Failed to load messages. Please try again.",
		Variant:     alert.Destructive,
	})
	return fmt.Errorf("%s: %w", op, err)
}

func (r *Reconciler) raise(a alert.Alert) {
	if r.deps.Alerts != nil {
		r.deps.Alerts.Raise(a)
	}
}

func (r *Reconciler) publish(count int) {
	r.deps.Bus.Emit(bus.KindMessagesChanged, MessagesChanged{ConversationID: r.conversationID, Count: count})
}

func (r *Reconciler) indexLocked(id string) int {
	return slices.IndexFunc(r.messages, func(m Message) bool { return m.ID == id })
}

// insertLocked places m after every message with an equal or earlier
// timestamp, which is an append for live traffic.
func (r *Reconciler) insertLocked(m Message) {
	i := len(r.messages)
	for i > 0 && r.messages[i-1].Timestamp.After(m.Timestamp) {
		i--
	}
	r.messages = slices.Insert(r.messages, i, m)
}

func (r *Reconciler) addReactionLocked(re Reaction) {
	i := r.indexLocked(re.MessageID)
	if i < 0 {
		return
	}
	m := &r.messages[i]
	if slices.ContainsFunc(m.Reactions, func(x Reaction) bool { return x.ID == re.ID }) {
		return
	}
	m.Reactions = append(m.Reactions, re)
}

func (r *Reconciler) lastLocked() (Message, bool) {
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}
