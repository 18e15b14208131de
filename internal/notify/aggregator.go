package notify

import (
	"context"
	"fmt"

	"github.com/matheus3301/layover/internal/backend"
	"go.uber.org/zap"
)

// Defaults for Options.
const (
	DefaultMaxPerUser = 200
	DefaultPageSize   = 50
)

// Options tune retention and paging.
type Options struct {
	// MaxPerUser is how many notifications a user keeps. Older ones are
	// pruned after each Create. Zero means DefaultMaxPerUser, negative
	// disables pruning.
	MaxPerUser int
	// PageSize bounds List. Zero means DefaultPageSize.
	PageSize int
}

// Aggregator creates, reads and clears notifications in the record store.
// Every read or delete is idempotent: targeting a missing or already read
// notification is a no-op.
type Aggregator struct {
	store  backend.RecordStore
	opts   Options
	logger *zap.Logger
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store backend.RecordStore, opts Options, logger *zap.Logger) *Aggregator {
	if opts.MaxPerUser == 0 {
		opts.MaxPerUser = DefaultMaxPerUser
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, opts: opts, logger: logger}
}

// Create persists d as an unread notification.
func (a *Aggregator) Create(ctx context.Context, d Draft) (*Notification, error) {
	if d.UserID == "" {
		return nil, fmt.Errorf("create notification: missing user id")
	}
	if !d.Type.Valid() {
		return nil, fmt.Errorf("create notification: unknown type %q", d.Type)
	}
	if d.Icon == "" {
		d.Icon = DefaultIcon(d.Type)
	}
	row, err := a.store.Insert(ctx, Table, d.row())
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	n, ok := fromRow(row)
	if !ok {
		return nil, fmt.Errorf("create notification: store returned an incomplete row")
	}
	a.logger.Debug("notification created",
		zap.String("user_id", n.UserID), zap.String("type", string(n.Type)), zap.String("link", n.Link))

	if err := a.prune(ctx, d.UserID); err != nil {
		a.logger.Warn("notification retention failed", zap.String("user_id", d.UserID), zap.Error(err))
	}
	return &n, nil
}

func (a *Aggregator) prune(ctx context.Context, userID string) error {
	if a.opts.MaxPerUser < 0 {
		return nil
	}
	old, err := a.store.Select(ctx, Table,
		backend.Eq("user_id", userID).OrderBy("created_at", true).Skip(a.opts.MaxPerUser))
	if err != nil {
		return err
	}
	if len(old) == 0 {
		return nil
	}
	ids := make([]any, 0, len(old))
	for _, r := range old {
		ids = append(ids, r["id"])
	}
	if err := a.store.Delete(ctx, Table, backend.Query{}.WhereIn("id", ids...)); err != nil {
		return err
	}
	a.logger.Debug("notifications pruned", zap.String("user_id", userID), zap.Int("count", len(ids)))
	return nil
}

// MarkRead marks one notification read.
func (a *Aggregator) MarkRead(ctx context.Context, id string) error {
	return a.update(ctx, "mark notification read", backend.Eq("id", id).And("read", false))
}

// MarkAllRead marks every unread notification of userID read.
func (a *Aggregator) MarkAllRead(ctx context.Context, userID string) error {
	return a.update(ctx, "mark all notifications read", backend.Eq("user_id", userID).And("read", false))
}

// MarkConversationRead marks the message notifications of a conversation
// read without removing them.
func (a *Aggregator) MarkConversationRead(ctx context.Context, userID, conversationID string) error {
	return a.update(ctx, "mark conversation notifications read", conversationQuery(userID, conversationID).And("read", false))
}

func (a *Aggregator) update(ctx context.Context, op string, q backend.Query) error {
	if err := a.store.Update(ctx, Table, q, backend.Row{"read": true}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete removes one notification.
func (a *Aggregator) Delete(ctx context.Context, id string) error {
	return a.delete(ctx, "delete notification", backend.Eq("id", id))
}

// DeleteByConversation removes the message notifications that link to a
// conversation.
func (a *Aggregator) DeleteByConversation(ctx context.Context, userID, conversationID string) error {
	return a.delete(ctx, "delete conversation notifications", conversationQuery(userID, conversationID))
}

// DeleteByType removes every notification of one type for userID.
func (a *Aggregator) DeleteByType(ctx context.Context, userID string, t Type) error {
	return a.delete(ctx, "delete notifications by type", backend.Eq("user_id", userID).And("type", string(t)))
}

func (a *Aggregator) delete(ctx context.Context, op string, q backend.Query) error {
	if err := a.store.Delete(ctx, Table, q); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// List returns the newest page of userID's notifications, newest first.
func (a *Aggregator) List(ctx context.Context, userID string) ([]Notification, error) {
	return a.ListPage(ctx, userID, a.opts.PageSize, 0)
}

// ListPage returns up to limit notifications starting at offset, newest
// first.
func (a *Aggregator) ListPage(ctx context.Context, userID string, limit, offset int) ([]Notification, error) {
	q := backend.Eq("user_id", userID).OrderBy("created_at", true).OrderBy("id", true).Take(limit).Skip(offset)
	rows, err := a.store.Select(ctx, Table, q)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return fromRows(rows), nil
}

// UnreadCount counts userID's unread notifications.
func (a *Aggregator) UnreadCount(ctx context.Context, userID string) (int, error) {
	rows, err := a.store.Select(ctx, Table, backend.Eq("user_id", userID).And("read", false))
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return len(rows), nil
}

func conversationQuery(userID, conversationID string) backend.Query {
	return backend.Eq("user_id", userID).And("type", string(TypeMessage)).And("link", ChatLink(conversationID))
}
