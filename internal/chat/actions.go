package chat

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/layover/internal/alert"
	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/objstore"
	"go.uber.org/zap"
)

const (
	blockedDescription = "You can't send messages to this user. They may have blocked you."
	defaultReason      = "Inappropriate behavior"
)

// Actions are the writes a user performs from a chat screen. Failures are
// raised as alerts and also returned.
type Actions struct {
	store     backend.RecordStore
	storage   backend.ObjectStorage
	directory *Directory
	alerts    alert.Sink
	logger    *zap.Logger
	userID    string
}

// ActionsDeps are the collaborators of Actions. Storage, Directory and
// Alerts are optional.
type ActionsDeps struct {
	Store     backend.RecordStore
	Storage   backend.ObjectStorage
	Directory *Directory
	Alerts    alert.Sink
	Logger    *zap.Logger
}

// NewActions creates actions performed as userID.
func NewActions(deps ActionsDeps, userID string) *Actions {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Actions{
		store:     deps.Store,
		storage:   deps.Storage,
		directory: deps.Directory,
		alerts:    deps.Alerts,
		logger:    deps.Logger.With(zap.String("user_id", userID)),
		userID:    userID,
	}
}

// Send posts a text message.
func (a *Actions) Send(ctx context.Context, conversationID, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	return a.insert(ctx, conversationID, backend.Row{"text": text, "type": string(KindText)})
}

// SendImage uploads data to the image bucket and posts it as a message.
func (a *Actions) SendImage(ctx context.Context, conversationID string, data []byte, contentType string) (Message, error) {
	if a.storage == nil {
		return Message{}, a.failed("upload image", errors.New("no object storage configured"), "Failed to upload image. Please try again.")
	}
	path := a.userID + "/" + uuid.NewString() + extensionFor(contentType)
	url, err := a.storage.Upload(ctx, ImageBucket, path, data, contentType)
	if err != nil {
		return Message{}, a.failed("upload image", err, "Failed to upload image. Please try again.")
	}
	return a.insert(ctx, conversationID, backend.Row{"text": "", "type": string(KindImage), "image_url": url})
}

// ShareList posts a reference to a packing list.
func (a *Actions) ShareList(ctx context.Context, conversationID, listID, title string) (Message, error) {
	return a.insert(ctx, conversationID, backend.Row{"text": title, "type": string(KindList), "list_id": listID})
}

func (a *Actions) insert(ctx context.Context, conversationID string, rec backend.Row) (Message, error) {
	receiver, err := a.counterpart(ctx, conversationID)
	if err != nil {
		return Message{}, a.failed("send message", err, "Failed to send message. Please try again.")
	}
	rec["connection_id"] = conversationID
	rec["sender_id"] = a.userID
	rec["receiver_id"] = receiver
	row, err := a.store.Insert(backend.WithUser(ctx, a.userID), TableMessages, rec)
	if err != nil {
		return Message{}, a.failed("send message", err, "Failed to send message. Please try again.")
	}
	m, ok := messageFromRow(row)
	if !ok {
		return Message{}, fmt.Errorf("send message: store returned an incomplete row")
	}
	return m, nil
}

func (a *Actions) counterpart(ctx context.Context, conversationID string) (string, error) {
	if a.directory != nil {
		if conv, ok := a.directory.Get(conversationID); ok && conv.CounterpartID != "" {
			return conv.CounterpartID, nil
		}
	}
	rows, err := a.store.Select(backend.WithUser(ctx, a.userID), TableConnections, backend.Eq("id", conversationID))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", backend.Errorf(backend.CodeNotFound, "conversation %s not found", conversationID)
	}
	if other := rows[0].String("user1_id"); other != a.userID {
		return other, nil
	}
	return rows[0].String("user2_id"), nil
}

// Edit replaces the text of one of the user's own messages.
func (a *Actions) Edit(ctx context.Context, messageID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	q := backend.Eq("id", messageID).And("sender_id", a.userID)
	if err := a.store.Update(ctx, TableMessages, q, backend.Row{"text": text, "edited": true}); err != nil {
		return a.failed("edit message", err, "Failed to edit message. Please try again.")
	}
	return nil
}

// Delete removes one of the user's own messages, and its image if any. A
// failed image removal is reported but does not keep the message.
func (a *Actions) Delete(ctx context.Context, m Message) error {
	if m.Kind == KindImage && m.ImageURL != "" && a.storage != nil {
		if path, ok := objstore.PathFromURL(m.ImageURL, ImageBucket); ok {
			if err := a.storage.Remove(ctx, ImageBucket, path); err != nil {
				_ = a.failed("remove image", err, "Failed to delete image from storage bucket. Please try again.")
			}
		}
	}
	q := backend.Eq("id", m.ID).And("sender_id", a.userID)
	if err := a.store.Delete(ctx, TableMessages, q); err != nil {
		return a.failed("delete message", err, "Failed to delete message. Please try again.")
	}
	return nil
}

// React toggles the user's emoji reaction on a message.
func (a *Actions) React(ctx context.Context, messageID, emoji string) error {
	if err := ValidateReaction(emoji); err != nil {
		return err
	}
	q := backend.Eq("message_id", messageID).And("user_id", a.userID).And("emoji", emoji)
	existing, err := a.store.Select(ctx, TableReactions, q)
	if err != nil {
		return a.failed("react", err, "Failed to add reaction. Please try again.")
	}
	if len(existing) > 0 {
		err = a.store.Delete(ctx, TableReactions, backend.Eq("id", existing[0]["id"]))
	} else {
		_, err = a.store.Insert(ctx, TableReactions, backend.Row{"message_id": messageID, "user_id": a.userID, "emoji": emoji})
	}
	if err != nil {
		return a.failed("react", err, "Failed to add reaction. Please try again.")
	}
	return nil
}

// Block stops all messages between the user and userID.
func (a *Actions) Block(ctx context.Context, userID string) error {
	_, err := a.store.Insert(ctx, TableBlocks, backend.Row{"blocker_id": a.userID, "blocked_id": userID})
	if err != nil {
		return a.failed("block user", err, "Failed to block user. Please try again.")
	}
	a.raise(alert.Alert{Title: "User blocked", Description: "You will no longer receive messages from this user."})
	return nil
}

// Report files a report against userID. An empty reason gets a default.
func (a *Actions) Report(ctx context.Context, userID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = defaultReason
	}
	_, err := a.store.Insert(ctx, TableReports, backend.Row{"reporter_id": a.userID, "reported_id": userID, "reason": reason})
	if err != nil {
		return a.failed("report user", err, "Failed to report user. Please try again.")
	}
	a.raise(alert.Alert{Title: "User reported", Description: "Thank you. We will review this report."})
	return nil
}

// failed logs err, raises the matching alert and returns the error callers
// see. Access denials become ErrAccessDenied.
func (a *Actions) failed(op string, err error, description string) error {
	a.logger.Error(op+" failed", zap.Error(err))
	if backend.IsAccessDenied(err) {
		a.raise(alert.Alert{Title: "Message not sent", Description: blockedDescription, Variant: alert.Blocked})
		return fmt.Errorf("%s: %w", op, ErrAccessDenied)
	}
	a.raise(alert.Alert{Title: "Error", Description: description, Variant: alert.Destructive})
	return fmt.Errorf("%s: %w", op, err)
}

func (a *Actions) raise(al alert.Alert) {
	if a.alerts != nil {
		a.alerts.Raise(al)
	}
}

func extensionFor(contentType string) string {
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
