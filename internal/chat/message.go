// Package chat keeps the client view of conversations and their messages
// consistent with the record store while push events arrive out of order,
// duplicated, or racing the initial fetch.
package chat

import (
	"errors"
	"slices"
	"time"

	"github.com/forPelevin/gomoji"
	"github.com/matheus3301/layover/internal/backend"
)

// Record store tables and storage bucket used by chat.
const (
	TableMessages    = "messages"
	TableReactions   = "message_reactions"
	TableConnections = "connections"
	TableUsers       = "users"
	TableBlocks      = "blocks"
	TableReports     = "reports"

	ImageBucket = "chat-images"
)

var (
	// ErrAccessDenied is returned when the backend refuses access to a
	// conversation, typically because one side blocked the other.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidReaction is returned for reactions that are not exactly one
	// emoji.
	ErrInvalidReaction = errors.New("reaction must be a single emoji")
	// ErrEmptyMessage is returned when sending blank text.
	ErrEmptyMessage = errors.New("message is empty")
)

// Kind is the content type of a message.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindList  Kind = "list"
)

// Reaction is one user's emoji on a message.
type Reaction struct {
	ID        string
	MessageID string
	UserID    string
	Emoji     string
}

// Message is a chat message as the client shows it.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Text           string
	Kind           Kind
	ImageURL       string
	ListID         string
	Edited         bool
	Read           bool
	Timestamp      time.Time
	Reactions      []Reaction
}

func (m Message) clone() Message {
	m.Reactions = slices.Clone(m.Reactions)
	return m
}

// messageFromRow builds a Message from a messages row. Rows without an id,
// conversation or sender are rejected.
func messageFromRow(r backend.Row) (Message, bool) {
	m := Message{
		ID:             r.String("id"),
		ConversationID: r.String("connection_id"),
		SenderID:       r.String("sender_id"),
		ReceiverID:     r.String("receiver_id"),
		Text:           r.String("text"),
		Kind:           Kind(r.String("type")),
		ImageURL:       r.String("image_url"),
		ListID:         r.String("list_id"),
		Edited:         r.Bool("edited"),
		Read:           r.Bool("read"),
		Timestamp:      r.Time("timestamp"),
	}
	if m.ID == "" || m.ConversationID == "" || m.SenderID == "" {
		return Message{}, false
	}
	if m.Kind == "" {
		m.Kind = KindText
	}
	return m, true
}

func reactionFromRow(r backend.Row) (Reaction, bool) {
	re := Reaction{
		ID:        r.String("id"),
		MessageID: r.String("message_id"),
		UserID:    r.String("user_id"),
		Emoji:     r.String("emoji"),
	}
	return re, re.ID != "" && re.MessageID != ""
}

// ValidateReaction checks that reaction is exactly one emoji and nothing
// else.
func ValidateReaction(reaction string) error {
	found := gomoji.CollectAll(reaction)
	if len(found) != 1 || found[0].Character != reaction {
		return ErrInvalidReaction
	}
	return nil
}

// Preview is the text shown for a message in conversation lists.
func (m Message) Preview() string {
	switch m.Kind {
	case KindImage:
		if m.Text == "" {
			return "Photo"
		}
	case KindList:
		if m.Text == "" {
			return "Shared a list"
		}
	}
	return m.Text
}
