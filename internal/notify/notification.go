// Package notify keeps the persisted notification log of a user: one record
// per triggering event, with read state, retention, and a live feed.
package notify

import (
	"time"

	"github.com/matheus3301/layover/internal/backend"
)

// Table is the record store table notifications live in.
const Table = "notifications"

// Type classifies what triggered a notification.
type Type string

const (
	TypeMessage Type = "message"
	TypeRequest Type = "request"
	TypeMatch   Type = "match"
	TypeTrip    Type = "trip"
	TypeSystem  Type = "system"
)

// Valid reports whether t is a known notification type.
func (t Type) Valid() bool {
	switch t {
	case TypeMessage, TypeRequest, TypeMatch, TypeTrip, TypeSystem:
		return true
	}
	return false
}

// Icons the UI knows how to draw.
const (
	IconMessage = "MessageSquare"
	IconRequest = "User"
	IconTrip    = "Calendar"
)

// DefaultIcon is the icon drawn for t when a draft names none.
func DefaultIcon(t Type) string {
	switch t {
	case TypeMessage:
		return IconMessage
	case TypeTrip:
		return IconTrip
	}
	return IconRequest
}

// Notification is one persisted notification.
type Notification struct {
	ID        string
	UserID    string
	Type      Type
	Title     string
	Message   string
	Link      string
	Read      bool
	Icon      string
	CreatedAt time.Time
}

// Draft is a notification before the store assigns its id and creation time.
type Draft struct {
	UserID  string
	Type    Type
	Title   string
	Message string
	Link    string
	Icon    string
}

// ChatLink is the link of message notifications for a conversation.
func ChatLink(conversationID string) string {
	return "/chat/" + conversationID
}

// RequestLink is the link of request notifications for a request.
func RequestLink(requestID string) string {
	return "/requests/" + requestID
}

func (d Draft) row() backend.Row {
	return backend.Row{
		"user_id": d.UserID,
		"type":    string(d.Type),
		"title":   d.Title,
		"message": d.Message,
		"link":    d.Link,
		"icon":    d.Icon,
		"read":    false,
	}
}

func fromRow(r backend.Row) (Notification, bool) {
	if r.String("id") == "" || r.String("user_id") == "" {
		return Notification{}, false
	}
	return Notification{
		ID:        r.String("id"),
		UserID:    r.String("user_id"),
		Type:      Type(r.String("type")),
		Title:     r.String("title"),
		Message:   r.String("message"),
		Link:      r.String("link"),
		Read:      r.Bool("read"),
		Icon:      r.String("icon"),
		CreatedAt: r.Time("created_at"),
	}, true
}

func fromRows(rows []backend.Row) []Notification {
	out := make([]Notification, 0, len(rows))
	for _, r := range rows {
		if n, ok := fromRow(r); ok {
			out = append(out, n)
		}
	}
	return out
}
