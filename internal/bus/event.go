package bus

import "time"

// Event kinds observed by UI readers.
const (
	KindSessionStatus        = "session.status_changed"
	KindPresenceChanged      = "presence.changed"
	KindTypingChanged        = "typing.changed"
	KindMessagesChanged      = "chat.messages_changed"
	KindConversationUpdated  = "conversation.updated"
	KindConversationsLoaded  = "conversation.loaded"
	KindNotificationsChanged = "notification.list_changed"
	KindAlertRaised          = "alert.raised"
	KindNavigated            = "route.navigated"
)

// Event represents a client state change published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
