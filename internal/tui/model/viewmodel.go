// Package model folds client bus events into the state the TUI renders.
package model

import (
	"slices"
	"sync"

	"github.com/matheus3301/layover/internal/alert"
	"github.com/matheus3301/layover/internal/bus"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/notify"
	"github.com/matheus3301/layover/internal/status"
	"github.com/matheus3301/layover/internal/typing"
)

// Namespaces are the bus prefixes the view model consumes.
var Namespaces = []string{
	"session.",
	"route.",
	"conversation.",
	"chat.",
	"typing.",
	"presence.",
	"notification.",
	"alert.",
}

// Source is read when an event only says that something changed.
type Source interface {
	Conversations() []chat.Conversation
	// Screen returns the open conversation, "" when there is none.
	Screen() (conversationID string, msgs []chat.Message, denied bool)
}

// Change tells the renderer which parts of the model moved.
type Change uint16

const (
	ChangeStatus Change = 1 << iota
	ChangeRoute
	ChangeConversations
	ChangeMessages
	ChangeTyping
	ChangePresence
	ChangeNotifications
	ChangeAlert

	ChangeNone Change = 0
)

// Has reports whether c includes o.
func (c Change) Has(o Change) bool { return c&o != 0 }

// ViewModel caches client state from bus events.
type ViewModel struct {
	src Source

	mu             sync.RWMutex
	status         status.State
	path           string
	conversations  []chat.Conversation
	conversationID string
	messages       []chat.Message
	denied         bool
	typing         typing.State
	online         []string
	notifications  []notify.Notification
	alerts         []alert.Alert
}

// NewViewModel creates a view model reading src.
func NewViewModel(src Source) *ViewModel {
	return &ViewModel{src: src, status: status.Booting, path: "/"}
}

// Apply folds one event into the model. Events with unexpected payloads are
// ignored.
func (vm *ViewModel) Apply(evt bus.Event) Change {
	switch evt.Kind {
	case bus.KindSessionStatus:
		sc, ok := evt.Payload.(status.StatusChange)
		if !ok {
			return ChangeNone
		}
		vm.mu.Lock()
		vm.status = sc.To
		vm.mu.Unlock()
		return ChangeStatus

	case bus.KindNavigated:
		path, ok := evt.Payload.(string)
		if !ok {
			return ChangeNone
		}
		vm.mu.Lock()
		vm.path = path
		vm.mu.Unlock()
		return ChangeRoute | vm.refreshScreen()

	case bus.KindConversationsLoaded, bus.KindConversationUpdated:
		return vm.refreshConversations()

	case bus.KindMessagesChanged:
		if _, ok := evt.Payload.(chat.MessagesChanged); !ok {
			return ChangeNone
		}
		return vm.refreshScreen()

	case bus.KindTypingChanged:
		st, ok := evt.Payload.(typing.State)
		if !ok {
			return ChangeNone
		}
		vm.mu.Lock()
		vm.typing = st
		vm.mu.Unlock()
		return ChangeTyping

	case bus.KindPresenceChanged:
		ids, ok := evt.Payload.([]string)
		if !ok {
			return ChangeNone
		}
		vm.mu.Lock()
		vm.online = slices.Clone(ids)
		vm.mu.Unlock()
		return ChangePresence | vm.refreshConversations()

	case bus.KindNotificationsChanged:
		list, _ := evt.Payload.([]notify.Notification)
		vm.mu.Lock()
		vm.notifications = slices.Clone(list)
		vm.mu.Unlock()
		return ChangeNotifications

	case bus.KindAlertRaised:
		a, ok := evt.Payload.(alert.Alert)
		if !ok {
			return ChangeNone
		}
		vm.mu.Lock()
		vm.alerts = append(vm.alerts, a)
		vm.mu.Unlock()
		return ChangeAlert
	}
	return ChangeNone
}

// Refresh re-reads everything the source holds.
func (vm *ViewModel) Refresh() Change {
	return vm.refreshConversations() | vm.refreshScreen()
}

func (vm *ViewModel) refreshConversations() Change {
	if vm.src == nil {
		return ChangeNone
	}
	convs := vm.src.Conversations()
	vm.mu.Lock()
	vm.conversations = convs
	vm.mu.Unlock()
	return ChangeConversations
}

func (vm *ViewModel) refreshScreen() Change {
	if vm.src == nil {
		return ChangeNone
	}
	id, msgs, denied := vm.src.Screen()
	vm.mu.Lock()
	defer vm.mu.Unlock()
	change := ChangeMessages
	if id != vm.conversationID {
		change |= ChangeTyping
	}
	vm.conversationID = id
	vm.messages = msgs
	vm.denied = denied
	return change
}

// Status returns the session status.
func (vm *ViewModel) Status() status.State {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Path returns the current route.
func (vm *ViewModel) Path() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.path
}

// Conversations returns the conversation list, most recent first.
func (vm *ViewModel) Conversations() []chat.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.conversations)
}

// Conversation returns one conversation of the list.
func (vm *ViewModel) Conversation(id string) (chat.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	i := slices.IndexFunc(vm.conversations, func(c chat.Conversation) bool { return c.ID == id })
	if i < 0 {
		return chat.Conversation{}, false
	}
	return vm.conversations[i], true
}

// ConversationID returns the open conversation, or "".
func (vm *ViewModel) ConversationID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversationID
}

// Messages returns the messages of the open conversation.
func (vm *ViewModel) Messages() []chat.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.messages)
}

// AccessDenied reports whether the open conversation was refused.
func (vm *ViewModel) AccessDenied() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.denied
}

// Typer returns who is typing in the open conversation.
func (vm *ViewModel) Typer() (typing.Typer, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if !vm.typing.Typing || vm.typing.ConversationID != vm.conversationID {
		return typing.Typer{}, false
	}
	return vm.typing.Typer, true
}

// Online returns the ids of online users.
func (vm *ViewModel) Online() []string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.online)
}

// Notifications returns the notification feed, newest first.
func (vm *ViewModel) Notifications() []notify.Notification {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.notifications)
}

// Unread counts unread notifications.
func (vm *ViewModel) Unread() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	n := 0
	for _, item := range vm.notifications {
		if !item.Read {
			n++
		}
	}
	return n
}

// TakeAlerts returns the alerts raised since the last call.
func (vm *ViewModel) TakeAlerts() []alert.Alert {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := vm.alerts
	vm.alerts = nil
	return out
}
