// Package backend defines the contracts the realtime core consumes from its
// hosted collaborators: auth session, record store, realtime channels and
// object storage.
package backend

import "context"

// User is the authenticated principal.
type User struct {
	ID    string
	Email string
	Name  string
}

// Auth exposes the current session and notifies on identity changes.
type Auth interface {
	// CurrentUser returns nil when nobody is signed in.
	CurrentUser(ctx context.Context) (*User, error)
	// OnAuthStateChange registers fn for every sign-in/sign-out and returns
	// a function that removes it.
	OnAuthStateChange(fn func(*User)) (cancel func())
}

// RecordStore is the row-level secured relational store.
type RecordStore interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rec Row) (Row, error)
	Update(ctx context.Context, table string, q Query, patch Row) error
	Delete(ctx context.Context, table string, q Query) error
}

// Subscription is a live handle on a realtime channel.
type Subscription interface {
	Topic() string
	Unsubscribe() error
}

// Changes delivers row change events.
type Changes interface {
	SubscribeChanges(topic string, m Matcher, fn func(ChangeEvent)) (Subscription, error)
}

// Presence tracks connected clients on a topic.
type Presence interface {
	// TrackPresence announces key on topic and delivers sync/join/leave
	// events until the subscription is released.
	TrackPresence(topic, key string, meta Row, fn func(PresenceEvent)) (Subscription, error)
}

// Broadcast is a transient, non-persisted channel between connected clients.
type Broadcast interface {
	Send(topic, event string, payload Row) error
	OnBroadcast(topic, event string, fn func(Row)) (Subscription, error)
}

// Realtime bundles every channel kind a transport offers.
type Realtime interface {
	Changes
	Presence
	Broadcast
}

// ChangePublisher is implemented by transports that record stores feed
// their writes into.
type ChangePublisher interface {
	PublishChange(evt ChangeEvent)
}

// ObjectStorage stores uploaded files.
type ObjectStorage interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
	PublicURL(bucket, path string) string
	Remove(ctx context.Context, bucket, path string) error
}
