// Package typing carries "is typing" signals between the two members of a
// conversation over a broadcast channel. Nothing is persisted.
package typing

import (
	"sync"
	"time"

	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Window is how long an indicator stays up after the last broadcast.
	Window = 3000 * time.Millisecond
	// Event is the broadcast event name.
	Event = "typing"

	defaultAnnounceEvery = time.Second
	defaultName          = "User"
)

// TopicFor returns the broadcast topic of a conversation.
func TopicFor(conversationID string) string {
	return "typing:" + conversationID
}

// Timer is the part of *time.Timer the channel uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options tune a Channel. Zero values pick the defaults.
type Options struct {
	Window        time.Duration
	AnnounceEvery time.Duration
	AfterFunc     AfterFunc
	Bus           *bus.Bus
	Logger        *zap.Logger
}

// Typer identifies who is typing.
type Typer struct {
	UserID string
	Name   string
}

// State is published on bus.KindTypingChanged.
type State struct {
	ConversationID string
	Typing         bool
	Typer          Typer
}

// Channel is the typing signal of one open conversation, from the point of
// view of the current user.
type Channel struct {
	rt             backend.Broadcast
	conversationID string
	userID         string
	window         time.Duration
	afterFunc      AfterFunc
	limiter        *rate.Limiter
	bus            *bus.Bus
	logger         *zap.Logger

	mu     sync.Mutex
	typing bool
	typer  Typer
	timer  Timer
	gen    uint64
	sub    backend.Subscription
	closed bool
}

// New creates a channel for conversationID as userID. Call Open to start
// receiving.
func New(rt backend.Broadcast, conversationID, userID string, opts Options) *Channel {
	if opts.Window <= 0 {
		opts.Window = Window
	}
	if opts.AnnounceEvery <= 0 {
		opts.AnnounceEvery = defaultAnnounceEvery
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Channel{
		rt:             rt,
		conversationID: conversationID,
		userID:         userID,
		window:         opts.Window,
		afterFunc:      opts.AfterFunc,
		limiter:        rate.NewLimiter(rate.Every(opts.AnnounceEvery), 1),
		bus:            opts.Bus,
		logger:         opts.Logger.With(zap.String("conversation_id", conversationID)),
	}
}

// Open subscribes to typing broadcasts of the conversation.
func (c *Channel) Open() error {
	sub, err := c.rt.OnBroadcast(TopicFor(c.conversationID), Event, c.Receive)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sub.Unsubscribe()
		return nil
	}
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// Close unsubscribes and drops the indicator. It is safe to call twice.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.typing = false
	c.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Debug("typing unsubscribe failed", zap.Error(err))
		}
	}
}

// Announce tells the other side that the current user is typing. It is
// best effort: calls faster than the announce interval are dropped, and
// send failures are only logged.
func (c *Channel) Announce(name string) {
	if c.userID == "" || !c.limiter.Allow() {
		return
	}
	if name == "" {
		name = defaultName
	}
	err := c.rt.Send(TopicFor(c.conversationID), Event, backend.Row{"userId": c.userID, "name": name})
	if err != nil {
		c.logger.Debug("typing announce failed", zap.Error(err))
	}
}

// Receive handles one typing broadcast.
func (c *Channel) Receive(payload backend.Row) {
	from := payload.String("userId")
	if from == "" || from == c.userID {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	was := c.typing
	c.typing = true
	c.typer = Typer{UserID: from, Name: payload.String("name")}
	c.timer = c.afterFunc(c.window, func() { c.expire(gen) })
	state := c.stateLocked()
	c.mu.Unlock()

	if !was {
		c.bus.Emit(bus.KindTypingChanged, state)
	}
}

func (c *Channel) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.typing {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.timer = nil
	state := c.stateLocked()
	c.mu.Unlock()
	c.bus.Emit(bus.KindTypingChanged, state)
}

// IsTyping reports whether the other side is typing.
func (c *Channel) IsTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// Typer returns the last remote typer, valid while IsTyping is true.
func (c *Channel) Typer() Typer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typer
}

func (c *Channel) stateLocked() State {
	return State{ConversationID: c.conversationID, Typing: c.typing, Typer: c.typer}
}
