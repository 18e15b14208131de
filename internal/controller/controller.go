// Package controller owns the signed-in session: it attaches the session
// scoped subscriptions once per identity change and opens the chat screen
// the router points at.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/layover/internal/alert"
	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/listeners"
	"github.com/matheus3301/layover/internal/notify"
	"github.com/matheus3301/layover/internal/presence"
	"github.com/matheus3301/layover/internal/status"
	"github.com/matheus3301/layover/internal/typing"
	"go.uber.org/zap"
)

// Notifications is the part of the aggregator the controller clears when
// screens are visited. *notify.Aggregator implements it.
type Notifications interface {
	DeleteByConversation(ctx context.Context, userID, conversationID string) error
	DeleteByType(ctx context.Context, userID string, t notify.Type) error
}

// Deps are the collaborators of a Controller. Storage, Alerts and Bus are
// optional.
type Deps struct {
	Auth          backend.Auth
	Store         backend.RecordStore
	Realtime      backend.Realtime
	Storage       backend.ObjectStorage
	Listeners     *listeners.Listeners
	Tracker       *presence.Tracker
	Feed          *notify.Feed
	Notifications Notifications
	Directory     *chat.Directory
	Router        *Router
	Status        *status.Machine
	Alerts        alert.Sink
	Bus           *bus.Bus
	Typing        typing.Options
	Logger        *zap.Logger
}

// Controller runs one session at a time. Each identity change does exactly
// one detach followed by one attach.
type Controller struct {
	deps Deps

	// flow serializes identity changes and navigation, which both call the
	// backend.
	flow sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	cancel  func()
	userID  string
	actions *chat.Actions
	screen  *ChatScreen
	focused bool
}

// New creates a stopped controller and subscribes it to the router.
func New(deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	c := &Controller{deps: deps, ctx: context.Background()}
	deps.Router.Observe(c.route)
	return c
}

// Start attaches the current user, if any, and follows auth changes.
func (c *Controller) Start(ctx context.Context) error {
	u, err := c.deps.Auth.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("current user: %w", err)
	}
	c.mu.Lock()
	c.ctx = context.WithoutCancel(ctx)
	c.mu.Unlock()

	c.identify(u)
	cancel := c.deps.Auth.OnAuthStateChange(c.identify)

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	c.deps.Logger.Info("controller started")
	return nil
}

// Stop stops following auth changes and detaches the session.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	c.flow.Lock()
	defer c.flow.Unlock()
	if c.UserID() != "" {
		c.detach()
		c.transition(status.SignedOut)
	}
	c.deps.Logger.Info("controller stopped")
}

func (c *Controller) identify(u *backend.User) {
	id := ""
	if u != nil {
		id = u.ID
	}

	c.flow.Lock()
	defer c.flow.Unlock()
	current := c.UserID()
	if id == current && id != "" {
		return
	}
	if current != "" {
		c.detach()
	}
	if id == "" {
		c.transition(status.SignedOut)
		return
	}
	c.attach(id)
}

// attach brings up every session scoped component for userID. A component
// that fails leaves the session degraded rather than signed out.
func (c *Controller) attach(userID string) {
	c.transition(status.Attaching)
	logger := c.deps.Logger.With(zap.String("user_id", userID))
	ctx := c.baseContext()

	var errs []error
	if err := c.deps.Listeners.Attach(userID); err != nil {
		errs = append(errs, err)
	}
	if err := c.deps.Tracker.Attach(userID); err != nil {
		errs = append(errs, err)
	}
	if err := c.deps.Feed.Attach(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if err := c.deps.Directory.Load(backend.WithUser(ctx, userID), userID); err != nil {
		errs = append(errs, err)
	}

	actions := chat.NewActions(chat.ActionsDeps{
		Store:     c.deps.Store,
		Storage:   c.deps.Storage,
		Directory: c.deps.Directory,
		Alerts:    c.deps.Alerts,
		Logger:    c.deps.Logger,
	}, userID)

	c.mu.Lock()
	c.userID = userID
	c.actions = actions
	c.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		logger.Warn("session attached degraded", zap.Error(err))
		c.transition(status.Degraded)
	} else {
		logger.Info("session attached")
		c.transition(status.Live)
	}

	if path := c.deps.Router.CurrentPath(); path != HomePath {
		c.routeLocked(path)
	}
}

// detach releases everything attach set up, and the open chat screen.
func (c *Controller) detach() {
	c.mu.Lock()
	userID := c.userID
	screen := c.screen
	c.userID, c.actions, c.screen, c.focused = "", nil, nil, false
	c.mu.Unlock()

	if screen != nil {
		screen.close()
	}
	c.deps.Listeners.Detach()
	c.deps.Tracker.Detach()
	c.deps.Feed.Detach()
	c.deps.Directory.Clear()
	c.deps.Logger.Info("session detached", zap.String("user_id", userID))
}

func (c *Controller) route(path string) {
	c.flow.Lock()
	defer c.flow.Unlock()
	c.routeLocked(path)
}

// routeLocked applies a navigation. Caller holds c.flow.
func (c *Controller) routeLocked(path string) {
	userID := c.UserID()
	if userID == "" {
		return
	}
	ctx := c.baseContext()

	if conv, ok := conversationOf(path); ok {
		if err := c.show(ctx, conv, userID, true); err != nil {
			c.deps.Logger.Warn("open chat screen failed", zap.String("conversation_id", conv), zap.Error(err))
		}
		return
	}

	c.mu.Lock()
	screen := c.screen
	c.focused = false
	c.mu.Unlock()
	if screen != nil {
		screen.Reconciler.SetFocused(ctx, false)
	}

	if isRequests(path) {
		if err := c.deps.Notifications.DeleteByType(ctx, userID, notify.TypeRequest); err != nil {
			c.deps.Logger.Warn("clear request notifications failed", zap.Error(err))
		}
	}
}

// Preview opens a conversation without focusing it, the way a list
// selection shows a thread before the user enters it.
func (c *Controller) Preview(conversationID string) error {
	c.flow.Lock()
	defer c.flow.Unlock()
	userID := c.UserID()
	if userID == "" {
		return errors.New("signed out")
	}
	c.mu.Lock()
	focused := c.focused
	c.mu.Unlock()
	return c.show(c.baseContext(), conversationID, userID, focused && c.onChat(conversationID))
}

// show makes conversationID the open screen, reusing it when it already
// is, and applies focus. Caller holds c.flow.
func (c *Controller) show(ctx context.Context, conversationID, userID string, focused bool) error {
	c.mu.Lock()
	screen := c.screen
	c.mu.Unlock()

	if screen == nil || screen.ConversationID() != conversationID {
		if screen != nil {
			screen.close()
		}
		screen = c.newScreen(conversationID, userID)
		c.mu.Lock()
		c.screen = screen
		c.mu.Unlock()
		if focused {
			screen.Reconciler.SetFocused(ctx, true)
		}
		if err := screen.open(ctx, userID); err != nil {
			return err
		}
	} else {
		screen.Reconciler.SetFocused(ctx, focused)
	}

	c.mu.Lock()
	c.focused = focused
	c.mu.Unlock()
	return nil
}

func (c *Controller) onChat(conversationID string) bool {
	id, ok := conversationOf(c.deps.Router.CurrentPath())
	return ok && id == conversationID
}

// Navigate moves the router, which in turn updates the controller.
func (c *Controller) Navigate(path string) { c.deps.Router.Navigate(path) }

// UserID returns the attached user, or "".
func (c *Controller) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Screen returns the open chat screen, or nil.
func (c *Controller) Screen() *ChatScreen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// Actions returns the chat actions of the attached user, or nil.
func (c *Controller) Actions() *chat.Actions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actions
}

// Focused reports whether the open screen is the one being viewed.
func (c *Controller) Focused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

func (c *Controller) baseContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *Controller) transition(to status.State) {
	if c.deps.Status == nil || c.deps.Status.Current() == to {
		return
	}
	if err := c.deps.Status.Transition(to); err != nil {
		c.deps.Logger.Debug("status transition skipped", zap.Error(err))
	}
}
