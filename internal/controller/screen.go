package controller

import (
	"context"
	"errors"

	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/typing"
	"go.uber.org/zap"
)

// ChatScreen is one open conversation: its message stream and typing signal.
type ChatScreen struct {
	Reconciler *chat.Reconciler
	Typing     *typing.Channel

	conversationID string
	logger         *zap.Logger
}

// ConversationID returns the conversation on screen.
func (s *ChatScreen) ConversationID() string { return s.conversationID }

func (c *Controller) newScreen(conversationID, userID string) *ChatScreen {
	logger := c.deps.Logger.With(zap.String("conversation_id", conversationID))
	r := chat.NewReconciler(chat.Deps{
		Store:         c.deps.Store,
		Realtime:      c.deps.Realtime,
		Directory:     c.deps.Directory,
		Notifications: c.deps.Notifications,
		Alerts:        c.deps.Alerts,
		Bus:           c.deps.Bus,
		Logger:        c.deps.Logger,
	}, conversationID, userID)

	opts := c.deps.Typing
	opts.Bus = c.deps.Bus
	opts.Logger = c.deps.Logger
	ch := typing.New(c.deps.Realtime, conversationID, userID, opts)

	return &ChatScreen{Reconciler: r, Typing: ch, conversationID: conversationID, logger: logger}
}

// open starts both streams. A denied conversation stays open so the screen
// can show it as blocked.
func (s *ChatScreen) open(ctx context.Context, userID string) error {
	if err := s.Typing.Open(); err != nil {
		s.logger.Warn("typing channel open failed", zap.Error(err))
	}
	err := s.Reconciler.Open(backend.WithUser(ctx, userID))
	if err != nil && !errors.Is(err, chat.ErrAccessDenied) {
		return err
	}
	return nil
}

func (s *ChatScreen) close() {
	s.Typing.Close()
	s.Reconciler.Close()
	s.logger.Debug("chat screen closed")
}
