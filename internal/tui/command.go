package tui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/controller"
	"github.com/matheus3301/layover/internal/notify"
	"go.uber.org/zap"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	if full, ok := aliases[cmd.Name]; ok {
		cmd.Name = full
	}
	return cmd
}

// Commands lists the command names, for completion.
var Commands = []string{
	"accept", "block", "cancel", "chat", "decline", "delete", "edit", "help",
	"home", "image", "login", "logout", "notifications", "quit", "react",
	"read", "report", "requests",
}

var aliases = map[string]string{
	"q": "quit",
	"h": "help",
	"c": "chat",
	"n": "notifications",
}

var (
	errNoChat    = errors.New("no conversation open")
	errSignedOut = errors.New("not signed in")
	errNoMessage = errors.New("no message to act on")
	errNoRequest = errors.New("no request selected")
)

// runCommand executes cmd. It runs on the task queue, never on the UI
// goroutine.
func (a *App) runCommand(cmd Command) error {
	switch cmd.Name {
	case "quit":
		a.app.Stop()
		return nil
	case "help":
		a.app.QueueUpdateDraw(func() { a.push(pageHelp) })
		return nil
	case "notifications":
		a.app.QueueUpdateDraw(a.showNotifications)
		return nil
	case "login":
		if cmd.Args == "" {
			return errors.New("usage: login <token>")
		}
		_, err := a.deps.Session.SignIn(cmd.Args)
		return err
	case "logout":
		a.deps.Session.SignOut()
		return nil
	case "home":
		a.deps.Controller.Navigate(controller.HomePath)
		return nil
	case "requests":
		a.deps.Controller.Navigate(controller.RequestsPath)
		return nil
	}

	userID := a.deps.Controller.UserID()
	actions := a.deps.Controller.Actions()
	if userID == "" || actions == nil {
		return errSignedOut
	}
	ctx := backend.WithUser(a.ctx, userID)

	switch cmd.Name {
	case "chat":
		conv, ok := a.findConversation(cmd.Args)
		if !ok {
			return fmt.Errorf("no conversation matches %q", cmd.Args)
		}
		a.deps.Controller.Navigate(controller.ChatPath(conv.ID))
		return nil
	case "read":
		return a.deps.Notifications.MarkAllRead(ctx, userID)
	case "accept", "decline", "cancel":
		if cmd.Args == "" {
			return errNoRequest
		}
		return a.answerRequest(ctx, actions, cmd.Name, cmd.Args)
	}

	screen := a.deps.Controller.Screen()
	if screen == nil {
		return errNoChat
	}
	convID := screen.ConversationID()

	switch cmd.Name {
	case "image":
		data, err := os.ReadFile(cmd.Args)
		if err != nil {
			return err
		}
		_, err = actions.SendImage(ctx, convID, data, http.DetectContentType(data))
		return err
	case "react":
		m, ok := lastMessage(screen.Reconciler.Messages(), func(chat.Message) bool { return true })
		if !ok {
			return errNoMessage
		}
		return actions.React(ctx, m.ID, cmd.Args)
	case "edit":
		m, ok := lastMessage(screen.Reconciler.Messages(), func(m chat.Message) bool { return m.SenderID == userID })
		if !ok {
			return errNoMessage
		}
		return actions.Edit(ctx, m.ID, cmd.Args)
	case "delete":
		m, ok := lastMessage(screen.Reconciler.Messages(), func(m chat.Message) bool { return m.SenderID == userID })
		if !ok {
			return errNoMessage
		}
		return actions.Delete(ctx, m)
	case "block", "report":
		conv, ok := a.deps.Directory.Get(convID)
		if !ok {
			return errNoChat
		}
		if cmd.Name == "block" {
			return actions.Block(ctx, conv.CounterpartID)
		}
		return actions.Report(ctx, conv.CounterpartID, cmd.Args)
	}
	return fmt.Errorf("unknown command %q", cmd.Name)
}

// answerRequest accepts, declines or cancels request id. Answered requests
// lose their notifications, and an accepted one opens its chat.
func (a *App) answerRequest(ctx context.Context, actions *chat.Actions, verb, id string) error {
	switch verb {
	case "accept":
		conv, err := actions.AcceptRequest(ctx, id)
		if err != nil {
			return err
		}
		a.clearRequestNotifications(ctx, id)
		a.deps.Controller.Navigate(controller.ChatPath(conv.ID))
		return nil
	case "decline":
		if err := actions.DeclineRequest(ctx, id); err != nil {
			return err
		}
		a.clearRequestNotifications(ctx, id)
		a.loadRequests()
		return nil
	default:
		if err := actions.CancelRequest(ctx, id); err != nil {
			return err
		}
		a.loadRequests()
		return nil
	}
}

func (a *App) clearRequestNotifications(ctx context.Context, requestID string) {
	link := notify.RequestLink(requestID)
	for _, n := range a.vm.Notifications() {
		if n.Link != link {
			continue
		}
		if err := a.deps.Notifications.Delete(ctx, n.ID); err != nil {
			a.logger.Debug("clear request notification failed", zap.String("id", n.ID), zap.Error(err))
		}
	}
}

func (a *App) findConversation(name string) (chat.Conversation, bool) {
	if name == "" {
		return chat.Conversation{}, false
	}
	for _, conv := range a.vm.Conversations() {
		if strings.Contains(strings.ToLower(conv.Name), strings.ToLower(name)) {
			return conv, true
		}
	}
	return chat.Conversation{}, false
}

// lastMessage returns the newest message accepted by keep.
func lastMessage(msgs []chat.Message, keep func(chat.Message) bool) (chat.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if keep(msgs[i]) {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}
