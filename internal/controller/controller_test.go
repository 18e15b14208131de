package controller

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/layover/internal/alert"
	"github.com/matheus3301/layover/internal/auth"
	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/listeners"
	"github.com/matheus3301/layover/internal/notify"
	"github.com/matheus3301/layover/internal/presence"
	"github.com/matheus3301/layover/internal/realtime"
	"github.com/matheus3301/layover/internal/status"
	"github.com/matheus3301/layover/internal/store"
	"go.uber.org/zap"
)

var secret = []byte("test-secret")

type harness struct {
	records   *store.Records
	hub       *realtime.Hub
	agg       *notify.Aggregator
	alerts    *alert.Recorder
	router    *Router
	status    *status.Machine
	session   *auth.Session
	listeners *listeners.Listeners
	presence  *presence.Store
	directory *chat.Directory
	ctrl      *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	b := bus.New()
	hub := realtime.NewHub(b, logger)
	records, err := store.NewRecords(db, hub, logger)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		records:  records,
		hub:      hub,
		agg:      notify.NewAggregator(records, notify.Options{}, logger),
		alerts:   &alert.Recorder{},
		router:   NewRouter(b),
		status:   status.NewMachine(b),
		session:  auth.NewSession(secret, logger),
		presence: presence.NewStore(b),
	}
	h.listeners = listeners.New(listeners.Deps{
		Realtime:  hub,
		Store:     records,
		Notifier:  h.agg,
		Alerts:    h.alerts,
		Navigator: h.router,
		Logger:    logger,
	})
	h.directory = chat.NewDirectory(records, h.presence, b, logger)
	h.ctrl = New(Deps{
		Auth:          h.session,
		Store:         records,
		Realtime:      hub,
		Listeners:     h.listeners,
		Tracker:       presence.NewTracker(hub, h.presence, logger),
		Feed:          notify.NewFeed(hub, h.agg, b, logger),
		Notifications: h.agg,
		Directory:     h.directory,
		Router:        h.router,
		Status:        h.status,
		Alerts:        h.alerts,
		Bus:           b,
		Logger:        logger,
	})
	t.Cleanup(h.ctrl.Stop)

	ctx := context.Background()
	for _, row := range []backend.Row{
		{"id": "a", "name": "Ana"},
		{"id": "b", "name": "Bea"},
	} {
		if _, err := records.Insert(ctx, "users", row); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := records.Insert(ctx, "connections", backend.Row{"id": "conv-1", "user1_id": "a", "user2_id": "b"}); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) signIn(t *testing.T, userID string) {
	t.Helper()
	token, err := auth.Issue(secret, backend.User{ID: userID}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.session.SignIn(token); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) send(t *testing.T, id, from, to, text string) {
	t.Helper()
	_, err := h.records.Insert(backend.WithUser(context.Background(), from), "messages", backend.Row{
		"id": id, "connection_id": "conv-1", "sender_id": from, "receiver_id": to, "text": text,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (h *harness) notifications(t *testing.T, userID string) []notify.Notification {
	t.Helper()
	list, err := h.agg.List(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return list
}

func (h *harness) storedMessage(t *testing.T, id string) backend.Row {
	t.Helper()
	rows, err := h.records.Select(context.Background(), "messages", backend.Eq("id", id))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("message %s: %d rows", id, len(rows))
	}
	return rows[0]
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMessageThenVisitClearsNotification(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.status.Current(); got != status.SignedOut {
		t.Fatalf("status before sign in = %s", got)
	}
	h.signIn(t, "a")
	if got := h.status.Current(); got != status.Live {
		t.Fatalf("status after sign in = %s", got)
	}
	if err := h.ctrl.Preview("conv-1"); err != nil {
		t.Fatal(err)
	}
	screen := h.ctrl.Screen()
	if screen == nil || h.ctrl.Focused() {
		t.Fatalf("preview screen = %v, focused = %v", screen, h.ctrl.Focused())
	}

	h.send(t, "m1", "b", "a", "hi")

	eventually(t, "m1 in the message list", func() bool {
		_, ok := screen.Reconciler.Message("m1")
		return ok
	})
	eventually(t, "conversation preview", func() bool {
		conv, ok := h.directory.Get("conv-1")
		return ok && conv.LastMessage == "hi"
	})
	eventually(t, "message notification", func() bool {
		return len(h.notifications(t, "a")) == 1
	})
	n := h.notifications(t, "a")[0]
	if n.Type != notify.TypeMessage || n.Link != "/chat/conv-1" {
		t.Errorf("notification = %+v", n)
	}
	eventually(t, "alert", func() bool { return len(h.alerts.Alerts()) == 1 })
	if h.storedMessage(t, "m1").Bool("read") {
		t.Fatal("m1 read before the conversation was viewed")
	}

	h.ctrl.Navigate(ChatPath("conv-1"))

	if h.ctrl.Screen() != screen {
		t.Error("navigating to the previewed conversation reopened it")
	}
	if !h.ctrl.Focused() {
		t.Error("screen not focused after navigation")
	}
	if !h.storedMessage(t, "m1").Bool("read") {
		t.Error("m1 not marked read")
	}
	if m, _ := screen.Reconciler.Message("m1"); !m.Read {
		t.Error("m1 not read in the local list")
	}
	if got := h.notifications(t, "a"); len(got) != 0 {
		t.Errorf("notifications after visit = %+v", got)
	}
}

func TestViewingChatSuppressesAlertAndReadsMessage(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a")
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.ctrl.Navigate(ChatPath("conv-1"))
	if s := h.ctrl.Screen(); s == nil || s.ConversationID() != "conv-1" {
		t.Fatalf("screen = %v", s)
	}

	h.send(t, "m1", "b", "a", "hi")
	eventually(t, "m1 read", func() bool { return h.storedMessage(t, "m1").Bool("read") })
	eventually(t, "no badge on the open chat", func() bool { return len(h.notifications(t, "a")) == 0 })
	time.Sleep(50 * time.Millisecond)
	if got := h.notifications(t, "a"); len(got) != 0 {
		t.Errorf("notifications while viewing the chat = %+v", got)
	}
	if got := h.alerts.Alerts(); len(got) != 0 {
		t.Errorf("alert raised while viewing the chat: %+v", got)
	}

	h.ctrl.Navigate(HomePath)
	if h.ctrl.Focused() {
		t.Error("still focused after leaving the chat")
	}
	h.send(t, "m2", "b", "a", "still there?")
	eventually(t, "alert after leaving", func() bool { return len(h.alerts.Alerts()) == 1 })
	eventually(t, "m2 received", func() bool {
		_, ok := h.ctrl.Screen().Reconciler.Message("m2")
		return ok
	})
	if h.storedMessage(t, "m2").Bool("read") {
		t.Error("m2 marked read while not viewed")
	}
}

func TestIdentityChangeReattaches(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.signIn(t, "a")
	h.ctrl.Navigate(ChatPath("conv-1"))
	first := h.ctrl.Screen()
	if h.listeners.UserID() != "a" || first == nil {
		t.Fatalf("listeners user = %q, screen = %v", h.listeners.UserID(), first)
	}
	eventually(t, "a online", func() bool { return h.presence.IsOnline("a") })

	h.signIn(t, "b")
	if h.ctrl.UserID() != "b" || h.listeners.UserID() != "b" {
		t.Fatalf("user = %q, listeners = %q", h.ctrl.UserID(), h.listeners.UserID())
	}
	if second := h.ctrl.Screen(); second == nil || second == first {
		t.Errorf("chat screen not reopened for the new user")
	}
	if got := h.status.Current(); got != status.Live {
		t.Errorf("status = %s", got)
	}
	eventually(t, "b online", func() bool { return h.presence.IsOnline("b") })

	h.session.SignOut()
	if h.ctrl.UserID() != "" || h.listeners.UserID() != "" || h.ctrl.Screen() != nil || h.ctrl.Actions() != nil {
		t.Error("session state survived sign out")
	}
	if got := h.status.Current(); got != status.SignedOut {
		t.Errorf("status = %s", got)
	}
	if got := h.presence.Snapshot(); len(got) != 0 {
		t.Errorf("presence after sign out = %v", got)
	}
}

func TestVisitingRequestsClearsRequestNotifications(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a")
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := h.records.Insert(ctx, "matches", backend.Row{"id": "r1", "from_user": "b", "to_user": "a"}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "request notification", func() bool { return len(h.notifications(t, "a")) == 1 })
	if _, err := h.agg.Create(ctx, notify.Draft{UserID: "a", Type: notify.TypeMessage, Link: notify.ChatLink("conv-1")}); err != nil {
		t.Fatal(err)
	}

	h.ctrl.Navigate(RequestsPath)
	list := h.notifications(t, "a")
	if len(list) != 1 || list[0].Type != notify.TypeMessage {
		t.Errorf("notifications after visiting requests = %+v", list)
	}
}

func TestSendFromController(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a")
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.ctrl.Navigate(ChatPath("conv-1"))
	screen := h.ctrl.Screen()

	m, err := h.ctrl.Actions().Send(context.Background(), "conv-1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if m.ReceiverID != "b" {
		t.Errorf("receiver = %q", m.ReceiverID)
	}
	eventually(t, "own message echoed", func() bool {
		_, ok := screen.Reconciler.Message(m.ID)
		return ok
	})
	if got := h.notifications(t, "a"); len(got) != 0 {
		t.Errorf("sender notified of own message: %+v", got)
	}
}

func TestConversationOf(t *testing.T) {
	tests := []struct {
		path string
		id   string
		ok   bool
	}{
		{"/chat/conv-1", "conv-1", true},
		{"/chat/", "", false},
		{"/chat/a/b", "", false},
		{"/requests", "", false},
		{"/", "", false},
	}
	for _, tt := range tests {
		id, ok := conversationOf(tt.path)
		if id != tt.id || ok != tt.ok {
			t.Errorf("conversationOf(%q) = %q, %v", tt.path, id, ok)
		}
	}
}
