package chat

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/layover/internal/alert"
	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
	"github.com/matheus3301/layover/internal/notify"
)

type fixture struct {
	store  *memStore
	rt     *fakeChanges
	notifs *fakeNotifications
	alerts *alert.Recorder
	dir    *Directory
	bus    *bus.Bus
	deps   Deps
}

func newFixture() *fixture {
	f := &fixture{
		store:  newMemStore(),
		rt:     &fakeChanges{},
		notifs: &fakeNotifications{},
		alerts: &alert.Recorder{},
		bus:    bus.New(),
	}
	f.store.put(TableConnections, backend.Row{"id": "conv-1", "user1_id": "a", "user2_id": "b"})
	f.dir = NewDirectory(f.store, nil, f.bus, nil)
	f.deps = Deps{
		Store:         f.store,
		Realtime:      f.rt,
		Directory:     f.dir,
		Notifications: f.notifs,
		Alerts:        f.alerts,
		Bus:           f.bus,
	}
	return f
}

func (f *fixture) open(t *testing.T, userID string) *Reconciler {
	t.Helper()
	r := NewReconciler(f.deps, "conv-1", userID)
	if err := r.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	return r
}

func insert(row backend.Row) backend.ChangeEvent {
	return backend.ChangeEvent{Type: backend.Insert, Table: TableMessages, New: row}
}

func TestDuplicateInsertKeptOnce(t *testing.T) {
	f := newFixture()
	f.store.put(TableMessages, msgRow("m1", "conv-1", "b", "a", "hi", 100))
	r := f.open(t, "a")

	f.rt.emit(insert(msgRow("m1", "conv-1", "b", "a", "hi", 100)))
	f.rt.emit(insert(msgRow("m2", "conv-1", "b", "a", "there", 200)))
	f.rt.emit(insert(msgRow("m2", "conv-1", "b", "a", "there", 200)))

	if got := ids(r.Messages()); !slices.Equal(got, []string{"m1", "m2"}) {
		t.Errorf("messages = %v, want [m1 m2]", got)
	}
}

func TestInsertRacingFetchIsMerged(t *testing.T) {
	f := newFixture()
	f.store.put(TableMessages, msgRow("m1", "conv-1", "b", "a", "one", 100), msgRow("m2", "conv-1", "a", "b", "two", 200))
	// m2 and m3 arrive live while the fetch is in flight; m2 is also in the
	// fetch result.
	f.store.onSelect[TableMessages] = func() {
		f.rt.emit(insert(msgRow("m2", "conv-1", "a", "b", "two", 200)))
		f.rt.emit(insert(msgRow("m3", "conv-1", "b", "a", "three", 300)))
	}
	r := f.open(t, "a")

	if got := ids(r.Messages()); !slices.Equal(got, []string{"m1", "m2", "m3"}) {
		t.Errorf("messages = %v, want [m1 m2 m3]", got)
	}
}

func TestUpdateForUnknownIDIsIgnored(t *testing.T) {
	f := newFixture()
	f.store.put(TableMessages, msgRow("m1", "conv-1", "b", "a", "hi", 100))
	r := f.open(t, "a")
	before := r.Messages()

	f.rt.emit(backend.ChangeEvent{Type: backend.Update, Table: TableMessages, New: backend.Row{
		"id": "ghost", "connection_id": "conv-1", "read": true,
	}})

	after := r.Messages()
	if len(after) != len(before) || after[0].ID != "m1" || after[0].Read {
		t.Errorf("messages changed: %+v", after)
	}
}

func TestUpdateReplacesOnlyPresentFields(t *testing.T) {
	f := newFixture()
	f.store.put(TableMessages,
		msgRow("m1", "conv-1", "b", "a", "hi", 100),
		msgRow("m2", "conv-1", "a", "b", "yo", 200))
	r := f.open(t, "a")

	f.rt.emit(backend.ChangeEvent{Type: backend.Update, Table: TableMessages, New: backend.Row{
		"id": "m1", "connection_id": "conv-1", "text": "hello", "edited": true,
	}})

	got := r.Messages()
	if got[0].ID != "m1" || got[0].Text != "hello" || !got[0].Edited {
		t.Errorf("m1 = %+v", got[0])
	}
	if got[0].SenderID != "b" || !got[0].Timestamp.Equal(time.UnixMilli(100)) {
		t.Errorf("fields missing from the update were lost: %+v", got[0])
	}
	if got[1].ID != "m2" {
		t.Errorf("order changed: %v", ids(got))
	}
}

func TestDeleteEventRemovesMessage(t *testing.T) {
	f := newFixture()
	f.store.put(TableMessages, msgRow("m1", "conv-1", "b", "a", "hi", 100))
	r := f.open(t, "a")

	f.rt.emit(backend.ChangeEvent{Type: backend.Delete, Table: TableMessages, Old: backend.Row{"id": "m1", "connection_id": "conv-1"}})
	f.rt.emit(backend.ChangeEvent{Type: backend.Delete, Table: TableMessages, Old: backend.Row{"id": "m1", "connection_id": "conv-1"}})
	if n := len(r.Messages()); n != 0 {
		t.Errorf("%d messages left, want 0", n)
	}
}

func TestInsertKeepsTimestampOrder(t *testing.T) {
	f := newFixture()
	r := f.open(t, "a")

	f.rt.emit(insert(msgRow("m3", "conv-1", "b", "a", "", 300)))
	f.rt.emit(insert(msgRow("m1", "conv-1", "b", "a", "", 100)))
	f.rt.emit(insert(msgRow("m2", "conv-1", "b", "a", "", 200)))
	f.rt.emit(insert(msgRow("m4", "conv-1", "b", "a", "", 300)))

	if got := ids(r.Messages()); !slices.Equal(got, []string{"m1", "m2", "m3", "m4"}) {
		t.Errorf("messages = %v", got)
	}
}

func TestMalformedInsertDropped(t *testing.T) {
	f := newFixture()
	r := f.open(t, "a")

	f.rt.emit(insert(backend.Row{"id": "x", "connection_id": "conv-1"}))
	f.rt.emit(insert(backend.Row{"connection_id": "conv-1", "sender_id": "b"}))
	if n := len(r.Messages()); n != 0 {
		t.Errorf("%d messages, want 0", n)
	}
}

func TestInsertUpdatesDirectory(t *testing.T) {
	f := newFixture()
	if err := f.dir.Load(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	f.open(t, "a")

	f.rt.emit(insert(msgRow("m1", "conv-1", "b", "a", "hi", 100)))
	conv, ok := f.dir.Get("conv-1")
	if !ok || conv.LastMessage != "hi" || !conv.LastMessageAt.Equal(time.UnixMilli(100)) {
		t.Errorf("conversation = %+v", conv)
	}
}

func TestFocusedOpenMarksReadAndClearsNotifications(t *testing.T) {
	f := newFixture()
	f.store.put(TableMessages,
		msgRow("m1", "conv-1", "b", "a", "hi", 100),
		msgRow("m2", "conv-1", "a", "b", "mine", 200),
		msgRow("m3", "conv-1", "b", "a", "again", 300))

	r := NewReconciler(f.deps, "conv-1", "a")
	r.SetFocused(context.Background(), true)
	if err := r.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for _, row := range f.store.rows(TableMessages) {
		want := row.String("receiver_id") == "a"
		if row.Bool("read") != want {
			t.Errorf("stored %s read = %v, want %v", row.String("id"), row.Bool("read"), want)
		}
	}
	for _, m := range r.Messages() {
		if m.ReceiverID == "a" && !m.Read {
			t.Errorf("local %s still unread", m.ID)
		}
	}
	if len(f.notifs.calls) != 1 || f.notifs.calls[0] != (notifCall{"a", "conv-1"}) {
		t.Errorf("DeleteByConversation calls = %+v", f.notifs.calls)
	}
}

func TestUnfocusedDoesNotMarkRead(t *testing.T) {
	f := newFixture()
	f.store.put(TableMessages, msgRow("m1", "conv-1", "b", "a", "hi", 100))
	r := f.open(t, "a")

	f.rt.emit(insert(msgRow("m2", "conv-1", "b", "a", "yo", 200)))
	if f.store.updates != 0 || f.notifs.count() != 0 {
		t.Fatalf("updates=%d notification clears=%d while unfocused", f.store.updates, f.notifs.count())
	}

	r.SetFocused(context.Background(), true)
	if f.store.updates != 1 || f.notifs.count() != 1 {
		t.Errorf("updates=%d notification clears=%d after focus", f.store.updates, f.notifs.count())
	}

	// A live message while focused is read right away.
	f.rt.emit(insert(msgRow("m3", "conv-1", "b", "a", "now", 300)))
	if m, _ := r.Message("m3"); !m.Read {
		t.Error("m3 not marked read while focused")
	}
	if f.notifs.count() != 2 {
		t.Errorf("notification clears = %d, want 2", f.notifs.count())
	}
}

func TestLateNotificationClearedWhileFocused(t *testing.T) {
	f := newFixture()
	f.store.put(TableMessages, msgRow("m1", "conv-1", "b", "a", "hi", 100))
	r := f.open(t, "a")

	created := func(link string) backend.ChangeEvent {
		return backend.ChangeEvent{Type: backend.Insert, Table: notify.Table, New: backend.Row{
			"id": "n1", "user_id": "a", "type": "message", "link": link,
		}}
	}

	f.rt.emit(created(notify.ChatLink("conv-1")))
	if n := f.notifs.count(); n != 0 {
		t.Fatalf("cleared %d times while unfocused", n)
	}

	r.SetFocused(context.Background(), true)
	before := f.notifs.count()
	// The listener's insert lands after focus already cleared the badge.
	f.rt.emit(created(notify.ChatLink("conv-1")))
	if got := f.notifs.count(); got != before+1 {
		t.Errorf("clears = %d, want %d", got, before+1)
	}
	f.rt.emit(created(notify.ChatLink("conv-2")))
	if got := f.notifs.count(); got != before+1 {
		t.Errorf("notification for another chat cleared this one: %d", got)
	}
}

func TestAccessDeniedKeepsSubscription(t *testing.T) {
	f := newFixture()
	f.store.selectErr[TableConnections] = backend.Errorf(backend.CodeAccessDenied, "blocked")
	r := NewReconciler(f.deps, "conv-1", "a")
	defer r.Close()

	err := r.Open(context.Background())
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("Open() = %v, want ErrAccessDenied", err)
	}
	if !r.AccessDenied() {
		t.Error("AccessDenied() = false")
	}
	alerts := f.alerts.Alerts()
	if len(alerts) != 1 || alerts[0].Variant != alert.Blocked {
		t.Errorf("alerts = %+v", alerts)
	}
	for _, s := range f.rt.subs {
		if s.unsubs != 0 {
			t.Errorf("subscription %s torn down on access denial", s.topic)
		}
	}
	// Live events still flow.
	f.rt.emit(insert(msgRow("m1", "conv-1", "b", "a", "hi", 100)))
	if n := len(r.Messages()); n != 1 {
		t.Errorf("%d messages, want 1", n)
	}
}

func TestFetchErrorRaisesAlert(t *testing.T) {
	f := newFixture()
	f.store.selectErr[TableMessages] = errors.New("network down")
	r := NewReconciler(f.deps, "conv-1", "a")
	defer r.Close()

	if err := r.Open(context.Background()); err == nil || errors.Is(err, ErrAccessDenied) {
		t.Fatalf("Open() = %v, want a plain error", err)
	}
	if a := f.alerts.Alerts(); len(a) != 1 || a[0].Variant != alert.Destructive {
		t.Errorf("alerts = %+v", a)
	}
}

func TestCloseUnsubscribesOnceAndDiscardsLateResults(t *testing.T) {
	f := newFixture()
	f.store.put(TableMessages, msgRow("m1", "conv-1", "b", "a", "hi", 100))
	r := NewReconciler(f.deps, "conv-1", "a")
	// Teardown lands while the fetch is in flight.
	f.store.onSelect[TableMessages] = r.Close
	if err := r.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.Close()

	if n := len(r.Messages()); n != 0 {
		t.Errorf("fetch applied after close: %d messages", n)
	}
	if len(f.rt.subs) != 3 {
		t.Fatalf("%d subscriptions, want 3", len(f.rt.subs))
	}
	for _, s := range f.rt.subs {
		if s.unsubs != 1 {
			t.Errorf("%s unsubscribed %d times, want 1", s.topic, s.unsubs)
		}
	}
	for _, s := range f.rt.subs {
		s.fn(insert(msgRow("m9", "conv-1", "b", "a", "late", 900)))
	}
	if n := len(r.Messages()); n != 0 {
		t.Errorf("event applied after close: %d messages", n)
	}
}

func TestReactionsLoadedAndFollowed(t *testing.T) {
	f := newFixture()
	f.store.put(TableMessages, msgRow("m1", "conv-1", "b", "a", "hi", 100))
	f.store.put(TableReactions, backend.Row{"id": "r1", "message_id": "m1", "user_id": "a", "emoji": "👍"})
	r := f.open(t, "a")

	if m, _ := r.Message("m1"); len(m.Reactions) != 1 || m.Reactions[0].Emoji != "👍" {
		t.Fatalf("reactions = %+v", m.Reactions)
	}

	f.rt.emit(backend.ChangeEvent{Type: backend.Insert, Table: TableReactions, New: backend.Row{"id": "r2", "message_id": "m1", "user_id": "b", "emoji": "🎉"}})
	f.rt.emit(backend.ChangeEvent{Type: backend.Insert, Table: TableReactions, New: backend.Row{"id": "r3", "message_id": "other-conv-msg", "user_id": "b", "emoji": "🎉"}})
	f.rt.emit(backend.ChangeEvent{Type: backend.Delete, Table: TableReactions, Old: backend.Row{"id": "r1", "message_id": "m1"}})

	m, _ := r.Message("m1")
	if len(m.Reactions) != 1 || m.Reactions[0].ID != "r2" {
		t.Errorf("reactions = %+v", m.Reactions)
	}
}

func TestMessagesChangedPublished(t *testing.T) {
	f := newFixture()
	ch, unsub := f.bus.Subscribe(bus.KindMessagesChanged, 16)
	defer unsub()
	f.open(t, "a")

	f.rt.emit(insert(msgRow("m1", "conv-1", "b", "a", "hi", 100)))
	deadline := time.After(time.Second)
	for {
		select {
		case evt := <-ch:
			if mc := evt.Payload.(MessagesChanged); mc.Count == 1 && mc.ConversationID == "conv-1" {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for messages_changed with one message")
		}
	}
}
