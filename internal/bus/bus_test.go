package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindPresenceChanged, Timestamp: time.Now(), Payload: []string{"u1"}})

	select {
	case evt := <-ch:
		if evt.Kind != KindPresenceChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindPresenceChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("typing.", 10)
	defer unsub()

	b.Emit(KindPresenceChanged, nil)
	b.Emit(KindTypingChanged, true)

	select {
	case evt := <-ch:
		if evt.Kind != KindTypingChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindTypingChanged)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Emit should stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt, ok := <-ch:
		if ok {
			t.Errorf("unexpected event: %v", evt)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("alert.", 10)
	unsub()
	unsub()

	b.Emit(KindAlertRaised, "x")

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("channel not closed after unsubscribe")
	}
	if n := b.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 1)
	defer unsub()

	b.Emit("chat.one", nil)
	b.Emit("chat.two", nil)

	evt := <-ch
	if evt.Kind != "chat.one" {
		t.Errorf("got %q, want chat.one", evt.Kind)
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	b.Emit(KindAlertRaised, nil)
}
