package typing

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
)

// fakeClock fires scheduled functions when advanced past their deadline.
type fakeClock struct {
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now += d
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			t.f()
		}
	}
}

func (c *fakeClock) active() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeBroadcast struct {
	mu      sync.Mutex
	sent    []backend.Row
	topic   string
	event   string
	fn      func(backend.Row)
	failing bool
	unsubs  int
}

func (f *fakeBroadcast) Send(topic, event string, payload backend.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("offline")
	}
	f.topic, f.event = topic, event
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeBroadcast) OnBroadcast(topic, event string, fn func(backend.Row)) (backend.Subscription, error) {
	f.topic, f.event, f.fn = topic, event, fn
	return f, nil
}

func (f *fakeBroadcast) Topic() string { return f.topic }

func (f *fakeBroadcast) Unsubscribe() error {
	f.unsubs++
	return nil
}

func newChannel(t *testing.T) (*Channel, *fakeClock, *fakeBroadcast) {
	t.Helper()
	clock := &fakeClock{}
	rt := &fakeBroadcast{}
	c := New(rt, "c1", "me", Options{AfterFunc: clock.AfterFunc})
	if err := c.Open(); err != nil {
		t.Fatal(err)
	}
	return c, clock, rt
}

func TestTypingExpiresAfterWindow(t *testing.T) {
	c, clock, rt := newChannel(t)
	if rt.topic != "typing:c1" || rt.event != "typing" {
		t.Fatalf("subscribed to %s/%s", rt.topic, rt.event)
	}

	rt.fn(backend.Row{"userId": "other", "name": "Bea"})
	if !c.IsTyping() {
		t.Fatal("indicator should be up immediately")
	}
	if c.Typer().Name != "Bea" {
		t.Errorf("typer = %+v", c.Typer())
	}
	clock.Advance(2999 * time.Millisecond)
	if !c.IsTyping() {
		t.Error("indicator cleared before the window elapsed")
	}
	clock.Advance(time.Millisecond)
	if c.IsTyping() {
		t.Error("indicator still up after the window")
	}
}

func TestSecondBroadcastResetsTimer(t *testing.T) {
	c, clock, rt := newChannel(t)

	rt.fn(backend.Row{"userId": "other"})
	clock.Advance(2000 * time.Millisecond)
	rt.fn(backend.Row{"userId": "other"})
	if n := clock.active(); n != 1 {
		t.Fatalf("%d active timers, want 1", n)
	}

	clock.Advance(2999 * time.Millisecond) // t = 4999
	if !c.IsTyping() {
		t.Error("indicator cleared by the first, reset timer")
	}
	clock.Advance(time.Millisecond) // t = 5000
	if c.IsTyping() {
		t.Error("indicator still up 3000ms after the second broadcast")
	}
}

func TestStaleTimerDoesNotClearNewerState(t *testing.T) {
	c, _, rt := newChannel(t)
	var fired []func()
	c.afterFunc = func(_ time.Duration, f func()) Timer {
		fired = append(fired, f)
		return &fakeTimer{}
	}

	rt.fn(backend.Row{"userId": "other"})
	rt.fn(backend.Row{"userId": "other"})
	// A timer that already started running when it was stopped.
	fired[0]()
	if !c.IsTyping() {
		t.Error("stale timer cleared the indicator")
	}
	fired[1]()
	if c.IsTyping() {
		t.Error("current timer did not clear the indicator")
	}
}

func TestIgnoresSelfAndMalformed(t *testing.T) {
	c, clock, rt := newChannel(t)
	rt.fn(backend.Row{"userId": "me"})
	rt.fn(backend.Row{"name": "nobody"})
	rt.fn(nil)
	if c.IsTyping() || clock.active() != 0 {
		t.Error("self or malformed broadcast raised the indicator")
	}
}

func TestAnnounceThrottledAndBestEffort(t *testing.T) {
	c, _, rt := newChannel(t)
	c.Announce("")
	c.Announce("Me")
	if len(rt.sent) != 1 {
		t.Fatalf("sent %d, want 1 within the announce interval", len(rt.sent))
	}
	if rt.sent[0].String("userId") != "me" || rt.sent[0].String("name") != "User" {
		t.Errorf("payload = %v", rt.sent[0])
	}

	failing := &fakeBroadcast{failing: true}
	New(failing, "c1", "me", Options{}).Announce("Me")
}

func TestCloseDropsStateAndUnsubscribesOnce(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindTypingChanged, 8)
	defer unsub()

	clock := &fakeClock{}
	rt := &fakeBroadcast{}
	c := New(rt, "c1", "me", Options{AfterFunc: clock.AfterFunc, Bus: b})
	_ = c.Open()

	rt.fn(backend.Row{"userId": "other"})
	c.Close()
	c.Close()
	if rt.unsubs != 1 {
		t.Errorf("unsubscribed %d times, want 1", rt.unsubs)
	}
	if c.IsTyping() || clock.active() != 0 {
		t.Error("state survived Close")
	}
	rt.fn(backend.Row{"userId": "other"})
	if c.IsTyping() {
		t.Error("broadcast after Close applied")
	}

	select {
	case evt := <-ch:
		st := evt.Payload.(State)
		if !st.Typing || st.ConversationID != "c1" || st.Typer.UserID != "other" {
			t.Errorf("state = %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for typing.changed")
	}
}
