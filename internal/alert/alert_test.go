package alert

import (
	"testing"
	"time"

	"github.com/matheus3301/layover/internal/bus"
)

func TestBusSinkPublishes(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindAlertRaised, 1)
	defer unsub()

	NewBusSink(b, nil).Raise(Alert{Title: "New message"})
	select {
	case evt := <-ch:
		a := evt.Payload.(Alert)
		if a.Title != "New message" || a.Variant != Default {
			t.Errorf("alert = %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for alert")
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Raise(Alert{Title: "a"})
	got := r.Alerts()
	got[0].Title = "changed"
	if r.Alerts()[0].Title != "a" {
		t.Error("Alerts() exposed internal slice")
	}
}
