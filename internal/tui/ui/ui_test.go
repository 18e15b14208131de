package ui

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/layover/internal/alert"
	"github.com/rivo/tview"
)

func TestFlashExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	f.Info("saved")
	if f.Get() != "saved" {
		t.Fatalf("Get() = %q", f.Get())
	}
	now = now.Add(6 * time.Second)
	if f.GetMessage() != nil {
		t.Error("info flash outlived its expiry")
	}

	f.Err(errors.New("boom"))
	if m := f.GetMessage(); m == nil || m.Level != FlashErr {
		t.Errorf("error flash = %+v", m)
	}
}

func TestFlashActionRunsOnce(t *testing.T) {
	now := time.Unix(1000, 0)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	ran := 0
	f.Alert(alert.Alert{
		Title:       "New Message",
		Description: "Bea: hi",
		Action:      &alert.Action{Label: "Open", Do: func() { ran++ }},
	})
	if got := f.Get(); got != "New Message: Bea: hi" {
		t.Errorf("text = %q", got)
	}
	now = now.Add(10 * time.Second)
	act := f.TakeAction()
	if act == nil {
		t.Fatal("no action while the alert is on screen")
	}
	act.Do()
	if f.TakeAction() != nil || f.GetMessage() != nil {
		t.Error("action available twice")
	}
	if ran != 1 {
		t.Errorf("ran = %d", ran)
	}
}

func TestFlashAlertLevels(t *testing.T) {
	f := NewFlashModel()
	f.Alert(alert.Alert{Title: "Blocked", Variant: alert.Blocked})
	if m := f.GetMessage(); m == nil || m.Level != FlashWarn {
		t.Errorf("blocked = %+v", m)
	}
	f.Alert(alert.Alert{Title: "Failed", Variant: alert.Destructive})
	if m := f.GetMessage(); m == nil || m.Level != FlashErr {
		t.Errorf("destructive = %+v", m)
	}
}

func TestTrail(t *testing.T) {
	names := map[string]string{"c1": "Bea"}
	label := func(seg string) string { return names[seg] }

	tests := []struct {
		path string
		want []string
	}{
		{"/", []string{"home"}},
		{"/chat/c1", []string{"home", "chat", "Bea"}},
		{"/requests/r1", []string{"home", "requests", "r1"}},
	}
	for _, tt := range tests {
		if got := Trail(tt.path, label); !slices.Equal(got, tt.want) {
			t.Errorf("Trail(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if got := Trail("/chat/c1", nil); !slices.Equal(got, []string{"home", "chat", "c1"}) {
		t.Errorf("Trail without labels = %v", got)
	}
}

func TestPagesStack(t *testing.T) {
	p := NewPages()
	for _, name := range []string{"conversations", "thread", "details", "help"} {
		p.AddPage(name, tview.NewBox(), true, false)
	}
	var seen [][]string
	p.SetOnChange(func(stack []string) { seen = append(seen, stack) })

	p.Reset("conversations")
	p.Push("thread")
	p.Push("details")
	p.Show("thread")
	if got := p.Stack(); !slices.Equal(got, []string{"conversations", "thread"}) {
		t.Errorf("after Show = %v", got)
	}
	p.Show("help")
	if p.Current() != "help" {
		t.Errorf("current = %q", p.Current())
	}
	if p.Pop() != "help" || p.Pop() != "thread" {
		t.Error("pop order")
	}
	if p.Pop() != "" || p.Current() != "conversations" {
		t.Error("root page popped")
	}
	if len(seen) != 7 {
		t.Errorf("%d change notifications, want 7", len(seen))
	}
}

func TestMenuPageHintsShadowGlobals(t *testing.T) {
	m := NewMenu(DefaultTheme())
	m.Update([]MenuHint{
		{Key: "enter", Description: "Open chat"},
		{Key: "enter", Description: "Select"},
		{Key: "?", Description: "Help"},
	})
	got := m.GetText(true)
	if !strings.Contains(got, "<enter> Open chat") || strings.Contains(got, "Select") {
		t.Errorf("menu = %q", got)
	}
	if !strings.Contains(got, "<?> Help") {
		t.Errorf("global hint missing: %q", got)
	}
}
