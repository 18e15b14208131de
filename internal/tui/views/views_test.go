package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/notify"
	"github.com/matheus3301/layover/internal/tui/ui"
)

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"👍\U0001F3FD", "👍"},
		{"❤️", "❤"},
		{"👨‍👩", "👨👩"},
		{"red\x1b[31m", "red[31m"},
		{"line one\nline\ttwo", "line one\nline two"},
	}
	for _, tt := range tests {
		if got := sanitizeForTerminal(tt.in); got != tt.want {
			t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSingleLine(t *testing.T) {
	if got := singleLine("  Ana\n  from\r\nLisbon "); got != "Ana from Lisbon" {
		t.Errorf("singleLine = %q", got)
	}
}

func TestReactionLineGroupsByEmoji(t *testing.T) {
	got := reactionLine([]chat.Reaction{
		{UserID: "a", Emoji: "🎉"},
		{UserID: "b", Emoji: "👍"},
		{UserID: "c", Emoji: "🎉"},
	})
	if got != "  🎉 2  👍" {
		t.Errorf("reactionLine = %q", got)
	}
	if reactionLine(nil) != "" {
		t.Error("empty reactions rendered")
	}
}

func TestConversationListFilterAndSelection(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	now := time.Now()
	cl.Update([]chat.Conversation{
		{ID: "c1", Name: "Bea", LastMessage: "see you in Lisbon", LastMessageAt: now},
		{ID: "c2", Name: "Caio", LastMessage: "hi", Online: true},
	}, map[string]int{"c2": 3})

	if got := cl.ConversationByIndex(2); got != "c2" {
		t.Errorf("second conversation = %q", got)
	}
	if got := cl.GetCell(2, 1).Text; !strings.Contains(got, "(3) Caio") {
		t.Errorf("unread badge missing: %q", got)
	}

	cl.SetFilter("lisbon")
	if got := cl.ConversationByIndex(1); got != "c1" {
		t.Errorf("filtered first = %q", got)
	}
	if got := cl.ConversationByIndex(2); got != "" {
		t.Errorf("filtered second = %q", got)
	}

	cl.ClearFilter()
	cl.SelectConversation("c2")
	if got := cl.SelectedConversation(); got != "c2" {
		t.Errorf("selected = %q", got)
	}
	if conv, ok := cl.Find("cai"); !ok || conv.ID != "c2" {
		t.Errorf("Find = %+v, %v", conv, ok)
	}
}

func TestNotificationListFiltersByType(t *testing.T) {
	nl := NewNotificationList(ui.DefaultTheme())
	nl.SetOnly(notify.TypeRequest)
	nl.Update([]notify.Notification{
		{ID: "n1", Type: notify.TypeMessage, Title: "New Message"},
		{ID: "n2", Type: notify.TypeRequest, Title: "New Travel Request"},
	})
	if got := nl.GetTitle(); !strings.Contains(got, "Travel Requests (1 unread)") {
		t.Errorf("title = %q", got)
	}
	nl.Select(1, 0)
	n, ok := nl.Selected()
	if !ok || n.ID != "n2" {
		t.Errorf("selected = %+v, %v", n, ok)
	}
	nl.Select(2, 0)
	if _, ok := nl.Selected(); ok {
		t.Error("row past the list selected")
	}
}

func TestRequestListSelection(t *testing.T) {
	rl := NewRequestList(ui.DefaultTheme())
	rl.Update(
		[]chat.Request{{ID: "r1", FromUser: "b", ToUser: "a", Name: "Bea", TripID: "t1"}},
		[]chat.Request{{ID: "r2", FromUser: "a", ToUser: "c", Name: "Caio"}},
	)
	if got := rl.GetTitle(); !strings.Contains(got, "1 incoming, 1 sent") {
		t.Errorf("title = %q", got)
	}

	rl.SelectRequest("r2")
	r, incoming, ok := rl.Selected()
	if !ok || r.ID != "r2" || incoming {
		t.Errorf("selected = %+v, incoming=%v, ok=%v", r, incoming, ok)
	}
	rl.SelectRequest("r1")
	if r, incoming, ok := rl.Selected(); !ok || r.ID != "r1" || !incoming {
		t.Errorf("selected = %+v, incoming=%v, ok=%v", r, incoming, ok)
	}

	rl.Update(nil, nil)
	if _, _, ok := rl.Selected(); ok {
		t.Error("empty list has a selection")
	}
}
