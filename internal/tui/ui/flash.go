package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/layover/internal/alert"
	"github.com/rivo/tview"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// ActionKey is the key that runs the action of the flash on screen.
const ActionKey = 'o'

// FlashMessage is a flash notification with a level and expiry.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
	Action  *alert.Action
}

// FlashModel holds the transient message shown under the main view.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	now     func() time.Time
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{now: time.Now}
}

// Info sets an info-level flash message.
func (f *FlashModel) Info(msg string) {
	f.set(FlashMessage{Text: msg, Level: FlashInfo}, 5*time.Second)
}

// Warn sets a warn-level flash message.
func (f *FlashModel) Warn(msg string) {
	f.set(FlashMessage{Text: msg, Level: FlashWarn}, 8*time.Second)
}

// Err sets an error-level flash message.
func (f *FlashModel) Err(err error) {
	f.set(FlashMessage{Text: err.Error(), Level: FlashErr}, 10*time.Second)
}

// Alert shows a raised alert. Alerts with an action stay longer so there is
// time to press the action key.
func (f *FlashModel) Alert(a alert.Alert) {
	text := a.Title
	if a.Description != "" {
		text += ": " + a.Description
	}
	level := FlashInfo
	switch a.Variant {
	case alert.Destructive:
		level = FlashErr
	case alert.Blocked:
		level = FlashWarn
	}
	d := 6 * time.Second
	if a.Action != nil {
		d = 12 * time.Second
	}
	f.set(FlashMessage{Text: text, Level: level, Action: a.Action}, d)
}

func (f *FlashModel) set(fm FlashMessage, d time.Duration) {
	fm.Expires = f.now().Add(d)
	f.mu.Lock()
	f.current = fm
	f.mu.Unlock()
}

// Get returns the current flash message text, or empty if expired.
func (f *FlashModel) Get() string {
	if m := f.GetMessage(); m != nil {
		return m.Text
	}
	return ""
}

// GetMessage returns the current flash message, or nil if expired.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || f.now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// TakeAction returns the action of the live flash and clears the flash, so
// an action runs at most once.
func (f *FlashModel) TakeAction() *alert.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current.Action == nil || f.now().After(f.current.Expires) {
		return nil
	}
	a := f.current.Action
	f.current = FlashMessage{}
	return a
}

// FlashBar is the UI component that displays flash notifications.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders a flash message on the bar.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}

	var color string
	switch msg.Level {
	case FlashInfo:
		color = ColorName(fb.theme.FlashInfoColor)
	case FlashWarn:
		color = ColorName(fb.theme.FlashWarnColor)
	case FlashErr:
		color = ColorName(fb.theme.FlashErrColor)
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", color, tview.Escape(msg.Text))
	if msg.Action != nil {
		_, _ = fmt.Fprintf(fb, "  [%s::b]<%c>[-:-:-] %s",
			ColorName(fb.theme.MenuKeyColor), ActionKey, tview.Escape(msg.Action.Label))
	}
}
