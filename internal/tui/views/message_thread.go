package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays the messages of one conversation, the typing line
// and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	typing   *tview.TextView
	composer *tview.InputField
	convName string
	convID   string
	onSend   func(text string)
	onType   func()
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	typingLine := tview.NewTextView().
		SetDynamicColors(true)
	typingLine.SetBackgroundColor(theme.BgColor)
	typingLine.SetTextColor(theme.TypingColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typingLine, 1, 0, false).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		typing:   typingLine,
		composer: composer,
	}

	composer.SetChangedFunc(func(text string) {
		if text != "" && mt.onType != nil {
			mt.onType()
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := strings.TrimSpace(composer.GetText())
			if text != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string { return "thread" }

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetConversation updates the conversation on screen.
func (mt *MessageThread) SetConversation(id, name string) {
	if id != mt.convID {
		mt.composer.SetText("")
	}
	mt.convID = id
	mt.convName = name
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(singleLine(name))))
}

// ConversationID returns the conversation on screen.
func (mt *MessageThread) ConversationID() string {
	return mt.convID
}

// SetOnSend sets the callback when a message is sent.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnType sets the callback for every edit of the composer text.
func (mt *MessageThread) SetOnType(fn func()) {
	mt.onType = fn
}

// Update renders msgs, oldest first. me is the current user id.
func (mt *MessageThread) Update(msgs []chat.Message, me string, denied bool) {
	mt.messages.Clear()

	if denied {
		_, _ = fmt.Fprintf(mt.messages, "[%s]This conversation is not available.[-]\n",
			ui.ColorName(mt.theme.FlashWarnColor))
		return
	}
	if len(msgs) == 0 {
		_, _ = fmt.Fprintf(mt.messages, "[%s]No messages yet.[-]\n", ui.ColorName(mt.theme.DimColor))
		return
	}

	dim := ui.ColorName(mt.theme.DimColor)
	for _, m := range msgs {
		sender := mt.convName
		color := ui.ColorName(mt.theme.FgColor)
		if m.SenderID == me {
			sender = "You"
			color = ui.ColorName(mt.theme.OwnMessageColor)
		}

		var meta []string
		meta = append(meta, formatTimestamp(m.Timestamp))
		if m.Edited {
			meta = append(meta, "edited")
		}
		if m.SenderID == me && m.Read {
			meta = append(meta, "read")
		}

		body := m.Text
		if m.Kind == chat.KindImage {
			body = strings.TrimSpace("[image] " + m.ImageURL + " " + m.Text)
		} else if body == "" {
			body = m.Preview()
		}

		_, _ = fmt.Fprintf(mt.messages, "[%s::b]%s[-:-:-] [%s]%s[-]\n%s\n",
			color, tview.Escape(singleLine(sender)),
			dim, strings.Join(meta, " · "),
			tview.Escape(sanitizeForTerminal(body)))
		if r := reactionLine(m.Reactions); r != "" {
			_, _ = fmt.Fprintf(mt.messages, "%s\n", r)
		}
		_, _ = fmt.Fprintln(mt.messages)
	}

	mt.messages.ScrollToEnd()
}

// SetTyping shows or clears the typing line.
func (mt *MessageThread) SetTyping(name string, typing bool) {
	mt.typing.Clear()
	if !typing {
		return
	}
	if name == "" {
		name = mt.convName
	}
	_, _ = fmt.Fprintf(mt.typing, " [::i]%s is typing...[-:-:-]", tview.Escape(singleLine(name)))
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

// reactionLine groups reactions by emoji, in first-seen order.
func reactionLine(rs []chat.Reaction) string {
	if len(rs) == 0 {
		return ""
	}
	var order []string
	counts := make(map[string]int)
	for _, r := range rs {
		if counts[r.Emoji] == 0 {
			order = append(order, r.Emoji)
		}
		counts[r.Emoji]++
	}
	parts := make([]string, 0, len(order))
	for _, e := range order {
		shown := singleLine(e)
		if counts[e] > 1 {
			shown = fmt.Sprintf("%s %d", shown, counts[e])
		}
		parts = append(parts, shown)
	}
	return "  " + strings.Join(parts, "  ")
}
