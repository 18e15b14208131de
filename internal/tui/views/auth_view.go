package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/layover/internal/tui/ui"
	"github.com/rivo/tview"
)

// AuthView is shown while signed out. It takes a session token.
type AuthView struct {
	*tview.Flex
	theme    *ui.Theme
	message  *tview.TextView
	input    *tview.InputField
	onSignIn func(token string)
}

// NewAuthView creates a new sign-in view.
func NewAuthView(theme *ui.Theme) *AuthView {
	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	message.SetBackgroundColor(theme.BgColor)
	message.SetTextColor(theme.FgColor)

	input := tview.NewInputField().
		SetLabel(" token: ").
		SetFieldWidth(0).
		SetMaskCharacter('*')
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(message, 0, 1, false).
		AddItem(input, 3, 0, true)
	flex.SetBorder(true)
	flex.SetBorderColor(theme.BorderColor)
	flex.SetBackgroundColor(theme.BgColor)
	flex.SetTitle(" Sign In ")
	flex.SetTitleColor(theme.TitleColor)

	av := &AuthView{
		Flex:    flex,
		theme:   theme,
		message: message,
		input:   input,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		token := strings.TrimSpace(input.GetText())
		input.SetText("")
		if token != "" && av.onSignIn != nil {
			av.onSignIn(token)
		}
	})
	av.ShowMessage("Paste a session token to sign in.\n\n[::d]layoverctl token <user> prints one.")
	return av
}

// Name implements ui.Component.
func (av *AuthView) Name() string { return "sign in" }

// Hints implements ui.Component.
func (av *AuthView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Sign in"},
	}
}

// SetOnSignIn sets the callback for a submitted token.
func (av *AuthView) SetOnSignIn(fn func(token string)) {
	av.onSignIn = fn
}

// ShowMessage displays a status message above the input.
func (av *AuthView) ShowMessage(msg string) {
	av.message.Clear()
	_, _ = fmt.Fprintf(av.message, "\n\n%s", msg)
}

// ShowError displays a failed sign-in.
func (av *AuthView) ShowError(err error) {
	av.ShowMessage(fmt.Sprintf("[%s]%s[-]\n\nPaste a session token to sign in.",
		ui.ColorName(av.theme.FlashErrColor), tview.Escape(err.Error())))
}

// Input returns the token field (for focus management).
func (av *AuthView) Input() *tview.InputField {
	return av.input
}
