// Package tui is the terminal front end of a layover client. It renders
// state from the client bus and drives the session controller.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/layover/internal/auth"
	"github.com/matheus3301/layover/internal/backend"
	"github.com/matheus3301/layover/internal/bus"
	"github.com/matheus3301/layover/internal/chat"
	"github.com/matheus3301/layover/internal/controller"
	"github.com/matheus3301/layover/internal/notify"
	"github.com/matheus3301/layover/internal/status"
	"github.com/matheus3301/layover/internal/tui/keys"
	"github.com/matheus3301/layover/internal/tui/model"
	"github.com/matheus3301/layover/internal/tui/ui"
	"github.com/matheus3301/layover/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageSignIn        = "sign in"
	pageConversations = "conversations"
	pageThread        = "thread"
	pageNotifications = "notifications"
	pageRequests      = "requests"
	pageDetails       = "details"
	pageHelp          = "help"
)

// Deps are the client components the TUI reads and drives.
type Deps struct {
	Profile       string
	Controller    *controller.Controller
	Directory     *chat.Directory
	Session       *auth.Session
	Notifications *notify.Aggregator
	Feed          *notify.Feed
	Store         backend.RecordStore
	Status        *status.Machine
	Bus           *bus.Bus
	Logger        *zap.Logger
}

// App is the main TUI application shell.
type App struct {
	deps   Deps
	logger *zap.Logger

	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	layout   *tview.Flex
	vm       *model.ViewModel
	registry *keys.Registry
	flash    *ui.FlashModel

	info      *ui.SessionInfo
	menu      *ui.Menu
	crumbs    *ui.Crumbs
	prompt    *ui.Prompt
	flashBar  *ui.FlashBar
	statusBar *views.StatusBar
	authView  *views.AuthView
	convList  *views.ConversationList
	thread    *views.MessageThread
	notifs    *views.NotificationList
	requests  *views.RequestList
	details   *views.ConversationInfo
	help      *views.HelpView
	comps     map[string]ui.Component

	tasks   chan func()
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	meID   string
	meName string
}

// controllerSource reads the directory and the open chat screen.
type controllerSource struct {
	ctrl *controller.Controller
	dir  *chat.Directory
}

func (s controllerSource) Conversations() []chat.Conversation { return s.dir.Conversations() }

func (s controllerSource) Screen() (string, []chat.Message, bool) {
	screen := s.ctrl.Screen()
	if screen == nil {
		return "", nil, false
	}
	return screen.ConversationID(), screen.Reconciler.Messages(), screen.Reconciler.AccessDenied()
}

// NewApp creates the TUI application.
func NewApp(deps Deps) *App {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		deps:      deps,
		logger:    deps.Logger.Named("tui"),
		app:       tview.NewApplication(),
		theme:     theme,
		pages:     ui.NewPages(),
		vm:        model.NewViewModel(controllerSource{ctrl: deps.Controller, dir: deps.Directory}),
		registry:  keys.NewRegistry(),
		flash:     ui.NewFlashModel(),
		info:      ui.NewSessionInfo(theme),
		menu:      ui.NewMenu(theme),
		crumbs:    ui.NewCrumbs(theme),
		prompt:    ui.NewPrompt(theme, Commands),
		flashBar:  ui.NewFlashBar(theme),
		statusBar: views.NewStatusBar(theme),
		authView:  views.NewAuthView(theme),
		convList:  views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		notifs:    views.NewNotificationList(theme),
		requests:  views.NewRequestList(theme),
		details:   views.NewConversationInfo(theme),
		help:      views.NewHelpView(theme),
		tasks:     make(chan func(), 64),
		started:   time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(deps.Profile)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("help", &keys.Action{
		Key: tcell.KeyRune, Rune: '?', Help: "Help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Key: tcell.KeyRune, Rune: ':', Help: "Command", Visible: true,
		Handler: func() { a.activatePrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal("notifications", &keys.Action{
		Key: tcell.KeyRune, Rune: 'n', Help: "Notifications", Visible: true,
		Handler: a.showNotifications,
	})
	a.registry.AddGlobal("requests", &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Help: "Requests", Visible: true,
		Handler: func() { a.navigate(controller.RequestsPath) },
	})
	a.registry.AddGlobal("action", &keys.Action{
		Key: tcell.KeyRune, Rune: ui.ActionKey, Help: "Alert action",
		Handler: func() {
			if act := a.flash.TakeAction(); act != nil {
				a.do(act.Do)
			}
			a.flashBar.Update(a.flash.GetMessage())
		},
	})
	a.registry.AddGlobal("back", &keys.Action{
		Key: tcell.KeyEscape, Label: "Esc", Help: "Back",
		Handler: a.back,
	})
	a.registry.AddGlobal("quit", &keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Help: "Quit", Visible: true,
		Handler: a.app.Stop,
	})

	a.registry.AddView(pageConversations, "filter", &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Help: "Filter", Visible: true,
		Handler: func() { a.activatePrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageConversations, "clear", &keys.Action{
		Key: tcell.KeyRune, Rune: '0', Help: "Clear filter",
		Handler: a.convList.ClearFilter,
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageConversations, fmt.Sprintf("jump%d", n), &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() {
				if id := a.convList.ConversationByIndex(n); id != "" {
					a.navigate(controller.ChatPath(id))
				}
			},
		})
	}

	a.registry.AddView(pageThread, "compose", &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Help: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, "details", &keys.Action{
		Key: tcell.KeyRune, Rune: 'd', Help: "Details", Visible: true,
		Handler: a.showDetails,
	})

	a.registry.AddView(pageNotifications, "dismiss", &keys.Action{
		Key: tcell.KeyRune, Rune: 'x', Help: "Dismiss", Visible: true,
		Handler: func() {
			n, ok := a.notifs.Selected()
			if !ok {
				return
			}
			a.do(func() { a.report(a.deps.Notifications.Delete(a.userContext(), n.ID)) })
		},
	})
	a.registry.AddView(pageNotifications, "read", &keys.Action{
		Key: tcell.KeyRune, Rune: 'a', Help: "Mark all read", Visible: true,
		Handler: func() { a.command(Command{Name: "read"}) },
	})

	answer := func(verb string, incoming bool) func() {
		return func() {
			r, in, ok := a.requests.Selected()
			if !ok || in != incoming {
				return
			}
			a.command(Command{Name: verb, Args: r.ID})
		}
	}
	a.registry.AddView(pageRequests, "accept", &keys.Action{
		Key: tcell.KeyRune, Rune: 'y', Help: "Accept", Handler: answer("accept", true),
	})
	a.registry.AddView(pageRequests, "decline", &keys.Action{
		Key: tcell.KeyRune, Rune: 'D', Help: "Decline", Handler: answer("decline", true),
	})
	a.registry.AddView(pageRequests, "cancel", &keys.Action{
		Key: tcell.KeyRune, Rune: 'c', Help: "Cancel sent", Handler: answer("cancel", false),
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectionChangedFunc(func(row, _ int) {
		id := a.convList.ConversationAt(row)
		if id == "" || id == a.vm.ConversationID() || a.deps.Controller.UserID() == "" {
			return
		}
		a.do(func() {
			if err := a.deps.Controller.Preview(id); err != nil {
				a.logger.Debug("preview failed", zap.String("conversation_id", id), zap.Error(err))
			}
		})
	})
	a.convList.SetSelectedFunc(func(row, _ int) {
		if id := a.convList.ConversationAt(row); id != "" {
			a.navigate(controller.ChatPath(id))
		}
	})

	a.notifs.SetSelectedFunc(func(int, int) {
		n, ok := a.notifs.Selected()
		if !ok {
			return
		}
		a.do(func() {
			a.report(a.deps.Notifications.MarkRead(a.userContext(), n.ID))
			if n.Link != "" {
				a.deps.Controller.Navigate(n.Link)
			}
		})
	})

	a.thread.SetOnSend(func(text string) {
		convID := a.thread.ConversationID()
		a.do(func() {
			actions := a.deps.Controller.Actions()
			if actions == nil || convID == "" {
				a.report(errSignedOut)
				return
			}
			if _, err := actions.Send(a.userContext(), convID, text); err != nil {
				a.logger.Debug("send failed", zap.Error(err))
			}
		})
	})
	a.thread.SetOnType(func() {
		a.do(func() {
			if screen := a.deps.Controller.Screen(); screen != nil {
				screen.Typing.Announce(a.selfName())
			}
		})
	})

	a.authView.SetOnSignIn(func(token string) {
		a.do(func() {
			if _, err := a.deps.Session.SignIn(token); err != nil {
				a.app.QueueUpdateDraw(func() { a.authView.ShowError(err) })
			}
		})
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.convList.SetFilter(text)
		case ui.PromptCommand:
			a.command(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func([]string) { a.renderChrome() })
}

func (a *App) setupLayout() {
	for _, c := range []ui.Component{a.authView, a.convList, a.thread, a.notifs, a.requests, a.details, a.help} {
		a.pages.AddPage(c.Name(), c, true, false)
	}
	a.comps = map[string]ui.Component{
		pageSignIn:        a.authView,
		pageConversations: a.convList,
		pageThread:        a.thread,
		pageNotifications: a.notifs,
		pageRequests:      a.requests,
		pageDetails:       a.details,
		pageHelp:          a.help,
	}

	header := tview.NewFlex().
		AddItem(a.info, 40, 0, false).
		AddItem(a.menu, 0, 1, false)

	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.layout, true)
	a.app.SetInputCapture(a.capture)
	a.pages.Reset(pageSignIn)
}

func (a *App) capture(event *tcell.EventKey) *tcell.EventKey {
	if a.app.GetFocus() == a.thread.Composer() && event.Key() == tcell.KeyEscape {
		a.app.SetFocus(a.thread.Messages())
		return nil
	}
	// Text inputs own every other key.
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		return event
	}
	if a.registry.HandleEvent(a.pages.Current(), event) {
		return nil
	}
	return event
}

// Run starts the TUI and blocks until it is stopped.
func (a *App) Run() error {
	var unsubs []func()
	for _, ns := range model.Namespaces {
		ch, unsub := a.deps.Bus.Subscribe(ns, 256)
		unsubs = append(unsubs, unsub)
		go a.pump(ch)
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()
	go a.work()
	go a.tick()

	a.seed()
	return a.app.Run()
}

// seed loads what happened before Run subscribed to the bus.
func (a *App) seed() {
	change := a.vm.Refresh()
	change |= a.vm.Apply(bus.Event{Kind: bus.KindSessionStatus, Payload: status.StatusChange{To: a.deps.Status.Current()}})
	if a.deps.Feed != nil {
		change |= a.vm.Apply(bus.Event{Kind: bus.KindNotificationsChanged, Payload: a.deps.Feed.Notifications()})
	}
	a.do(a.loadSelf)
	a.render(change | model.ChangeRoute)
}

func (a *App) pump(ch <-chan bus.Event) {
	for evt := range ch {
		change := a.vm.Apply(evt)
		if change == model.ChangeNone {
			continue
		}
		if change.Has(model.ChangeStatus) {
			a.do(a.loadSelf)
		}
		a.app.QueueUpdateDraw(func() { a.render(change) })
	}
}

// work runs backend calls off the UI goroutine, one at a time and in the
// order they were requested.
func (a *App) work() {
	for {
		select {
		case fn := <-a.tasks:
			fn()
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) do(fn func()) {
	select {
	case a.tasks <- fn:
	default:
		a.logger.Warn("task queue full, dropping request")
	}
}

func (a *App) tick() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.renderChrome)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) render(change model.Change) {
	if change.Has(model.ChangeStatus) {
		a.statusBar.SetStatus(a.vm.Status())
	}
	if change.Has(model.ChangeStatus) || change.Has(model.ChangeRoute) {
		a.applyRoute()
	}
	if change.Has(model.ChangeConversations) || change.Has(model.ChangeNotifications) || change.Has(model.ChangePresence) {
		notifications := a.vm.Notifications()
		a.convList.Update(a.vm.Conversations(), unreadByConversation(notifications))
		a.notifs.Update(notifications)
		if change.Has(model.ChangeNotifications) && a.pages.Current() == pageRequests {
			a.do(a.loadRequests)
		}
	}
	if change.Has(model.ChangeMessages) || change.Has(model.ChangeConversations) {
		a.renderThread()
	}
	if change.Has(model.ChangeTyping) {
		typer, ok := a.vm.Typer()
		a.thread.SetTyping(typer.Name, ok)
	}
	if change.Has(model.ChangeAlert) {
		for _, al := range a.vm.TakeAlerts() {
			a.flash.Alert(al)
		}
	}
	a.renderChrome()
}

func (a *App) renderThread() {
	id := a.vm.ConversationID()
	if id == "" {
		return
	}
	name := "Unknown"
	if conv, ok := a.vm.Conversation(id); ok {
		name = conv.Name
	}
	a.thread.SetConversation(id, name)
	a.thread.Update(a.vm.Messages(), a.deps.Controller.UserID(), a.vm.AccessDenied())
}

// renderChrome redraws everything around the current page.
func (a *App) renderChrome() {
	online := 0
	convs := a.vm.Conversations()
	for _, c := range convs {
		if c.Online {
			online++
		}
	}
	unread := a.vm.Unread()

	a.statusBar.SetCounts(online, unread)
	a.flashBar.Update(a.flash.GetMessage())
	a.info.Update(&ui.SessionData{
		Profile:       a.deps.Profile,
		User:          a.selfName(),
		Status:        string(a.vm.Status()),
		Conversations: len(convs),
		Online:        online,
		Unread:        unread,
		Uptime:        time.Since(a.started),
	})

	page := a.pages.Current()
	if c, ok := a.comps[page]; ok {
		a.menu.Update(append(c.Hints(), a.registry.Hints(page)...))
	}
	trail := ui.Trail(a.vm.Path(), func(seg string) string {
		if conv, ok := a.vm.Conversation(seg); ok {
			return conv.Name
		}
		return ""
	})
	if page == pageDetails || page == pageHelp || page == pageSignIn {
		trail = append(trail, page)
	}
	a.crumbs.Update(trail)
}

// applyRoute shows the page of the current path. Signed out sessions only
// get the sign-in page.
func (a *App) applyRoute() {
	switch a.vm.Status() {
	case status.SignedOut, status.Booting, status.Error:
		if a.pages.Current() != pageSignIn {
			a.pages.Reset(pageSignIn)
		}
		a.app.SetFocus(a.authView.Input())
		return
	}

	path := a.vm.Path()
	a.pages.Reset(pageConversations)
	switch {
	case strings.HasPrefix(path, controller.ChatPrefix):
		a.renderThread()
		a.pages.Push(pageThread)
		a.app.SetFocus(a.thread.Messages())
	case path == controller.RequestsPath || strings.HasPrefix(path, controller.RequestsPath+"/"):
		a.pages.Push(pageRequests)
		a.app.SetFocus(a.requests)
		a.do(a.loadRequests)
	default:
		a.convList.SelectConversation(a.vm.ConversationID())
		a.app.SetFocus(a.convList)
	}
}

func (a *App) showNotifications() {
	if a.pages.Current() == pageSignIn {
		return
	}
	a.notifs.SetOnly("")
	a.notifs.Update(a.vm.Notifications())
	a.push(pageNotifications)
}

func (a *App) showDetails() {
	conv, ok := a.vm.Conversation(a.vm.ConversationID())
	if !ok {
		return
	}
	a.details.Update(conv, len(a.vm.Messages()))
	a.push(pageDetails)
}

func (a *App) push(page string) {
	a.pages.Show(page)
	if c, ok := a.comps[page]; ok {
		a.app.SetFocus(c)
	}
}

// back leaves the current page. Route pages go home, overlays pop.
func (a *App) back() {
	switch a.pages.Current() {
	case pageThread:
		a.navigate(controller.HomePath)
	case pageRequests:
		a.navigate(controller.HomePath)
	case pageNotifications:
		a.pop()
	case pageDetails, pageHelp:
		a.pop()
	case pageConversations:
		a.convList.ClearFilter()
	}
}

func (a *App) pop() {
	a.pages.Pop()
	if c, ok := a.comps[a.pages.Current()]; ok {
		a.app.SetFocus(c)
	}
}

func (a *App) navigate(path string) {
	a.do(func() { a.deps.Controller.Navigate(path) })
}

func (a *App) command(cmd Command) {
	a.do(func() { a.report(a.runCommand(cmd)) })
}

// report flashes err, if any. Safe from any goroutine.
func (a *App) report(err error) {
	if err == nil {
		return
	}
	a.flash.Err(err)
	a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.GetMessage()) })
}

func (a *App) activatePrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.layout.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.layout.ResizeItem(a.prompt, 0, 0)
	if c, ok := a.comps[a.pages.Current()]; ok {
		a.app.SetFocus(c)
	}
}

func (a *App) userContext() context.Context {
	return backend.WithUser(a.ctx, a.deps.Controller.UserID())
}

// loadSelf caches the display name of the signed-in user.
func (a *App) loadSelf() {
	id := a.deps.Controller.UserID()
	a.mu.Lock()
	cached := a.meID
	a.mu.Unlock()
	if id == cached {
		return
	}
	name := ""
	if id != "" {
		rows, err := a.deps.Store.Select(backend.WithUser(a.ctx, id), chat.TableUsers, backend.Eq("id", id).Take(1))
		if err != nil {
			a.logger.Debug("load profile failed", zap.Error(err))
		} else if len(rows) == 1 {
			name = rows[0].String("name")
		}
	}
	a.mu.Lock()
	a.meID, a.meName = id, name
	a.mu.Unlock()
}

func (a *App) selfName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.meName
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// loadRequests fetches pending requests for the requests page. It runs on
// the task queue.
func (a *App) loadRequests() {
	actions := a.deps.Controller.Actions()
	if actions == nil {
		return
	}
	incoming, outgoing, err := actions.Requests(a.userContext())
	if err != nil {
		a.report(err)
		return
	}
	focus, _ := strings.CutPrefix(a.vm.Path(), controller.RequestsPath+"/")
	a.app.QueueUpdateDraw(func() {
		a.requests.Update(incoming, outgoing)
		if focus != "" {
			a.requests.SelectRequest(focus)
		}
	})
}

// unreadByConversation counts unread message notifications per conversation.
func unreadByConversation(items []notify.Notification) map[string]int {
	out := make(map[string]int)
	for _, n := range items {
		if n.Read || n.Type != notify.TypeMessage {
			continue
		}
		if id, ok := strings.CutPrefix(n.Link, controller.ChatPrefix); ok && id != "" {
			out[id]++
		}
	}
	return out
}
