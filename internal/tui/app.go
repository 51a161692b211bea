// Package tui is the interactive terminal client.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/picklepick/ppchat/internal/api"
	"github.com/picklepick/ppchat/internal/bus"
	"github.com/picklepick/ppchat/internal/chat"
	"github.com/picklepick/ppchat/internal/inbox"
	"github.com/picklepick/ppchat/internal/status"
	"github.com/picklepick/ppchat/internal/tui/keys"
	"github.com/picklepick/ppchat/internal/tui/model"
	"github.com/picklepick/ppchat/internal/tui/ui"
	"github.com/picklepick/ppchat/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageInbox   = "inbox"
	pageChat    = "chat"
	pageDetails = "details"
	pageSearch  = "search"
	pageHelp    = "help"
)

const (
	headerHeight = 6
	promptHeight = 3
	tickInterval = time.Second
)

// Deps are the collaborators of an App.
type Deps struct {
	VM      *model.ViewModel
	Bus     *bus.Bus
	Refresh func(ctx context.Context) error // one inbox fetch, for :refresh
	Logger  *zap.Logger
	Theme   *ui.Theme // nil selects ui.DefaultTheme
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	vm       *model.ViewModel
	bus      *bus.Bus
	refresh  func(ctx context.Context) error
	logger   *zap.Logger
	registry *keys.Registry

	root   *tview.Flex
	pages  *ui.Pages
	crumbs *ui.Crumbs
	menu   *ui.Menu
	info   *ui.SessionInfo
	flash  *ui.FlashBar
	prompt *ui.Prompt

	inbox      *views.ConversationList
	thread     *views.MessageThread
	details    *views.ConversationInfo
	search     *views.SearchView
	help       *views.HelpView
	components map[string]ui.Component

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(deps Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	theme := deps.Theme
	if theme == nil {
		theme = ui.DefaultTheme()
	}

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		vm:       deps.VM,
		bus:      deps.Bus,
		refresh:  deps.Refresh,
		logger:   logger,
		registry: keys.NewRegistry(),
		pages:    ui.NewPages(),
		crumbs:   ui.NewCrumbs(theme),
		menu:     ui.NewMenu(theme),
		info:     ui.NewSessionInfo(theme),
		flash:    ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),
		inbox:    views.NewConversationList(theme, deps.VM.Self().ID),
		thread:   views.NewMessageThread(theme, deps.VM.Self().ID),
		details:  views.NewConversationInfo(theme),
		search:   views.NewSearchView(theme),
		help:     views.NewHelpView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.components = map[string]ui.Component{
		pageInbox:   a.inbox,
		pageChat:    a.thread,
		pageDetails: a.details,
		pageSearch:  a.search,
		pageHelp:    a.help,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("command", &keys.Action{
		Key: tcell.KeyRune, Rune: ':',
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Key: tcell.KeyRune, Rune: '?',
		Handler: func() { a.pages.Push(pageHelp) },
	})
	a.registry.AddGlobal("back", &keys.Action{
		Key:     tcell.KeyEscape,
		Handler: a.back,
	})
	a.registry.AddGlobal("quit", &keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Handler: func() {
			if a.pages.Depth() <= 1 {
				a.Stop()
				return
			}
			a.back()
		},
	})

	a.registry.AddView(pageInbox, "filter", &keys.Action{
		Key: tcell.KeyRune, Rune: '/',
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageInbox, "details", &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Handler: func() { a.showDetails(a.inbox.SelectedChat()) },
	})
	a.registry.AddView(pageInbox, "clear-filter", &keys.Action{
		Key: tcell.KeyRune, Rune: '0',
		Handler: a.inbox.ClearFilter,
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageInbox, fmt.Sprintf("jump-%d", n), &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() { a.openChat(a.inbox.ChatByIndex(n)) },
		})
	}

	a.registry.AddView(pageChat, "compose", &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageChat, "details", &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Handler: func() { a.showDetails(a.thread.CounterpartID()) },
	})
}

func (a *App) setupCallbacks() {
	a.inbox.SetSelectedFunc(func(row, _ int) {
		a.openChat(a.inbox.ChatByIndex(row))
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			err := a.vm.Send(a.ctx, text)
			a.app.QueueUpdateDraw(func() {
				a.thread.SendFinished(err == nil)
				if err != nil {
					a.reportSendError(err)
					return
				}
				a.thread.Update(a.vm.Messages())
			})
		}()
	})

	a.search.SetOnQuery(a.runSearch)
	a.search.Results().SetSelectedFunc(func(_, _ int) {
		a.openChat(a.search.SelectedResult())
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.inbox.SetFilter(text)
		case ui.PromptCommand:
			if text != "" {
				a.runCommand(text)
			}
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func([]string) {
		a.crumbs.Update(a.crumbNames())
		current := a.pages.Current()
		a.menu.Update(a.components[current].Hints())
		a.app.SetFocus(a.focusTarget(current))
	})
	a.pages.SetOnPop(func(name string) {
		if name == pageChat {
			a.vm.CloseChat()
		}
	})
}

func (a *App) setupLayout() {
	for name, c := range a.components {
		a.pages.AddPage(name, c, true, false)
	}

	header := tview.NewFlex().
		AddItem(a.info, 34, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(ui.NewLogo(a.theme), 18, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, headerHeight, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flash, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if a.prompt.Active() {
		return event
	}
	current := a.pages.Current()

	// Text inputs get every key except the ones that leave them.
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		switch {
		case event.Key() == tcell.KeyEscape && current == pageChat:
			a.app.SetFocus(a.thread.Messages())
			return nil
		case event.Key() == tcell.KeyEscape:
			a.back()
			return nil
		case event.Key() == tcell.KeyTab && current == pageSearch:
			a.app.SetFocus(a.search.Results())
			return nil
		}
		return event
	}

	if event.Key() == tcell.KeyTab && current == pageSearch {
		a.app.SetFocus(a.search.Input())
		return nil
	}
	if a.registry.HandleEvent(current, event) {
		return nil
	}
	return event
}

func (a *App) focusTarget(page string) tview.Primitive {
	switch page {
	case pageChat:
		return a.thread.Messages()
	case pageSearch:
		return a.search.Input()
	default:
		return a.components[page]
	}
}

func (a *App) back() {
	a.pages.Pop()
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	if mode == ui.PromptFilter {
		a.prompt.SetText(a.inbox.Filter())
	}
	a.root.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.app.SetFocus(a.focusTarget(a.pages.Current()))
}

// openChat shows the conversation with counterpartID, closing any other.
func (a *App) openChat(counterpartID string) {
	if counterpartID == "" {
		return
	}
	name := counterpartID
	if c, ok := a.vm.Conversation(counterpartID); ok && c.CounterpartName != "" {
		name = c.CounterpartName
	}
	if _, err := a.vm.OpenChat(a.ctx, counterpartID); err != nil {
		a.logger.Warn("open conversation failed", zap.String("counterpart", counterpartID), zap.Error(err))
		a.vm.Flash.Err(fmt.Errorf("open %s: %w", counterpartID, err))
		return
	}
	a.thread.Reset(counterpartID, name)
	a.thread.Update(a.vm.Messages())
	a.pages.Push(pageChat)
	// Push is a no-op when a chat is already on top; the title changed.
	a.crumbs.Update(a.crumbNames())
}

func (a *App) crumbNames() []string {
	stack := a.pages.Stack()
	names := make([]string, len(stack))
	for i, p := range stack {
		names[i] = a.components[p].Name()
	}
	return names
}

func (a *App) showDetails(counterpartID string) {
	if counterpartID == "" {
		return
	}
	c, ok := a.vm.Conversation(counterpartID)
	if !ok {
		a.vm.Flash.Warn("no inbox entry for " + counterpartID)
		return
	}
	a.details.Update(c)
	a.pages.Push(pageDetails)
}

func (a *App) runCommand(text string) {
	cmd, err := ParseCommand(text)
	if err != nil {
		a.vm.Flash.Warn(err.Error())
		return
	}
	switch cmd.Name {
	case CmdQuit:
		a.Stop()
	case CmdHelp:
		a.pages.Push(pageHelp)
	case CmdChat:
		a.openChat(cmd.Args)
	case CmdSearch:
		a.search.SetQuery(cmd.Args)
		a.pages.Push(pageSearch)
		a.runSearch(cmd.Args)
	case CmdInbox:
		a.pages.Reset(pageInbox)
	case CmdRefresh:
		if a.refresh == nil {
			return
		}
		go func() {
			if err := a.refresh(a.ctx); err != nil {
				a.vm.Flash.Err(fmt.Errorf("inbox refresh failed: %w", err))
				return
			}
			a.vm.Flash.Info("inbox refreshed")
		}()
	}
}

func (a *App) runSearch(query string) {
	go func() {
		results, err := a.vm.Search(query)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				if errors.Is(err, model.ErrNoHistory) {
					a.vm.Flash.Warn(err.Error())
				} else {
					a.vm.Flash.Err(fmt.Errorf("search failed: %w", err))
				}
				return
			}
			a.search.Update(results)
			if len(results) > 0 {
				a.app.SetFocus(a.search.Results())
			}
		})
	}()
}

func (a *App) reportSendError(err error) {
	var ve *chat.ValidationError
	var te *api.TransportError
	switch {
	case errors.As(err, &ve):
		a.vm.Flash.Warn(ve.Error())
	case errors.As(err, &te):
		a.vm.Flash.Err(fmt.Errorf("message not delivered: %w", err))
	default:
		a.vm.Flash.Err(err)
	}
}

// apply folds a bus event into the screen. Runs on the UI goroutine.
func (a *App) apply(evt bus.Event) {
	switch evt.Kind {
	case bus.InboxUpdated:
		a.inbox.Update(a.vm.Conversations())
		a.info.Update(a.vm.SessionData())
	case bus.InboxPollFailed:
		if p, ok := evt.Payload.(inbox.PollFailed); ok && !api.IsUnauthorized(p.Err) {
			a.vm.Flash.Warn("inbox refresh failed: " + p.Err.Error())
		}
	case bus.ChatUpdated:
		if e, ok := evt.Payload.(chat.Event); ok && e.CounterpartID == a.vm.ActiveID() {
			a.thread.Update(a.vm.Messages())
		}
	case bus.ChatPollFailed:
		if e, ok := evt.Payload.(chat.Event); ok && e.CounterpartID == a.vm.ActiveID() {
			a.vm.Flash.Warn("conversation refresh failed: " + e.Err.Error())
		}
	case bus.SessionStatusChanged:
		a.info.Update(a.vm.SessionData())
		if c, ok := evt.Payload.(status.StatusChange); ok && c.To == status.AuthRequired {
			a.vm.Flash.Warn("authentication required: set PICKLEPICK_TOKEN or [auth] token_file")
		}
	}
}

func (a *App) watchEvents() {
	events, unsubscribe := a.bus.Subscribe("", 64)
	defer unsubscribe()
	for {
		select {
		case <-a.ctx.Done():
			return
		case evt := <-events:
			a.app.QueueUpdateDraw(func() { a.apply(evt) })
		}
	}
}

func (a *App) watchFlash() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.vm.Flash.Watch():
		case <-ticker.C:
		}
		a.app.QueueUpdateDraw(func() {
			a.flash.Update(a.vm.Flash.GetMessage())
			a.info.Update(a.vm.SessionData())
		})
	}
}

// Run shows the inbox and blocks until the user quits.
func (a *App) Run() error {
	a.pages.Reset(pageInbox)
	a.inbox.Update(a.vm.Conversations())
	a.info.Update(a.vm.SessionData())

	go a.watchEvents()
	go a.watchFlash()

	err := a.app.Run()
	a.cancel()
	a.vm.CloseChat()
	return err
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
