package ui

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/feed"
	"github.com/fragmede/hnreader/internal/fetch"
	"github.com/fragmede/hnreader/internal/ui/messages"
	"github.com/fragmede/hnreader/internal/ui/search"
	"github.com/fragmede/hnreader/internal/ui/statusbar"
	"github.com/fragmede/hnreader/internal/ui/storylist"
	"github.com/fragmede/hnreader/internal/ui/storyview"
	"github.com/fragmede/hnreader/internal/ui/userprofile"
)

// ViewType identifies the active view.
type ViewType int

const (
	ViewStoryList ViewType = iota
	ViewStoryDetail
	ViewSearch
	ViewUserProfile
)

// Source is the read side of the item source used by the views.
type Source interface {
	storyview.ItemGetter
	search.Searcher
	userprofile.Source
}

// Deps wires the application to the reader core.
type Deps struct {
	Feed         *feed.Controller
	Scheduler    *fetch.Scheduler
	Source       Source
	CommentDepth int
	InitialFeed  api.FeedType
	Log          *log.Logger
}

// App is the root Bubble Tea model.
type App struct {
	activeView    ViewType
	previousViews []ViewType

	storyList   storylist.Model
	storyView   storyview.Model
	hasStory    bool
	search      search.Model
	hasSearch   bool
	userProfile userprofile.Model
	statusBar   statusbar.Model
	help        help.Model

	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	feedSig   signal
	statsSig  signal
	threadSig signal

	width  int
	height int
}

// NewApp creates the root application model and hooks the controller and
// scheduler callbacks up to the UI.
func NewApp(deps Deps) *App {
	if deps.InitialFeed == "" {
		deps.InitialFeed = api.FeedTop
	}
	if deps.Log == nil {
		deps.Log = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		activeView: ViewStoryList,
		storyList:  storylist.New(deps.Feed),
		statusBar:  statusbar.New(),
		help:       help.New(),
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		feedSig:    newSignal(),
		statsSig:   newSignal(),
		threadSig:  newSignal(),
	}
	a.help.Styles.FullKey = HelpKeyStyle
	a.help.Styles.ShortKey = HelpKeyStyle
	a.statusBar.SetActiveTab(deps.InitialFeed)
	deps.Feed.OnChange(a.feedSig.poke)
	deps.Scheduler.OnProgress(func(fetch.Stats) { a.statsSig.poke() })
	return a
}

// Init loads the initial feed and starts listening for background changes.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.selectFeed(a.deps.InitialFeed),
		a.feedSig.wait(messages.FeedChangedMsg{}),
		a.statsSig.wait(messages.FetchProgressMsg{}),
		a.threadSig.wait(messages.ThreadChangedMsg{}),
	)
}

// Close stops the open thread and any feed selection still in progress.
// The caller owns the feed controller and closes it separately.
func (a *App) Close() {
	a.cancel()
	if a.hasStory {
		if cmd := a.storyView.Close(); cmd != nil {
			cmd()
		}
		a.hasStory = false
	}
}

// ActiveView reports which view has focus.
func (a *App) ActiveView() ViewType { return a.activeView }

func (a *App) selectFeed(ft api.FeedType) tea.Cmd {
	ctrl, ctx := a.deps.Feed, a.ctx
	return func() tea.Msg {
		return messages.FeedLoadedMsg{Feed: ft, Err: ctrl.SelectFeedType(ctx, ft)}
	}
}

func (a *App) retryFeed() tea.Cmd {
	ctrl, ctx := a.deps.Feed, a.ctx
	return func() tea.Msg {
		return messages.FeedLoadedMsg{Feed: ctrl.FeedType(), Err: ctrl.Retry(ctx)}
	}
}

// Update handles all messages.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout()
		return a, nil

	case tea.KeyMsg:
		if cmd, handled := a.handleKey(msg); handled {
			return a, cmd
		}

	case messages.FeedChangedMsg:
		a.storyList.Refresh()
		a.refreshStats()
		return a, a.feedSig.wait(messages.FeedChangedMsg{})

	case messages.FetchProgressMsg:
		a.refreshStats()
		return a, a.statsSig.wait(messages.FetchProgressMsg{})

	case messages.ThreadChangedMsg:
		cmds = append(cmds, a.threadSig.wait(messages.ThreadChangedMsg{}))
		if a.hasStory {
			var cmd tea.Cmd
			a.storyView, cmd = a.storyView.Update(msg)
			cmds = append(cmds, cmd)
		}
		return a, tea.Batch(cmds...)

	case messages.FeedLoadedMsg:
		switch {
		case errors.Is(msg.Err, feed.ErrStaleResult):
		case msg.Err != nil:
			a.statusBar.SetStatus("Could not load "+msg.Feed.Title()+" (R to retry)", true)
		default:
			a.statusBar.SetStatus("", false)
		}
		a.storyList.Refresh()
		a.refreshStats()
		return a, nil

	case messages.RetryFeedMsg:
		a.statusBar.SetStatus("Retrying...", false)
		return a, a.retryFeed()

	case messages.OpenStoryMsg:
		cmds = append(cmds, a.dropStory())
		a.pushView(ViewStoryDetail)
		a.storyView = storyview.New(msg.StoryID, msg.Item, storyview.Deps{
			Getter:    a.deps.Source,
			Resolver:  a.deps.Scheduler,
			AutoDepth: a.deps.CommentDepth,
			Log:       a.deps.Log,
			OnChange:  a.threadSig.poke,
		})
		a.hasStory = true
		a.layout()
		cmds = append(cmds, a.storyView.Init())
		return a, tea.Batch(cmds...)

	case messages.OpenUserMsg:
		a.pushView(ViewUserProfile)
		a.userProfile = userprofile.New(msg.Username, a.deps.Source)
		a.layout()
		return a, a.userProfile.Init()

	// Async results go to their view even when it is not in front.
	case messages.ItemLoadedMsg:
		if a.hasStory {
			var cmd tea.Cmd
			a.storyView, cmd = a.storyView.Update(msg)
			return a, cmd
		}
		return a, nil

	case messages.SearchResultMsg:
		if a.hasSearch {
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			return a, cmd
		}
		return a, nil

	case messages.StatusMsg:
		a.statusBar.SetStatus(msg.Text, msg.IsError)
		if u, ok := strings.CutPrefix(msg.Text, "Opening: "); ok && !msg.IsError {
			go openBrowser(u)
		}
		return a, nil
	}

	var cmd tea.Cmd
	switch a.activeView {
	case ViewStoryList:
		a.storyList, cmd = a.storyList.Update(msg)
	case ViewStoryDetail:
		a.storyView, cmd = a.storyView.Update(msg)
	case ViewSearch:
		a.search, cmd = a.search.Update(msg)
	case ViewUserProfile:
		a.userProfile, cmd = a.userProfile.Update(msg)
	}
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

// handleKey processes global keys. It reports false when the key belongs to
// the active view.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return tea.Quit, true
	}

	typing := a.activeView == ViewSearch && a.search.Typing()
	if typing {
		if key.Matches(msg, Keys.Back) {
			return a.goBack(), true
		}
		return nil, false
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		if a.activeView == ViewStoryList {
			return tea.Quit, true
		}
		return a.goBack(), true
	case key.Matches(msg, Keys.Back):
		if len(a.previousViews) > 0 {
			return a.goBack(), true
		}
		return nil, true
	case key.Matches(msg, Keys.Help):
		a.help.ShowAll = !a.help.ShowAll
		a.layout()
		return nil, true
	case key.Matches(msg, Keys.Search):
		if a.activeView == ViewSearch {
			return nil, false
		}
		return a.openSearch(), true
	case key.Matches(msg, Keys.Refresh):
		return a.switchTab(a.deps.Feed.FeedType()), true
	}

	// Tab cycles feeds everywhere except search, where it switches kind.
	if a.activeView != ViewSearch {
		switch {
		case key.Matches(msg, Keys.NextTab):
			return a.cycleTab(1), true
		case key.Matches(msg, Keys.PrevTab):
			return a.cycleTab(-1), true
		}
	}
	if ft, ok := Keys.feedFor(msg); ok {
		return a.switchTab(ft), true
	}
	return nil, false
}

func (a *App) refreshStats() {
	a.statusBar.SetStats(a.deps.Feed.Stats(), a.deps.Feed.Pagination())
}

// layout hands every live view the space left by the status bar and help.
func (a *App) layout() {
	a.help.Width = a.width
	a.statusBar.SetSize(a.width)
	h := a.contentHeight()
	a.storyList.SetSize(a.width, h)
	if a.hasStory {
		a.storyView.SetSize(a.width, h)
	}
	if a.hasSearch {
		a.search.SetSize(a.width, h)
	}
	if a.activeView == ViewUserProfile {
		a.userProfile.SetSize(a.width, h)
	}
}

func (a *App) contentHeight() int {
	h := a.height - 1
	if a.help.ShowAll {
		h -= lipgloss.Height(a.helpView())
	}
	return max(h, 1)
}

func (a *App) helpView() string {
	return HelpStyle.Render(a.help.View(Keys))
}

// View renders the application.
func (a *App) View() string {
	var content string
	switch a.activeView {
	case ViewStoryList:
		content = a.storyList.View()
	case ViewStoryDetail:
		content = a.storyView.View()
	case ViewSearch:
		content = a.search.View()
	case ViewUserProfile:
		content = a.userProfile.View()
	}

	parts := []string{content}
	if a.help.ShowAll {
		parts = append(parts, a.helpView())
	}
	parts = append(parts, a.statusBar.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (a *App) openSearch() tea.Cmd {
	if a.activeView == ViewSearch {
		return nil
	}
	if !a.hasSearch {
		a.search = search.New(a.deps.Source)
		a.hasSearch = true
	}
	a.pushView(ViewSearch)
	a.layout()
	return a.search.Init()
}

func (a *App) pushView(v ViewType) {
	a.previousViews = append(a.previousViews, a.activeView)
	a.activeView = v
}

func (a *App) goBack() tea.Cmd {
	if a.activeView == ViewStoryDetail {
		return a.dropStory()
	}
	if len(a.previousViews) > 0 {
		a.activeView = a.previousViews[len(a.previousViews)-1]
		a.previousViews = a.previousViews[:len(a.previousViews)-1]
	}
	return nil
}

// dropStory closes the open thread and unwinds the view stack to just
// below it. Only one thread is ever live.
func (a *App) dropStory() tea.Cmd {
	if !a.hasStory {
		return nil
	}
	views := append(a.previousViews, a.activeView)
	for i, v := range views {
		if v == ViewStoryDetail {
			views = views[:i]
			break
		}
	}
	if len(views) == 0 {
		views = []ViewType{ViewStoryList}
	}
	a.activeView = views[len(views)-1]
	a.previousViews = views[:len(views)-1]

	cmd := a.storyView.Close()
	a.storyView = storyview.Model{}
	a.hasStory = false
	return cmd
}

func (a *App) cycleTab(step int) tea.Cmd {
	current := a.deps.Feed.FeedType()
	n := len(api.FeedTypes)
	for i, ft := range api.FeedTypes {
		if ft == current {
			return a.switchTab(api.FeedTypes[((i+step)%n+n)%n])
		}
	}
	return a.switchTab(api.FeedTypes[0])
}

func (a *App) switchTab(ft api.FeedType) tea.Cmd {
	closeCmd := a.dropStory()
	a.activeView = ViewStoryList
	a.previousViews = nil
	a.statusBar.SetActiveTab(ft)
	a.statusBar.SetStatus("", false)
	return tea.Batch(closeCmd, a.selectFeed(ft))
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		return
	}
	cmd.Run()
}
