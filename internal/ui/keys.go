package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fragmede/hnreader/internal/api"
)

// KeyMap holds the global bindings. View-specific keys are handled by the
// views themselves and only listed here for the help bar.
type KeyMap struct {
	Quit     key.Binding
	Back     key.Binding
	Help     key.Binding
	Search   key.Binding
	Refresh  key.Binding
	NextTab  key.Binding
	PrevTab  key.Binding
	Feeds    []key.Binding
	Enter    key.Binding
	OpenURL  key.Binding
	Profile  key.Binding
	NextPage key.Binding
	PrevPage key.Binding
	Retry    key.Binding
	Collapse key.Binding
	FoldAll  key.Binding
	Parent   key.Binding
	NextSib  key.Binding
}

var Keys = KeyMap{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Search:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload feed")),
	NextTab: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next feed")),
	PrevTab: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev feed")),
	Feeds: []key.Binding{
		key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "top")),
		key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "new")),
		key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "best")),
		key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "ask")),
		key.NewBinding(key.WithKeys("5"), key.WithHelp("5", "show")),
		key.NewBinding(key.WithKeys("6"), key.WithHelp("6", "jobs")),
	},
	Enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	OpenURL:  key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open url")),
	Profile:  key.NewBinding(key.WithKeys("P"), key.WithHelp("P", "profile")),
	NextPage: key.NewBinding(key.WithKeys("right", "l", "n"), key.WithHelp("→/n", "next page")),
	PrevPage: key.NewBinding(key.WithKeys("left", "h", "b"), key.WithHelp("←/b", "prev page")),
	Retry:    key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "retry failed")),
	Collapse: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "fold")),
	FoldAll:  key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "fold all")),
	Parent:   key.NewBinding(key.WithKeys("["), key.WithHelp("[", "parent")),
	NextSib:  key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next sibling")),
}

// feedFor returns the feed bound to a number key.
func (k KeyMap) feedFor(msg tea.KeyMsg) (api.FeedType, bool) {
	for i, b := range k.Feeds {
		if i < len(api.FeedTypes) && key.Matches(msg, b) {
			return api.FeedTypes[i], true
		}
	}
	return "", false
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Search, k.Enter, k.NextPage, k.PrevPage, k.Retry, k.Back, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Enter, k.OpenURL, k.Profile, k.Refresh, k.Retry},
		{k.NextPage, k.PrevPage, k.NextTab, k.PrevTab, k.Search},
		{k.Collapse, k.FoldAll, k.Parent, k.NextSib},
		append([]key.Binding{k.Back, k.Quit, k.Help}, k.Feeds...),
	}
}
