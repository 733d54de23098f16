package storylist

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/cache"
	"github.com/fragmede/hnreader/internal/feed"
	"github.com/fragmede/hnreader/internal/ui/messages"
)

// Feed is the part of the feed controller the list drives.
type Feed interface {
	VisibleItems() []feed.Slot
	Pagination() feed.Pagination
	State() feed.State
	FeedType() api.FeedType
	Err() error
	Mode() feed.Mode
	NextPage() bool
	PrevPage() bool
	ScrollTriggerLoadMore() bool
	RetryFailed() int
}

// Model is the story list view.
type Model struct {
	list   list.Model
	feed   Feed
	width  int
	height int
}

// New creates a story list over f.
func New(f Feed) Model {
	l := list.New(nil, Delegate{}, 0, 0)
	l.Title = "Hacker News"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	// Left and right page through the feed, not the list.
	l.KeyMap.NextPage.SetKeys("pgdown")
	l.KeyMap.PrevPage.SetKeys("pgup")

	m := Model{list: l, feed: f}
	m.Refresh()
	return m
}

// SetSize updates the viewport dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.list.SetSize(w, h)
}

// Refresh rebuilds the rows from the controller, keeping the cursor.
func (m *Model) Refresh() {
	slots := m.feed.VisibleItems()
	items := make([]list.Item, len(slots))
	for i, s := range slots {
		items[i] = SlotItem{Slot: s}
	}
	idx := m.list.Index()
	m.list.SetItems(items)
	if idx >= len(items) {
		idx = len(items) - 1
	}
	if idx >= 0 {
		m.list.Select(idx)
	}
	m.list.Title = m.title()
}

func (m Model) title() string {
	ft := m.feed.FeedType()
	if ft == "" {
		return "Hacker News"
	}
	t := ft.Title()
	if err := m.feed.Err(); err != nil {
		return t + " (error: " + err.Error() + ", R:retry)"
	}
	switch m.feed.State() {
	case feed.LoadingIDs:
		return t + " (loading...)"
	case feed.Idle:
		return t
	}
	p := m.feed.Pagination()
	if p.TotalPages == 0 {
		return t + " (empty)"
	}
	return fmt.Sprintf("%s  page %d/%d", t, p.Page, p.TotalPages)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.FeedChangedMsg:
		m.Refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if s, ok := m.Selected(); ok && s.Entry.State == cache.Resolved {
				id, item := s.ID, s.Entry.Item
				return m, func() tea.Msg {
					return messages.OpenStoryMsg{StoryID: id, Item: item}
				}
			}
			return m, nil
		case "o":
			if s, ok := m.Selected(); ok && s.Entry.Item != nil && s.Entry.Item.URL != "" {
				u := s.Entry.Item.URL
				return m, func() tea.Msg {
					return messages.StatusMsg{Text: "Opening: " + u}
				}
			}
			return m, nil
		case "P":
			if s, ok := m.Selected(); ok && s.Entry.Item != nil && s.Entry.Item.By != "" {
				by := s.Entry.Item.By
				return m, func() tea.Msg { return messages.OpenUserMsg{Username: by} }
			}
			return m, nil
		case "right", "l", "n":
			if m.feed.NextPage() && m.feed.Mode() == feed.ModePaged {
				m.list.Select(0)
			}
			m.Refresh()
			return m, nil
		case "left", "h", "b":
			if m.feed.PrevPage() {
				m.list.Select(0)
			}
			m.Refresh()
			return m, nil
		case "R":
			if m.feed.Err() != nil {
				return m, func() tea.Msg { return messages.RetryFeedMsg{} }
			}
			m.feed.RetryFailed()
			m.Refresh()
			return m, nil
		case "j", "down":
			if m.feed.Mode() == feed.ModeScroll && m.list.Index() >= len(m.list.Items())-1 {
				if m.feed.ScrollTriggerLoadMore() {
					m.Refresh()
				}
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the story list.
func (m Model) View() string {
	return m.list.View()
}

// FeedType returns the feed being shown.
func (m Model) FeedType() api.FeedType {
	return m.feed.FeedType()
}

// Selected returns the slot under the cursor.
func (m Model) Selected() (feed.Slot, bool) {
	item, ok := m.list.SelectedItem().(SlotItem)
	return item.Slot, ok
}
