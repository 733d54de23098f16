package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/render"
	"github.com/fragmede/hnreader/internal/ui/messages"
)

var (
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6600")).Bold(true).Padding(0, 1)
	kindStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#FF6600")).Padding(0, 1)
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6600")).Bold(true)
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#828282"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#CC3333")).Padding(0, 1)
)

type Searcher interface {
	Search(ctx context.Context, query string, kind api.SearchKind, page int) (*api.SearchPage, error)
}

// Model is the search view. Results accumulate across pages until the
// query or kind changes.
type Model struct {
	input    textinput.Model
	searcher Searcher
	kind     api.SearchKind
	query    string
	results  []*api.Item
	last     *api.SearchPage
	cursor   int
	offset   int
	loading  bool
	err      error
	width    int
	height   int
}

func New(s Searcher) Model {
	ti := textinput.New()
	ti.Placeholder = "search Hacker News"
	ti.Prompt = "/ "
	ti.CharLimit = 200
	ti.Focus()
	return Model{input: ti, searcher: s, kind: api.SearchStories}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.input.Width = max(10, w-4)
}

// Typing reports whether keystrokes go to the query input.
func (m Model) Typing() bool {
	return m.input.Focused()
}

// Results returns the accumulated hits.
func (m Model) Results() []*api.Item { return m.results }

func (m Model) fetch(page int) tea.Cmd {
	s, q, kind := m.searcher, m.query, m.kind
	return func() tea.Msg {
		p, err := s.Search(context.Background(), q, kind, page)
		if err != nil {
			return messages.SearchResultMsg{Page: &api.SearchPage{Query: q, Kind: kind, Page: page}, Err: err}
		}
		return messages.SearchResultMsg{Page: p}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.SearchResultMsg:
		if msg.Page == nil || msg.Page.Query != m.query || msg.Page.Kind != m.kind {
			return m, nil
		}
		m.loading = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		if msg.Page.Page == 0 {
			m.results = nil
			m.cursor, m.offset = 0, 0
		}
		m.results = append(m.results, msg.Page.Items...)
		m.last = msg.Page
		return m, nil

	case tea.KeyMsg:
		if m.input.Focused() {
			switch msg.String() {
			case "enter":
				q := strings.TrimSpace(m.input.Value())
				if q == "" {
					return m, nil
				}
				m.query = q
				m.input.Blur()
				return m.start()
			case "tab":
				return m.toggleKind()
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "/":
			m.input.Focus()
			return m, textinput.Blink
		case "tab":
			return m.toggleKind()
		case "j", "down":
			if m.cursor < len(m.results)-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "m":
			return m.loadMore()
		case "enter":
			if m.cursor < len(m.results) {
				item := m.results[m.cursor]
				return m, func() tea.Msg { return messages.OpenStoryMsg{StoryID: item.ID} }
			}
		case "o":
			if m.cursor < len(m.results) && m.results[m.cursor].URL != "" {
				u := m.results[m.cursor].URL
				return m, func() tea.Msg { return messages.StatusMsg{Text: "Opening: " + u} }
			}
		case "P":
			if m.cursor < len(m.results) && m.results[m.cursor].By != "" {
				by := m.results[m.cursor].By
				return m, func() tea.Msg { return messages.OpenUserMsg{Username: by} }
			}
		}
		// Load the next page when the cursor reaches the end.
		if m.cursor == len(m.results)-1 {
			return m.loadMore()
		}
	}
	return m, nil
}

func (m Model) start() (Model, tea.Cmd) {
	if m.query == "" {
		return m, nil
	}
	m.results = nil
	m.last = nil
	m.err = nil
	m.cursor, m.offset = 0, 0
	m.loading = true
	return m, m.fetch(0)
}

func (m Model) toggleKind() (Model, tea.Cmd) {
	if m.kind == api.SearchStories {
		m.kind = api.SearchComments
	} else {
		m.kind = api.SearchStories
	}
	return m.start()
}

func (m Model) loadMore() (Model, tea.Cmd) {
	if m.loading || m.last == nil || !m.last.HasMore() {
		return m, nil
	}
	m.loading = true
	return m, m.fetch(m.last.Page + 1)
}

const rowHeight = 3

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Search") + kindStyle.Render(string(m.kind)) + "\n")
	sb.WriteString(" " + m.input.View() + "\n")
	sb.WriteString(metaStyle.Render(" tab:stories/comments  enter:open  m:more  /:edit query  esc:back") + "\n\n")

	if m.err != nil {
		sb.WriteString(errStyle.Render("Search failed: "+m.err.Error()) + "\n")
	}
	if len(m.results) == 0 {
		switch {
		case m.loading:
			sb.WriteString(metaStyle.Render("  Searching...") + "\n")
		case m.last != nil:
			sb.WriteString(metaStyle.Render("  No results.") + "\n")
		}
		return sb.String()
	}

	rows := max(1, (m.height-6)/rowHeight)
	offset := m.offset
	if m.cursor < offset {
		offset = m.cursor
	}
	if m.cursor >= offset+rows {
		offset = m.cursor - rows + 1
	}
	end := min(len(m.results), offset+rows)
	for i := offset; i < end; i++ {
		sb.WriteString(m.renderRow(i))
	}

	footer := fmt.Sprintf("  %d results", len(m.results))
	switch {
	case m.loading:
		footer += "  loading more..."
	case m.last != nil && m.last.HasMore():
		footer += "  m:load more"
	}
	sb.WriteString(metaStyle.Render(footer))
	return sb.String()
}

func (m Model) renderRow(i int) string {
	item := m.results[i]
	width := max(20, m.width-6)
	ts := titleStyle
	if i == m.cursor {
		ts = selectedStyle
	}

	var title, meta string
	if item.Type == api.KindComment {
		title = render.Truncate(strings.ReplaceAll(render.HNToText(item.Text, 0), "\n", " "), width)
		meta = fmt.Sprintf("%s | %s | on: %s", item.By, render.TimeAgo(item.Time), render.Truncate(item.StoryTitle, 40))
	} else {
		title = render.Truncate(item.Title, width)
		meta = fmt.Sprintf("%d points | by %s | %s | %d comments", item.Score, item.By, render.TimeAgo(item.Time), item.Descendants)
		if host := render.Host(item.URL); host != "" {
			meta += "  (" + host + ")"
		}
	}
	return fmt.Sprintf("  %s\n  %s\n\n", ts.Render(title), metaStyle.Render(meta))
}
