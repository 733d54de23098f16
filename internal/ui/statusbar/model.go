package statusbar

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/feed"
)

var (
	barStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#333333")).
			Foreground(lipgloss.Color("#FFFFFF"))

	activeTabStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#FF6600")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#555555")).
				Foreground(lipgloss.Color("#CCCCCC")).
				Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#333333")).
			Foreground(lipgloss.Color("#00BFFF")).
			Padding(0, 1)

	failedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#8B0000")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	statusTextStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#333333")).
			Foreground(lipgloss.Color("#AAAAAA")).
			Padding(0, 1)
)

var labels = map[api.FeedType]string{
	api.FeedTop:  "Top",
	api.FeedNew:  "New",
	api.FeedBest: "Best",
	api.FeedAsk:  "Ask",
	api.FeedShow: "Show",
	api.FeedJob:  "Jobs",
}

// Model is the status bar at the bottom of the screen.
type Model struct {
	width      int
	active     api.FeedType
	stats      feed.Stats
	page       feed.Pagination
	statusText string
	isError    bool
}

func New() Model {
	return Model{active: api.FeedTop}
}

func (m *Model) SetSize(w int) {
	m.width = w
}

func (m *Model) SetActiveTab(ft api.FeedType) {
	m.active = ft
}

// SetStats updates the fetch counters and page position.
func (m *Model) SetStats(st feed.Stats, p feed.Pagination) {
	m.stats = st
	m.page = p
}

// SetStatus sets a temporary status message.
func (m *Model) SetStatus(text string, isError bool) {
	m.statusText = text
	m.isError = isError
}

// Stats renders the fetch counters.
func (m Model) Stats() string {
	s := m.stats
	out := fmt.Sprintf("fetched %d  active %d  cached %d", s.Fetched, s.Active, s.Cached)
	if s.Pending > 0 {
		out += fmt.Sprintf("  pending %d", s.Pending)
	}
	if m.page.TotalPages > 0 {
		out += fmt.Sprintf("  p%d/%d", m.page.Page, m.page.TotalPages)
	}
	return out
}

func (m Model) View() string {
	var tabs string
	for _, ft := range api.FeedTypes {
		if ft == m.active {
			tabs += activeTabStyle.Render(labels[ft])
		} else {
			tabs += inactiveTabStyle.Render(labels[ft])
		}
	}

	right := statsStyle.Render(m.Stats())
	if m.stats.Failed > 0 {
		right += failedStyle.Render(fmt.Sprintf("failed %d", m.stats.Failed))
	}
	if m.statusText != "" {
		st := statusTextStyle
		if m.isError {
			st = failedStyle
		}
		right += st.Render(m.statusText)
	}

	gap := max(0, m.width-lipgloss.Width(tabs)-lipgloss.Width(right))
	mid := barStyle.Width(gap).Render("")
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs, mid, right)
}
