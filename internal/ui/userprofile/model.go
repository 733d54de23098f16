package userprofile

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/render"
	"github.com/fragmede/hnreader/internal/ui/messages"
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6600")).Bold(true).Padding(1, 0)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#828282")).Bold(true)
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	aboutStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")).Padding(1, 0)
	itemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6600")).Bold(true)
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

// RecentCount is how many submissions are shown under a profile.
const RecentCount = 10

type Source interface {
	GetUser(ctx context.Context, username string) (*api.User, error)
	BatchGetItems(ctx context.Context, ids []int) ([]*api.Item, error)
}

// Model is the user profile view.
type Model struct {
	user     *api.User
	recent   []*api.Item
	cursor   int
	username string
	loading  bool
	err      error
	src      Source
	width    int
	height   int
}

func New(username string, src Source) Model {
	return Model{username: username, loading: true, src: src}
}

// Init loads the profile and the most recent submissions.
func (m Model) Init() tea.Cmd {
	username, src := m.username, m.src
	return func() tea.Msg {
		ctx := context.Background()
		user, err := src.GetUser(ctx, username)
		if err != nil {
			return messages.UserLoadedMsg{Err: err}
		}
		ids := user.Submitted
		if len(ids) > RecentCount {
			ids = ids[:RecentCount]
		}
		items, _ := src.BatchGetItems(ctx, ids)
		recent := make([]*api.Item, 0, len(items))
		for _, it := range items {
			if it != nil && !it.Deleted && !it.Dead {
				recent = append(recent, it)
			}
		}
		return messages.UserLoadedMsg{User: user, Items: recent}
	}
}

func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.UserLoadedMsg:
		if msg.User != nil && msg.User.ID != m.username {
			return m, nil
		}
		m.loading = false
		m.err = msg.Err
		m.user = msg.User
		m.recent = msg.Items
	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if m.cursor < len(m.recent)-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "enter":
			if m.cursor < len(m.recent) {
				id := m.recent[m.cursor].ID
				return m, func() tea.Msg { return messages.OpenStoryMsg{StoryID: id} }
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.loading {
		return titleStyle.Render("Loading user " + m.username + "...")
	}
	if m.err != nil {
		return titleStyle.Render("Error: " + m.err.Error())
	}
	if m.user == nil {
		return titleStyle.Render("User not found")
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.user.ID))
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render("Karma: ") + valueStyle.Render(fmt.Sprintf("%d", m.user.Karma)))
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render("Created: ") + valueStyle.Render(render.TimeAgo(m.user.Created)))
	sb.WriteString("\n")

	if m.user.About != "" {
		about := render.HNToText(m.user.About, max(20, m.width-4))
		sb.WriteString("\n" + aboutStyle.Render(about))
	}

	if len(m.recent) > 0 {
		sb.WriteString("\n" + labelStyle.Render("Recent:") + "\n")
		width := max(20, m.width-6)
		for i, it := range m.recent {
			st := itemStyle
			if i == m.cursor {
				st = selectedStyle
			}
			line := it.Title
			if it.Type == api.KindComment {
				line = strings.ReplaceAll(render.HNToText(it.Text, 0), "\n", " ")
			}
			sb.WriteString("  " + st.Render(render.Truncate(line, width)) +
				" " + metaStyle.Render(render.TimeAgo(it.Time)) + "\n")
		}
	}
	return sb.String()
}
