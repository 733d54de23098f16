package storyview

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/cache"
	"github.com/fragmede/hnreader/internal/render"
	"github.com/fragmede/hnreader/internal/thread"
	"github.com/fragmede/hnreader/internal/ui/messages"
)

var (
	depthColors = []lipgloss.Color{
		"#FF6600", "#828282", "#00BFFF", "#32CD32", "#FFD700", "#FF69B4", "#9370DB", "#20B2AA",
	}

	commentAuthorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6600")).Bold(true)
	commentMetaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	commentOPStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#000")).Background(lipgloss.Color("#FF6600")).Bold(true)
	commentSelStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#333333"))
	commentDelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555")).Italic(true)
	commentFailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CC3333"))
	storyHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Padding(0, 1)
	storyMetaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#828282")).Padding(0, 1)
	separatorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
)

const scrollStep = 3

// ItemGetter loads the root item when the caller only has an ID.
type ItemGetter interface {
	GetItem(ctx context.Context, id int) (*api.Item, error)
}

// Deps are the collaborators a story view needs.
type Deps struct {
	Getter    ItemGetter
	Resolver  thread.Resolver
	AutoDepth int
	Log       *log.Logger
	// OnChange is called from fetch goroutines whenever the thread changes.
	OnChange func()
}

type commentOffset struct {
	startLine int
	endLine   int
}

// Model is the story detail / comment tree view.
type Model struct {
	viewport    viewport.Model
	storyID     int
	deps        Deps
	tree        *thread.Tree
	comments    []thread.Comment
	offsets     []commentOffset
	selectedIdx int
	loadErr     error
	width       int
	height      int
}

// New creates a story view for id. When root is non-nil the thread starts
// loading immediately; otherwise Init fetches the root first.
func New(id int, root *api.Item, deps Deps) Model {
	vp := viewport.New(0, 0)
	vp.SetContent("  Loading...")
	m := Model{viewport: vp, storyID: id, deps: deps}
	if root != nil {
		m.startTree(root)
	}
	return m
}

// Init fetches the root item if New was not given one.
func (m Model) Init() tea.Cmd {
	if m.tree != nil {
		return nil
	}
	return m.fetchRoot()
}

func (m Model) fetchRoot() tea.Cmd {
	id, getter := m.storyID, m.deps.Getter
	return func() tea.Msg {
		item, err := getter.GetItem(context.Background(), id)
		return messages.ItemLoadedMsg{ID: id, Item: item, Err: err}
	}
}

func (m *Model) startTree(root *api.Item) {
	m.tree = thread.New(root, m.deps.Resolver, m.deps.AutoDepth, m.deps.Log)
	if m.deps.OnChange != nil {
		m.tree.OnChange(m.deps.OnChange)
	}
	m.tree.Start()
	m.rebuildComments()
}

// Close cancels outstanding comment fetches. The wait happens off the UI
// goroutine.
func (m Model) Close() tea.Cmd {
	t := m.tree
	if t == nil {
		return nil
	}
	return func() tea.Msg {
		t.Close()
		return nil
	}
}

// StoryID returns the ID of the root item.
func (m Model) StoryID() int { return m.storyID }

// Comments returns the rows currently displayed.
func (m Model) Comments() []thread.Comment { return m.comments }

// Selected returns the index of the highlighted comment.
func (m Model) Selected() int { return m.selectedIdx }

func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = w
	m.resizeViewport()
	m.rebuildContent()
}

func (m *Model) resizeViewport() {
	headerLines := strings.Count(m.renderHeader(), "\n") + 1
	m.viewport.Height = max(1, m.height-headerLines)
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.ItemLoadedMsg:
		if msg.ID != m.storyID || m.tree != nil {
			return m, nil
		}
		if msg.Err != nil {
			m.loadErr = msg.Err
			m.viewport.SetContent("  Error loading item: " + msg.Err.Error() + "\n  ctrl+r to retry")
			return m, nil
		}
		m.loadErr = nil
		m.startTree(msg.Item)
		m.resizeViewport()
		m.rebuildContent()
		return m, nil

	case messages.ThreadChangedMsg:
		m.rebuildComments()
		m.rebuildContent()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) selected() (thread.Comment, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.comments) {
		return thread.Comment{}, false
	}
	return m.comments[m.selectedIdx], true
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.selectedIdx >= 0 && m.selectedIdx < len(m.offsets) {
			off := m.offsets[m.selectedIdx]
			if off.endLine >= m.viewport.YOffset+m.viewport.Height {
				// Long comment: scroll within it first.
				m.viewport.SetYOffset(m.viewport.YOffset + scrollStep)
				return m, nil
			}
		}
		if m.selectedIdx < len(m.comments)-1 {
			m.selectedIdx++
			m.rebuildContent()
			m.scrollToCursor()
		}
		return m, nil
	case "k", "up":
		if m.selectedIdx >= 0 && m.selectedIdx < len(m.offsets) {
			off := m.offsets[m.selectedIdx]
			if off.startLine < m.viewport.YOffset {
				m.viewport.SetYOffset(max(off.startLine, m.viewport.YOffset-scrollStep))
				return m, nil
			}
		}
		if m.selectedIdx > 0 {
			m.selectedIdx--
			m.rebuildContent()
			m.scrollToCursor()
		}
		return m, nil
	case "enter", " ":
		if c, ok := m.selected(); ok && m.tree != nil {
			m.tree.Toggle(c.ID)
			m.rebuildComments()
			m.rebuildContent()
		}
		return m, nil
	case "z":
		if m.tree != nil {
			m.tree.CollapseAll()
			m.rebuildComments()
			m.selectedIdx = 0
			m.rebuildContent()
			m.viewport.GotoTop()
		}
		return m, nil
	case "R":
		if c, ok := m.selected(); ok && m.tree != nil && m.tree.Retry(c.ID) {
			m.rebuildComments()
			m.rebuildContent()
		}
		return m, nil
	case "[", "p":
		if idx := thread.ParentIndex(m.comments, m.selectedIdx); idx >= 0 {
			m.selectedIdx = idx
			m.rebuildContent()
			m.scrollToCursor()
			return m, nil
		}
		if m.tree != nil && m.selectedIdx == 0 && m.tree.Root().Parent > 0 {
			parent := m.tree.Root().Parent
			return m, func() tea.Msg { return messages.OpenStoryMsg{StoryID: parent} }
		}
		return m, nil
	case "]":
		if idx := thread.NextSiblingIndex(m.comments, m.selectedIdx); idx >= 0 {
			m.selectedIdx = idx
			m.rebuildContent()
			m.scrollToCursor()
		}
		return m, nil
	case "g", "home":
		m.selectedIdx = 0
		m.rebuildContent()
		m.viewport.GotoTop()
		return m, nil
	case "G", "end":
		if len(m.comments) > 0 {
			m.selectedIdx = len(m.comments) - 1
			m.rebuildContent()
			m.viewport.GotoBottom()
		}
		return m, nil
	case "ctrl+r":
		closeCmd := m.Close()
		m.tree = nil
		m.comments = nil
		m.selectedIdx = 0
		m.viewport.SetContent("  Refreshing...")
		return m, tea.Batch(closeCmd, m.fetchRoot())
	case "o":
		if m.tree != nil && m.tree.Root().URL != "" {
			u := m.tree.Root().URL
			return m, func() tea.Msg { return messages.StatusMsg{Text: "Opening: " + u} }
		}
		return m, nil
	case "ctrl+d", "pgdown":
		m.viewport.HalfViewDown()
		return m, nil
	case "ctrl+u", "pgup":
		m.viewport.HalfViewUp()
		return m, nil
	case "P":
		if c, ok := m.selected(); ok && c.Item != nil && c.Item.By != "" {
			by := c.Item.By
			return m, func() tea.Msg { return messages.OpenUserMsg{Username: by} }
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.viewport.View())
}

func (m *Model) rebuildComments() {
	if m.tree == nil {
		m.comments = nil
		return
	}
	m.comments = m.tree.Flatten()
	if m.selectedIdx >= len(m.comments) {
		m.selectedIdx = len(m.comments) - 1
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
}

func (m *Model) rebuildContent() {
	if len(m.comments) == 0 {
		m.offsets = nil
		switch {
		case m.loadErr != nil:
		case m.tree == nil || m.tree.Loading():
			m.viewport.SetContent("  Loading comments...")
		default:
			m.viewport.SetContent("  No comments yet.")
		}
		return
	}

	var sb strings.Builder
	m.offsets = make([]commentOffset, len(m.comments))
	availWidth := max(20, m.width-4)

	lineCount := 0
	emit := func(line string, selected bool) {
		if selected {
			line = commentSelStyle.Render(line)
		}
		sb.WriteString(line + "\n")
		lineCount++
	}

	for i, c := range m.comments {
		startLine := lineCount
		indent := min(c.Depth*2, 30)
		indentStr := strings.Repeat(" ", indent)

		selected := i == m.selectedIdx
		barColor := depthColors[c.Depth%len(depthColors)]
		if selected {
			barColor = "#FF6600"
		}
		prefix := indentStr + lipgloss.NewStyle().Foreground(barColor).Render("│") + " "

		switch {
		case c.State == cache.Pending:
			emit(prefix+commentDelStyle.Render("loading..."), selected)
		case c.State == cache.Failed:
			msg := "unknown error"
			if c.Err != nil {
				msg = c.Err.Error()
			}
			emit(prefix+commentFailStyle.Render(fmt.Sprintf("[failed to load #%d: %s] R:retry", c.ID, render.Truncate(msg, 50))), selected)
		case c.Item.Deleted:
			emit(prefix+commentDelStyle.Render("[deleted]"), selected)
		case c.Item.Dead:
			emit(prefix+commentDelStyle.Render("[flagged]"), selected)
		default:
			header := commentAuthorStyle.Render(c.Item.By)
			header += " " + commentMetaStyle.Render(render.TimeAgo(c.Item.Time))
			if c.IsOP {
				header += " " + commentOPStyle.Render(" OP ")
			}
			if c.ChildCount > 0 && !c.Expanded {
				header += " " + commentMetaStyle.Render(fmt.Sprintf("[+%d]", c.ChildCount))
			}
			if c.Loading {
				header += " " + commentMetaStyle.Render("...")
			}
			if c.Depth > 15 {
				header += " " + commentMetaStyle.Render(fmt.Sprintf("[d:%d]", c.Depth))
			}
			emit(prefix+header, selected)

			bodyWidth := max(20, availWidth-indent-4)
			for _, line := range strings.Split(render.HNToText(c.Item.Text, bodyWidth), "\n") {
				emit(prefix+line, selected)
			}
		}
		sb.WriteString("\n")
		lineCount++

		m.offsets[i] = commentOffset{startLine: startLine, endLine: lineCount - 1}
	}

	m.viewport.SetContent(sb.String())
}

func (m *Model) scrollToCursor() {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.offsets) {
		return
	}
	off := m.offsets[m.selectedIdx]
	if off.startLine < m.viewport.YOffset || off.startLine >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(off.startLine)
	}
}

func (m Model) renderHeader() string {
	if m.tree == nil {
		return storyHeaderStyle.Render("Loading...")
	}
	story := m.tree.Root()
	width := max(20, m.width-4)

	var parts []string
	switch {
	case story.Title != "":
		parts = append(parts, storyHeaderStyle.Render(story.Title))
		parts = append(parts, storyMetaStyle.Render(fmt.Sprintf(
			"%d points | by %s | %s | %d comments",
			story.Score, story.By, render.TimeAgo(story.Time), story.Descendants,
		)))
		if host := render.Host(story.URL); host != "" {
			parts = append(parts, storyMetaStyle.Render(host))
		}
		if story.Text != "" {
			parts = append(parts, storyMetaStyle.Render(render.HNToText(story.Text, width)))
		}
	case story.Type == api.KindComment:
		meta := fmt.Sprintf("Comment by %s | %s", story.By, render.TimeAgo(story.Time))
		if n := len(story.Kids); n > 0 {
			meta += fmt.Sprintf(" | %d replies", n)
		}
		parts = append(parts, storyMetaStyle.Render(meta))
		parts = append(parts, storyMetaStyle.Render(render.HNToText(story.Text, width)))
	default:
		parts = append(parts, storyHeaderStyle.Render(fmt.Sprintf("[%s #%d]", story.Type, story.ID)))
	}

	parts = append(parts, separatorStyle.Render(strings.Repeat("─", max(0, m.width))))
	hint := commentMetaStyle.Render("j/k:move  space:fold  z:fold all  [:parent  ]:sibling  R:retry  o:open  P:profile  esc:back")
	parts = append(parts, hint)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
