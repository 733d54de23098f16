package storylist

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fragmede/hnreader/internal/cache"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))

	descStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#828282"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FF6600"))

	selectedDescStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#CCCCCC"))

	skeletonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#444444"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CC3333"))

	indexStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6600")).
			Width(4).
			Align(lipgloss.Right)
)

type Delegate struct{}

func (d Delegate) Height() int                             { return 2 }
func (d Delegate) Spacing() int                            { return 1 }
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d Delegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(SlotItem)
	if !ok {
		return
	}

	idx := indexStyle.Render(fmt.Sprintf("%d.", item.Rank))
	selected := index == m.Index()

	ts, ds := titleStyle, descStyle
	switch {
	case item.Entry.State == cache.Failed:
		ts, ds = failedStyle, descStyle
	case item.Entry.State != cache.Resolved:
		ts, ds = skeletonStyle, skeletonStyle
	case selected:
		ts, ds = selectedTitleStyle, selectedDescStyle
	}
	if selected && item.Entry.State != cache.Resolved {
		ts = ts.Bold(true)
	}

	fmt.Fprintf(w, "%s %s\n     %s", idx, ts.Render(item.Title()), ds.Render(item.Description()))
}
