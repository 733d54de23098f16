package search

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/ui/messages"
)

type fakeSearcher struct {
	calls []int
}

func (f *fakeSearcher) Search(_ context.Context, q string, kind api.SearchKind, page int) (*api.SearchPage, error) {
	f.calls = append(f.calls, page)
	p := &api.SearchPage{Query: q, Kind: kind, Page: page, NbPages: 2}
	for i := 0; i < api.SearchPageSize; i++ {
		id := page*100 + i + 1
		p.Items = append(p.Items, &api.Item{ID: id, Type: api.KindStory, Title: "story", By: "u"})
	}
	return p, nil
}

func typeQuery(m Model, q string) Model {
	for _, r := range q {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd())
	return m
}

func TestSearchAndLoadMore(t *testing.T) {
	s := &fakeSearcher{}
	m := New(s)
	m.SetSize(80, 40)
	assert.True(t, m.Typing())

	m = typeQuery(m, "rust")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.Typing())
	m = run(t, m, cmd)
	require.Len(t, m.Results(), api.SearchPageSize)
	assert.Contains(t, m.View(), "m:load more")

	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	m = run(t, m, cmd)
	assert.Len(t, m.Results(), 2*api.SearchPageSize)
	assert.Equal(t, []int{0, 1}, s.calls)

	// last page reached
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	assert.Nil(t, cmd)
}

func TestSearchIgnoresStaleResults(t *testing.T) {
	m := New(&fakeSearcher{})
	m = typeQuery(m, "go")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	stale := &api.SearchPage{Query: "old", Kind: api.SearchStories, Items: []*api.Item{{ID: 1}}}
	m, _ = m.Update(messages.SearchResultMsg{Page: stale})
	assert.Empty(t, m.Results())
}

func TestSearchToggleKindRestarts(t *testing.T) {
	m := New(&fakeSearcher{})
	m = typeQuery(m, "go")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = run(t, m, cmd)
	require.NotEmpty(t, m.Results())

	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Empty(t, m.Results())
	m = run(t, m, cmd)
	assert.Equal(t, api.SearchComments, m.kind)
	assert.Len(t, m.Results(), api.SearchPageSize)
}

func TestSearchOpenResult(t *testing.T) {
	m := New(&fakeSearcher{})
	m = typeQuery(m, "go")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = run(t, m, cmd)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, messages.OpenStoryMsg{StoryID: 2}, cmd())
}
