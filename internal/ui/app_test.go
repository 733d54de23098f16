package ui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/feed"
	"github.com/fragmede/hnreader/internal/fetch"
	"github.com/fragmede/hnreader/internal/logging"
	"github.com/fragmede/hnreader/internal/ui/messages"
)

type fakeHN struct {
	mu    sync.Mutex
	lists map[api.FeedType][]int
	err   error
}

func (f *fakeHN) ListIDs(_ context.Context, ft api.FeedType) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.lists[ft], nil
}

func (f *fakeHN) GetItem(_ context.Context, id int) (*api.Item, error) {
	return &api.Item{ID: id, Type: api.KindStory, Title: fmt.Sprintf("Story %d", id), By: "pg"}, nil
}

func (f *fakeHN) BatchGetItems(ctx context.Context, ids []int) ([]*api.Item, error) {
	out := make([]*api.Item, len(ids))
	for i, id := range ids {
		out[i], _ = f.GetItem(ctx, id)
	}
	return out, nil
}

func (f *fakeHN) GetUser(_ context.Context, name string) (*api.User, error) {
	return &api.User{ID: name}, nil
}

func (f *fakeHN) Search(_ context.Context, q string, kind api.SearchKind, page int) (*api.SearchPage, error) {
	return &api.SearchPage{Query: q, Kind: kind, Page: page}, nil
}

func newTestApp(t *testing.T, src *fakeHN) (*App, *feed.Controller) {
	t.Helper()
	sched := fetch.New(src, fetch.Options{MaxConcurrent: 4, PerItemTimeout: time.Second, MaxAttempts: 1}, logging.Discard())
	ctrl := feed.New(src, sched, feed.Options{PageSize: 5}, logging.Discard())
	a := NewApp(Deps{
		Feed:        ctrl,
		Scheduler:   sched,
		Source:      src,
		InitialFeed: api.FeedTop,
		Log:         logging.Discard(),
	})
	a.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	t.Cleanup(func() {
		a.Close()
		ctrl.Close()
	})
	return a, ctrl
}

func press(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func run(cmd tea.Cmd) {
	if cmd != nil {
		cmd()
	}
}

// drain runs cmd and every command it batches, returning the leaf messages.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		out = append(out, drain(c)...)
	}
	return out
}

func TestSelectFeedLoadsList(t *testing.T) {
	src := &fakeHN{lists: map[api.FeedType][]int{api.FeedNew: {1, 2, 3}}}
	a, ctrl := newTestApp(t, src)

	msg := a.selectFeed(api.FeedNew)()
	loaded, ok := msg.(messages.FeedLoadedMsg)
	require.True(t, ok)
	require.NoError(t, loaded.Err)
	a.Update(loaded)

	assert.Equal(t, api.FeedNew, ctrl.FeedType())
	require.Eventually(t, func() bool {
		return ctrl.State() == feed.Ready && ctrl.Stats().Cached == 3
	}, 2*time.Second, 10*time.Millisecond)

	a.Update(messages.FeedChangedMsg{})
	assert.Contains(t, a.View(), "Story 2")
}

func TestFeedLoadErrorShowsStatus(t *testing.T) {
	src := &fakeHN{err: errors.New("offline")}
	a, _ := newTestApp(t, src)

	msg := a.selectFeed(api.FeedTop)().(messages.FeedLoadedMsg)
	require.Error(t, msg.Err)
	a.Update(msg)

	assert.Contains(t, a.View(), "Could not load Top Stories")

	_, cmd := a.Update(messages.RetryFeedMsg{})
	require.NotNil(t, cmd)
	assert.Contains(t, a.View(), "Retrying")
}

func TestOpenStoryAndBack(t *testing.T) {
	a, _ := newTestApp(t, &fakeHN{})

	a.Update(messages.OpenStoryMsg{StoryID: 1, Item: &api.Item{ID: 1, Type: api.KindStory, Title: "Root"}})
	assert.Equal(t, ViewStoryDetail, a.ActiveView())
	assert.True(t, a.hasStory)

	_, cmd := a.Update(press("esc"))
	run(cmd)
	assert.Equal(t, ViewStoryList, a.ActiveView())
	assert.False(t, a.hasStory)
	assert.Empty(t, a.previousViews)
}

func TestOpenStoryReplacesThread(t *testing.T) {
	a, _ := newTestApp(t, &fakeHN{})

	a.Update(messages.OpenStoryMsg{StoryID: 1, Item: &api.Item{ID: 1, Type: api.KindStory}})
	a.Update(messages.OpenUserMsg{Username: "pg"})
	assert.Equal(t, ViewUserProfile, a.ActiveView())

	_, cmd := a.Update(messages.OpenStoryMsg{StoryID: 2, Item: &api.Item{ID: 2, Type: api.KindStory}})
	run(cmd)
	assert.Equal(t, ViewStoryDetail, a.ActiveView())
	assert.Equal(t, []ViewType{ViewStoryList}, a.previousViews)
	assert.Equal(t, 2, a.storyView.StoryID())
}

func TestQuitFromStoryList(t *testing.T) {
	a, _ := newTestApp(t, &fakeHN{})

	_, cmd := a.Update(press("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestQuitInDetailGoesBack(t *testing.T) {
	a, _ := newTestApp(t, &fakeHN{})
	a.Update(messages.OpenStoryMsg{StoryID: 1, Item: &api.Item{ID: 1, Type: api.KindStory}})

	_, cmd := a.Update(press("q"))
	run(cmd)
	assert.Equal(t, ViewStoryList, a.ActiveView())
}

func TestNumberKeySwitchesFeedAndClosesThread(t *testing.T) {
	src := &fakeHN{lists: map[api.FeedType][]int{api.FeedAsk: {7}}}
	a, _ := newTestApp(t, src)
	a.Update(messages.OpenStoryMsg{StoryID: 1, Item: &api.Item{ID: 1, Type: api.KindStory}})

	_, cmd := a.Update(press("4"))
	require.NotNil(t, cmd)
	assert.Equal(t, ViewStoryList, a.ActiveView())
	assert.False(t, a.hasStory)
	assert.Empty(t, a.previousViews)
}

func TestCycleTabWraps(t *testing.T) {
	src := &fakeHN{lists: map[api.FeedType][]int{}}
	a, ctrl := newTestApp(t, src)

	loaded := a.selectFeed(api.FeedJob)().(messages.FeedLoadedMsg)
	a.Update(loaded)
	require.Equal(t, api.FeedJob, ctrl.FeedType())

	var loadedFeeds []api.FeedType
	for _, msg := range drain(a.cycleTab(1)) {
		if l, ok := msg.(messages.FeedLoadedMsg); ok {
			loadedFeeds = append(loadedFeeds, l.Feed)
		}
	}
	assert.Equal(t, []api.FeedType{api.FeedTop}, loadedFeeds)
	assert.Equal(t, api.FeedTop, ctrl.FeedType())
}

func TestSearchSwallowsGlobalKeysWhileTyping(t *testing.T) {
	a, _ := newTestApp(t, &fakeHN{})

	a.Update(press("/"))
	require.Equal(t, ViewSearch, a.ActiveView())

	a.Update(press("q"))
	assert.Equal(t, ViewSearch, a.ActiveView())

	a.Update(press("esc"))
	assert.Equal(t, ViewStoryList, a.ActiveView())
}

func TestHelpToggle(t *testing.T) {
	a, _ := newTestApp(t, &fakeHN{})

	assert.NotContains(t, a.View(), "fold all")
	a.Update(press("?"))
	assert.Contains(t, a.View(), "fold all")
	a.Update(press("?"))
	assert.NotContains(t, a.View(), "fold all")
}

func TestThreadChangeRearmsSignal(t *testing.T) {
	a, _ := newTestApp(t, &fakeHN{})

	_, cmd := a.Update(messages.ThreadChangedMsg{})
	require.NotNil(t, cmd)
	a.threadSig.poke()
	assert.Equal(t, []tea.Msg{messages.ThreadChangedMsg{}}, drain(cmd))
}
