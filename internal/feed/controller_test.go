package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/cache"
	"github.com/fragmede/hnreader/internal/fetch"
	"github.com/fragmede/hnreader/internal/logging"
)

type fakeSource struct {
	mu     sync.Mutex
	lists  map[api.FeedType][]int
	err    error
	onList func(ft api.FeedType)
}

func (s *fakeSource) ListIDs(_ context.Context, ft api.FeedType) ([]int, error) {
	s.mu.Lock()
	hook, err, ids := s.onList, s.err, s.lists[ft]
	s.mu.Unlock()
	if hook != nil {
		hook(ft)
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type fakeGateway struct {
	mu    sync.Mutex
	calls map[int]int
	fn    func(ctx context.Context, id int) (*api.Item, error)
}

func newGateway(fn func(ctx context.Context, id int) (*api.Item, error)) *fakeGateway {
	return &fakeGateway{calls: make(map[int]int), fn: fn}
}

func (g *fakeGateway) GetItem(ctx context.Context, id int) (*api.Item, error) {
	g.mu.Lock()
	g.calls[id]++
	g.mu.Unlock()
	return g.fn(ctx, id)
}

func (g *fakeGateway) count(id int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[id]
}

func titled(_ context.Context, id int) (*api.Item, error) {
	return &api.Item{ID: id, Type: api.KindStory, Title: fmt.Sprintf("T%d", id)}, nil
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func newTestController(t *testing.T, src Source, g fetch.ItemGetter, opts Options) *Controller {
	t.Helper()
	sched := fetch.New(g, fetch.Options{
		MaxConcurrent:  3,
		PerItemTimeout: time.Second,
		MaxAttempts:    3,
	}, logging.Discard())
	c := New(src, sched, opts, logging.Discard())
	t.Cleanup(c.Close)
	return c
}

// waitSettled waits until the controller is Ready and nothing rendered is
// still pending.
func waitSettled(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool {
		if c.State() != Ready {
			return false
		}
		for _, s := range c.VisibleItems() {
			if s.Entry.State == cache.Pending || s.Entry.State == cache.Absent {
				return false
			}
		}
		return true
	}, 3*time.Second, 5*time.Millisecond)
}

func TestScenarioFirstPageResolves(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: seq(1, 100)}}
	c := newTestController(t, src, newGateway(titled), DefaultOptions())

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	waitSettled(t, c)

	slots := c.VisibleItems()
	require.Len(t, slots, 30)
	for i, s := range slots {
		require.Equal(t, cache.Resolved, s.Entry.State)
		assert.Equal(t, i+1, s.ID)
		assert.Equal(t, i+1, s.Rank)
		assert.Equal(t, fmt.Sprintf("T%d", i+1), s.Entry.Item.Title)
	}
	assert.Equal(t, Pagination{Page: 1, TotalPages: 4, HasPrev: false, HasNext: true}, c.Pagination())
}

func TestScenarioFailedItemIsPlaceholder(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: seq(1, 100)}}
	g := newGateway(func(ctx context.Context, id int) (*api.Item, error) {
		if id == 5 {
			return nil, fmt.Errorf("%w: HTTP 502", api.ErrSourceUnavailable)
		}
		return titled(ctx, id)
	})
	c := newTestController(t, src, g, DefaultOptions())

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	waitSettled(t, c)

	slots := c.VisibleItems()
	require.Len(t, slots, 30)
	for i, s := range slots {
		if s.ID == 5 {
			assert.Equal(t, cache.Failed, s.Entry.State)
			assert.Equal(t, 3, s.Entry.Attempts)
			assert.ErrorIs(t, s.Entry.Err, api.ErrSourceUnavailable)
			continue
		}
		assert.Equal(t, cache.Resolved, s.Entry.State, "slot %d", i)
	}
	assert.Equal(t, 3, g.count(5))

	// staying on the page does not refetch a failed item
	assert.True(t, c.SetPage(1))
	waitSettled(t, c)
	assert.Equal(t, 3, g.count(5))
}

func TestScenarioFeedSwitchMidResolution(t *testing.T) {
	started := make(chan int, 100)
	g := newGateway(func(ctx context.Context, id int) (*api.Item, error) {
		if id < 1000 {
			select {
			case started <- id:
			default:
			}
			<-ctx.Done()
			// a response that arrives after the abort
			return &api.Item{ID: id, Title: "late"}, nil
		}
		return titled(ctx, id)
	})

	src := &fakeSource{lists: map[api.FeedType][]int{
		api.FeedTop: seq(1, 100),
		api.FeedNew: seq(1001, 1100),
	}}
	c := newTestController(t, src, g, DefaultOptions())

	cachedAtNewList := -1
	src.onList = func(ft api.FeedType) {
		if ft == api.FeedNew {
			cachedAtNewList = c.cache.Len()
		}
	}

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	<-started

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedNew))
	assert.Equal(t, 0, cachedAtNewList)
	waitSettled(t, c)

	for _, id := range seq(1, 100) {
		assert.Equal(t, cache.Absent, c.cache.Get(id).State, "top id %d leaked", id)
	}
	slots := c.VisibleItems()
	require.Len(t, slots, 30)
	assert.Equal(t, "T1001", slots[0].Entry.Item.Title)
	assert.Equal(t, api.FeedNew, c.FeedType())
}

// manualResolver hands every Resolve call back to the test.
type manualResolver struct {
	mu    sync.Mutex
	calls []*manualCall
}

type manualCall struct {
	ctx context.Context
	ids []int
	ch  chan fetch.Result
}

func (r *manualResolver) Resolve(ctx context.Context, ids []int) <-chan fetch.Result {
	call := &manualCall{ctx: ctx, ids: append([]int(nil), ids...), ch: make(chan fetch.Result)}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	return call.ch
}

func (r *manualResolver) Stats() fetch.Stats { return fetch.Stats{} }

func (r *manualResolver) call(i int) *manualCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.calls) {
		return nil
	}
	return r.calls[i]
}

func TestGenerationGuardDropsLateResults(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{
		api.FeedTop: {1, 2, 3},
		api.FeedNew: {1, 2, 3},
	}}
	res := &manualResolver{}
	c := New(src, res, DefaultOptions(), logging.Discard())
	defer c.Close()

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	first := res.call(0)
	require.NotNil(t, first)
	assert.Equal(t, []int{1, 2, 3}, first.ids)

	done := make(chan error, 1)
	go func() { done <- c.SelectFeedType(context.Background(), api.FeedNew) }()

	require.Eventually(t, func() bool { return first.ctx.Err() != nil }, time.Second, time.Millisecond)

	first.ch <- fetch.Result{ID: 1, Item: &api.Item{ID: 1, Title: "stale"}, Attempts: 1}
	// the second send only completes once the first has been handled
	first.ch <- fetch.Result{ID: 2, Item: &api.Item{ID: 2, Title: "stale"}, Attempts: 1}
	assert.Equal(t, cache.Pending, c.cache.Get(1).State)
	close(first.ch)

	require.NoError(t, <-done)
	second := res.call(1)
	require.NotNil(t, second)
	defer close(second.ch)

	assert.Equal(t, []int{1, 2, 3}, second.ids)
	assert.Equal(t, cache.Pending, c.cache.Get(1).State)
	assert.Equal(t, LoadingPage, c.State())
}

func TestUnreportedIDsReturnToAbsent(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: {1, 2, 3}}}
	res := &manualResolver{}
	c := New(src, res, DefaultOptions(), logging.Discard())
	defer c.Close()

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	call := res.call(0)
	require.NotNil(t, call)

	call.ch <- fetch.Result{ID: 1, Item: &api.Item{ID: 1, Title: "one"}, Attempts: 1}
	close(call.ch)

	require.Eventually(t, func() bool { return c.State() == Ready }, time.Second, time.Millisecond)
	assert.Equal(t, cache.Resolved, c.cache.Get(1).State)
	assert.Equal(t, cache.Absent, c.cache.Get(2).State)
	assert.Equal(t, cache.Absent, c.cache.Get(3).State)
}

func TestSupersededSelectionIsStale(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: seq(1, 10), api.FeedBest: seq(11, 20)}}
	c := newTestController(t, src, newGateway(titled), DefaultOptions())

	gate := make(chan struct{})
	entered := make(chan struct{})
	src.onList = func(ft api.FeedType) {
		if ft == api.FeedTop {
			close(entered)
			<-gate
		}
	}

	done := make(chan error, 1)
	go func() { done <- c.SelectFeedType(context.Background(), api.FeedTop) }()
	<-entered

	src.mu.Lock()
	src.onList = nil
	src.mu.Unlock()
	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedBest))
	close(gate)

	assert.ErrorIs(t, <-done, ErrStaleResult)
	waitSettled(t, c)
	assert.Equal(t, 11, c.VisibleItems()[0].ID)
}

func TestPaginationBoundary(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: seq(1, 100)}}
	c := newTestController(t, src, newGateway(titled), DefaultOptions())

	assert.False(t, c.SetPage(1), "no feed selected yet")

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	waitSettled(t, c)

	assert.False(t, c.SetPage(0))
	assert.False(t, c.SetPage(5))
	assert.False(t, c.PrevPage())
	assert.Equal(t, 1, c.Pagination().Page)

	assert.True(t, c.SetPage(4))
	waitSettled(t, c)
	assert.False(t, c.NextPage())
	p := c.Pagination()
	assert.Equal(t, 4, p.Page)
	assert.False(t, p.HasNext)
	assert.True(t, p.HasPrev)
	assert.Len(t, c.VisibleItems(), 10)
}

func TestSetPageEvictsOutsideWindow(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: seq(1, 100)}}
	c := newTestController(t, src, newGateway(titled), DefaultOptions())

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	waitSettled(t, c)

	require.True(t, c.SetPage(2))
	waitSettled(t, c)

	for _, id := range seq(1, 30) {
		assert.Equal(t, cache.Absent, c.cache.Get(id).State)
	}
	for _, id := range seq(31, 60) {
		assert.Equal(t, cache.Resolved, c.cache.Get(id).State)
	}
	st := c.Stats()
	assert.Equal(t, 30, st.Evicted)
	assert.Equal(t, 30, st.Cached)
	assert.Equal(t, []int{2}, st.Pages)
	assert.Equal(t, 100, st.TotalIDs)
}

func TestSetPageWhileLoadingCoalesces(t *testing.T) {
	gate := make(chan struct{})
	g := newGateway(func(ctx context.Context, id int) (*api.Item, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return titled(ctx, id)
	})
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: seq(1, 100)}}
	c := newTestController(t, src, g, DefaultOptions())

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	assert.Equal(t, LoadingPage, c.State())
	require.True(t, c.SetPage(2))
	require.True(t, c.SetPage(1))
	close(gate)

	waitSettled(t, c)
	for _, id := range seq(1, 30) {
		assert.Equal(t, 1, g.count(id), "id %d fetched twice", id)
	}
}

func TestIDListFailureAndRetry(t *testing.T) {
	src := &fakeSource{
		lists: map[api.FeedType][]int{api.FeedAsk: seq(1, 40)},
		err:   fmt.Errorf("%w: HTTP 503", api.ErrSourceUnavailable),
	}
	c := newTestController(t, src, newGateway(titled), DefaultOptions())

	err := c.SelectFeedType(context.Background(), api.FeedAsk)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIDListLoadFailed)
	assert.ErrorIs(t, err, api.ErrSourceUnavailable)
	assert.ErrorIs(t, c.Err(), ErrIDListLoadFailed)
	assert.Equal(t, Ready, c.State())
	assert.Empty(t, c.VisibleItems())
	assert.Equal(t, 0, c.Pagination().TotalPages)
	assert.False(t, c.SetPage(1))

	src.setErr(nil)
	require.NoError(t, c.Retry(context.Background()))
	assert.NoError(t, c.Err())
	waitSettled(t, c)
	assert.Len(t, c.VisibleItems(), 30)
}

func TestRetryWithoutFeed(t *testing.T) {
	c := newTestController(t, &fakeSource{}, newGateway(titled), DefaultOptions())
	assert.ErrorIs(t, c.Retry(context.Background()), ErrNoFeed)
	assert.Equal(t, Idle, c.State())
}

func TestMaxTotalIDs(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedNew: seq(1, 600)}}
	c := newTestController(t, src, newGateway(titled), DefaultOptions())

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedNew))
	waitSettled(t, c)
	assert.Equal(t, 17, c.Pagination().TotalPages)
	assert.Equal(t, 500, c.Stats().TotalIDs)
}

func TestEmptyFeed(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedJob: {}}}
	c := newTestController(t, src, newGateway(titled), DefaultOptions())

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedJob))
	assert.Equal(t, Ready, c.State())
	assert.Empty(t, c.VisibleItems())
	assert.Equal(t, Pagination{}, c.Pagination())
}

func TestScrollModeWindow(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: seq(1, 50)}}
	opts := Options{PageSize: 10, MaxTotalIDs: 500, Neighborhood: 1, Mode: ModeScroll}
	c := newTestController(t, src, newGateway(titled), opts)

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	waitSettled(t, c)
	assert.Len(t, c.VisibleItems(), 10)
	// the next page is prefetched
	require.Eventually(t, func() bool {
		return c.cache.Get(20).State == cache.Resolved && c.State() == Ready
	}, 3*time.Second, 5*time.Millisecond)

	require.True(t, c.ScrollTriggerLoadMore())
	waitSettled(t, c)
	slots := c.VisibleItems()
	require.Len(t, slots, 20)
	assert.Equal(t, 1, slots[0].Rank)
	assert.Equal(t, []int{1, 2, 3}, c.Stats().Pages)

	require.True(t, c.ScrollTriggerLoadMore())
	waitSettled(t, c)
	slots = c.VisibleItems()
	require.Len(t, slots, 20)
	assert.Equal(t, 11, slots[0].Rank)
	assert.Equal(t, cache.Absent, c.cache.Get(1).State)
	assert.Equal(t, []int{2, 3, 4}, c.Stats().Pages)
}

func TestRetryFailed(t *testing.T) {
	var mu sync.Mutex
	broken := true
	g := newGateway(func(ctx context.Context, id int) (*api.Item, error) {
		mu.Lock()
		defer mu.Unlock()
		if id == 7 && broken {
			return nil, errors.New("connection reset")
		}
		return titled(ctx, id)
	})
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: seq(1, 30)}}
	c := newTestController(t, src, g, DefaultOptions())

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	waitSettled(t, c)
	require.Equal(t, cache.Failed, c.VisibleItems()[6].Entry.State)

	mu.Lock()
	broken = false
	mu.Unlock()

	assert.Equal(t, 1, c.RetryFailed())
	waitSettled(t, c)
	assert.Equal(t, "T7", c.VisibleItems()[6].Entry.Item.Title)
	assert.Equal(t, 0, c.RetryFailed())
}

func TestOnChangeFires(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: seq(1, 5)}}
	c := newTestController(t, src, newGateway(titled), DefaultOptions())

	var mu sync.Mutex
	n := 0
	c.OnChange(func() {
		mu.Lock()
		n++
		mu.Unlock()
	})

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	waitSettled(t, c)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, n, 5)
}

func TestCloseReturnsToIdle(t *testing.T) {
	src := &fakeSource{lists: map[api.FeedType][]int{api.FeedTop: seq(1, 30)}}
	c := newTestController(t, src, newGateway(titled), DefaultOptions())

	require.NoError(t, c.SelectFeedType(context.Background(), api.FeedTop))
	c.Close()

	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 0, c.cache.Len())
	assert.Empty(t, c.VisibleItems())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Scroll")
	require.NoError(t, err)
	assert.Equal(t, ModeScroll, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModePaged, m)

	_, err = ParseMode("infinite")
	assert.Error(t, err)
}
