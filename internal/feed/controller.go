package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/cache"
	"github.com/fragmede/hnreader/internal/fetch"
)

var (
	// ErrIDListLoadFailed means the story list for the selected feed could
	// not be loaded. The feed stays empty until Retry.
	ErrIDListLoadFailed = errors.New("loading story list failed")

	// ErrStaleResult is returned to a SelectFeedType caller whose selection
	// was superseded before it finished. It is never shown to the user.
	ErrStaleResult = errors.New("stale result")

	// ErrNoFeed is returned by Retry before any feed has been selected.
	ErrNoFeed = errors.New("no feed selected")
)

// Source lists the IDs of a feed.
type Source interface {
	ListIDs(ctx context.Context, ft api.FeedType) ([]int, error)
}

// Resolver turns IDs into items. *fetch.Scheduler implements it.
type Resolver interface {
	Resolve(ctx context.Context, ids []int) <-chan fetch.Result
	Stats() fetch.Stats
}

// Slot is one row of the visible feed. Entry.State tells the presentation
// layer whether to draw the item, a skeleton or a failure placeholder.
type Slot struct {
	ID    int
	Rank  int
	Entry cache.Entry
}

// Pagination is what page controls need.
type Pagination struct {
	Page       int
	TotalPages int
	HasPrev    bool
	HasNext    bool
}

// Stats combines scheduler progress with cache residency.
type Stats struct {
	fetch.Stats
	Cached   int
	Pending  int
	Pages    []int
	Evicted  int
	TotalIDs int
}

// Controller owns the ID list of one feed type, the current page and the
// resident window, and drives the scheduler to fill the cache.
type Controller struct {
	src   Source
	res   Resolver
	cache *cache.Cache
	opts  Options
	log   *log.Logger

	mu          sync.Mutex
	state       State
	feedType    api.FeedType
	ids         []int
	page        int
	window      cache.Window
	err         error
	gen         uint64
	ctx         context.Context
	cancel      context.CancelFunc
	wg          *sync.WaitGroup
	outstanding int
	evicted     int
	onChange    func()
}

// New builds an idle controller.
func New(src Source, res Resolver, opts Options, logger *log.Logger) *Controller {
	return &Controller{
		src:   src,
		res:   res,
		cache: cache.New(),
		opts:  opts.normalize(),
		log:   logger.WithPrefix("feed"),
		state: Idle,
	}
}

// OnChange registers fn to run after any visible change. It runs on
// whichever goroutine made the change and must not call back into the
// controller while blocking.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SelectFeedType aborts all work for the current feed, clears the cache and
// loads the ID list for ft. On success page 1 starts loading. A failure is
// kept (see Err) and returned wrapped in ErrIDListLoadFailed.
func (c *Controller) SelectFeedType(ctx context.Context, ft api.FeedType) error {
	c.mu.Lock()
	gen, genCtx, prev := c.advanceLocked()
	c.feedType = ft
	c.state = LoadingIDs
	c.mu.Unlock()

	// Old resolutions must finish draining before the cache is reset, so
	// none of their IDs stay claimed in the scheduler.
	if prev != nil {
		prev.Wait()
	}
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrStaleResult
	}
	c.cache.Clear()
	c.mu.Unlock()
	c.notify()

	lctx, lcancel := context.WithCancel(ctx)
	stop := context.AfterFunc(genCtx, lcancel)
	ids, err := c.src.ListIDs(lctx, ft)
	stop()
	lcancel()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Debug("dropping superseded id list", "feed", ft)
		return ErrStaleResult
	}
	if err != nil {
		c.state = Ready
		c.err = fmt.Errorf("%w: %s: %w", ErrIDListLoadFailed, ft, err)
		loadErr := c.err
		c.mu.Unlock()
		c.log.Error("id list", "feed", ft, "err", err)
		c.notify()
		return loadErr
	}

	if len(ids) > c.opts.MaxTotalIDs {
		ids = ids[:c.opts.MaxTotalIDs]
	}
	c.ids = ids
	c.state = Ready
	c.log.Info("feed loaded", "feed", ft, "ids", len(ids))
	c.setPageLocked(1)
	c.mu.Unlock()

	c.notify()
	return nil
}

// advanceLocked starts a new generation. It cancels the old one and hands
// back its WaitGroup so the caller can wait outside the lock.
func (c *Controller) advanceLocked() (uint64, context.Context, *sync.WaitGroup) {
	c.gen++
	if c.cancel != nil {
		c.cancel()
	}
	prev := c.wg
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg = &sync.WaitGroup{}
	c.ids = nil
	c.page = 0
	c.window = cache.Window{}
	c.err = nil
	c.outstanding = 0
	return c.gen, c.ctx, prev
}

// Retry reloads the ID list of the current feed type.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	ft := c.feedType
	c.mu.Unlock()
	if ft == "" {
		return ErrNoFeed
	}
	return c.SelectFeedType(ctx, ft)
}

// SetPage moves to page n (1-based). Out of range pages are a no-op and
// return false.
func (c *Controller) SetPage(n int) bool {
	c.mu.Lock()
	ok := c.setPageLocked(n)
	c.mu.Unlock()
	if ok {
		c.notify()
	}
	return ok
}

// ScrollTriggerLoadMore advances one page. In scroll mode the previously
// rendered pages stay on screen until they fall out of the neighbourhood.
func (c *Controller) ScrollTriggerLoadMore() bool {
	c.mu.Lock()
	next := c.page + 1
	c.mu.Unlock()
	return c.SetPage(next)
}

// NextPage and PrevPage are conveniences for page buttons.
func (c *Controller) NextPage() bool { return c.ScrollTriggerLoadMore() }

func (c *Controller) PrevPage() bool {
	c.mu.Lock()
	prev := c.page - 1
	c.mu.Unlock()
	return c.SetPage(prev)
}

func (c *Controller) setPageLocked(n int) bool {
	if c.state != Ready && c.state != LoadingPage {
		return false
	}
	if n < 1 || n > c.totalPagesLocked() {
		return false
	}
	c.page = n
	c.recomputeLocked()
	return true
}

// recomputeLocked rebuilds the window for the current page, evicts what
// fell out of it and resolves whatever in it has no entry yet. Failed
// entries inside the window are left alone.
func (c *Controller) recomputeLocked() {
	pages := c.windowPagesLocked()
	c.window = cache.NewWindow(c.ids, c.opts.PageSize, pages...)
	c.evicted += c.cache.EvictOutside(c.window)

	var want []int
	for _, p := range pages {
		want = append(want, cache.PageIDs(c.ids, c.opts.PageSize, p)...)
	}
	missing := c.cache.Reserve(want)
	if len(missing) == 0 {
		return
	}
	c.resolveLocked(missing)
}

func (c *Controller) resolveLocked(ids []int) {
	gen, wg := c.gen, c.wg
	results := c.res.Resolve(c.ctx, ids)
	c.outstanding++
	c.state = LoadingPage
	wg.Add(1)
	c.log.Debug("resolving page", "page", c.page, "ids", len(ids))
	go c.consume(gen, wg, ids, results)
}

func (c *Controller) consume(gen uint64, wg *sync.WaitGroup, ids []int, results <-chan fetch.Result) {
	defer wg.Done()

	reported := make(map[int]struct{}, len(ids))
	for r := range results {
		reported[r.ID] = struct{}{}
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			continue
		}
		switch {
		case r.Err == nil:
			c.cache.Put(r.ID, r.Item)
		case errors.Is(r.Err, context.Canceled):
			c.cache.Forget(r.ID)
		default:
			c.cache.MarkFailed(r.ID, r.Attempts, r.Err)
		}
		c.mu.Unlock()
		c.notify()
	}

	c.mu.Lock()
	if gen == c.gen {
		// IDs the resolver never reported go back to Absent.
		for _, id := range ids {
			if _, ok := reported[id]; !ok && c.cache.Get(id).State == cache.Pending {
				c.cache.Forget(id)
			}
		}
		c.outstanding--
		if c.outstanding == 0 && c.state == LoadingPage {
			c.state = Ready
		}
	}
	c.mu.Unlock()
	c.notify()
}

// RetryFailed forgets failed entries on the rendered pages and resolves
// them again with a fresh attempt budget. It returns how many were retried.
func (c *Controller) RetryFailed() int {
	c.mu.Lock()
	if c.state != Ready && c.state != LoadingPage {
		c.mu.Unlock()
		return 0
	}
	n := 0
	for _, id := range c.renderedIDsLocked() {
		if c.cache.Get(id).State == cache.Failed {
			c.cache.Forget(id)
			n++
		}
	}
	if n > 0 {
		c.recomputeLocked()
	}
	c.mu.Unlock()

	if n > 0 {
		c.notify()
	}
	return n
}

func (c *Controller) totalPagesLocked() int {
	return cache.TotalPages(len(c.ids), c.opts.PageSize)
}

// windowPagesLocked lists the resident pages, rendered pages first.
func (c *Controller) windowPagesLocked() []int {
	if c.page < 1 {
		return nil
	}
	if c.opts.Mode != ModeScroll {
		return []int{c.page}
	}
	pages := c.renderedPagesLocked()
	total := c.totalPagesLocked()
	for p := c.page + 1; p <= min(c.page+c.opts.Neighborhood, total); p++ {
		pages = append(pages, p)
	}
	return pages
}

// renderedPagesLocked lists the pages shown to the user, in order. It is
// always a subset of the window.
func (c *Controller) renderedPagesLocked() []int {
	if c.page < 1 {
		return nil
	}
	first := c.page
	if c.opts.Mode == ModeScroll {
		first = max(1, c.page-c.opts.Neighborhood)
	}
	pages := make([]int, 0, c.page-first+1)
	for p := first; p <= c.page; p++ {
		pages = append(pages, p)
	}
	return pages
}

func (c *Controller) renderedIDsLocked() []int {
	var ids []int
	for _, p := range c.renderedPagesLocked() {
		ids = append(ids, cache.PageIDs(c.ids, c.opts.PageSize, p)...)
	}
	return ids
}

// VisibleItems returns the rendered slots in feed order.
func (c *Controller) VisibleItems() []Slot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var slots []Slot
	for _, p := range c.renderedPagesLocked() {
		base := (p - 1) * c.opts.PageSize
		for i, id := range cache.PageIDs(c.ids, c.opts.PageSize, p) {
			slots = append(slots, Slot{
				ID:    id,
				Rank:  base + i + 1,
				Entry: c.cache.Get(id),
			})
		}
	}
	return slots
}

// Pagination returns the page controls state.
func (c *Controller) Pagination() Pagination {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.totalPagesLocked()
	return Pagination{
		Page:       c.page,
		TotalPages: total,
		HasPrev:    c.page > 1,
		HasNext:    c.page < total,
	}
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FeedType returns the selected feed type, or "" when idle.
func (c *Controller) FeedType() api.FeedType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feedType
}

// Err returns the ID list failure for the current feed, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Mode returns how pages are presented.
func (c *Controller) Mode() Mode {
	return c.opts.Mode
}

// Stats returns a progress and residency snapshot.
func (c *Controller) Stats() Stats {
	counts := c.cache.Counts()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Stats:    c.res.Stats(),
		Cached:   counts[cache.Resolved],
		Pending:  counts[cache.Pending],
		Pages:    c.window.Pages(),
		Evicted:  c.evicted,
		TotalIDs: len(c.ids),
	}
}

// Close aborts outstanding work and waits for it to drain. The controller
// returns to Idle.
func (c *Controller) Close() {
	c.mu.Lock()
	gen, _, prev := c.advanceLocked()
	c.cancel()
	c.feedType = ""
	c.state = Idle
	c.mu.Unlock()

	if prev != nil {
		prev.Wait()
	}
	c.mu.Lock()
	if gen == c.gen {
		c.cache.Clear()
	}
	c.mu.Unlock()
}
