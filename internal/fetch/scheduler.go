package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fragmede/hnreader/internal/api"
)

// ItemGetter is the part of the item source the scheduler needs.
type ItemGetter interface {
	GetItem(ctx context.Context, id int) (*api.Item, error)
}

// Options controls batching, throttling and retries.
type Options struct {
	MaxConcurrent   int
	PerItemTimeout  time.Duration
	MaxAttempts     int
	InterItemDelay  time.Duration
	InterBatchDelay time.Duration
}

// DefaultOptions returns the stock throttling settings.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent:   3,
		PerItemTimeout:  5 * time.Second,
		MaxAttempts:     3,
		InterItemDelay:  100 * time.Millisecond,
		InterBatchDelay: 300 * time.Millisecond,
	}
}

// Result is the outcome for one ID. Err is nil on success. A cancelled
// fetch reports an error wrapping context.Canceled.
type Result struct {
	ID       int
	Item     *api.Item
	Attempts int
	Err      error
}

// Stats is a progress snapshot. It is advisory only.
type Stats struct {
	Fetched int
	Active  int
	Failed  int
	Retries int
}

// Scheduler resolves item IDs with bounded concurrency. An ID is only ever
// in one request at a time: a Resolve that asks for an ID already in flight
// joins that request and receives its result.
type Scheduler struct {
	getter  ItemGetter
	opts    Options
	limiter *rate.Limiter
	log     *log.Logger

	mu         sync.Mutex
	active     map[int]struct{}
	waiters    map[int][]chan Result
	stats      Stats
	onProgress func(Stats)
}

// New creates a scheduler over getter.
func New(getter ItemGetter, opts Options, logger *log.Logger) *Scheduler {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	limit := rate.Inf
	if opts.InterItemDelay > 0 {
		limit = rate.Every(opts.InterItemDelay)
	}
	return &Scheduler{
		getter:  getter,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.WithPrefix("fetch"),
		active:  make(map[int]struct{}),
		waiters: make(map[int][]chan Result),
	}
}

// OnProgress registers fn to be called after every stats change. fn runs on
// a fetch goroutine and must not block.
func (s *Scheduler) OnProgress(fn func(Stats)) {
	s.mu.Lock()
	s.onProgress = fn
	s.mu.Unlock()
}

// Stats returns the current progress counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Active = len(s.active)
	return st
}

// InFlight reports whether id is currently claimed by a Resolve call.
func (s *Scheduler) InFlight(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	return ok
}

// Resolve fetches ids and streams one Result per distinct ID. IDs already
// in flight for another caller are not fetched again: this call waits for
// the pending result instead, and takes the ID over if the other caller is
// cancelled first. Claims happen before Resolve returns. The channel is
// closed once every ID has been reported, or released after cancellation
// of ctx. It is buffered so an abandoned reader never blocks the scheduler.
func (s *Scheduler) Resolve(ctx context.Context, ids []int) <-chan Result {
	claimed, joined := s.claim(ids)
	out := make(chan Result, len(claimed)+len(joined))
	if len(claimed)+len(joined) == 0 {
		close(out)
		return out
	}

	s.log.Debug("resolving", "requested", len(ids), "claimed", len(claimed), "joined", len(joined))
	var wg sync.WaitGroup
	if len(claimed) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.run(ctx, claimed, out)
		}()
	}
	for id, ch := range joined {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.await(ctx, id, ch, out)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// claim splits ids into those this call fetches and those it waits on.
func (s *Scheduler) claim(ids []int) ([]int, map[int]chan Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed := make([]int, 0, len(ids))
	joined := make(map[int]chan Result)
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, busy := s.active[id]; busy {
			ch := make(chan Result, 1)
			s.waiters[id] = append(s.waiters[id], ch)
			joined[id] = ch
			continue
		}
		s.active[id] = struct{}{}
		claimed = append(claimed, id)
	}
	return claimed, joined
}

// await forwards the result of a request owned by another caller.
func (s *Scheduler) await(ctx context.Context, id int, ch chan Result, out chan<- Result) {
	select {
	case <-ctx.Done():
		s.leave(id, ch)
	case res := <-ch:
		if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
			// The owner gave up; fetch it under this caller's context.
			for r := range s.Resolve(ctx, []int{id}) {
				out <- r
			}
			return
		}
		out <- res
	}
}

func (s *Scheduler) leave(id int, ch chan Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.waiters[id]
	for i, w := range ws {
		if w == ch {
			ws = append(ws[:i:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) == 0 {
		delete(s.waiters, id)
	} else {
		s.waiters[id] = ws
	}
}

// deliverLocked hands res to every caller waiting on its ID. Each waiter
// channel has room for exactly one result.
func (s *Scheduler) deliverLocked(res Result) {
	for _, w := range s.waiters[res.ID] {
		w <- res
	}
	delete(s.waiters, res.ID)
}

func (s *Scheduler) release(ids []int) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range ids {
		delete(s.active, id)
		s.deliverLocked(Result{ID: id, Err: fmt.Errorf("item %d: %w", id, context.Canceled)})
	}
	s.mu.Unlock()
	s.progress()
}

func (s *Scheduler) run(ctx context.Context, ids []int, out chan<- Result) {
	size := s.opts.MaxConcurrent
	for start := 0; start < len(ids); start += size {
		if start > 0 && !s.pause(ctx, s.opts.InterBatchDelay) {
			s.release(ids[start:])
			return
		}
		if ctx.Err() != nil {
			s.release(ids[start:])
			return
		}

		end := min(start+size, len(ids))
		batch := ids[start:end]

		var g errgroup.Group
		for i, id := range batch {
			// Request starts are spaced by the limiter, in array order.
			if err := s.limiter.Wait(ctx); err != nil {
				s.release(batch[i:])
				g.Wait()
				s.release(ids[end:])
				return
			}
			g.Go(func() error {
				res := s.fetch(ctx, id)
				s.finish(res)
				out <- res
				return nil
			})
		}
		g.Wait()
	}
}

// pause sleeps for d unless ctx is cancelled first.
func (s *Scheduler) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// fetch runs up to MaxAttempts attempts for one ID. A missing item is
// permanent and is not retried.
func (s *Scheduler) fetch(ctx context.Context, id int) Result {
	res := Result{ID: id}
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.limiter.Wait(ctx); err != nil {
				res.Err = fmt.Errorf("item %d: %w", id, err)
				return res
			}
			s.mu.Lock()
			s.stats.Retries++
			s.mu.Unlock()
		}
		res.Attempts = attempt

		item, err := s.attempt(ctx, id)
		if err == nil {
			res.Item = item
			res.Err = nil
			return res
		}
		res.Err = err

		if ctx.Err() != nil {
			res.Err = fmt.Errorf("item %d: %w", id, ctx.Err())
			return res
		}
		if errors.Is(err, api.ErrItemNotFound) {
			return res
		}
		s.log.Debug("attempt failed", "id", id, "attempt", attempt, "err", err)
	}
	return res
}

func (s *Scheduler) attempt(ctx context.Context, id int) (*api.Item, error) {
	actx := ctx
	if s.opts.PerItemTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.opts.PerItemTimeout)
		defer cancel()
	}
	return s.getter.GetItem(actx, id)
}

func (s *Scheduler) finish(res Result) {
	s.mu.Lock()
	delete(s.active, res.ID)
	s.deliverLocked(res)
	switch {
	case res.Err == nil:
		s.stats.Fetched++
	case errors.Is(res.Err, context.Canceled):
	default:
		s.stats.Failed++
	}
	s.mu.Unlock()

	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		s.log.Warn("giving up", "id", res.ID, "attempts", res.Attempts, "err", res.Err)
	}
	s.progress()
}

func (s *Scheduler) progress() {
	s.mu.Lock()
	fn := s.onProgress
	st := s.stats
	st.Active = len(s.active)
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
