package thread

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/cache"
	"github.com/fragmede/hnreader/internal/fetch"
)

// Resolver is satisfied by *fetch.Scheduler.
type Resolver interface {
	Resolve(ctx context.Context, ids []int) <-chan fetch.Result
}

type load struct {
	cancel context.CancelFunc
	ids    []int
}

// Comment is one row of a flattened thread.
type Comment struct {
	ID         int
	Item       *api.Item // nil unless State is Resolved
	State      cache.State
	Err        error
	Depth      int
	Expanded   bool
	Loading    bool
	ChildCount int
	IsOP       bool
}

// Tree is a comment thread whose children are fetched on demand. Each
// expansion resolves the kids of one parent through the scheduler and can
// be cancelled on its own by collapsing that parent.
type Tree struct {
	root      *api.Item
	res       Resolver
	log       *log.Logger
	autoDepth int

	mu       sync.Mutex
	items    *cache.Cache
	depth    map[int]int
	expanded map[int]bool
	loads    map[int][]*load
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
	onChange func()
	wg       sync.WaitGroup
}

// New builds a tree rooted at root. Nodes shallower than autoDepth are
// expanded as soon as they resolve; 1 loads top-level comments and their
// direct replies.
func New(root *api.Item, res Resolver, autoDepth int, logger *log.Logger) *Tree {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tree{
		root:      root,
		res:       res,
		log:       logger.WithPrefix("thread"),
		autoDepth: autoDepth,
		items:     cache.New(),
		depth:     make(map[int]int),
		expanded:  make(map[int]bool),
		loads:     make(map[int][]*load),
		ctx:       ctx,
		cancel:    cancel,
	}
	t.items.Put(root.ID, root)
	t.depth[root.ID] = -1
	return t
}

// Root returns the item the tree hangs off.
func (t *Tree) Root() *api.Item { return t.root }

// OnChange registers fn to run whenever a node changes. fn must not block.
func (t *Tree) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *Tree) notify() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Start expands the root.
func (t *Tree) Start() bool {
	return t.Expand(t.root.ID)
}

// Expand marks id expanded and resolves any of its kids not yet known.
// It returns false when id is not a resolved node with kids.
func (t *Tree) Expand(id int) bool {
	t.mu.Lock()
	started := t.expandLocked(id)
	t.mu.Unlock()
	if started {
		t.notify()
	}
	return started
}

func (t *Tree) expandLocked(id int) bool {
	if t.closed {
		return false
	}
	e := t.items.Get(id)
	if e.State != cache.Resolved || len(e.Item.Kids) == 0 {
		return false
	}
	t.expanded[id] = true

	kids := e.Item.Kids
	for _, kid := range kids {
		t.depth[kid] = t.depth[id] + 1
	}
	t.autoExpandLocked(kids)

	missing := t.items.Reserve(kids)
	if len(missing) == 0 {
		return true
	}
	ctx, cancel := context.WithCancel(t.ctx)
	l := &load{cancel: cancel, ids: missing}
	t.loads[id] = append(t.loads[id], l)
	results := t.res.Resolve(ctx, missing)
	t.wg.Add(1)
	go t.consume(id, l, results)
	return true
}

// autoExpandLocked expands already resolved nodes that are shallow enough.
func (t *Tree) autoExpandLocked(ids []int) {
	for _, id := range ids {
		if t.depth[id] < t.autoDepth && !t.expanded[id] {
			t.expandLocked(id)
		}
	}
}

func (t *Tree) consume(parent int, l *load, results <-chan fetch.Result) {
	defer t.wg.Done()

	for r := range results {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			continue
		}
		switch {
		case r.Err == nil:
			t.items.Put(r.ID, r.Item)
			if t.depth[r.ID] < t.autoDepth {
				t.expandLocked(r.ID)
			}
		case errors.Is(r.Err, context.Canceled):
			t.items.Forget(r.ID)
		default:
			t.items.MarkFailed(r.ID, r.Attempts, r.Err)
		}
		t.mu.Unlock()
		t.notify()
	}

	t.mu.Lock()
	l.cancel()
	// IDs the scheduler released without fetching go back to Absent.
	for _, id := range l.ids {
		if t.items.Get(id).State == cache.Pending {
			t.items.Forget(id)
		}
	}
	t.removeLoadLocked(parent, l)
	t.mu.Unlock()
	t.notify()
}

func (t *Tree) removeLoadLocked(parent int, l *load) {
	loads := t.loads[parent]
	for i, x := range loads {
		if x == l {
			loads = append(loads[:i], loads[i+1:]...)
			break
		}
	}
	if len(loads) == 0 {
		delete(t.loads, parent)
		return
	}
	t.loads[parent] = loads
}

func (t *Tree) cancelLoadsLocked(id int) {
	for _, l := range t.loads[id] {
		l.cancel()
	}
}

// Collapse hides the kids of id and cancels their fetch if it is still
// running. Kids that were not fetched yet are fetched again on the next
// Expand.
func (t *Tree) Collapse(id int) {
	t.mu.Lock()
	delete(t.expanded, id)
	t.cancelLoadsLocked(id)
	t.mu.Unlock()
	t.notify()
}

// Toggle flips id between expanded and collapsed.
func (t *Tree) Toggle(id int) {
	t.mu.Lock()
	open := t.expanded[id]
	t.mu.Unlock()
	if open {
		t.Collapse(id)
		return
	}
	t.Expand(id)
}

// CollapseAll folds every comment, leaving only the top level visible.
func (t *Tree) CollapseAll() {
	t.mu.Lock()
	for id := range t.expanded {
		if id == t.root.ID {
			continue
		}
		delete(t.expanded, id)
		t.cancelLoadsLocked(id)
	}
	t.mu.Unlock()
	t.notify()
}

// Retry forgets a failed node so the parent's next expansion refetches it.
func (t *Tree) Retry(id int) bool {
	t.mu.Lock()
	if t.items.Get(id).State != cache.Failed {
		t.mu.Unlock()
		return false
	}
	t.items.Forget(id)
	parent := t.root.ID
	for pid := range t.expanded {
		e := t.items.Get(pid)
		if e.State == cache.Resolved && containsInt(e.Item.Kids, id) {
			parent = pid
			break
		}
	}
	t.expandLocked(parent)
	t.mu.Unlock()
	t.notify()
	return true
}

// Loading reports whether any expansion is still in flight.
func (t *Tree) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.loads) > 0
}

// Flatten walks the visible part of the tree in display order. The walk
// uses an explicit stack, so thread depth is not bounded by the call stack.
func (t *Tree) Flatten() []Comment {
	t.mu.Lock()
	defer t.mu.Unlock()

	type frame struct {
		id    int
		depth int
	}

	var out []Comment
	var stack []frame
	push := func(kids []int, depth int) {
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: kids[i], depth: depth})
		}
	}
	if t.expanded[t.root.ID] {
		push(t.root.Kids, 0)
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		e := t.items.Get(f.id)
		if e.State == cache.Absent {
			continue
		}
		loading := len(t.loads[f.id]) > 0
		c := Comment{
			ID:       f.id,
			Item:     e.Item,
			State:    e.State,
			Err:      e.Err,
			Depth:    f.depth,
			Expanded: t.expanded[f.id],
			Loading:  loading,
		}
		if e.Item != nil {
			c.ChildCount = len(e.Item.Kids)
			c.IsOP = t.root.By != "" && e.Item.By == t.root.By
			if c.Expanded {
				push(e.Item.Kids, f.depth+1)
			}
		}
		out = append(out, c)
	}
	return out
}

// Close cancels every expansion and waits for them to finish.
func (t *Tree) Close() {
	t.mu.Lock()
	t.closed = true
	t.cancel()
	t.mu.Unlock()
	t.wg.Wait()
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// ParentIndex returns the index of the parent of comments[i], or -1.
func ParentIndex(comments []Comment, i int) int {
	if i < 0 || i >= len(comments) || comments[i].Item == nil {
		return -1
	}
	parentID := comments[i].Item.Parent
	for j := i - 1; j >= 0; j-- {
		if comments[j].ID == parentID {
			return j
		}
	}
	return -1
}

// NextSiblingIndex returns the index of the next comment at the same depth.
func NextSiblingIndex(comments []Comment, i int) int {
	if i < 0 || i >= len(comments) {
		return -1
	}
	depth := comments[i].Depth
	for j := i + 1; j < len(comments); j++ {
		if comments[j].Depth < depth {
			return -1
		}
		if comments[j].Depth == depth {
			return j
		}
	}
	return -1
}
