package cache

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fragmede/hnreader/internal/api"
)

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestTotalPages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		n, size  int
		expected int
	}{
		{name: "empty list", n: 0, size: 30, expected: 0},
		{name: "exact multiple", n: 90, size: 30, expected: 3},
		{name: "partial last page", n: 100, size: 30, expected: 4},
		{name: "smaller than a page", n: 5, size: 30, expected: 1},
		{name: "zero page size", n: 5, size: 0, expected: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, TotalPages(tt.n, tt.size))
		})
	}
}

func TestPageIDs(t *testing.T) {
	t.Parallel()
	ids := seq(1, 100)

	assert.Equal(t, seq(1, 30), PageIDs(ids, 30, 1))
	assert.Equal(t, seq(91, 100), PageIDs(ids, 30, 4))
	assert.Empty(t, PageIDs(ids, 30, 0))
	assert.Empty(t, PageIDs(ids, 30, 5))
}

func TestWindowContains(t *testing.T) {
	t.Parallel()
	ids := seq(1, 100)

	w := NewWindow(ids, 30, 2, 1, 2, 9)
	assert.Equal(t, []int{1, 2}, w.Pages())
	assert.Equal(t, 60, w.Len())
	assert.True(t, w.Contains(1))
	assert.True(t, w.Contains(60))
	assert.False(t, w.Contains(61))
	assert.False(t, w.Contains(1000))
}

func TestGetAbsent(t *testing.T) {
	t.Parallel()
	c := New()
	e := c.Get(42)
	assert.Equal(t, Absent, e.State)
	assert.Nil(t, e.Item)
}

func TestPutIsLastWriteWins(t *testing.T) {
	t.Parallel()
	c := New()

	c.MarkPending(1)
	c.Put(1, &api.Item{ID: 1, Title: "first"})
	c.Put(1, &api.Item{ID: 1, Title: "second"})

	e := c.Get(1)
	require.Equal(t, Resolved, e.State)
	assert.Equal(t, "second", e.Item.Title)
	assert.Equal(t, 1, c.Len())
}

func TestMarkPendingKeepsExisting(t *testing.T) {
	t.Parallel()
	c := New()

	c.Put(1, &api.Item{ID: 1})
	assert.False(t, c.MarkPending(1))
	assert.Equal(t, Resolved, c.Get(1).State)

	assert.True(t, c.MarkPending(2))
	assert.Equal(t, Pending, c.Get(2).State)
}

func TestReserveSkipsKnownEntries(t *testing.T) {
	t.Parallel()
	c := New()
	c.Put(2, &api.Item{ID: 2})
	c.MarkFailed(3, 3, errors.New("boom"))
	c.MarkPending(4)

	missing := c.Reserve([]int{1, 2, 3, 4, 5})
	assert.Equal(t, []int{1, 5}, missing)
	assert.Equal(t, Pending, c.Get(1).State)
	assert.Equal(t, Failed, c.Get(3).State)
}

func TestMarkFailedAndForget(t *testing.T) {
	t.Parallel()
	c := New()
	err := errors.New("timeout")

	c.MarkFailed(5, 3, err)
	e := c.Get(5)
	assert.Equal(t, Failed, e.State)
	assert.Equal(t, 3, e.Attempts)
	assert.ErrorIs(t, e.Err, err)

	c.Forget(5)
	assert.Equal(t, Absent, c.Get(5).State)
}

func TestEvictOutside(t *testing.T) {
	t.Parallel()
	ids := seq(1, 100)
	c := New()
	for _, id := range ids {
		if id%2 == 0 {
			c.Put(id, &api.Item{ID: id})
		} else {
			c.MarkPending(id)
		}
	}

	w := NewWindow(ids, 30, 2)
	evicted := c.EvictOutside(w)
	assert.Equal(t, 70, evicted)
	assert.Equal(t, 30, c.Len())

	for _, id := range ids {
		e := c.Get(id)
		switch {
		case !w.Contains(id):
			assert.Equal(t, Absent, e.State, "id %d", id)
		case id%2 == 0:
			assert.Equal(t, Resolved, e.State, "id %d", id)
			assert.Equal(t, id, e.Item.ID)
		default:
			assert.Equal(t, Pending, e.State, "id %d", id)
		}
	}
}

func TestEvictThenLatePut(t *testing.T) {
	t.Parallel()
	ids := seq(1, 60)
	c := New()
	c.MarkPending(5)

	c.EvictOutside(NewWindow(ids, 30, 2))
	assert.Equal(t, Absent, c.Get(5).State)

	// a fetch that was already in flight still lands
	c.Put(5, &api.Item{ID: 5})
	assert.Equal(t, Resolved, c.Get(5).State)

	c.EvictOutside(NewWindow(ids, 30, 2))
	assert.Equal(t, Absent, c.Get(5).State)
}

func TestClearAndCounts(t *testing.T) {
	t.Parallel()
	c := New()
	c.Put(1, &api.Item{ID: 1})
	c.MarkPending(2)
	c.MarkFailed(3, 3, errors.New("x"))

	counts := c.Counts()
	assert.Equal(t, 1, counts[Resolved])
	assert.Equal(t, 1, counts[Pending])
	assert.Equal(t, 1, counts[Failed])

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentPutAndEvict(t *testing.T) {
	t.Parallel()
	ids := seq(1, 300)
	c := New()
	w := NewWindow(ids, 30, 1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(off int) {
			defer wg.Done()
			for _, id := range ids[off*75 : (off+1)*75] {
				c.Put(id, &api.Item{ID: id})
				c.EvictOutside(w)
			}
		}(i)
	}
	wg.Wait()
	c.EvictOutside(w)

	assert.LessOrEqual(t, c.Len(), 30)
	for _, id := range seq(31, 300) {
		assert.Equal(t, Absent, c.Get(id).State)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "absent", Absent.String())
}
