package cache

import "sort"

// TotalPages returns how many pages of size pageSize cover n IDs.
func TotalPages(n, pageSize int) int {
	if n <= 0 || pageSize <= 0 {
		return 0
	}
	return (n + pageSize - 1) / pageSize
}

// PageIDs returns the IDs on page (1-based). Out of range pages are empty.
func PageIDs(ids []int, pageSize, page int) []int {
	if page < 1 || pageSize <= 0 {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(ids) {
		return nil
	}
	end := min(start+pageSize, len(ids))
	return ids[start:end]
}

// Window is the set of pages whose items may stay resident.
type Window struct {
	pageSize int
	pages    []int
	members  map[int]struct{}
}

// NewWindow builds a window over ids. Pages outside the ID list are ignored.
func NewWindow(ids []int, pageSize int, pages ...int) Window {
	w := Window{
		pageSize: pageSize,
		members:  make(map[int]struct{}),
	}
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		page := PageIDs(ids, pageSize, p)
		if len(page) == 0 || seen[p] {
			continue
		}
		seen[p] = true
		w.pages = append(w.pages, p)
		for _, id := range page {
			w.members[id] = struct{}{}
		}
	}
	sort.Ints(w.pages)
	return w
}

// Pages returns the resident page numbers in ascending order.
func (w Window) Pages() []int { return w.pages }

// PageSize returns the page size the window was built with.
func (w Window) PageSize() int { return w.pageSize }

// Contains reports whether id belongs to a resident page.
func (w Window) Contains(id int) bool {
	_, ok := w.members[id]
	return ok
}

// Len is the number of IDs covered by the window.
func (w Window) Len() int { return len(w.members) }
