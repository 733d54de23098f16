package feed

import (
	"fmt"
	"strings"
)

// State is where the controller is in its load cycle.
type State int

const (
	Idle State = iota
	LoadingIDs
	Ready
	LoadingPage
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingIDs:
		return "loading ids"
	case Ready:
		return "ready"
	case LoadingPage:
		return "loading page"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode selects how pages are presented.
type Mode string

const (
	// ModePaged shows exactly one page; the window is that page.
	ModePaged Mode = "paged"
	// ModeScroll shows a run of pages ending at the current one and
	// prefetches the pages after it.
	ModeScroll Mode = "scroll"
)

// ParseMode accepts "paged" or "scroll".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePaged, "":
		return ModePaged, nil
	case ModeScroll:
		return ModeScroll, nil
	}
	return "", fmt.Errorf("unknown feed mode: %q", s)
}

// Options sizes pages and the cache window.
type Options struct {
	PageSize     int
	MaxTotalIDs  int
	Neighborhood int
	Mode         Mode
}

// DefaultOptions returns thirty-story pages, one neighbour page and paged mode.
func DefaultOptions() Options {
	return Options{
		PageSize:     30,
		MaxTotalIDs:  500,
		Neighborhood: 1,
		Mode:         ModePaged,
	}
}

func (o Options) normalize() Options {
	d := DefaultOptions()
	if o.PageSize < 1 {
		o.PageSize = d.PageSize
	}
	if o.MaxTotalIDs < 1 {
		o.MaxTotalIDs = d.MaxTotalIDs
	}
	if o.Neighborhood < 0 {
		o.Neighborhood = 0
	}
	if o.Mode == "" {
		o.Mode = ModePaged
	}
	return o
}
