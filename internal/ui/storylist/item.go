package storylist

import (
	"fmt"
	"strings"

	"github.com/fragmede/hnreader/internal/cache"
	"github.com/fragmede/hnreader/internal/feed"
	"github.com/fragmede/hnreader/internal/render"
)

const skeleton = "░░░░░░░░░░░░░░░░░░░░░░░░░░░░░░░░"

// SlotItem wraps a feed slot for the bubbles list. Unresolved slots render
// as placeholders so the page keeps its shape while items arrive.
type SlotItem struct {
	feed.Slot
}

func (s SlotItem) Title() string {
	switch s.Entry.State {
	case cache.Resolved:
		item := s.Entry.Item
		if item.Deleted {
			return "[deleted]"
		}
		if item.Title != "" {
			return item.Title
		}
		return fmt.Sprintf("[%s]", item.Type)
	case cache.Failed:
		return fmt.Sprintf("Could not load #%d", s.ID)
	default:
		return skeleton
	}
}

func (s SlotItem) Description() string {
	switch s.Entry.State {
	case cache.Resolved:
	case cache.Failed:
		msg := "unknown error"
		if s.Entry.Err != nil {
			msg = s.Entry.Err.Error()
		}
		return fmt.Sprintf("%s after %d attempts | R:retry", render.Truncate(msg, 60), s.Entry.Attempts)
	default:
		return "loading..."
	}

	item := s.Entry.Item
	parts := make([]string, 0, 4)
	if item.Score > 0 {
		parts = append(parts, fmt.Sprintf("%d points", item.Score))
	}
	if item.By != "" {
		parts = append(parts, "by "+item.By)
	}
	parts = append(parts, render.TimeAgo(item.Time))
	if item.Descendants > 0 {
		parts = append(parts, fmt.Sprintf("%d comments", item.Descendants))
	}
	desc := strings.Join(parts, " | ")
	if host := render.Host(item.URL); host != "" {
		desc += "  (" + host + ")"
	}
	return desc
}

func (s SlotItem) FilterValue() string {
	if s.Entry.Item == nil {
		return ""
	}
	return s.Entry.Item.Title + " " + s.Entry.Item.By
}
