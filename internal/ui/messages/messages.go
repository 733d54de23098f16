package messages

import (
	"github.com/fragmede/hnreader/internal/api"
)

// View transition messages.
type (
	// OpenStoryMsg opens a thread. Item is set when the caller already has
	// the resolved root; otherwise it is fetched by ID.
	OpenStoryMsg struct {
		StoryID int
		Item    *api.Item
	}
	OpenUserMsg struct{ Username string }

	// RetryFeedMsg asks for the story list to be loaded again after a
	// failure.
	RetryFeedMsg struct{}
)

// Data messages.
type (
	// FeedChangedMsg is sent whenever the feed controller state changes.
	FeedChangedMsg struct{}

	// FeedLoadedMsg reports the end of a feed selection.
	FeedLoadedMsg struct {
		Feed api.FeedType
		Err  error
	}

	// ThreadChangedMsg is sent whenever the open thread changes.
	ThreadChangedMsg struct{}

	// FetchProgressMsg is sent when the scheduler's counters move.
	FetchProgressMsg struct{}

	ItemLoadedMsg struct {
		ID   int
		Item *api.Item
		Err  error
	}

	SearchResultMsg struct {
		Page *api.SearchPage
		Err  error
	}

	UserLoadedMsg struct {
		User  *api.User
		Items []*api.Item
		Err   error
	}

	StatusMsg struct {
		Text    string
		IsError bool
	}
)
