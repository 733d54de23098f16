package api

import (
	"fmt"
	"strings"
)

// FeedType represents the different HN story listings.
type FeedType string

const (
	FeedTop  FeedType = "top"
	FeedNew  FeedType = "new"
	FeedBest FeedType = "best"
	FeedAsk  FeedType = "ask"
	FeedShow FeedType = "show"
	FeedJob  FeedType = "job"
)

// FeedTypes lists every feed type in tab order.
var FeedTypes = []FeedType{FeedTop, FeedNew, FeedBest, FeedAsk, FeedShow, FeedJob}

// ParseFeedType maps a user-supplied name to a FeedType.
func ParseFeedType(s string) (FeedType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "jobs" {
		s = "job"
	}
	for _, ft := range FeedTypes {
		if string(ft) == s {
			return ft, nil
		}
	}
	return "", fmt.Errorf("unknown feed type: %q", s)
}

// Title returns the display name for the feed.
func (ft FeedType) Title() string {
	switch ft {
	case FeedTop:
		return "Top Stories"
	case FeedNew:
		return "New"
	case FeedBest:
		return "Best Stories"
	case FeedAsk:
		return "Ask HN"
	case FeedShow:
		return "Show HN"
	case FeedJob:
		return "Jobs"
	default:
		return "Hacker News"
	}
}

// Item kinds as reported by the API.
const (
	KindStory   = "story"
	KindComment = "comment"
	KindJob     = "job"
	KindPoll    = "poll"
	KindPollOpt = "pollopt"
)

// Item represents an HN item (story, comment, job, poll, pollopt).
// Items are read-only once fetched.
type Item struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Text        string `json:"text"`
	Parent      int    `json:"parent"`
	Poll        int    `json:"poll"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Kids        []int  `json:"kids"`
	Parts       []int  `json:"parts"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`

	// StoryTitle is only set on comments that came from search.
	StoryTitle string `json:"-"`
}

// User represents an HN user profile.
type User struct {
	ID        string `json:"id"`
	Created   int64  `json:"created"`
	Karma     int    `json:"karma"`
	About     string `json:"about"`
	Submitted []int  `json:"submitted"`
}
