package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

const (
	DefaultSearchURL = "https://hn.algolia.com/api/v1"
	SearchPageSize   = 20
)

// SearchKind selects what a search returns.
type SearchKind string

const (
	SearchStories  SearchKind = "stories"
	SearchComments SearchKind = "comments"
)

// AlgoliaResponse is the search response from the Algolia HN API.
type AlgoliaResponse struct {
	Hits        []AlgoliaHit `json:"hits"`
	Page        int          `json:"page"`
	NbPages     int          `json:"nbPages"`
	HitsPerPage int          `json:"hitsPerPage"`
}

// AlgoliaHit is a single search result.
type AlgoliaHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Author      string `json:"author"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	CreatedAtI  int64  `json:"created_at_i"`
	StoryText   string `json:"story_text"`
	CommentText string `json:"comment_text"`
	ParentID    int    `json:"parent_id"`
	StoryID     int    `json:"story_id"`
	StoryTitle  string `json:"story_title"`
	StoryURL    string `json:"story_url"`
}

// ToItem converts an Algolia hit to an api.Item.
func (h AlgoliaHit) ToItem() *Item {
	id, _ := strconv.Atoi(h.ObjectID)

	item := &Item{
		ID:    id,
		By:    h.Author,
		Time:  h.CreatedAtI,
		Score: h.Points,
	}

	if h.Title != "" {
		item.Type = KindStory
		item.Title = h.Title
		item.URL = h.URL
		item.Descendants = h.NumComments
		item.Text = h.StoryText
	} else {
		item.Type = KindComment
		item.Text = h.CommentText
		item.Parent = h.ParentID
		item.StoryTitle = h.StoryTitle
	}

	return item
}

// SearchPage is one page of search results.
type SearchPage struct {
	Query   string
	Kind    SearchKind
	Page    int
	NbPages int
	Items   []*Item
	// StoryIDs holds the story each comment hit belongs to, by position.
	StoryIDs []int
}

// HasMore reports whether another page can be requested.
func (p *SearchPage) HasMore() bool {
	return len(p.Items) == SearchPageSize && p.Page < p.NbPages-1
}

// Search runs a full-text query against Algolia. Stories are ranked by
// relevance, comments by date.
func (c *Client) Search(ctx context.Context, query string, kind SearchKind, page int) (*SearchPage, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("hitsPerPage", strconv.Itoa(SearchPageSize))

	var endpoint string
	switch kind {
	case SearchStories:
		q.Set("tags", "story")
		endpoint = c.searchURL + "/search?" + q.Encode()
	case SearchComments:
		q.Set("tags", "comment")
		endpoint = c.searchURL + "/search_by_date?" + q.Encode()
	default:
		return nil, fmt.Errorf("unknown search kind: %q", kind)
	}

	var resp AlgoliaResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("searching %s: %w", kind, err)
	}

	result := &SearchPage{
		Query:    query,
		Kind:     kind,
		Page:     resp.Page,
		NbPages:  resp.NbPages,
		Items:    make([]*Item, 0, len(resp.Hits)),
		StoryIDs: make([]int, 0, len(resp.Hits)),
	}
	for _, hit := range resp.Hits {
		result.Items = append(result.Items, hit.ToItem())
		result.StoryIDs = append(result.StoryIDs, hit.StoryID)
	}
	return result, nil
}
