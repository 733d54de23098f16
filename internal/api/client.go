package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL   = "https://hacker-news.firebaseio.com/v0"
	DefaultUserAgent = "hnreader/1.0"
	requestTimeout   = 10 * time.Second
	maxConcurrent    = 10
)

var (
	// ErrSourceUnavailable covers network failures, non-2xx responses and
	// undecodable bodies from the remote source.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrItemNotFound is returned when the item endpoint answers with null.
	ErrItemNotFound = errors.New("item not found")
)

// Client is the HN API client. It does no retrying or caching.
type Client struct {
	http      *http.Client
	baseURL   string
	searchURL string
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different firebase-compatible API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithSearchURL points search calls at a different Algolia-compatible root.
func WithSearchURL(u string) Option {
	return func(c *Client) { c.searchURL = u }
}

// WithTimeout sets the overall HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a new HN API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL:   DefaultBaseURL,
		searchURL: DefaultSearchURL,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get fetches a URL and decodes the JSON response into dst.
func (c *Client) get(ctx context.Context, url string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetching %s: %w", ErrSourceUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d from %s: %s", ErrSourceUnavailable, resp.StatusCode, url, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decoding response from %s: %w", ErrSourceUnavailable, url, err)
	}
	return nil
}

// ListIDs fetches the ordered story IDs for a feed type.
func (c *Client) ListIDs(ctx context.Context, ft FeedType) ([]int, error) {
	if _, err := ParseFeedType(string(ft)); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%sstories.json", c.baseURL, ft)
	var ids []int
	if err := c.get(ctx, url, &ids); err != nil {
		return nil, fmt.Errorf("fetching %s stories: %w", ft, err)
	}
	return ids, nil
}

// GetItem fetches a single item by ID.
func (c *Client) GetItem(ctx context.Context, id int) (*Item, error) {
	url := fmt.Sprintf("%s/item/%d.json", c.baseURL, id)
	var item *Item
	if err := c.get(ctx, url, &item); err != nil {
		return nil, err
	}
	if item == nil || item.ID == 0 {
		return nil, fmt.Errorf("item %d: %w", id, ErrItemNotFound)
	}
	return item, nil
}

// BatchGetItems fetches multiple items concurrently with a concurrency limit.
// Returns items in the same order as the input IDs. Failed fetches are nil.
func (c *Client) BatchGetItems(ctx context.Context, ids []int) ([]*Item, error) {
	results := make([]*Item, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, id := range ids {
		g.Go(func() error {
			item, err := c.GetItem(gctx, id)
			if err != nil {
				// Non-fatal: individual items can fail.
				return nil
			}
			mu.Lock()
			results[i] = item
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetUser fetches a user profile by username.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	url := fmt.Sprintf("%s/user/%s.json", c.baseURL, username)
	var user *User
	if err := c.get(ctx, url, &user); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", username, ErrItemNotFound)
	}
	return user, nil
}
