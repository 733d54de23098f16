package newsletter

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/fetch"
	"github.com/fragmede/hnreader/internal/render"
)

//go:embed templates/digest.html
var templates embed.FS

var digestTmpl = template.Must(template.New("digest.html").Funcs(template.FuncMap{
	"rank": func(i int) int { return i + 1 },
}).ParseFS(templates, "templates/digest.html"))

var (
	ErrNoStories     = errors.New("no stories could be fetched")
	ErrNoSubscribers = errors.New("no subscribers found")
)

const itemURL = "https://news.ycombinator.com/item?id="

// IDLister supplies the ranked story IDs for a feed.
type IDLister interface {
	ListIDs(ctx context.Context, ft api.FeedType) ([]int, error)
}

// Resolver resolves item IDs, usually a *fetch.Scheduler.
type Resolver interface {
	Resolve(ctx context.Context, ids []int) <-chan fetch.Result
}

// Story is one digest entry, ready for the template.
type Story struct {
	ID          int
	Title       string
	Link        string
	Host        string
	By          string
	Score       int
	Comments    int
	CommentsURL string
}

// Digest is a composed newsletter. It is rendered once per recipient.
type Digest struct {
	Subject string
	Date    string
	Stories []Story
}

// Composer builds a digest from the top stories.
type Composer struct {
	ids   IDLister
	res   Resolver
	count int
	log   *log.Logger
	now   func() time.Time
}

func NewComposer(ids IDLister, res Resolver, count int, logger *log.Logger) *Composer {
	if count < 1 {
		count = 1
	}
	return &Composer{
		ids:   ids,
		res:   res,
		count: count,
		log:   logger.WithPrefix("newsletter"),
		now:   time.Now,
	}
}

// Compose resolves the first count top stories. Stories that fail to
// resolve are left out; ErrNoStories is returned when none resolve.
func (c *Composer) Compose(ctx context.Context) (*Digest, error) {
	ids, err := c.ids.ListIDs(ctx, api.FeedTop)
	if err != nil {
		return nil, fmt.Errorf("listing top stories: %w", err)
	}
	if len(ids) > c.count {
		ids = ids[:c.count]
	}

	got := make(map[int]*api.Item, len(ids))
	for r := range c.res.Resolve(ctx, ids) {
		if r.Err != nil {
			c.log.Warn("skipping story", "id", r.ID, "err", r.Err)
			continue
		}
		got[r.ID] = r.Item
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := &Digest{}
	for _, id := range ids {
		item, ok := got[id]
		if !ok || item.Deleted || item.Dead {
			continue
		}
		d.Stories = append(d.Stories, storyFromItem(item))
	}
	if len(d.Stories) == 0 {
		return nil, ErrNoStories
	}

	now := c.now()
	d.Date = now.Format("Monday, January 2, 2006")
	d.Subject = fmt.Sprintf("Hacker News Top %d - %s", len(d.Stories), now.Format("Jan 2"))
	c.log.Info("composed digest", "stories", len(d.Stories))
	return d, nil
}

func storyFromItem(item *api.Item) Story {
	comments := itemURL + strconv.Itoa(item.ID)
	link := item.URL
	if link == "" {
		link = comments
	}
	return Story{
		ID:          item.ID,
		Title:       item.Title,
		Link:        link,
		Host:        render.Host(item.URL),
		By:          item.By,
		Score:       item.Score,
		Comments:    item.Descendants,
		CommentsURL: comments,
	}
}

// Render produces the HTML for one recipient.
func (d *Digest) Render(name, unsubscribeURL string) (string, error) {
	if name == "" {
		name = "there"
	}
	data := struct {
		*Digest
		Name           string
		UnsubscribeURL string
	}{d, name, unsubscribeURL}

	var buf bytes.Buffer
	if err := digestTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering digest: %w", err)
	}
	return buf.String(), nil
}
