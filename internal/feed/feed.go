package feed

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Item is one entry of a fetched feed.
type Item struct {
	Key       string
	Title     string
	Author    string
	Link      string
	Published time.Time
}

// Content is the message text for the item.
func (i Item) Content() string {
	if i.Link == "" {
		return i.Title
	}
	return i.Title + "\n" + i.Link
}

type Feed struct {
	Title string
	Items []Item
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Feed, error)
}

type HTTPFetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		parser: gofeed.NewParser(),
	}
}

// Fetch returns the feed's items oldest first.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", "inboxsync/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	out := &Feed{Title: strings.TrimSpace(parsed.Title), Items: make([]Item, 0, len(parsed.Items))}
	for i := len(parsed.Items) - 1; i >= 0; i-- {
		item := parsed.Items[i]

		published := time.Now().UTC()
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		}

		author := out.Title
		if item.Author != nil && item.Author.Name != "" {
			author = item.Author.Name
		}

		out.Items = append(out.Items, Item{
			Key:       itemKey(item),
			Title:     strings.TrimSpace(item.Title),
			Author:    author,
			Link:      item.Link,
			Published: published,
		})
	}

	return out, nil
}

func itemKey(item *gofeed.Item) string {
	id := item.GUID
	if id == "" {
		id = item.Link + "|" + item.Title
	}
	sum := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%x", sum[:8])
}
