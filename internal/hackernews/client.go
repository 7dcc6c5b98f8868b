// Package hackernews wraps the public Hacker News Firebase API: flat ID
// feeds, per-item lookup and the backward walks the poller uses to find
// everything newer than its checkpoint.
package hackernews

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"hnpoller/internal/models"
)

// DefaultBaseURL is the production HN API endpoint.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

// DefaultConcurrency bounds simultaneous in-flight item-detail requests.
const DefaultConcurrency = 10

// Feed selects one of the flat ID list endpoints.
type Feed string

const (
	FeedTop  Feed = "top"
	FeedBest Feed = "best"
	FeedNew  Feed = "new"
)

func (f Feed) endpoint() (string, error) {
	switch f {
	case FeedTop:
		return "topstories.json", nil
	case FeedBest:
		return "beststories.json", nil
	case FeedNew:
		return "newstories.json", nil
	}
	return "", fmt.Errorf("unknown feed %q", string(f))
}

// UpstreamError reports a non-2xx response from the source API.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error from %s: HTTP %d", e.Endpoint, e.StatusCode)
}

// Client is a thin HTTP wrapper around the source API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given base URL; an empty URL selects
// the production endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// sourceItem is the wire shape of an HN item.
type sourceItem struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Score       int64  `json:"score"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Kind        string `json:"type"`
	Descendants int64  `json:"descendants"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

func (si *sourceItem) toModel() models.Item {
	item := models.NewItem()
	item.ID = si.ID
	item.Title = si.Title
	if si.URL != "" {
		item.URL = sql.NullString{String: si.URL, Valid: true}
	}
	item.Author = si.By
	item.CreatedAt = si.Time
	item.Score = si.Score
	item.CommentCount = si.Descendants
	if si.Kind != "" {
		item.Kind = si.Kind
	}
	return *item
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	url := c.baseURL + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", endpoint, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// ListIDs returns up to limit ids from the given feed, newest first for the
// "new" feed. The source caps each feed at a fixed size (~500).
func (c *Client) ListIDs(ctx context.Context, feed Feed, limit int) ([]int64, error) {
	endpoint, err := feed.endpoint()
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := c.getJSON(ctx, endpoint, &ids); err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// GetItem fetches one item by id. Absent (deleted, dead or never issued)
// items return (nil, nil): not-found is a valid outcome, not an error.
func (c *Client) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	endpoint := fmt.Sprintf("item/%d.json", id)

	var raw *sourceItem
	err := c.getJSON(ctx, endpoint, &raw)
	if err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) && ue.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	// The API answers "null" with status 200 for unknown ids.
	if raw == nil || raw.ID == 0 || raw.Deleted || raw.Dead {
		return nil, nil
	}

	item := raw.toModel()
	return &item, nil
}

// MaxItemID returns the current high-water mark of ids issued by the source.
func (c *Client) MaxItemID(ctx context.Context) (int64, error) {
	var id int64
	if err := c.getJSON(ctx, "maxitem.json", &id); err != nil {
		return 0, err
	}
	return id, nil
}

// BatchGetItems fetches details for a set of ids with a bounded worker pool
// and returns the stories found, ordered by descending id. Individual fetch
// failures are swallowed and the id treated as absent: the items are
// independently useful, so a partial batch beats no batch.
func (c *Client) BatchGetItems(ctx context.Context, ids []int64, concurrency int) []models.Item {
	if len(ids) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(ids) {
		concurrency = len(ids)
	}

	idQueue := make(chan int64, len(ids))
	for _, id := range ids {
		idQueue <- id
	}
	close(idQueue)

	results := make(chan models.Item, len(ids))
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idQueue {
				item, err := c.GetItem(ctx, id)
				if err != nil {
					log.Debug().Err(err).Int64("id", id).Msg("Item fetch failed, treating as absent")
					continue
				}
				if item == nil || item.Kind != "story" {
					continue
				}
				results <- *item
			}
		}()
	}
	wg.Wait()
	close(results)

	items := make([]models.Item, 0, len(ids))
	for item := range results {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items
}
