// Package readwise wraps the Readwise Reader API: listing already-saved
// URLs for dedup and saving qualifying items.
package readwise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Reader v3 API.
	DefaultBaseURL = "https://readwise.io/api/v3"

	listPageSize = 250
	sourceTag    = "hackernews"

	defaultListRetries = 4
	defaultSaveRetries = 2
	initialBackoff     = time.Second
	maxBackoff         = 30 * time.Second
)

// APIError reports a failed Reader API call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("readwise API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("readwise API error: %s", e.Message)
}

// Permanent reports whether retrying is pointless (404-class failures).
func (e *APIError) Permanent() bool {
	return e.StatusCode == http.StatusNotFound
}

// Client talks to the Reader API with bearer-token-style credentials.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	// Pacing knobs, overridable in tests.
	PagePause    time.Duration // between list pages
	SavePause    time.Duration // between successful saves
	ErrorPause   time.Duration // after a failed save, to avoid cascades
	RetryBackoff time.Duration // initial backoff between retry attempts
}

// NewClient builds a Reader client. An empty baseURL selects production.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 20 * time.Second},

		PagePause:    500 * time.Millisecond,
		SavePause:    time.Second,
		ErrorPause:   2 * time.Second,
		RetryBackoff: initialBackoff,
	}
}

type listResponse struct {
	Results []struct {
		SourceURL string `json:"source_url"`
	} `json:"results"`
	NextPageCursor string `json:"nextPageCursor"`
}

// retryWithBackoff runs fn with exponential backoff plus full jitter,
// giving up immediately on permanent failures.
func (c *Client) retryWithBackoff(ctx context.Context, maxTries int, fn func() error) error {
	backoff := c.RetryBackoff
	if backoff <= 0 {
		backoff = initialBackoff
	}
	var lastErr error

	for attempt := 0; attempt < maxTries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && apiErr.Permanent() {
			return lastErr
		}
		if attempt == maxTries-1 {
			break
		}

		sleep := time.Duration(rand.Float64() * float64(backoff))
		log.Debug().Err(lastErr).Int("attempt", attempt+1).Dur("sleep", sleep).Msg("Retrying readwise call")

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return lastErr
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return lastErr
}

func (c *Client) fetchPage(ctx context.Context, cursor string) (*listResponse, error) {
	endpoint := fmt.Sprintf("%s/list/?limit=%d", c.baseURL, listPageSize)
	if cursor != "" {
		endpoint += "&pageCursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("failed to decode list page: %v", err)}
	}
	return &page, nil
}

// ListAllSavedURLs paginates through every saved document and returns the
// set of source URLs. Rate-limit and transient errors are retried per page;
// a hard failure surfaces to the caller, who may degrade to an empty set
// and accept duplicate submissions rather than abort a sync.
func (c *Client) ListAllSavedURLs(ctx context.Context) (map[string]struct{}, error) {
	urls := make(map[string]struct{})
	cursor := ""
	pageNum := 1

	for {
		var page *listResponse
		err := c.retryWithBackoff(ctx, defaultListRetries, func() error {
			var err error
			page, err = c.fetchPage(ctx, cursor)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list saved documents (page %d): %w", pageNum, err)
		}

		for _, doc := range page.Results {
			if doc.SourceURL != "" {
				urls[doc.SourceURL] = struct{}{}
			}
		}

		log.Debug().Int("page", pageNum).Int("urls", len(urls)).Msg("Fetched readwise page")

		if page.NextPageCursor == "" {
			return urls, nil
		}
		cursor = page.NextPageCursor
		pageNum++

		select {
		case <-time.After(c.PagePause):
		case <-ctx.Done():
			return urls, ctx.Err()
		}
	}
}

type saveRequest struct {
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	Tags            []string `json:"tags"`
	ShouldCleanHTML bool     `json:"should_clean_html"`
}

// Save submits one URL to the Reader. Transient failures are retried with
// backoff; 404-class failures are permanent and returned immediately.
func (c *Client) Save(ctx context.Context, pageURL, title, author string) error {
	return c.retryWithBackoff(ctx, defaultSaveRetries+1, func() error {
		body, err := json.Marshal(saveRequest{
			URL:             pageURL,
			Title:           title,
			Author:          author,
			Tags:            []string{sourceTag},
			ShouldCleanHTML: true,
		})
		if err != nil {
			return fmt.Errorf("marshal save payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/save/", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build save request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return &APIError{Message: err.Error()}
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		// 200 = already existed, 201 = created; both are success.
		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			return nil
		}
		return &APIError{StatusCode: resp.StatusCode, Message: "save failed"}
	})
}

func fallbackTitle(id int64) string {
	return "Hacker News story " + strconv.FormatInt(id, 10)
}
