// Package classifier scores items against a fixed interest profile by
// calling an external text-classification service and parsing the numeric
// reply.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"hnpoller/internal/models"
)

const (
	// DefaultEndpoint is the Anthropic messages API.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	// DefaultModel favors speed and cost over depth.
	DefaultModel = "claude-3-haiku-20240307"

	apiVersion       = "2023-06-01"
	replyMaxTokens   = 100
	maxArticleChars  = 5000 // keep prompts under the service's input limits
	domainCacheSize  = 128
	domainTrustBelow = 30 // a low domain score may stand in for the item score
)

const systemPrompt = `Evaluate how strongly this Hacker News story would match the following interest categories:

1. Technology & Tools:
   - Emacs, Linux, NixOS, MacOS, Apple hardware
   - E-book readers and related technology

2. Programming & Computer Science:
   - Python, Julia, Lisp
   - Functional programming, logic programming
   - Any interesting programming language concepts

3. Security & Hacking:
   - Infosec, cybersecurity, penetration testing
   - Ethical hacking, cracking (in educational context)
   - Security research, vulnerabilities

4. Projects & Creativity:
   - DIY/home projects with technology
   - Creative coding, generative art
   - Hardware hacking, electronics

5. Science & Research:
   - AI, machine learning, LLMs
   - Climate change, environmental tech
   - Scientific computing

6. Books & Reading:
   - Technical books, programming books
   - E-book technology, digital reading

Rate the story's relevance to these interests on a scale from 0-100, where:
- 0-25: Not relevant to these interests
- 26-50: Slightly relevant to these interests
- 51-75: Moderately relevant to these interests
- 76-100: Highly relevant to these interests

ONLY respond with a single integer between 0 and 100, and nothing else.`

// Config wires the classification service connection.
type Config struct {
	Endpoint string
	Model    string
	APIKey   string
}

// Client calls the classification service. It is safe for concurrent use.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
	domains  *domainCache
}

// New builds a classifier client from configuration.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		domains:  newDomainCache(domainCacheSize),
	}
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	System      string       `json:"system"`
	Messages    []apiMessage `json:"messages"`
}

type apiResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("classifier misconfigured: missing API key")
	}

	body, err := json.Marshal(apiRequest{
		Model:       c.model,
		MaxTokens:   replyMaxTokens,
		Temperature: 0, // no sampling randomness, scores must be reproducible
		System:      systemPrompt,
		Messages:    []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal classification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("classification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("classification service error %s: %s",
			resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode classification response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("classification response carried no content")
	}
	return parsed.Content[0].Text, nil
}

// parseScore turns the service's free-text reply into a score. The service
// is instructed to answer with a bare integer; when it doesn't, coarse
// keyword matching maps its wording onto fixed buckets, and anything else
// is 0.
func parseScore(reply string) int {
	reply = strings.TrimSpace(reply)
	if n, err := strconv.Atoi(reply); err == nil {
		if n < 0 {
			return 0
		}
		if n > 100 {
			return 100
		}
		return n
	}

	lower := strings.ToLower(reply)
	switch {
	case strings.Contains(lower, "not relevant"):
		return 0
	case strings.Contains(lower, "highly relevant"):
		return 90
	case strings.Contains(lower, "moderately relevant"):
		return 60
	case strings.Contains(lower, "slightly relevant"):
		return 30
	}
	return 0
}

func buildPrompt(item models.Item, articleText string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nDomain: %s\nURL: %s", item.Title, item.Domain(), item.URL.String)
	if articleText != "" {
		if len(articleText) > maxArticleChars {
			cut := maxArticleChars
			for cut > 0 && !utf8.RuneStart(articleText[cut]) {
				cut--
			}
			articleText = articleText[:cut]
		}
		fmt.Fprintf(&sb, "\n\nArticle content:\n%s", articleText)
	}
	return sb.String()
}

// ScoreItem classifies a single item, optionally including extracted article
// text. A service failure is returned as an error, never as a 0 score: a
// stored 0 would be indistinguishable from a genuinely irrelevant item and
// permanently exclude it from re-classification.
func (c *Client) ScoreItem(ctx context.Context, item models.Item, articleText string) (int, error) {
	reply, err := c.complete(ctx, buildPrompt(item, articleText))
	if err != nil {
		return 0, err
	}
	return parseScore(reply), nil
}

// ScoreDomain classifies a synthetic item built only from a domain, caching
// the result. Domain reputation is a weak negative signal: a score below 30
// may be trusted as the item score, a high one may not.
func (c *Client) ScoreDomain(ctx context.Context, domain string) (int, error) {
	if domain == "" {
		return 0, fmt.Errorf("empty domain")
	}
	if score, ok := c.domains.get(domain); ok {
		return score, nil
	}

	synthetic := models.Item{Title: domain}
	reply, err := c.complete(ctx, fmt.Sprintf("Title: %s\nDomain: %s\nURL: https://%s", synthetic.Title, domain, domain))
	if err != nil {
		return 0, err
	}
	score := parseScore(reply)
	c.domains.put(domain, score)
	return score, nil
}

// Scored pairs an item with its classification outcome. Err being non-nil
// means the item keeps a null relevance score.
type Scored struct {
	Item  models.Item
	Score int
	Err   error
}

// BatchOptions tunes concurrent batch classification.
type BatchOptions struct {
	// Throttle staggers task starts (task i waits i*Throttle) to avoid
	// bursts against the service's rate limiter.
	Throttle time.Duration
	// UseContent feeds extracted article text (keyed by item id) into the
	// prompt and disables the domain-score shortcut.
	UseContent bool
	Texts      map[int64]string
}

// ProcessBatch classifies a batch concurrently. One task's failure never
// cancels its siblings; failed items simply come back with Err set.
func (c *Client) ProcessBatch(ctx context.Context, items []models.Item, opts BatchOptions) []Scored {
	results := make([]Scored, len(items))
	var wg sync.WaitGroup

	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := items[i]

			if opts.Throttle > 0 && i > 0 {
				select {
				case <-time.After(time.Duration(i) * opts.Throttle):
				case <-ctx.Done():
					results[i] = Scored{Item: item, Err: ctx.Err()}
					return
				}
			}

			score, err := c.scoreWithShortcut(ctx, item, opts)
			if err != nil {
				log.Warn().Err(err).Int64("id", item.ID).Msg("Classification failed, leaving item unscored")
			}
			results[i] = Scored{Item: item, Score: score, Err: err}
		}(i)
	}

	wg.Wait()
	return results
}

func (c *Client) scoreWithShortcut(ctx context.Context, item models.Item, opts BatchOptions) (int, error) {
	// The domain shortcut only applies when classification runs on metadata
	// alone: extracted content can overrule a bad domain reputation.
	if !opts.UseContent {
		if domain := item.Domain(); domain != "" {
			if score, err := c.ScoreDomain(ctx, domain); err == nil && score < domainTrustBelow {
				return score, nil
			}
		}
	}

	var text string
	if opts.UseContent && opts.Texts != nil {
		text = opts.Texts[item.ID]
	}
	return c.ScoreItem(ctx, item, text)
}
