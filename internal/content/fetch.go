package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// ProblematicDomains are known-unscrapable sites, checked before any network
// call. Values are human-readable reasons surfaced in the structured error.
var ProblematicDomains = map[string]string{
	// Social media sites
	"twitter.com":   "Twitter blocks most scraping attempts",
	"x.com":         "Twitter (X) blocks most scraping attempts",
	"t.co":          "Twitter shortlink service blocks most scraping attempts",
	"instagram.com": "Instagram blocks most scraping attempts",
	"facebook.com":  "Facebook blocks most scraping attempts",
	"linkedin.com":  "LinkedIn blocks most scraping attempts",

	// Common paywalled news sites
	"wsj.com":            "Content behind paywall (Wall Street Journal)",
	"economist.com":      "Content behind paywall (The Economist)",
	"nytimes.com":        "Content behind paywall (New York Times)",
	"ft.com":             "Content behind paywall (Financial Times)",
	"washingtonpost.com": "Content behind paywall (Washington Post)",
	"bloomberg.com":      "Content behind paywall (Bloomberg)",
	"newyorker.com":      "Content behind paywall (The New Yorker)",
	"wired.com":          "Content behind paywall (Wired)",
	"medium.com":         "May have metered paywall (Medium)",
	"substack.com":       "May have subscription requirements (Substack)",

	// Sites with strong anti-scraping measures
	"phys.org": "Site implements anti-scraping protection",
}

// Rotated browser-like identities; trivial bot blocks key off the UA.
var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36 Edg/122.0.2365.92",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

const (
	defaultFetchTimeout   = 10 * time.Second
	defaultMaxRetries     = 2
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 10 * time.Second
	maxRedirects          = 10
	maxBodyBytes          = 4 << 20
)

var errTooManyRedirects = errors.New("stopped after too many redirects")

// Fetcher retrieves raw page HTML with browser-like headers, a domain
// blocklist and bounded retry with exponential backoff.
type Fetcher struct {
	http           *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewFetcher builds a fetcher with the default limits.
func NewFetcher() *Fetcher {
	return &Fetcher{
		http: &http.Client{
			Timeout: defaultFetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
}

// WithRetry overrides the retry schedule (used by tests and the precision
// extraction path, which prefers fewer, slower attempts).
func (f *Fetcher) WithRetry(maxRetries int, initial, max time.Duration) *Fetcher {
	f.maxRetries = maxRetries
	f.initialBackoff = initial
	f.maxBackoff = max
	return f
}

// CheckDomain returns a *FetchError when the URL's host is blocklisted or
// the URL is malformed, without any network traffic.
func CheckDomain(rawURL string) *FetchError {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &FetchError{URL: rawURL, Kind: KindInvalidURL, Message: "URL is missing scheme or domain"}
	}

	domain := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	for blocked, reason := range ProblematicDomains {
		if strings.Contains(domain, blocked) {
			return &FetchError{URL: rawURL, Kind: KindProblematicDomain, Message: reason}
		}
	}
	return nil
}

// FetchRaw performs the HTTP GET and returns the page HTML. Failures are
// classified into the ErrorKind taxonomy; transient kinds are retried with
// exponential backoff plus jitter, permanent kinds fail immediately.
func (f *Fetcher) FetchRaw(ctx context.Context, rawURL string) (string, error) {
	if fe := CheckDomain(rawURL); fe != nil {
		log.Debug().Str("url", rawURL).Str("kind", string(fe.Kind)).Msg("Skipping fetch before network call")
		return "", fe
	}

	backoff := f.initialBackoff
	var lastErr *FetchError

	for attempt := 0; ; attempt++ {
		html, fe := f.fetchOnce(ctx, rawURL)
		if fe == nil {
			return html, nil
		}
		lastErr = fe

		if !fe.Retryable() || attempt >= f.maxRetries {
			return "", fe
		}

		jitter := time.Duration(rand.Float64() * 0.1 * float64(backoff))
		sleep := backoff + jitter
		log.Debug().
			Str("url", rawURL).
			Int("attempt", attempt+1).
			Dur("sleep", sleep).
			Str("kind", string(fe.Kind)).
			Msg("Retrying content fetch")

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return "", lastErr
		}

		backoff *= 2
		if backoff > f.maxBackoff {
			backoff = f.maxBackoff
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (string, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Kind: KindInvalidURL, Message: err.Error()}
	}

	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "max-age=0")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("DNT", "1")

	resp, err := f.http.Do(req)
	if err != nil {
		return "", classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return "", &FetchError{URL: rawURL, Kind: KindConnectionError, Message: err.Error()}
		}
		if !utf8.Valid(body) {
			return "", &FetchError{URL: rawURL, Kind: KindUnicodeError, Message: "response body is not valid UTF-8"}
		}
		return string(body), nil
	case resp.StatusCode == http.StatusPaymentRequired:
		return "", &FetchError{URL: rawURL, Kind: KindPaywalled, Message: "content behind paywall or subscription required", StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return "", &FetchError{URL: rawURL, Kind: KindNotFound, Message: "page not found", StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusForbidden:
		return "", &FetchError{URL: rawURL, Kind: KindForbidden, Message: "access forbidden", StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &FetchError{URL: rawURL, Kind: KindRateLimited, Message: "too many requests", StatusCode: resp.StatusCode}
	default:
		return "", &FetchError{
			URL:        rawURL,
			Kind:       KindHTTPError,
			Message:    fmt.Sprintf("unexpected status %s", resp.Status),
			StatusCode: resp.StatusCode,
		}
	}
}

func classifyTransportError(rawURL string, err error) *FetchError {
	if errors.Is(err, errTooManyRedirects) {
		return &FetchError{URL: rawURL, Kind: KindTooManyRedirects, Message: "too many redirects"}
	}

	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return &FetchError{URL: rawURL, Kind: KindTimeout, Message: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{URL: rawURL, Kind: KindTimeout, Message: err.Error()}
	}
	return &FetchError{URL: rawURL, Kind: KindConnectionError, Message: err.Error()}
}
