package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastFetcher() *Fetcher {
	return NewFetcher().WithRetry(2, time.Millisecond, 5*time.Millisecond)
}

func TestCheckDomain(t *testing.T) {
	cases := []struct {
		url  string
		kind ErrorKind
	}{
		{"not a url at all", KindInvalidURL},
		{"example.com/no-scheme", KindInvalidURL},
		{"https://twitter.com/some/status", KindProblematicDomain},
		{"https://www.nytimes.com/2026/article", KindProblematicDomain},
		{"https://blog.medium.com/post", KindProblematicDomain},
	}
	for _, tc := range cases {
		fe := CheckDomain(tc.url)
		require.NotNil(t, fe, "url %q", tc.url)
		assert.Equal(t, tc.kind, fe.Kind, "url %q", tc.url)
	}

	assert.Nil(t, CheckDomain("https://example.com/fine"))
}

func TestFetchRaw_BlocklistedDomainNeverHitsNetwork(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	// The blocklist is keyed on the domain, not the transport target, so a
	// blocked host must fail before any request is made.
	_, err := fastFetcher().FetchRaw(context.Background(), "https://facebook.com/story")
	require.Error(t, err)

	fe, ok := err.(*FetchError)
	require.True(t, ok)
	assert.Equal(t, KindProblematicDomain, fe.Kind)
	assert.Equal(t, int64(0), calls.Load())
}

func TestFetchRaw_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	defer server.Close()

	html, err := fastFetcher().FetchRaw(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, html, "hello")
	assert.Equal(t, int64(2), calls.Load())
}

func TestFetchRaw_NoRetryOnPermanentStatus(t *testing.T) {
	for status, kind := range map[int]ErrorKind{
		http.StatusNotFound:        KindNotFound,
		http.StatusForbidden:       KindForbidden,
		http.StatusPaymentRequired: KindPaywalled,
	} {
		var calls atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))

		_, err := fastFetcher().FetchRaw(context.Background(), server.URL)
		require.Error(t, err, "status %d", status)

		fe, ok := err.(*FetchError)
		require.True(t, ok)
		assert.Equal(t, kind, fe.Kind)
		assert.Equal(t, status, fe.StatusCode)
		assert.Equal(t, int64(1), calls.Load(), "status %d must not retry", status)

		server.Close()
	}
}

func TestFetchRaw_RateLimitedIsRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	fetcher := NewFetcher().WithRetry(1, time.Millisecond, 5*time.Millisecond)
	_, err := fetcher.FetchRaw(context.Background(), server.URL)
	require.Error(t, err)

	fe := err.(*FetchError)
	assert.Equal(t, KindRateLimited, fe.Kind)
	assert.Equal(t, int64(2), calls.Load())
}

func TestFetchRaw_InvalidUTF8(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xff, 0xfe, 0xfd})
	}))
	defer server.Close()

	_, err := fastFetcher().FetchRaw(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, KindUnicodeError, err.(*FetchError).Kind)
}

func TestFetchRaw_SendsBrowserHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	_, err := fastFetcher().FetchRaw(context.Background(), server.URL)
	require.NoError(t, err)
}

func TestFetchError_Retryable(t *testing.T) {
	assert.True(t, (&FetchError{Kind: KindTimeout}).Retryable())
	assert.True(t, (&FetchError{Kind: KindConnectionError}).Retryable())
	assert.True(t, (&FetchError{Kind: KindRateLimited}).Retryable())
	assert.True(t, (&FetchError{Kind: KindHTTPError, StatusCode: 502}).Retryable())

	assert.False(t, (&FetchError{Kind: KindHTTPError, StatusCode: 418}).Retryable())
	assert.False(t, (&FetchError{Kind: KindNotFound, StatusCode: 404}).Retryable())
	assert.False(t, (&FetchError{Kind: KindProblematicDomain}).Retryable())
	assert.False(t, (&FetchError{Kind: KindInvalidURL}).Retryable())
}
