package models

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Content fetch states stored in the content_state column.
const (
	ContentNotAttempted = 0
	ContentFetched      = 1
	ContentFailed       = 2
)

// Item represents a row in the 'items' table: one Hacker News story tracked
// by the poller, together with its classification and sync bookkeeping.
type Item struct {
	ID           int64          `db:"id"`
	Title        string         `db:"title"`
	URL          sql.NullString `db:"url"` // empty for Ask/Show text posts
	Author       string         `db:"author"`
	CreatedAt    int64          `db:"created_at"` // source-native epoch seconds
	Score        int64          `db:"score"`
	CommentCount int64          `db:"comment_count"`
	Kind         string         `db:"kind"`

	FirstSeenAt   time.Time `db:"first_seen_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`

	// RelevanceScore is null until the classifier has scored the item.
	// A failed classification must leave it null, never write 0.
	RelevanceScore sql.NullInt64 `db:"relevance_score"`

	Synced   bool         `db:"synced"`
	SyncedAt sql.NullTime `db:"synced_at"`

	Content        sql.NullString `db:"content"`
	ContentSummary sql.NullString `db:"content_summary"`
	ContentState   int            `db:"content_state"`

	FetchErrorKind    sql.NullString `db:"fetch_error_kind"`
	FetchErrorMessage sql.NullString `db:"fetch_error_message"`
	FetchErrorStatus  sql.NullInt64  `db:"fetch_error_status"`
}

// NewItem creates an Item with the bookkeeping timestamps set.
func NewItem() *Item {
	now := time.Now().UTC()
	return &Item{
		Kind:          "story",
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}
}

// CreatedTime returns the source creation time as a time.Time.
func (it *Item) CreatedTime() time.Time {
	return time.Unix(it.CreatedAt, 0)
}

// HasRelevance reports whether the item has been classified.
func (it *Item) HasRelevance() bool {
	return it.RelevanceScore.Valid
}

// Relevance returns the relevance score, or -1 when unclassified.
func (it *Item) Relevance() int64 {
	if !it.RelevanceScore.Valid {
		return -1
	}
	return it.RelevanceScore.Int64
}

// SetRelevance records a classification result.
func (it *Item) SetRelevance(score int) {
	it.RelevanceScore = sql.NullInt64{Int64: int64(score), Valid: true}
}

// DiscussionURL is the HN comments page, used as a fallback link for
// text-only posts that carry no external URL.
func (it *Item) DiscussionURL() string {
	return fmt.Sprintf("https://news.ycombinator.com/item?id=%d", it.ID)
}

// LinkURL returns the external URL when present, else the discussion URL.
func (it *Item) LinkURL() string {
	if it.URL.Valid && strings.TrimSpace(it.URL.String) != "" {
		return it.URL.String
	}
	return it.DiscussionURL()
}

// Domain extracts the registrable-ish host of the item URL, with a leading
// "www." stripped. Returns "" for text posts and unparseable URLs.
func (it *Item) Domain() string {
	if !it.URL.Valid || it.URL.String == "" {
		return ""
	}
	u, err := url.Parse(it.URL.String)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
