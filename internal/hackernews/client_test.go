package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves a configurable slice of stories on the API routes the
// client uses.
type fakeSource struct {
	ids      []int64
	items    map[int64]map[string]any
	maxID    int64
	requests atomic.Int64

	// failItems maps item id to an HTTP status to return instead of JSON.
	failItems map[int64]int
}

func (f *fakeSource) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)

		switch {
		case r.URL.Path == "/newstories.json":
			json.NewEncoder(w).Encode(f.ids)

		case r.URL.Path == "/maxitem.json":
			json.NewEncoder(w).Encode(f.maxID)

		case strings.HasPrefix(r.URL.Path, "/item/"):
			idStr := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/item/"), ".json")
			id, _ := strconv.ParseInt(idStr, 10, 64)

			if status, ok := f.failItems[id]; ok {
				w.WriteHeader(status)
				return
			}
			item, ok := f.items[id]
			if !ok {
				// The real API answers 200 "null" for unknown ids.
				fmt.Fprint(w, "null")
				return
			}
			json.NewEncoder(w).Encode(item)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func story(id int64, createdAt int64) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       fmt.Sprintf("Story %d", id),
		"url":         fmt.Sprintf("https://example.com/%d", id),
		"by":          "author",
		"time":        createdAt,
		"score":       10,
		"type":        "story",
		"descendants": 2,
	}
}

func newFakeSource(t *testing.T, src *fakeSource) *Client {
	t.Helper()
	server := httptest.NewServer(src.handler())
	t.Cleanup(server.Close)
	return NewClient(server.URL)
}

func TestGetItem_AbsentReturnsNilNil(t *testing.T) {
	client := newFakeSource(t, &fakeSource{items: map[int64]map[string]any{}})

	item, err := client.GetItem(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestGetItem_DeletedAndDeadAreAbsent(t *testing.T) {
	now := time.Now().Unix()
	deleted := story(1, now)
	deleted["deleted"] = true
	dead := story(2, now)
	dead["dead"] = true

	client := newFakeSource(t, &fakeSource{
		items: map[int64]map[string]any{1: deleted, 2: dead},
	})

	for _, id := range []int64{1, 2} {
		item, err := client.GetItem(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, item, "id %d", id)
	}
}

func TestGetItem_NotFoundStatusIsAbsent(t *testing.T) {
	client := newFakeSource(t, &fakeSource{
		failItems: map[int64]int{1: http.StatusNotFound},
	})

	item, err := client.GetItem(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestUpstreamError_MatchesWhenWrapped(t *testing.T) {
	err := fmt.Errorf("walk aborted: %w", &UpstreamError{Endpoint: "item/1.json", StatusCode: http.StatusNotFound})

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusNotFound, ue.StatusCode)
}

func TestGetItem_ServerErrorSurfaces(t *testing.T) {
	client := newFakeSource(t, &fakeSource{
		failItems: map[int64]int{1: http.StatusInternalServerError},
	})

	_, err := client.GetItem(context.Background(), 1)
	require.Error(t, err)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)
}

func TestGetItem_MapsFields(t *testing.T) {
	now := time.Now().Unix()
	client := newFakeSource(t, &fakeSource{
		items: map[int64]map[string]any{7: story(7, now)},
	})

	item, err := client.GetItem(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, int64(7), item.ID)
	assert.Equal(t, "Story 7", item.Title)
	assert.Equal(t, "https://example.com/7", item.URL.String)
	assert.Equal(t, now, item.CreatedAt)
	assert.Equal(t, int64(2), item.CommentCount)
	assert.Equal(t, "story", item.Kind)
}

func TestListIDs_AppliesLimit(t *testing.T) {
	client := newFakeSource(t, &fakeSource{ids: []int64{10, 9, 8, 7, 6}})

	ids, err := client.ListIDs(context.Background(), FeedNew, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 9, 8}, ids)
}

func TestBatchGetItems_SkipsFailuresAndNonStories(t *testing.T) {
	now := time.Now().Unix()
	comment := story(3, now)
	comment["type"] = "comment"

	client := newFakeSource(t, &fakeSource{
		items: map[int64]map[string]any{
			1: story(1, now),
			3: comment,
			4: story(4, now),
		},
		failItems: map[int64]int{2: http.StatusInternalServerError},
	})

	items := client.BatchGetItems(context.Background(), []int64{1, 2, 3, 4, 5}, 3)

	require.Len(t, items, 2)
	// Descending id order regardless of worker completion order.
	assert.Equal(t, int64(4), items[0].ID)
	assert.Equal(t, int64(1), items[1].ID)
}
