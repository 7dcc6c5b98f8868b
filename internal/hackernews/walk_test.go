package hackernews

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchUntilCutoff_StopsAtCheckpoint(t *testing.T) {
	now := time.Now().Unix()
	src := &fakeSource{
		ids:   []int64{110, 109, 108, 107, 106, 105, 104, 103},
		items: map[int64]map[string]any{},
	}
	for _, id := range src.ids {
		src.items[id] = story(id, now)
	}
	client := newFakeSource(t, src)

	// 106 was the oldest id of the previous cycle: the walk must process
	// only 110..107 and report 107 as the new checkpoint.
	items, oldestID, err := client.FetchUntilCutoff(context.Background(), 106, WalkOptions{
		Hours: 24, BatchSize: 4, MaxBatches: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(107), oldestID)
	require.Len(t, items, 4)
	for _, item := range items {
		assert.Greater(t, item.ID, int64(106))
	}
}

func TestFetchUntilCutoff_NothingNewLeavesCheckpointZero(t *testing.T) {
	now := time.Now().Unix()
	src := &fakeSource{
		ids:   []int64{110, 109, 108},
		items: map[int64]map[string]any{110: story(110, now)},
	}
	client := newFakeSource(t, src)

	// The checkpoint is already the newest id: the first batch truncates to
	// nothing, so the caller must not move its watermark.
	items, oldestID, err := client.FetchUntilCutoff(context.Background(), 110, WalkOptions{
		Hours: 24, BatchSize: 3, MaxBatches: 2,
	})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(0), oldestID)
}

func TestFetchUntilCutoff_StopsAtTimeWindow(t *testing.T) {
	now := time.Now().Unix()
	old := time.Now().Add(-48 * time.Hour).Unix()

	src := &fakeSource{
		ids: []int64{110, 109, 108, 107, 106, 105},
		items: map[int64]map[string]any{
			110: story(110, now),
			109: story(109, now),
			108: story(108, old), // falls out of the window
			107: story(107, old),
		},
	}
	client := newFakeSource(t, src)

	items, oldestID, err := client.FetchUntilCutoff(context.Background(), 0, WalkOptions{
		Hours: 24, BatchSize: 4, MaxBatches: 5,
	})
	require.NoError(t, err)

	// The walk stops after the batch containing the first too-old item, so
	// ids 106 and 105 are never requested.
	require.Len(t, items, 2)
	assert.Equal(t, int64(107), oldestID)
}

func TestFetchUntilCutoff_BoundedByMaxBatches(t *testing.T) {
	now := time.Now().Unix()
	src := &fakeSource{items: map[int64]map[string]any{}}
	for id := int64(120); id > 100; id-- {
		src.ids = append(src.ids, id)
		src.items[id] = story(id, now)
	}
	client := newFakeSource(t, src)

	items, oldestID, err := client.FetchUntilCutoff(context.Background(), 0, WalkOptions{
		Hours: 24, BatchSize: 5, MaxBatches: 2,
	})
	require.NoError(t, err)
	assert.Len(t, items, 10)
	assert.Equal(t, int64(111), oldestID)
}

func TestFetchFromMaxItem_StopsAfterConsecutiveOldBatches(t *testing.T) {
	now := time.Now().Unix()
	old := time.Now().Add(-48 * time.Hour).Unix()

	src := &fakeSource{maxID: 200, items: map[int64]map[string]any{}}
	// Two fresh stories at the top, everything below too old.
	src.items[200] = story(200, now)
	src.items[199] = story(199, now)
	for id := int64(198); id > 180; id-- {
		src.items[id] = story(id, old)
	}
	client := newFakeSource(t, src)

	items, _, err := client.FetchFromMaxItem(context.Background(), WalkOptions{
		Hours: 24, BatchSize: 5, MaxBatches: 10,
	}, 2)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, int64(200), items[0].ID)
}
