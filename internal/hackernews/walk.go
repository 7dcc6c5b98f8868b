package hackernews

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"hnpoller/internal/models"
)

// Walk defaults. The "new" feed is capped upstream, so limit is a ceiling,
// not a request size.
const (
	DefaultWalkLimit     = 500
	DefaultWalkBatchSize = 50
	DefaultMaxBatches    = 10
)

// WalkOptions bounds a backward walk over recent ids.
type WalkOptions struct {
	Hours       int // time window; items older than now-Hours are excluded
	Limit       int // how many ids to pull from the "new" feed
	BatchSize   int
	MaxBatches  int
	Concurrency int
}

func (o *WalkOptions) defaults() {
	if o.Hours <= 0 {
		o.Hours = 24
	}
	if o.Limit <= 0 {
		o.Limit = DefaultWalkLimit
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultWalkBatchSize
	}
	if o.MaxBatches <= 0 {
		o.MaxBatches = DefaultMaxBatches
	}
}

// FetchUntilCutoff walks the "new" feed backward in batches until it passes
// the previous checkpoint id, falls out of the time window, or exhausts
// MaxBatches. It returns the in-window stories (newest first) and the lowest
// id processed, which becomes the next checkpoint. A zero checkpoint means
// nothing was processed and the caller must leave its watermark untouched.
func (c *Client) FetchUntilCutoff(ctx context.Context, lastOldestID int64, opts WalkOptions) ([]models.Item, int64, error) {
	opts.defaults()

	ids, err := c.ListIDs(ctx, FeedNew, opts.Limit)
	if err != nil {
		return nil, 0, err
	}

	cutoff := time.Now().Add(-time.Duration(opts.Hours) * time.Hour).Unix()

	var (
		collected []models.Item
		oldestID  int64
	)

	for batchNum := 0; batchNum < opts.MaxBatches; batchNum++ {
		start := batchNum * opts.BatchSize
		if start >= len(ids) {
			break
		}
		end := start + opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		// Truncate at the previous checkpoint: everything from it onward
		// was already processed by an earlier cycle.
		checkpointHit := false
		if lastOldestID > 0 {
			for i, id := range batch {
				if id == lastOldestID {
					batch = batch[:i]
					checkpointHit = true
					break
				}
			}
		}

		for _, id := range batch {
			if oldestID == 0 || id < oldestID {
				oldestID = id
			}
		}

		items := c.BatchGetItems(ctx, batch, opts.Concurrency)

		cutoffReached := false
		for _, item := range items {
			if item.CreatedAt < cutoff {
				// Feeds are time-ordered: once one item is too old,
				// everything after it is too.
				cutoffReached = true
				continue
			}
			collected = append(collected, item)
		}

		log.Debug().
			Int("batch", batchNum+1).
			Int("batch_ids", len(batch)).
			Int("collected", len(collected)).
			Bool("checkpoint_hit", checkpointHit).
			Bool("cutoff_reached", cutoffReached).
			Msg("Cutoff walk batch processed")

		if checkpointHit || cutoffReached {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
	}

	return collected, oldestID, nil
}

// FetchFromMaxItem is the fallback walk for periods when the bounded "new"
// feed does not reach back a full window. It starts at the source's max id
// and decrements in fixed batches, stopping after consecutiveOldThreshold
// batches in a row contain nothing inside the window.
func (c *Client) FetchFromMaxItem(ctx context.Context, opts WalkOptions, consecutiveOldThreshold int) ([]models.Item, int64, error) {
	opts.defaults()
	if consecutiveOldThreshold <= 0 {
		consecutiveOldThreshold = 2
	}

	maxID, err := c.MaxItemID(ctx)
	if err != nil {
		return nil, 0, err
	}

	cutoff := time.Now().Add(-time.Duration(opts.Hours) * time.Hour).Unix()

	var (
		collected []models.Item
		oldestID  int64
	)
	consecutiveOld := 0
	next := maxID

	for batchNum := 0; batchNum < opts.MaxBatches && next > 0; batchNum++ {
		batch := make([]int64, 0, opts.BatchSize)
		for i := 0; i < opts.BatchSize && next-int64(i) > 0; i++ {
			batch = append(batch, next-int64(i))
		}
		next -= int64(len(batch))

		for _, id := range batch {
			if oldestID == 0 || id < oldestID {
				oldestID = id
			}
		}

		items := c.BatchGetItems(ctx, batch, opts.Concurrency)

		inWindow := 0
		for _, item := range items {
			if item.CreatedAt >= cutoff {
				collected = append(collected, item)
				inWindow++
			}
		}

		if inWindow == 0 {
			consecutiveOld++
		} else {
			consecutiveOld = 0
		}

		log.Debug().
			Int("batch", batchNum+1).
			Int("in_window", inWindow).
			Int("consecutive_old", consecutiveOld).
			Msg("Max-id walk batch processed")

		if consecutiveOld >= consecutiveOldThreshold {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
	}

	return collected, oldestID, nil
}
