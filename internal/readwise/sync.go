package readwise

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"hnpoller/internal/models"
)

// ItemVerifier re-checks that an item still exists at the source before it
// is pushed downstream. A nil result with nil error means the item is gone.
type ItemVerifier interface {
	GetItem(ctx context.Context, id int64) (*models.Item, error)
}

// SaveFailure records one item that could not be saved and why.
type SaveFailure struct {
	ItemID int64
	Reason string
}

// BatchResult summarizes a BatchSave run.
type BatchResult struct {
	SavedIDs []int64 // includes dedup skips, which count as success
	Skipped  int     // subset of SavedIDs that were already present
	Failed   []SaveFailure
}

// BatchSave pushes items to the Reader one at a time. URLs already present
// in existing are skipped but still reported as saved, so callers mark them
// synced and stop retrying them. Items without a URL fall back to their
// discussion page. Failures never abort the batch.
func (c *Client) BatchSave(ctx context.Context, items []models.Item, existing map[string]struct{}, verifier ItemVerifier) BatchResult {
	if existing == nil {
		existing = make(map[string]struct{})
	}
	var result BatchResult

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}

		title := item.Title
		pageURL := item.LinkURL()

		if verifier != nil {
			live, err := verifier.GetItem(ctx, item.ID)
			if err != nil {
				result.Failed = append(result.Failed, SaveFailure{ItemID: item.ID, Reason: "source check failed: " + err.Error()})
				c.pause(ctx, c.ErrorPause)
				continue
			}
			if live == nil {
				result.Failed = append(result.Failed, SaveFailure{ItemID: item.ID, Reason: "story no longer exists"})
				continue
			}
			// Prefer the live copy; titles get edited and URLs fixed.
			if live.Title != "" {
				title = live.Title
			}
			pageURL = live.LinkURL()
		}

		if title == "" {
			title = fallbackTitle(item.ID)
		}

		if _, ok := existing[pageURL]; ok {
			log.Debug().Int64("item_id", item.ID).Str("url", pageURL).Msg("Already saved, skipping")
			result.SavedIDs = append(result.SavedIDs, item.ID)
			result.Skipped++
			continue
		}

		if err := c.Save(ctx, pageURL, title, item.Author); err != nil {
			log.Warn().Err(err).Int64("item_id", item.ID).Msg("Failed to save item")
			result.Failed = append(result.Failed, SaveFailure{ItemID: item.ID, Reason: err.Error()})
			c.pause(ctx, c.ErrorPause)
			continue
		}

		result.SavedIDs = append(result.SavedIDs, item.ID)
		existing[pageURL] = struct{}{}

		if i < len(items)-1 {
			c.pause(ctx, c.SavePause)
		}
	}

	return result
}

func (c *Client) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
