// Package pipeline orchestrates the poll/classify/sync/clean stages against
// the store and the external services.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"hnpoller/internal/classifier"
	"hnpoller/internal/content"
	"hnpoller/internal/database"
	"hnpoller/internal/hackernews"
	"hnpoller/internal/models"
	"hnpoller/internal/readwise"
)

// Pipeline wires the store and clients together. Stages only touch the
// dependencies they use, so tests construct partial pipelines.
type Pipeline struct {
	Store      *database.Store
	HN         *hackernews.Client
	Classifier *classifier.Client
	Content    *content.Service
	Readwise   *readwise.Client
}

// FetchOptions configures one acquisition run.
type FetchOptions struct {
	Hours     int
	Limit     int
	FromMaxID bool // walk down from maxitem instead of the "new" feed
}

// FetchStats summarizes one acquisition run.
type FetchStats struct {
	Fetched  int
	Inserted int
	Updated  int
	OldestID int64
}

// Fetch pulls recent stories, persists them, and advances the watermarks.
// Watermarks are only written after a fully successful persist, so a failed
// run re-covers the same ground next time instead of leaving a gap.
func (p *Pipeline) Fetch(ctx context.Context, opts FetchOptions) (*FetchStats, error) {
	walkOpts := hackernews.WalkOptions{Hours: opts.Hours, Limit: opts.Limit}

	var (
		items    []models.Item
		oldestID int64
		err      error
	)
	if opts.FromMaxID {
		items, oldestID, err = p.HN.FetchFromMaxItem(ctx, walkOpts, 0)
	} else {
		lastOldest, merr := p.Store.GetLastOldestID(ctx)
		if merr != nil {
			return nil, fmt.Errorf("failed to read checkpoint: %w", merr)
		}
		items, oldestID, err = p.HN.FetchUntilCutoff(ctx, lastOldest, walkOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stories: %w", err)
	}

	inserted, updated, err := p.Store.Upsert(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("failed to persist stories: %w", err)
	}

	if err := p.Store.SetLastOldestID(ctx, oldestID); err != nil {
		return nil, fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	if err := p.Store.SetLastPollTime(ctx, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record poll time: %w", err)
	}

	log.Info().
		Int("fetched", len(items)).
		Int("inserted", inserted).
		Int("updated", updated).
		Int64("oldest_id", oldestID).
		Msg("Fetch complete")

	return &FetchStats{Fetched: len(items), Inserted: inserted, Updated: updated, OldestID: oldestID}, nil
}

// ScoreOptions configures one classification run.
type ScoreOptions struct {
	Hours       *int // nil means the whole backlog
	MinScore    int64
	MinComments *int64
	BatchSize   int
	UseContent  bool // extract article text and feed it to the classifier
	Throttle    time.Duration
	BatchPause  time.Duration
	FetchDelay  time.Duration // between content fetches when UseContent
}

// ScoreStats summarizes one classification run.
type ScoreStats struct {
	Batches int
	Scored  int
	Failed  int
}

// Score classifies every unscored item in batches, persisting each batch
// before starting the next so an interrupted run keeps its progress. Items
// whose classification fails stay unscored and are retried on the next run.
func (p *Pipeline) Score(ctx context.Context, opts ScoreOptions) (*ScoreStats, error) {
	batches, err := p.Store.SelectUnscoredBatches(ctx, opts.Hours, opts.MinScore, opts.BatchSize, opts.MinComments)
	if err != nil {
		return nil, fmt.Errorf("failed to select unscored items: %w", err)
	}

	stats := &ScoreStats{}
	for bi, batch := range batches {
		if ctx.Err() != nil {
			break
		}

		batchOpts := classifier.BatchOptions{Throttle: opts.Throttle, UseContent: opts.UseContent}
		if opts.UseContent {
			batchOpts.Texts = p.extractBatch(ctx, batch, opts.FetchDelay)
		}

		scored := p.Classifier.ProcessBatch(ctx, batch, batchOpts)

		var toPersist []models.Item
		for _, r := range scored {
			if r.Err != nil {
				stats.Failed++
				continue
			}
			item := r.Item
			item.SetRelevance(r.Score)
			toPersist = append(toPersist, item)
			stats.Scored++
		}

		if _, err := p.Store.UpdateScores(ctx, toPersist); err != nil {
			return stats, fmt.Errorf("failed to persist batch %d scores: %w", bi+1, err)
		}
		stats.Batches++

		log.Info().
			Int("batch", bi+1).
			Int("of", len(batches)).
			Int("scored", len(toPersist)).
			Msg("Classification batch persisted")

		if bi < len(batches)-1 && opts.BatchPause > 0 {
			select {
			case <-time.After(opts.BatchPause):
			case <-ctx.Done():
			}
		}
	}

	// Completed batches stay persisted; the interruption still surfaces.
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// extractBatch fetches article text for a batch and persists each extraction
// outcome, success or failure, so repeat runs skip known-bad URLs upstream.
func (p *Pipeline) extractBatch(ctx context.Context, batch []models.Item, delay time.Duration) map[int64]string {
	texts := make(map[int64]string)

	byID := make(map[int64]*models.Item, len(batch))
	for i := range batch {
		byID[batch[i].ID] = &batch[i]
	}

	for _, res := range p.Content.ProcessBatch(ctx, batch, delay) {
		item, ok := byID[res.ItemID]
		if !ok {
			continue
		}
		content.ApplyResult(item, res)
		if err := p.Store.UpdateContent(ctx, item); err != nil {
			log.Warn().Err(err).Int64("id", res.ItemID).Msg("Failed to persist extracted content")
		}
		if res.Err == nil {
			texts[res.ItemID] = res.Content
		}
	}
	return texts
}

// Row is one display entry: a stored item plus its combined ranking score.
type Row struct {
	Item     models.Item
	Combined float64
}

// CombinedScore blends community score and relevance into one rank.
// Upvotes are log-scaled so a 500-point story doesn't drown out relevance;
// log10(1000)*25 ≈ 75 keeps both terms on a comparable 0-100 scale.
func CombinedScore(score int64, relevance int64, hnWeightPercent int) float64 {
	if score < 1 {
		score = 1
	}
	w := float64(hnWeightPercent) / 100
	return w*math.Log10(float64(score))*25 + (1-w)*float64(relevance)
}

// ShowOptions configures the display query.
type ShowOptions struct {
	Hours        int
	MinScore     int64
	MinComments  *int64
	MinRelevance *int64
	Limit        uint64
	HNWeight     int
}

// Show returns ranked rows for display. The combined score is computed on
// the fly and never stored.
func (p *Pipeline) Show(ctx context.Context, opts ShowOptions) ([]Row, error) {
	items, err := p.Store.QueryWindow(ctx, database.WindowQuery{
		Hours:        opts.Hours,
		MinScore:     opts.MinScore,
		MinComments:  opts.MinComments,
		MinRelevance: opts.MinRelevance,
		Limit:        opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(items))
	for _, item := range items {
		row := Row{Item: item}
		if item.HasRelevance() {
			row.Combined = CombinedScore(item.Score, item.Relevance(), opts.HNWeight)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SyncOptions configures one read-later sync run.
type SyncOptions struct {
	Hours        *int
	MinScore     int64
	MinComments  *int64
	MinRelevance int64
}

// SyncStats summarizes one sync run.
type SyncStats struct {
	Candidates int
	Synced     int
	Skipped    int
	Failed     int
}

// Sync pushes qualifying items to the read-later service and marks them
// synced. A failure to list already-saved documents degrades to an empty
// dedup set: the service tolerates duplicate submissions, while aborting
// would stall the queue.
func (p *Pipeline) Sync(ctx context.Context, opts SyncOptions) (*SyncStats, error) {
	items, err := p.Store.SelectUnsynced(ctx, opts.Hours, opts.MinScore, opts.MinRelevance, opts.MinComments)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync candidates: %w", err)
	}
	stats := &SyncStats{Candidates: len(items)}
	if len(items) == 0 {
		return stats, nil
	}

	existing, err := p.Readwise.ListAllSavedURLs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not list saved documents, proceeding without dedup")
		existing = make(map[string]struct{})
	}

	res := p.Readwise.BatchSave(ctx, items, existing, p.HN)
	stats.Skipped = res.Skipped
	stats.Failed = len(res.Failed)
	for _, f := range res.Failed {
		log.Warn().Int64("item_id", f.ItemID).Str("reason", f.Reason).Msg("Item not synced")
	}

	if len(res.SavedIDs) > 0 {
		marked, err := p.Store.MarkSynced(ctx, res.SavedIDs)
		if err != nil {
			return stats, fmt.Errorf("failed to mark items synced: %w", err)
		}
		stats.Synced = int(marked)

		if err := p.Store.SetLastSyncTime(ctx, time.Now()); err != nil {
			return stats, fmt.Errorf("failed to record sync time: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	log.Info().
		Int("candidates", stats.Candidates).
		Int("synced", stats.Synced).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Msg("Sync complete")

	return stats, nil
}

// CleanOptions bounds a database cleanup run.
type CleanOptions struct {
	Delay time.Duration // between source lookups
	Limit int           // max items to check; 0 means all
}

// CleanStats summarizes one cleanup run.
type CleanStats struct {
	Checked int
	Deleted int
	Errors  int
}

// Clean removes items whose source story no longer exists. Lookup errors
// are counted but never cause a delete: only a confirmed absence does.
func (p *Pipeline) Clean(ctx context.Context, opts CleanOptions) (*CleanStats, error) {
	ids, err := p.Store.ListAllIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list item ids: %w", err)
	}
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}

	stats := &CleanStats{}
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && opts.Delay > 0 {
			select {
			case <-time.After(opts.Delay):
			case <-ctx.Done():
			}
		}

		live, err := p.HN.GetItem(ctx, id)
		stats.Checked++
		if err != nil {
			stats.Errors++
			log.Warn().Err(err).Int64("id", id).Msg("Existence check failed, keeping item")
			continue
		}
		if live != nil {
			continue
		}

		deleted, err := p.Store.Delete(ctx, id)
		if err != nil {
			stats.Errors++
			log.Warn().Err(err).Int64("id", id).Msg("Failed to delete item")
			continue
		}
		if deleted {
			stats.Deleted++
			log.Debug().Int64("id", id).Msg("Deleted dead item")
		}
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	log.Info().
		Int("checked", stats.Checked).
		Int("deleted", stats.Deleted).
		Int("errors", stats.Errors).
		Msg("Clean complete")

	return stats, nil
}
