package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"hnpoller/internal/models"
)

// SyncRelevanceFloor is the minimum relevance score an item must carry to be
// eligible for read-later sync. Requests with a lower (or absent) threshold
// are clamped up to this floor: syncing unscored or low-relevance content
// defeats the point of classification.
const SyncRelevanceFloor = 75

// Store provides all durable item and watermark operations. It is the only
// component that writes to the database; every other component is a
// stateless transformer.
type Store struct {
	db *DB
}

// NewStore wraps an open database connection.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

const insertItemSQL = `
	INSERT INTO items (
		id, title, url, author, created_at, score, comment_count, kind,
		first_seen_at, last_updated_at, relevance_score
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

// InsertNew inserts items that are not yet present. Pre-existing rows are
// left untouched; score refreshes go through UpdateScores. Returns the
// number of rows actually inserted.
func (s *Store) InsertNew(ctx context.Context, items []models.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, insertItemSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, item := range items {
		res, err := stmt.ExecContext(ctx,
			item.ID, item.Title, item.URL, item.Author, item.CreatedAt,
			item.Score, item.CommentCount, item.Kind, now, now, item.RelevanceScore,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert item %d: %w", item.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected for item %d: %w", item.ID, err)
		}
		if n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit item insert: %w", err)
	}
	return inserted, nil
}

// UpdateScores refreshes score, comment count and relevance for items that
// already exist. A row is only touched when one of these actually changed,
// because the last_updated_at bump is itself an observable signal. A null
// relevance on the incoming item never clears a stored score.
func (s *Store) UpdateScores(ctx context.Context, items []models.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updated, err := updateScoresTx(ctx, tx, items)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit score update: %w", err)
	}
	return updated, nil
}

func updateScoresTx(ctx context.Context, tx *sqlx.Tx, items []models.Item) (int, error) {
	stmt, err := tx.PreparexContext(ctx, `
		UPDATE items
		SET score = ?, comment_count = ?,
			relevance_score = COALESCE(?, relevance_score),
			last_updated_at = ?
		WHERE id = ?
		  AND (score <> ? OR comment_count <> ?
		       OR (? IS NOT NULL AND IFNULL(relevance_score, -1) <> ?))`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare score update: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	updated := 0
	for _, item := range items {
		res, err := stmt.ExecContext(ctx,
			item.Score, item.CommentCount, item.RelevanceScore, now, item.ID,
			item.Score, item.CommentCount, item.RelevanceScore, item.RelevanceScore,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update item %d: %w", item.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected for item %d: %w", item.ID, err)
		}
		if n > 0 {
			updated++
		}
	}
	return updated, nil
}

// Upsert inserts new items and refreshes existing ones in a single
// transaction. Returns (inserted, updated).
func (s *Store) Upsert(ctx context.Context, items []models.Item) (int, int, error) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insStmt, err := tx.PreparexContext(ctx, insertItemSQL)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer insStmt.Close()

	now := time.Now().UTC()
	inserted := 0
	var existing []models.Item
	for _, item := range items {
		res, err := insStmt.ExecContext(ctx,
			item.ID, item.Title, item.URL, item.Author, item.CreatedAt,
			item.Score, item.CommentCount, item.Kind, now, now, item.RelevanceScore,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to upsert item %d: %w", item.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get rows affected for item %d: %w", item.ID, err)
		}
		if n > 0 {
			inserted++
		} else {
			existing = append(existing, item)
		}
	}

	updated, err := updateScoresTx(ctx, tx, existing)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return inserted, updated, nil
}

// WindowQuery selects items by creation-time window plus optional score,
// comment and relevance filters.
type WindowQuery struct {
	Hours        int
	MinScore     int64
	MinComments  *int64
	MinRelevance *int64
	UnscoredOnly bool
	Limit        uint64
}

// QueryWindow returns items created within the last Hours that pass every
// active filter. When a relevance filter is set the result is ordered by
// relevance then score; otherwise by score alone.
func (s *Store) QueryWindow(ctx context.Context, q WindowQuery) ([]models.Item, error) {
	hours := q.Hours
	if hours <= 0 {
		hours = 24
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour).Unix()

	b := sq.Select("*").From("items").Where(sq.Gt{"created_at": cutoff})
	if q.MinScore > 0 {
		b = b.Where(sq.GtOrEq{"score": q.MinScore})
	}
	if q.MinComments != nil {
		b = b.Where(sq.GtOrEq{"comment_count": *q.MinComments})
	}
	if q.UnscoredOnly {
		b = b.Where("relevance_score IS NULL")
	}
	if q.MinRelevance != nil {
		b = b.Where("relevance_score IS NOT NULL").
			Where(sq.GtOrEq{"relevance_score": *q.MinRelevance}).
			OrderBy("relevance_score DESC", "score DESC")
	} else {
		b = b.OrderBy("score DESC")
	}
	if q.Limit > 0 {
		b = b.Limit(q.Limit)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build window query: %w", err)
	}

	var items []models.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query items window: %w", err)
	}
	return items, nil
}

// SelectUnscoredBatches partitions all matching unclassified items into
// fixed-size groups for rate-limited classification. A nil hours means no
// time bound.
func (s *Store) SelectUnscoredBatches(ctx context.Context, hours *int, minScore int64, batchSize int, minComments *int64) ([][]models.Item, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	b := sq.Select("*").From("items").Where("relevance_score IS NULL")
	if hours != nil {
		cutoff := time.Now().Add(-time.Duration(*hours) * time.Hour).Unix()
		b = b.Where(sq.Gt{"created_at": cutoff})
	}
	if minScore > 0 {
		b = b.Where(sq.GtOrEq{"score": minScore})
	}
	if minComments != nil {
		b = b.Where(sq.GtOrEq{"comment_count": *minComments})
	}
	b = b.OrderBy("score DESC", "created_at DESC")

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build unscored query: %w", err)
	}

	var items []models.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query unscored items: %w", err)
	}

	var batches [][]models.Item
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches, nil
}

// SelectUnsynced returns sync candidates: unsynced, classified at or above
// the relevance floor, with a positive upstream score. The relevance floor
// is a firm policy — a caller asking for less still gets SyncRelevanceFloor.
// Ordered so the most prominent items win if the consumer truncates.
func (s *Store) SelectUnsynced(ctx context.Context, hours *int, minScore int64, minRelevance int64, minComments *int64) ([]models.Item, error) {
	if minRelevance < SyncRelevanceFloor {
		minRelevance = SyncRelevanceFloor
	}

	b := sq.Select("*").From("items").
		Where(sq.Eq{"synced": 0}).
		Where("relevance_score IS NOT NULL").
		Where(sq.GtOrEq{"relevance_score": minRelevance})

	// Never sync zero or negative score items.
	if minScore > 0 {
		b = b.Where(sq.GtOrEq{"score": minScore})
	} else {
		b = b.Where(sq.Gt{"score": 0})
	}
	if hours != nil {
		cutoff := time.Now().Add(-time.Duration(*hours) * time.Hour).Unix()
		b = b.Where(sq.Gt{"created_at": cutoff})
	}
	if minComments != nil {
		b = b.Where(sq.GtOrEq{"comment_count": *minComments})
	}
	b = b.OrderBy("score DESC", "relevance_score DESC", "comment_count DESC")

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build unsynced query: %w", err)
	}

	var items []models.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query unsynced items: %w", err)
	}
	return items, nil
}

// MarkSynced flags items as synced. Already-synced ids are no-ops; the
// returned count covers only rows that actually transitioned.
func (s *Store) MarkSynced(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	b := sq.Update("items").
		Set("synced", 1).
		Set("synced_at", now).
		Where(sq.Eq{"id": ids}).
		Where(sq.Eq{"synced": 0})

	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build sync update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark items synced: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected after sync: %w", err)
	}
	return n, nil
}

// UpdateContent persists a content-extraction outcome (success or structured
// failure) on the item row.
func (s *Store) UpdateContent(ctx context.Context, item *models.Item) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET content = ?, content_summary = ?, content_state = ?,
			fetch_error_kind = ?, fetch_error_message = ?, fetch_error_status = ?,
			last_updated_at = ?
		WHERE id = ?`,
		item.Content, item.ContentSummary, item.ContentState,
		item.FetchErrorKind, item.FetchErrorMessage, item.FetchErrorStatus,
		time.Now().UTC(), item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update content for item %d: %w", item.ID, err)
	}
	return nil
}

// GetItem fetches a single stored item, returning nil when absent.
func (s *Store) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	var item models.Item
	err := s.db.GetContext(ctx, &item, "SELECT * FROM items WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %d: %w", id, err)
	}
	return &item, nil
}

// Delete removes an item, reporting whether a row existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected after delete: %w", err)
	}
	return n > 0, nil
}

// ListAllIDs returns every stored item id, used by the clean pass.
func (s *Store) ListAllIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM items ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list item ids: %w", err)
	}
	return ids, nil
}

// RelevanceStats summarizes the classification state of the table.
type RelevanceStats struct {
	Total      int64 `db:"total"`
	Scored     int64 `db:"scored"`
	Unscored   int64 `db:"unscored"`
	NotRel     int64 `db:"bucket_not"`      // 0-25
	Slightly   int64 `db:"bucket_slightly"` // 26-50
	Moderately int64 `db:"bucket_moderate"` // 51-75
	Highly     int64 `db:"bucket_highly"`   // 76-100
	Synced     int64 `db:"synced"`
}

// GetRelevanceStats computes bucket counts over all stored items.
func (s *Store) GetRelevanceStats(ctx context.Context) (*RelevanceStats, error) {
	var stats RelevanceStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total,
			COUNT(relevance_score) AS scored,
			COUNT(*) - COUNT(relevance_score) AS unscored,
			COALESCE(SUM(CASE WHEN relevance_score BETWEEN 0 AND 25 THEN 1 ELSE 0 END), 0) AS bucket_not,
			COALESCE(SUM(CASE WHEN relevance_score BETWEEN 26 AND 50 THEN 1 ELSE 0 END), 0) AS bucket_slightly,
			COALESCE(SUM(CASE WHEN relevance_score BETWEEN 51 AND 75 THEN 1 ELSE 0 END), 0) AS bucket_moderate,
			COALESCE(SUM(CASE WHEN relevance_score BETWEEN 76 AND 100 THEN 1 ELSE 0 END), 0) AS bucket_highly,
			COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0) AS synced
		FROM items`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute relevance stats: %w", err)
	}
	return &stats, nil
}
