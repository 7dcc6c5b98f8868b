package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Metadata keys for the watermarks carried across cycles.
const (
	keyLastPollTime = "last_poll_time"
	keyLastOldestID = "last_oldest_id"
	keyLastSyncTime = "last_sync_time"
)

func (s *Store) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM metadata WHERE key = ?", key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read metadata %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to write metadata %q: %w", key, err)
	}
	return nil
}

// GetLastPollTime returns the completion time of the last successful fetch
// cycle, or the zero time when never recorded.
func (s *Store) GetLastPollTime(ctx context.Context) (time.Time, error) {
	return s.getMetaTime(ctx, keyLastPollTime)
}

// SetLastPollTime records a completed fetch cycle.
func (s *Store) SetLastPollTime(ctx context.Context, t time.Time) error {
	return s.setMeta(ctx, keyLastPollTime, t.UTC().Format(time.RFC3339))
}

// GetLastOldestID returns the lowest source id observed in the most recent
// fetch cycle, or 0 when unset.
func (s *Store) GetLastOldestID(ctx context.Context) (int64, error) {
	raw, err := s.getMeta(ctx, keyLastOldestID)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", keyLastOldestID, raw, err)
	}
	return id, nil
}

// SetLastOldestID persists the walk checkpoint. A non-positive id is a
// no-op: a cycle that processed nothing must not move the watermark.
func (s *Store) SetLastOldestID(ctx context.Context, id int64) error {
	if id <= 0 {
		return nil
	}
	return s.setMeta(ctx, keyLastOldestID, strconv.FormatInt(id, 10))
}

// GetLastSyncTime returns the completion time of the last sync cycle that
// synced at least one item.
func (s *Store) GetLastSyncTime(ctx context.Context) (time.Time, error) {
	return s.getMetaTime(ctx, keyLastSyncTime)
}

// SetLastSyncTime records a sync cycle completion.
func (s *Store) SetLastSyncTime(ctx context.Context, t time.Time) error {
	return s.setMeta(ctx, keyLastSyncTime, t.UTC().Format(time.RFC3339))
}

// ResetWatermarks reseeds the metadata table, used only by the explicit
// maintenance path.
func (s *Store) ResetWatermarks(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.setMeta(ctx, keyLastPollTime, now); err != nil {
		return err
	}
	if err := s.setMeta(ctx, keyLastOldestID, "0"); err != nil {
		return err
	}
	return s.setMeta(ctx, keyLastSyncTime, now)
}

func (s *Store) getMetaTime(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.getMeta(ctx, key)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return t, nil
}
