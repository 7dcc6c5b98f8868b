package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultHours, cfg.Hours)
	assert.Equal(t, DefaultSyncRelevance, cfg.MinRelevance)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hours: 48\nmin_score: 5\n"), 0o644))

	t.Setenv("HNPOLLER_CONFIG", path)
	t.Setenv("HNPOLLER_MIN_SCORE", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 48, cfg.Hours)
	// The environment wins over the file.
	assert.Equal(t, 10, cfg.MinScore)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hours: [not an int\n"), 0o644))

	t.Setenv("HNPOLLER_CONFIG", path)
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Hours = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.HNWeight = 120
	assert.Error(t, cfg.Validate())
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("HNPOLLER_HN_WEIGHT", "150")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hn_weight")
}

func TestDefaultConfig_PacingFromEnv(t *testing.T) {
	t.Setenv("HNPOLLER_SCORE_THROTTLE", "250ms")
	t.Setenv("HNPOLLER_SCORE_BATCH_PAUSE", "1s")

	cfg := DefaultConfig()
	assert.Equal(t, 250*time.Millisecond, cfg.ScoreThrottle)
	assert.Equal(t, time.Second, cfg.ScoreBatchPause)
	assert.Equal(t, DefaultFetchDelay, cfg.FetchDelay)
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL_TRUE", "true")
	assert.True(t, GetEnvBool("TEST_BOOL_TRUE", false))

	t.Setenv("TEST_BOOL_ZERO", "0")
	assert.False(t, GetEnvBool("TEST_BOOL_ZERO", true))

	t.Setenv("TEST_BOOL_JUNK", "maybe")
	assert.True(t, GetEnvBool("TEST_BOOL_JUNK", true))

	assert.False(t, GetEnvBool("TEST_BOOL_UNSET", false))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR_UNITS", "90m")
	assert.Equal(t, 90*time.Minute, GetEnvDuration("TEST_DUR_UNITS", time.Hour))

	// A bare number is interpreted as hours.
	t.Setenv("TEST_DUR_BARE", "6")
	assert.Equal(t, 6*time.Hour, GetEnvDuration("TEST_DUR_BARE", time.Hour))

	assert.Equal(t, time.Hour, GetEnvDuration("TEST_DUR_UNSET", time.Hour))
}
