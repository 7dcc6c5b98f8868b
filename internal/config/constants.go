package config

import "time"

// Constants defining default values for application configuration
const (
	DefaultDBPath = "./hnpoller.db"

	DefaultHours         = 24  // Time window for fetching and display
	DefaultMinScore      = 0   // Minimum upvote score filter
	DefaultMinComments   = 0   // Minimum comment count filter
	DefaultFetchLimit    = 500 // Max story IDs per poll
	DefaultShowLimit     = 30  // Rows printed by show
	DefaultSyncRelevance = 75  // Relevance floor for read-later sync

	DefaultScoreBatchSize = 10 // Items per classification batch
	DefaultHNWeight       = 50 // Percent weight of upvotes in combined score

	DefaultScoreThrottle   = 2 * time.Second // between classification calls
	DefaultScoreBatchPause = 5 * time.Second // between persisted batches
	DefaultFetchDelay      = time.Second     // between article fetches

	DefaultLogLevel = "info"
)
