package main

import (
	"flag"

	"hnpoller/internal/config"
)

// flagSets holds one FlagSet per subcommand plus the destinations for flags
// that don't live on the shared config.
type flagSets struct {
	fetch *flag.FlagSet
	score *flag.FlagSet
	show  *flag.FlagSet
	sync  *flag.FlagSet
	clean *flag.FlagSet

	logLevel string

	fromMaxID       bool
	useContent      bool
	allBacklog      bool
	showStats       bool
	minRelevance    int64
	resetWatermarks bool
	dropDB          bool
	cleanLimit      int
}

func newFlagSets(cfg *config.Config) *flagSets {
	fs := &flagSets{
		fetch: flag.NewFlagSet("fetch", flag.ExitOnError),
		score: flag.NewFlagSet("score", flag.ExitOnError),
		show:  flag.NewFlagSet("show", flag.ExitOnError),
		sync:  flag.NewFlagSet("sync", flag.ExitOnError),
		clean: flag.NewFlagSet("clean", flag.ExitOnError),
	}

	for _, sub := range []*flag.FlagSet{fs.fetch, fs.score, fs.show, fs.sync, fs.clean} {
		sub.StringVar(&cfg.DBPath, "db", cfg.DBPath,
			"Path to the SQLite database file (env: HNPOLLER_DB_PATH)")
		sub.StringVar(&fs.logLevel, "log-level", config.GetEnvString("HNPOLLER_LOG_LEVEL", config.DefaultLogLevel),
			"Log level: debug, info, warn, error (env: HNPOLLER_LOG_LEVEL)")
	}

	// fetch
	fs.fetch.IntVar(&cfg.Hours, "hours", cfg.Hours,
		"Time window in hours for new stories (env: HNPOLLER_HOURS)")
	fs.fetch.IntVar(&cfg.FetchLimit, "limit", cfg.FetchLimit,
		"Maximum story ids to pull per poll (env: HNPOLLER_FETCH_LIMIT)")
	fs.fetch.BoolVar(&fs.fromMaxID, "from-max-id", config.GetEnvBool("HNPOLLER_FROM_MAX_ID", false),
		"Walk down from the newest item id instead of the new-stories feed (env: HNPOLLER_FROM_MAX_ID)")

	// score
	fs.score.IntVar(&cfg.Hours, "hours", cfg.Hours,
		"Only classify items created within this window (env: HNPOLLER_HOURS)")
	fs.score.IntVar(&cfg.MinScore, "min-score", cfg.MinScore,
		"Only classify items with at least this upvote score (env: HNPOLLER_MIN_SCORE)")
	fs.score.IntVar(&cfg.ScoreBatchSize, "batch-size", cfg.ScoreBatchSize,
		"Items per classification batch (env: HNPOLLER_SCORE_BATCH_SIZE)")
	fs.score.BoolVar(&fs.useContent, "use-content", config.GetEnvBool("HNPOLLER_USE_CONTENT", false),
		"Extract article text and feed it to the classifier (env: HNPOLLER_USE_CONTENT)")
	fs.score.BoolVar(&fs.allBacklog, "all", false,
		"Classify the whole unscored backlog, ignoring the time window")

	// show
	fs.show.IntVar(&cfg.Hours, "hours", cfg.Hours,
		"Time window in hours for displayed items (env: HNPOLLER_HOURS)")
	fs.show.IntVar(&cfg.MinScore, "min-score", cfg.MinScore,
		"Minimum upvote score filter (env: HNPOLLER_MIN_SCORE)")
	fs.show.IntVar(&cfg.MinComments, "min-comments", cfg.MinComments,
		"Minimum comment count filter (env: HNPOLLER_MIN_COMMENTS)")
	fs.show.Int64Var(&fs.minRelevance, "min-relevance", -1,
		"Minimum relevance score filter, -1 to disable")
	fs.show.IntVar(&cfg.ShowLimit, "limit", cfg.ShowLimit,
		"Maximum rows to print (env: HNPOLLER_SHOW_LIMIT)")
	fs.show.IntVar(&cfg.HNWeight, "hn-weight", cfg.HNWeight,
		"Percent weight of upvotes in the combined score, 0-100 (env: HNPOLLER_HN_WEIGHT)")
	fs.show.BoolVar(&fs.showStats, "stats", false,
		"Print relevance distribution statistics instead of items")

	// sync
	fs.sync.IntVar(&cfg.Hours, "hours", cfg.Hours,
		"Only sync items created within this window (env: HNPOLLER_HOURS)")
	fs.sync.IntVar(&cfg.MinScore, "min-score", cfg.MinScore,
		"Minimum upvote score filter (env: HNPOLLER_MIN_SCORE)")
	fs.sync.IntVar(&cfg.MinRelevance, "min-relevance", cfg.MinRelevance,
		"Minimum relevance for sync; values below 75 are clamped up (env: HNPOLLER_MIN_RELEVANCE)")
	fs.sync.BoolVar(&fs.allBacklog, "all", false,
		"Sync the whole unsynced backlog, ignoring the time window")

	// clean
	fs.clean.IntVar(&fs.cleanLimit, "limit", 0,
		"Maximum items to check, 0 for all")
	fs.clean.BoolVar(&fs.resetWatermarks, "reset-watermarks", false,
		"Reset poll and sync watermarks instead of cleaning")
	fs.clean.BoolVar(&fs.dropDB, "drop-db", false,
		"Delete the database file entirely (prompts for confirmation)")

	return fs
}
