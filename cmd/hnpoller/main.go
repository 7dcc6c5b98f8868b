package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"hnpoller/internal/classifier"
	"hnpoller/internal/config"
	"hnpoller/internal/content"
	"hnpoller/internal/database"
	"hnpoller/internal/hackernews"
	"hnpoller/internal/pipeline"
	"hnpoller/internal/readwise"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Secrets and overrides may live in a local .env; absence is fine.
	_ = godotenv.Load()
}

func usage() {
	fmt.Println("Usage: hnpoller [command] [options]")
	fmt.Println("Commands: fetch, score, show, sync, clean")
	fmt.Println("\nFor command-specific options, use: hnpoller [command] -h")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	fs := newFlagSets(cfg)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "fetch":
		fs.fetch.Parse(os.Args[2:])
		applyLogLevel(fs.logLevel)
		exitOn(cfg.Validate())
		exitOn(runFetch(cfg, fs))

	case "score":
		fs.score.Parse(os.Args[2:])
		applyLogLevel(fs.logLevel)
		exitOn(cfg.Validate())
		exitOn(runScore(cfg, fs))

	case "show":
		fs.show.Parse(os.Args[2:])
		applyLogLevel(fs.logLevel)
		exitOn(cfg.Validate())
		exitOn(runShow(cfg, fs))

	case "sync":
		fs.sync.Parse(os.Args[2:])
		applyLogLevel(fs.logLevel)
		exitOn(cfg.Validate())
		exitOn(runSync(cfg, fs))

	case "clean":
		fs.clean.Parse(os.Args[2:])
		applyLogLevel(fs.logLevel)
		exitOn(cfg.Validate())
		exitOn(runClean(cfg, fs))

	case "-h", "--help", "help":
		usage()
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		usage()
		os.Exit(1)
	}
}

func applyLogLevel(s string) {
	if level, err := zerolog.ParseLevel(s); err == nil {
		zerolog.SetGlobalLevel(level)
	}
}

func exitOn(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("Canceled by shutdown signal")
		os.Exit(1)
	}
	log.Error().Err(err).Msg("Command failed")
	os.Exit(1)
}

// signalContext returns a context that cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-shutdown
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	return ctx, cancel
}

func openStore(dbPath string, readOnly bool) (*database.DB, *database.Store, error) {
	dbCfg := database.NewConfig(dbPath)
	dbCfg.ReadOnly = readOnly

	db, err := database.NewDB(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, database.NewStore(db), nil
}

func runFetch(cfg *config.Config, fs *flagSets) error {
	ctx, cancel := signalContext()
	defer cancel()

	db, store, err := openStore(cfg.DBPath, false)
	if err != nil {
		return err
	}
	defer db.Close()

	p := &pipeline.Pipeline{Store: store, HN: hackernews.NewClient("")}
	stats, err := p.Fetch(ctx, pipeline.FetchOptions{
		Hours:     cfg.Hours,
		Limit:     cfg.FetchLimit,
		FromMaxID: fs.fromMaxID,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Fetched %d stories: %d new, %d updated\n", stats.Fetched, stats.Inserted, stats.Updated)
	return nil
}

func runScore(cfg *config.Config, fs *flagSets) error {
	if cfg.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required for scoring")
	}

	ctx, cancel := signalContext()
	defer cancel()

	db, store, err := openStore(cfg.DBPath, false)
	if err != nil {
		return err
	}
	defer db.Close()

	p := &pipeline.Pipeline{
		Store:      store,
		Classifier: classifier.New(classifier.Config{Model: cfg.ClassifierModel, APIKey: cfg.AnthropicAPIKey}),
	}
	if fs.useContent {
		p.Content = content.NewPrecisionService()
	}

	stats, err := p.Score(ctx, pipeline.ScoreOptions{
		Hours:      hoursArg(cfg.Hours, fs.allBacklog),
		MinScore:   int64(cfg.MinScore),
		BatchSize:  cfg.ScoreBatchSize,
		UseContent: fs.useContent,
		Throttle:   cfg.ScoreThrottle,
		BatchPause: cfg.ScoreBatchPause,
		FetchDelay: cfg.FetchDelay,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Classified %d items in %d batches (%d failed, will retry)\n", stats.Scored, stats.Batches, stats.Failed)
	return nil
}

func runShow(cfg *config.Config, fs *flagSets) error {
	ctx, cancel := signalContext()
	defer cancel()

	db, store, err := openStore(cfg.DBPath, true)
	if err != nil {
		return err
	}
	defer db.Close()

	if fs.showStats {
		return printStats(ctx, store)
	}

	var minRelevance *int64
	if fs.minRelevance >= 0 {
		mr := fs.minRelevance
		minRelevance = &mr
	}

	p := &pipeline.Pipeline{Store: store}
	rows, err := p.Show(ctx, pipeline.ShowOptions{
		Hours:        cfg.Hours,
		MinScore:     int64(cfg.MinScore),
		MinComments:  commentsArg(cfg.MinComments),
		MinRelevance: minRelevance,
		Limit:        uint64(cfg.ShowLimit),
		HNWeight:     cfg.HNWeight,
	})
	if err != nil {
		return err
	}

	printTable(rows)
	return nil
}

func runSync(cfg *config.Config, fs *flagSets) error {
	if cfg.ReadwiseToken == "" {
		return fmt.Errorf("READWISE_TOKEN is required for sync")
	}

	ctx, cancel := signalContext()
	defer cancel()

	db, store, err := openStore(cfg.DBPath, false)
	if err != nil {
		return err
	}
	defer db.Close()

	p := &pipeline.Pipeline{
		Store:    store,
		HN:       hackernews.NewClient(""),
		Readwise: readwise.NewClient("", cfg.ReadwiseToken),
	}
	stats, err := p.Sync(ctx, pipeline.SyncOptions{
		Hours:        hoursArg(cfg.Hours, fs.allBacklog),
		MinScore:     int64(cfg.MinScore),
		MinComments:  commentsArg(cfg.MinComments),
		MinRelevance: int64(cfg.MinRelevance),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Synced %d of %d candidates (%d already saved, %d failed)\n",
		stats.Synced, stats.Candidates, stats.Skipped, stats.Failed)
	return nil
}

func runClean(cfg *config.Config, fs *flagSets) error {
	if fs.dropDB {
		return dropDatabase(cfg.DBPath)
	}

	ctx, cancel := signalContext()
	defer cancel()

	db, store, err := openStore(cfg.DBPath, false)
	if err != nil {
		return err
	}
	defer db.Close()

	if fs.resetWatermarks {
		if err := store.ResetWatermarks(ctx); err != nil {
			return err
		}
		fmt.Println("Watermarks reset; the next fetch re-covers the full window")
		return nil
	}

	p := &pipeline.Pipeline{Store: store, HN: hackernews.NewClient("")}
	stats, err := p.Clean(ctx, pipeline.CleanOptions{
		Delay: 100 * time.Millisecond,
		Limit: fs.cleanLimit,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Checked %d items, deleted %d dead ones (%d lookup errors)\n",
		stats.Checked, stats.Deleted, stats.Errors)
	return nil
}

// dropDatabase deletes the database file after an interactive confirmation.
func dropDatabase(dbPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		log.Info().Str("path", dbPath).Msg("No database file to delete")
		return nil
	}

	fmt.Printf("Database %s and all tracked stories will be lost.\n", dbPath)
	fmt.Print("Delete? (y/N): ")

	var answer string
	fmt.Scanln(&answer)
	if strings.ToLower(answer) != "y" {
		return fmt.Errorf("operation canceled by user")
	}

	if err := database.DeleteDB(dbPath); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}
	log.Info().Str("path", dbPath).Msg("Deleted database")
	return nil
}

func printStats(ctx context.Context, store *database.Store) error {
	stats, err := store.GetRelevanceStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Total items:        %d\n", stats.Total)
	fmt.Printf("Classified:         %d\n", stats.Scored)
	fmt.Printf("  highly relevant:  %d (76-100)\n", stats.Highly)
	fmt.Printf("  moderately:       %d (51-75)\n", stats.Moderately)
	fmt.Printf("  slightly:         %d (26-50)\n", stats.Slightly)
	fmt.Printf("  not relevant:     %d (0-25)\n", stats.NotRel)
	fmt.Printf("Unclassified:       %d\n", stats.Unscored)
	fmt.Printf("Synced:             %d\n", stats.Synced)
	return nil
}

const titleWidth = 64

func printTable(rows []pipeline.Row) {
	if len(rows) == 0 {
		fmt.Println("No items match the current filters")
		return
	}

	fmt.Printf("%-10s %6s %6s %5s %8s  %-*s %s\n",
		"ID", "SCORE", "CMNTS", "RELEV", "COMBINED", titleWidth, "TITLE", "DOMAIN")

	for _, row := range rows {
		relev := "-"
		combined := "-"
		if row.Item.HasRelevance() {
			relev = fmt.Sprintf("%d", row.Item.Relevance())
			combined = fmt.Sprintf("%.1f", row.Combined)
		}

		// runewidth keeps CJK titles aligned where %-*s would count bytes.
		title := runewidth.FillRight(runewidth.Truncate(row.Item.Title, titleWidth, "..."), titleWidth)
		fmt.Printf("%-10d %6d %6d %5s %8s  %s %s\n",
			row.Item.ID, row.Item.Score, row.Item.CommentCount, relev, combined,
			title, row.Item.Domain())
	}
}

// hoursArg maps the window flag: allBacklog drops the time bound entirely.
func hoursArg(hours int, allBacklog bool) *int {
	if allBacklog {
		return nil
	}
	return &hours
}

func commentsArg(minComments int) *int64 {
	if minComments <= 0 {
		return nil
	}
	mc := int64(minComments)
	return &mc
}
