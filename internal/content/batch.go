package content

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"hnpoller/internal/models"
)

// Result is the outcome of one item's extraction: either readable text plus
// a summary, or a structured fetch error. Exactly one of the two halves is
// populated.
type Result struct {
	ItemID  int64
	Content string
	Summary string
	Err     *FetchError
}

// Service bundles the fetcher and extractor into the batch pipeline shape
// the orchestrator consumes.
type Service struct {
	Fetcher   *Fetcher
	Extractor *Extractor
}

// NewService builds the standard extraction service.
func NewService() *Service {
	return &Service{
		Fetcher:   NewFetcher(),
		Extractor: &Extractor{},
	}
}

// NewPrecisionService builds the heavier selective path used when extracted
// text feeds classification. Callers run it with smaller batch sizes.
func NewPrecisionService() *Service {
	return &Service{
		Fetcher:   NewFetcher().WithRetry(1, defaultInitialBackoff, defaultMaxBackoff),
		Extractor: &Extractor{FavorPrecision: true},
	}
}

// FetchAndExtract retrieves, extracts and summarizes one page.
func (s *Service) FetchAndExtract(ctx context.Context, url string) (string, string, *FetchError) {
	html, err := s.Fetcher.FetchRaw(ctx, url)
	if err != nil {
		if fe, ok := err.(*FetchError); ok {
			return "", "", fe
		}
		return "", "", &FetchError{URL: url, Kind: KindUnexpectedError, Message: err.Error()}
	}

	text, err := s.Extractor.ExtractText(html)
	if err != nil {
		return "", "", &FetchError{URL: url, Kind: KindConversionError, Message: err.Error()}
	}

	return text, Summarize(text, DefaultSummaryMaxChars), nil
}

// ProcessBatch fetches content for each item sequentially with a politeness
// delay between requests. One item's failure is recorded on that item and
// never aborts the batch. Items without a URL are skipped entirely.
func (s *Service) ProcessBatch(ctx context.Context, items []models.Item, delay time.Duration) []Result {
	var results []Result

	for i, item := range items {
		if !item.URL.Valid || item.URL.String == "" {
			continue
		}
		if i > 0 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return results
			}
		}

		text, summary, fe := s.FetchAndExtract(ctx, item.URL.String)
		if fe != nil {
			log.Warn().
				Int64("id", item.ID).
				Str("kind", string(fe.Kind)).
				Str("url", item.URL.String).
				Msg("Content extraction failed")
			results = append(results, Result{ItemID: item.ID, Err: fe})
			continue
		}

		log.Debug().Int64("id", item.ID).Int("chars", len(text)).Msg("Content extracted")
		results = append(results, Result{ItemID: item.ID, Content: text, Summary: summary})
	}

	return results
}

// ApplyResult copies an extraction outcome onto the item's content fields.
func ApplyResult(item *models.Item, res Result) {
	if res.Err != nil {
		item.ContentState = models.ContentFailed
		item.FetchErrorKind = sql.NullString{String: string(res.Err.Kind), Valid: true}
		item.FetchErrorMessage = sql.NullString{String: res.Err.Message, Valid: true}
		if res.Err.StatusCode > 0 {
			item.FetchErrorStatus = sql.NullInt64{Int64: int64(res.Err.StatusCode), Valid: true}
		}
		return
	}
	item.ContentState = models.ContentFetched
	item.Content = sql.NullString{String: res.Content, Valid: true}
	item.ContentSummary = sql.NullString{String: res.Summary, Valid: true}
	item.FetchErrorKind = sql.NullString{}
	item.FetchErrorMessage = sql.NullString{}
	item.FetchErrorStatus = sql.NullInt64{}
}
