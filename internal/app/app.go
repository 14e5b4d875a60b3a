package app

import (
	"log/slog"

	"github.com/albapepper/cricket-data/internal/config"
	"github.com/albapepper/cricket-data/internal/pipeline"
	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/provider/cricbuzz"
	"github.com/albapepper/cricket-data/internal/registry"
	"github.com/albapepper/cricket-data/internal/resolve"
	"github.com/albapepper/cricket-data/internal/store"
)

// Ingest bundles the components of one ingestion run.
type Ingest struct {
	Store    store.Store
	Registry *registry.Registry
	Runner   *pipeline.Runner
}

// NewFetcher builds the Cricbuzz client described by cfg.
func NewFetcher(cfg *config.Config, logger *slog.Logger) *cricbuzz.Client {
	return cricbuzz.NewClient(cricbuzz.ClientConfig{
		BaseURL:   cfg.SourceBaseURL,
		UserAgent: cfg.UserAgent,
		Delay:     cfg.FetchDelay,
		Timeout:   cfg.FetchTimeout,
		Logger:    logger,
	})
}

// NewIngest wires the registry and stage runner over st and fetcher.
func NewIngest(st store.Store, fetcher provider.Fetcher, cfg *config.Config, logger *slog.Logger) *Ingest {
	retry := provider.RetryPolicy{MaxRetries: cfg.FetchRetries, Backoff: cfg.FetchBackoff}
	extract := cricbuzz.Extractor{}

	reg := registry.New(st, fetcher, extract, registry.Config{
		MaxMatches:    cfg.DiscoveryMaxMatches,
		CompletedOnly: cfg.DiscoveryCompletedOnly,
		MaxFailures:   cfg.StageMaxFailures,
		Retry:         retry,
	}, logger)

	runner := pipeline.NewRunner(st, reg, fetcher, extract, resolve.New(logger), pipeline.Config{
		Retry:            retry,
		FetchBiographies: cfg.FetchBiographies,
	}, logger)

	return &Ingest{Store: st, Registry: reg, Runner: runner}
}
