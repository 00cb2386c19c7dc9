package main

import (
	"fmt"
	"log/slog"

	"github.com/hoanghai1803/paperfeed/internal/ai"
	"github.com/hoanghai1803/paperfeed/internal/config"
	"github.com/hoanghai1803/paperfeed/internal/feeds"
	"github.com/hoanghai1803/paperfeed/internal/pipeline"
	"github.com/hoanghai1803/paperfeed/internal/storage"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg      *config.Config
	store    *storage.Store
	fetcher  *feeds.Fetcher
	oracle   *ai.Oracle
	pipeline *pipeline.Pipeline
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := storage.Open(cfg.Output.DatabasePath())
	if err != nil {
		return nil, err
	}

	oracle, err := newOracle(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	fetcher := feeds.NewFetcher(feeds.FetcherConfig{APIURL: cfg.Arxiv.APIURL})

	return &app{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		oracle:   oracle,
		pipeline: pipeline.New(cfg, store, fetcher, oracle),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// newOracle builds the configured provider and binds it to the ranking and
// classification settings.
func newOracle(cfg *config.Config) (*ai.Oracle, error) {
	provider, err := ai.NewProvider(ai.ProviderConfig{
		Provider: cfg.AI.Provider,
		APIKey:   cfg.AI.APIKey,
		BaseURL:  cfg.AI.BaseURL,
		Timeout:  max(cfg.Ranking.Timeout(), cfg.Classification.Timeout()),
	})
	if err != nil {
		return nil, fmt.Errorf("creating AI provider: %w", err)
	}
	slog.Info("AI provider configured",
		"provider", provider.Name(),
		"classification_model", cfg.Classification.Model,
		"ranking_model", cfg.Ranking.Model,
	)

	return ai.NewOracle(provider,
		ai.RankingOptions{
			Model:          cfg.Ranking.Model,
			PromptTemplate: cfg.Ranking.PromptTemplate,
			ResearchFocus:  cfg.Ranking.ResearchFocus,
			ThinkTime:      cfg.Ranking.ThinkTime,
			Timeout:        cfg.Ranking.Timeout(),
		},
		ai.ClassificationOptions{
			Model:   cfg.Classification.Model,
			Prompt:  cfg.Classification.Prompt,
			Timeout: cfg.Classification.Timeout(),
		},
	), nil
}
