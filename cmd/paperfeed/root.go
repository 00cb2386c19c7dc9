package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hoanghai1803/paperfeed/internal/config"
	"github.com/hoanghai1803/paperfeed/internal/logging"
)

// options holds the global flags and the configuration they load.
type options struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "paperfeed",
		Short: "Daily arXiv digest with LLM relevance filtering and tournament ranking",
		Long: `paperfeed pulls the latest papers for an arXiv category, keeps the ones
matching your keywords and a relevance classifier, and ranks the rest with a
two-round language-model tournament.

Example usage:
  paperfeed run                       # Fetch, filter and rank once
  paperfeed serve                     # HTTP API with optional scheduled runs
  paperfeed fetch-filter --days 2     # Fetch and classify, save matches as JSONL
  paperfeed classify-id 2401.01234    # Classify one paper
  paperfeed rank data/filtered/x.jsonl`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.toml", "path to config file (.toml, .yaml or .yml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newFetchFilterCmd(opts),
		newClassifyIDCmd(opts),
		newRankCmd(opts),
	)
	return root
}

// load reads the configuration and installs the process logger.
func (o *options) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	o.cfg = cfg

	level := cfg.Log.Level
	if o.verbose {
		level = "debug"
	}
	slog.SetDefault(logging.New(level, cfg.Log.Format))

	slog.Debug("configuration loaded",
		"path", o.configPath,
		"provider", cfg.AI.Provider,
		"category", cfg.Arxiv.Category,
		"output_dir", cfg.Output.Dir,
	)
	return nil
}
