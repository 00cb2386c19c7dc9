package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hoanghai1803/paperfeed/internal/ai"
	"github.com/hoanghai1803/paperfeed/internal/feeds"
)

func newClassifyIDCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify-id <arxiv-id>",
		Short: "Fetch one arXiv paper by ID and run the relevance classifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			fetcher := feeds.NewFetcher(feeds.FetcherConfig{APIURL: opts.cfg.Arxiv.APIURL})
			paper, err := fetcher.FetchByID(ctx, id)
			if err != nil {
				return fmt.Errorf("could not fetch arXiv:%s: %w", id, err)
			}

			oracle, err := newOracle(opts.cfg)
			if err != nil {
				return err
			}

			// An unparseable answer still yields the conservative verdict.
			c, err := oracle.Classify(ctx, paper)
			if err != nil && !errors.Is(err, ai.ErrMalformedResponse) {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, paper.Title)
			fmt.Fprintln(w, paper.Link)
			fmt.Fprintln(w, paper.Abstract)

			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(c)
		},
	}
}
