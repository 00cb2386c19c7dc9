package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoanghai1803/paperfeed/internal/filter"
	"github.com/hoanghai1803/paperfeed/internal/models"
	"github.com/hoanghai1803/paperfeed/internal/pipeline"
)

func newFetchFilterCmd(opts *options) *cobra.Command {
	var (
		window     pipeline.Options
		out        string
		noSave     bool
		noKeywords bool
	)

	cmd := &cobra.Command{
		Use:   "fetch-filter",
		Short: "Fetch recent papers, classify them and save the matches as JSONL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			a, err := newApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			papers, err := a.pipeline.Fetch(ctx, window)
			if err != nil {
				return err
			}
			for _, p := range papers {
				fmt.Fprintln(w, p.Link)
			}
			if len(papers) == 0 {
				fmt.Fprintf(w, "No recent papers found in %s for the given window.\n", opts.cfg.Arxiv.Category)
				return nil
			}
			fmt.Fprintf(w, "Found %d recent papers.\n\n", len(papers))

			candidates := papers
			if !noKeywords {
				candidates = filter.Keywords(opts.cfg.KeywordFilter.Keywords).Filter(papers)
				fmt.Fprintf(w, "%d papers match the keyword filter.\n\n", len(candidates))
			}

			matches, err := a.pipeline.Classify(ctx, candidates, nil)
			if err != nil {
				return err
			}
			printMatches(cmd, matches)

			if noSave {
				return nil
			}
			if out == "" {
				stamp := time.Now().UTC().Format("2006-01-02_15-04-05")
				out = filepath.Join(opts.cfg.Output.FilteredDir(), stamp+".jsonl")
			}
			if err := pipeline.WriteJSONL(out, matches); err != nil {
				return err
			}
			fmt.Fprintf(w, "Saved %d matches to %s\n", len(matches), out)
			return nil
		},
	}

	addWindowFlags(cmd, &window)
	cmd.Flags().StringVar(&out, "out", "", "path to write JSONL (default output.dir/filtered/<timestamp>.jsonl)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not write an output file")
	cmd.Flags().BoolVar(&noKeywords, "no-keywords", false, "classify every fetched paper, skipping the keyword filter")
	return cmd
}

func printMatches(cmd *cobra.Command, papers []models.Paper) {
	w := cmd.OutOrStdout()
	for _, p := range papers {
		fmt.Fprintln(w, "- "+p.Title)
		fmt.Fprintln(w, "  "+p.Link)
		fmt.Fprintln(w, "  "+p.Abstract)
		fmt.Fprintln(w)
	}
}
