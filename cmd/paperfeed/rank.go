package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoanghai1803/paperfeed/internal/pipeline"
)

func newRankCmd(opts *options) *cobra.Command {
	var noSave bool

	cmd := &cobra.Command{
		Use:   "rank <papers.jsonl>",
		Short: "Run the ranking tournament over a saved JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			papers, err := pipeline.ReadJSONL(args[0])
			if err != nil {
				return err
			}

			oracle, err := newOracle(opts.cfg)
			if err != nil {
				return err
			}

			report, err := pipeline.NewRanker(opts.cfg.Ranking).Rank(cmd.Context(), papers, oracle)
			if err != nil {
				return fmt.Errorf("ranking papers: %w", err)
			}
			text := report.String()
			fmt.Fprintln(cmd.OutOrStdout(), text)

			if noSave {
				return nil
			}
			stamp := time.Now().UTC().Format("2006-01-02_15-04-05")
			path := filepath.Join(opts.cfg.Output.RankedDir(), stamp+".md")
			if err := pipeline.WriteReport(path, text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nReport saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noSave, "no-save", false, "print the report without writing it to output.dir/ranked")
	return cmd
}
