package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hoanghai1803/paperfeed/internal/pipeline"
)

func newRunCmd(opts *options) *cobra.Command {
	var runOpts pipeline.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, filter and rank once, then print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.pipeline.Run(cmd.Context(), runOpts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, run.Report)
			fmt.Fprintf(out, "\nFetched %d, keyword matches %d, relevant %d. Report saved to %s\n",
				run.PapersFetched, run.PapersMatched, run.PapersRelevant, run.ReportPath)
			return nil
		},
	}

	addWindowFlags(cmd, &runOpts)
	cmd.Flags().StringVar(&runOpts.Category, "category", "", "arXiv category (default from config)")
	return cmd
}

// addWindowFlags registers the lookback window flags shared by commands
// that fetch.
func addWindowFlags(cmd *cobra.Command, o *pipeline.Options) {
	cmd.Flags().IntVar(&o.Days, "days", 0, "lookback window in days (default from config)")
	cmd.Flags().IntVar(&o.Limit, "limit", 0, "max papers before filtering (default from config)")
	cmd.Flags().BoolVar(&o.NoLimit, "no-limit", false, "fetch every paper in the window, ignoring --limit")
}
