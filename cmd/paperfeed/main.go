// Command paperfeed fetches recent arXiv papers, filters them for relevance
// and ranks the survivors with a language-model tournament.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(newRootCmd(), os.Args[1:]))
}

// run executes root and returns the process exit code. Failures are logged
// through the default logger, which the root command replaces with the
// configured one once the config has loaded.
func run(root *cobra.Command, args []string) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		slog.Error("paperfeed failed", "error", err)
		return 1
	}
	return 0
}
