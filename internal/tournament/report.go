package tournament

import "strings"

const (
	// NoPapersMessage is the whole report when there was nothing to rank.
	NoPapersMessage = "No papers to rank."

	batchResultsHeader = "\n\n\n\n### --------------- Ranked results for each batch: --------------------\n"
)

// Report is the outcome of one tournament.
type Report struct {
	// Final is the cleaned response of the final round.
	Final string
	// Batches holds one cleaned first-round response per batch, in batch
	// order. A batch whose oracle call failed has an empty entry. When the
	// first round was skipped it holds the single serialized input block.
	Batches []string
	// SkippedFirstRound is set when the input was small enough to go
	// straight to the final round.
	SkippedFirstRound bool
	// FailedCalls counts oracle calls that degraded to an empty result.
	FailedCalls int
}

// Empty reports whether the tournament had no input.
func (r *Report) Empty() bool {
	return r == nil || (r.Final == "" && len(r.Batches) == 0)
}

// Combined returns the text the final round reduced over.
func (r *Report) Combined() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Batches, "\n\n")
}

// String renders the human-readable report: the final shortlist followed by a
// labelled appendix holding every first-round result verbatim.
func (r *Report) String() string {
	if r.Empty() {
		return NoPapersMessage
	}
	return r.Final + batchResultsHeader + r.Combined()
}
