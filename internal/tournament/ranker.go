// Package tournament reduces a pool of papers to a short list through two
// rounds of language-model selection.
//
// The first round splits the pool into batches and asks the model to pick a
// few winners from each. The second round asks the model to pick the final
// short list from the concatenated winners. Model output is free text; the
// ranker never parses it beyond stripping reasoning traces and excess blank
// lines.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hoanghai1803/paperfeed/internal/models"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidConfig is returned when the ranker is misconfigured by its caller.
var ErrInvalidConfig = errors.New("invalid tournament config")

// Selector asks a language model to pick k entries out of batchText and
// returns its free-text answer.
type Selector interface {
	Select(ctx context.Context, batchText string, k int) (string, error)
}

// SelectorFunc adapts an ordinary function to the Selector interface.
type SelectorFunc func(ctx context.Context, batchText string, k int) (string, error)

// Select calls f(ctx, batchText, k).
func (f SelectorFunc) Select(ctx context.Context, batchText string, k int) (string, error) {
	return f(ctx, batchText, k)
}

// Ranker holds the tournament parameters.
type Ranker struct {
	// BatchSize is the number of papers per first-round batch.
	BatchSize int
	// MergeThreshold is the largest trailing batch folded into the previous one.
	MergeThreshold int
	// FirstRoundK is the number of winners requested from every batch.
	FirstRoundK int
	// FinalRoundK is the size of the final short list.
	FinalRoundK int
	// Concurrency bounds parallel first-round calls. Values below 2 rank
	// batches one at a time.
	Concurrency int
}

// NewRanker returns a Ranker with the stock parameters: batches of 10, a
// trailing-merge threshold of 4, two winners per batch and five finalists.
func NewRanker() *Ranker {
	return &Ranker{
		BatchSize:      10,
		MergeThreshold: DefaultMergeThreshold,
		FirstRoundK:    2,
		FinalRoundK:    5,
		Concurrency:    1,
	}
}

func (r *Ranker) validate(sel Selector) error {
	switch {
	case sel == nil:
		return fmt.Errorf("%w: nil selector", ErrInvalidConfig)
	case r.FinalRoundK <= 0:
		return fmt.Errorf("%w: final round k must be positive, got %d", ErrInvalidConfig, r.FinalRoundK)
	case r.FirstRoundK <= 0:
		return fmt.Errorf("%w: first round k must be positive, got %d", ErrInvalidConfig, r.FirstRoundK)
	case r.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, r.BatchSize)
	case r.MergeThreshold < 0:
		return fmt.Errorf("%w: merge threshold must not be negative, got %d", ErrInvalidConfig, r.MergeThreshold)
	}
	return nil
}

// Rank runs the tournament over papers. A failed oracle call never aborts the
// tournament: its batch contributes an empty result and ranking continues.
// Rank only returns an error for an invalid configuration or when ctx is
// cancelled before a round starts.
func (r *Ranker) Rank(ctx context.Context, papers []models.Paper, sel Selector) (*Report, error) {
	if err := r.validate(sel); err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		slog.Info("no papers to rank")
		return &Report{}, nil
	}

	slog.Info("starting tournament",
		"papers", len(papers),
		"first_round_k", r.FirstRoundK,
		"final_round_k", r.FinalRoundK,
	)

	report := &Report{}
	if len(papers) <= r.FinalRoundK {
		report.SkippedFirstRound = true
		report.Batches = []string{FormatPapers(papers)}
	} else {
		results, failed, err := r.firstRound(ctx, papers, sel)
		if err != nil {
			return nil, err
		}
		report.Batches = results
		report.FailedCalls = failed
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tournament cancelled before final round: %w", err)
	}

	slog.Info("final round", "batch_results", len(report.Batches))
	final, err := callSelector(ctx, sel, report.Combined(), r.FinalRoundK)
	if err != nil {
		slog.Warn("final round selection failed", "error", err)
		report.FailedCalls++
	}
	report.Final = final

	return report, nil
}

// firstRound ranks every batch and returns the cleaned results in batch order
// together with the number of failed calls.
func (r *Ranker) firstRound(ctx context.Context, papers []models.Paper, sel Selector) ([]string, int, error) {
	batches := Partition(papers, r.BatchSize, r.MergeThreshold)

	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b)
	}
	slog.Info("created batches", "count", len(batches), "sizes", sizes)

	results := make([]string, len(batches))
	errs := make([]error, len(batches))

	g := new(errgroup.Group)
	g.SetLimit(max(r.Concurrency, 1))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return nil, 0, fmt.Errorf("tournament cancelled during first round: %w", err)
		}
		g.Go(func() error {
			slog.Info("ranking batch", "batch", i+1, "of", len(batches), "papers", len(batch))
			results[i], errs[i] = callSelector(ctx, sel, FormatPapers(batch), r.FirstRoundK)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			slog.Warn("batch selection failed, continuing without it", "batch", i+1, "error", err)
		}
	}
	return results, failed, nil
}

// callSelector is the error boundary around a single oracle call. On failure
// it returns an empty result alongside the error.
func callSelector(ctx context.Context, sel Selector, text string, k int) (string, error) {
	raw, err := sel.Select(ctx, text, k)
	if err != nil {
		return "", err
	}
	return CleanResponse(raw), nil
}

// FormatPapers serializes papers for a selection prompt: each paper is its
// title followed by its indented abstract, one paper after another.
func FormatPapers(papers []models.Paper) string {
	var b strings.Builder
	for i, p := range papers {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.Title)
		b.WriteString("\n   ")
		b.WriteString(p.Abstract)
	}
	return b.String()
}
