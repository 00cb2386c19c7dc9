package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hoanghai1803/paperfeed/internal/metrics"
	"github.com/hoanghai1803/paperfeed/internal/models"
	"github.com/hoanghai1803/paperfeed/internal/tournament"
)

// Compile-time interface check.
var _ tournament.Selector = (*Oracle)(nil)

// RankingOptions configures the selection calls made during a tournament.
type RankingOptions struct {
	Model          string
	PromptTemplate string
	ResearchFocus  string
	ThinkTime      string
	Timeout        time.Duration
}

// ClassificationOptions configures single-paper relevance calls.
type ClassificationOptions struct {
	Model   string
	Prompt  string
	Timeout time.Duration
}

// Oracle turns a Provider into the two operations the pipeline needs:
// picking the best papers out of a batch and classifying a single paper.
type Oracle struct {
	provider       Provider
	ranking        RankingOptions
	classification ClassificationOptions
}

// NewOracle binds a provider to the ranking and classification settings.
func NewOracle(p Provider, ranking RankingOptions, classification ClassificationOptions) *Oracle {
	return &Oracle{provider: p, ranking: ranking, classification: classification}
}

// Select asks the ranking model to pick k papers from batchText. The raw
// answer is returned; think-block removal is left to the caller.
func (o *Oracle) Select(ctx context.Context, batchText string, k int) (string, error) {
	prompt := RankingPrompt(o.ranking.PromptTemplate, k, o.ranking.ResearchFocus, o.ranking.ThinkTime, batchText)

	start := time.Now()
	raw, err := o.call(ctx, o.ranking.Timeout, CompletionRequest{
		Model:  o.ranking.Model,
		Prompt: prompt,
	})
	metrics.RecordOracleCall("select", outcome(err), time.Since(start))
	if err != nil {
		return "", fmt.Errorf("ranking with %s: %w", o.ranking.Model, err)
	}

	slog.Debug("ranking response", "model", o.ranking.Model, "k", k, "response", raw)
	return raw, nil
}

// Classify asks the classification model whether paper is relevant. When the
// answer cannot be parsed the conservative not-relevant verdict is returned
// together with an ErrMalformedResponse error.
func (o *Oracle) Classify(ctx context.Context, paper models.Paper) (models.Classification, error) {
	prompt := ClassificationPrompt(o.classification.Prompt, paper)

	start := time.Now()
	raw, err := o.call(ctx, o.classification.Timeout, CompletionRequest{
		Model:  o.classification.Model,
		Prompt: prompt,
	})
	if err != nil {
		metrics.RecordOracleCall("classify", outcome(err), time.Since(start))
		return models.Classification{}, fmt.Errorf("classifying %q: %w", paper.Title, err)
	}

	slog.Debug("classification response", "title", paper.Title, "link", paper.Link, "response", raw)

	c, err := parseClassification(tournament.CleanResponse(raw))
	metrics.RecordOracleCall("classify", outcome(err), time.Since(start))
	if err != nil {
		return c, fmt.Errorf("classifying %q: %w", paper.Title, err)
	}
	return c, nil
}

// ClassificationModel reports the model used for relevance verdicts.
func (o *Oracle) ClassificationModel() string {
	return o.classification.Model
}

// call runs one provider request under its own deadline.
func (o *Oracle) call(ctx context.Context, timeout time.Duration, req CompletionRequest) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	raw, err := o.provider.Complete(ctx, req)
	if err != nil {
		return "", wrapCallError(err)
	}
	return raw, nil
}
