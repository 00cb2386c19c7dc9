package filter

import (
	"context"
	"log/slog"

	"github.com/hoanghai1803/paperfeed/internal/models"
	"golang.org/x/sync/errgroup"
)

// Classifier decides whether a single paper is on topic.
type Classifier interface {
	Classify(ctx context.Context, p models.Paper) (models.Classification, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, p models.Paper) (models.Classification, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, p models.Paper) (models.Classification, error) {
	return f(ctx, p)
}

// Verdict is one classifier outcome. Err is set when the classifier failed;
// Classification then holds whatever conservative answer it returned.
type Verdict struct {
	Paper          models.Paper
	Classification models.Classification
	Err            error
}

// Relevance keeps the papers a Classifier marks relevant.
type Relevance struct {
	Classifier  Classifier
	Concurrency int
	// OnVerdict, when set, is called once per paper in input order after
	// every paper has been classified.
	OnVerdict func(Verdict)
}

// Filter classifies every paper and returns the relevant ones in input
// order. Classifier errors count as not relevant. Only context cancellation
// is returned as an error.
func (r *Relevance) Filter(ctx context.Context, papers []models.Paper) ([]models.Paper, error) {
	verdicts := make([]Verdict, len(papers))

	g := new(errgroup.Group)
	g.SetLimit(max(r.Concurrency, 1))

	for i, p := range papers {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c, err := r.Classifier.Classify(ctx, p)
			verdicts[i] = Verdict{Paper: p, Classification: c, Err: err}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var kept []models.Paper
	for _, v := range verdicts {
		if v.Err != nil {
			slog.Warn("classification failed, treating paper as not relevant",
				"title", v.Paper.Title,
				"link", v.Paper.Link,
				"error", v.Err,
			)
			v.Classification.Relevant = false
		} else {
			slog.Info("classified paper",
				"title", v.Paper.Title,
				"relevant", v.Classification.Relevant,
				"reason", v.Classification.Reason,
			)
		}
		if r.OnVerdict != nil {
			r.OnVerdict(v)
		}
		if v.Classification.Relevant {
			kept = append(kept, v.Paper)
		}
	}
	return kept, nil
}
