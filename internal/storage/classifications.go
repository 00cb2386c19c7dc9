package storage

import (
	"context"
	"fmt"

	"github.com/hoanghai1803/paperfeed/internal/models"
)

// UpsertClassification stores the verdict for a paper, replacing any
// earlier one.
func (s *Store) UpsertClassification(ctx context.Context, paperID int64, c models.Classification, model string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classifications (paper_id, is_relevant, reason, model, classified_at)
		 VALUES (?, ?, ?, ?, datetime('now'))
		 ON CONFLICT(paper_id) DO UPDATE SET
			is_relevant   = excluded.is_relevant,
			reason        = excluded.reason,
			model         = excluded.model,
			classified_at = excluded.classified_at`,
		paperID, boolToInt(c.Relevant), c.Reason, model,
	)
	if err != nil {
		return fmt.Errorf("upserting classification for paper %d: %w", paperID, err)
	}
	return nil
}

// GetClassification returns the stored verdict for a paper and the model
// that produced it. Returns ErrNotFound if the paper was never classified.
func (s *Store) GetClassification(ctx context.Context, paperID int64) (*models.Classification, string, error) {
	var (
		relevant int
		c        models.Classification
		model    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT is_relevant, reason, model FROM classifications WHERE paper_id = ?`, paperID,
	).Scan(&relevant, &c.Reason, &model)
	if err != nil {
		return nil, "", lookupErr(err, fmt.Sprintf("getting classification for paper %d", paperID))
	}
	c.Relevant = relevant != 0
	return &c, model, nil
}
