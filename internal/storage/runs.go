package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hoanghai1803/paperfeed/internal/models"
)

const runColumns = `id, status, category, days, papers_fetched, papers_matched,
	papers_relevant, ranking_model, report, report_path, error, started_at, finished_at`

// CreateRun inserts a new run row. StartedAt defaults to now when zero.
func (s *Store) CreateRun(ctx context.Context, run *models.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunRunning
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, category, days, ranking_model, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.Category, run.Days, run.RankingModel,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("creating run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the final status, counters and report of a run.
// FinishedAt defaults to now when nil.
func (s *Store) FinishRun(ctx context.Context, run *models.Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET
			status = ?, papers_fetched = ?, papers_matched = ?, papers_relevant = ?,
			report = ?, report_path = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), run.PapersFetched, run.PapersMatched, run.PapersRelevant,
		run.Report, run.ReportPath, run.Error, formatTime(*run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun returns a run by ID, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		return nil, lookupErr(err, "getting run "+id)
	}
	return run, nil
}

// GetLatestRun returns the most recently started run, or ErrNotFound if
// nothing has run yet.
func (s *Store) GetLatestRun(ctx context.Context) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`))
	if err != nil {
		return nil, lookupErr(err, "getting latest run")
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. Reports are omitted to
// keep listings small.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Report = ""
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// FailRunningRuns marks every run still in the running state as failed.
// Called at startup: a run left running belongs to a process that died.
func (s *Store) FailRunningRuns(ctx context.Context, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		string(models.RunFailed), reason, formatTime(time.Now()), string(models.RunRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("failing stale runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		run        models.Run
		status     string
		runErr     sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(
		&run.ID, &status, &run.Category, &run.Days, &run.PapersFetched, &run.PapersMatched,
		&run.PapersRelevant, &run.RankingModel, &run.Report, &run.ReportPath, &runErr,
		&startedAt, &finishedAt,
	); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.Error = runErr.String
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTimePtr(nullStringToPtr(finishedAt))
	return &run, nil
}
