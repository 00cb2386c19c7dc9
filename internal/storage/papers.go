package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/hoanghai1803/paperfeed/internal/models"
)

const defaultListLimit = 100

// PaperFilter narrows ListPapers. Zero fields do not filter.
type PaperFilter struct {
	// Relevant selects papers whose stored verdict matches. Papers that were
	// never classified are excluded when set.
	Relevant *bool
	// Since keeps papers published at or after this time.
	Since time.Time
	// Query is a substring matched against title and abstract.
	Query string
	Limit int
}

// UpsertPaper inserts a paper or refreshes it if a row with the same link
// already exists. The row ID is returned.
func (s *Store) UpsertPaper(ctx context.Context, p models.Paper) (int64, error) {
	var publishedAt *string
	if !p.Published.IsZero() {
		v := formatTime(p.Published)
		publishedAt = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO papers (arxiv_id, title, link, abstract, categories, published_at, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(link) DO UPDATE SET
			arxiv_id     = COALESCE(excluded.arxiv_id, papers.arxiv_id),
			title        = excluded.title,
			abstract     = excluded.abstract,
			categories   = excluded.categories,
			published_at = COALESCE(excluded.published_at, papers.published_at),
			fetched_at   = excluded.fetched_at`,
		nullableString(p.ArxivID), p.Title, p.Link, p.Abstract,
		strings.Join(p.Categories, ","), publishedAt, formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("upserting paper: %w", err)
	}

	// last_insert_rowid() is not reliable on the UPDATE path, so look the
	// row up by link.
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM papers WHERE link = ?`, p.Link).Scan(&id); err != nil {
		return 0, fmt.Errorf("getting upserted paper id: %w", err)
	}
	return id, nil
}

// SavePapers batch-upserts papers inside a single transaction.
func (s *Store) SavePapers(ctx context.Context, papers []models.Paper) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO papers (arxiv_id, title, link, abstract, categories, published_at, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(link) DO UPDATE SET
			title      = excluded.title,
			abstract   = excluded.abstract,
			fetched_at = excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for _, p := range papers {
		var publishedAt *string
		if !p.Published.IsZero() {
			v := formatTime(p.Published)
			publishedAt = &v
		}
		if _, err := stmt.ExecContext(ctx,
			nullableString(p.ArxivID), p.Title, p.Link, p.Abstract,
			strings.Join(p.Categories, ","), publishedAt, now,
		); err != nil {
			return fmt.Errorf("upserting paper %q: %w", p.Link, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// paperColumns is shared by every query that scans into scanPaper.
var paperColumns = []string{
	"p.id", "p.arxiv_id", "p.title", "p.link", "p.abstract", "p.categories",
	"p.published_at", "p.fetched_at",
	"c.is_relevant", "c.reason", "c.model",
}

// GetPaperByLink returns the paper with the given link and its verdict, if
// any. Returns nil, ErrNotFound if no matching row exists.
func (s *Store) GetPaperByLink(ctx context.Context, link string) (*models.StoredPaper, error) {
	query, args, err := sq.Select(paperColumns...).
		From("papers p").
		LeftJoin("classifications c ON c.paper_id = p.id").
		Where(sq.Eq{"p.link": link}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building paper query: %w", err)
	}

	paper, err := scanPaper(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, lookupErr(err, "getting paper by link")
	}
	return paper, nil
}

// ListPapers returns stored papers newest first.
func (s *Store) ListPapers(ctx context.Context, f PaperFilter) ([]models.StoredPaper, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	q := sq.Select(paperColumns...).
		From("papers p").
		LeftJoin("classifications c ON c.paper_id = p.id").
		OrderBy("p.published_at DESC", "p.id DESC").
		Limit(uint64(limit))

	if f.Relevant != nil {
		q = q.Where(sq.Eq{"c.is_relevant": boolToInt(*f.Relevant)})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"p.published_at": formatTime(f.Since)})
	}
	if f.Query != "" {
		pattern := "%" + f.Query + "%"
		q = q.Where(sq.Or{
			sq.Like{"p.title": pattern},
			sq.Like{"p.abstract": pattern},
		})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building paper list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	papers := []models.StoredPaper{}
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		papers = append(papers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating papers: %w", err)
	}
	return papers, nil
}

// scanner is a minimal interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanPaper scans a row selected with paperColumns.
func scanPaper(row scanner) (*models.StoredPaper, error) {
	var (
		p           models.StoredPaper
		arxivID     sql.NullString
		categories  string
		publishedAt sql.NullString
		fetchedAt   string
		relevant    sql.NullInt64
		reason      sql.NullString
		model       sql.NullString
	)

	if err := row.Scan(
		&p.ID, &arxivID, &p.Title, &p.Link, &p.Abstract, &categories,
		&publishedAt, &fetchedAt,
		&relevant, &reason, &model,
	); err != nil {
		return nil, err
	}

	p.ArxivID = arxivID.String
	if categories != "" {
		p.Categories = strings.Split(categories, ",")
	}
	if t := parseTimePtr(nullStringToPtr(publishedAt)); t != nil {
		p.Published = *t
	}
	p.FetchedAt = parseTime(fetchedAt)

	if relevant.Valid {
		p.Classification = &models.Classification{
			Relevant: relevant.Int64 != 0,
			Reason:   reason.String,
		}
		p.ModelUsed = model.String
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableString converts an empty string to nil for nullable TEXT columns.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullStringToPtr converts a sql.NullString to a *string.
func nullStringToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
