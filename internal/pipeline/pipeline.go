// Package pipeline runs the daily fetch, filter and rank job end to end and
// records each execution as a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hoanghai1803/paperfeed/internal/ai"
	"github.com/hoanghai1803/paperfeed/internal/config"
	"github.com/hoanghai1803/paperfeed/internal/feeds"
	"github.com/hoanghai1803/paperfeed/internal/filter"
	"github.com/hoanghai1803/paperfeed/internal/metrics"
	"github.com/hoanghai1803/paperfeed/internal/models"
	"github.com/hoanghai1803/paperfeed/internal/storage"
	"github.com/hoanghai1803/paperfeed/internal/tournament"
)

// stampLayout names the files a run writes.
const stampLayout = "2006-01-02_15-04-05"

// ErrRunInProgress is returned by Run while another run is still executing.
var ErrRunInProgress = errors.New("a run is already in progress")

// Source supplies candidate papers. *feeds.Fetcher implements it.
type Source interface {
	FetchRecent(ctx context.Context, opts feeds.FetchOptions) ([]models.Paper, error)
	ScrapeListing(ctx context.Context, category string) ([]models.Paper, error)
	FillMissingAbstracts(ctx context.Context, papers []models.Paper) int
}

// Oracle classifies single papers and selects winners out of a batch.
// *ai.Oracle implements it.
type Oracle interface {
	tournament.Selector
	filter.Classifier
	ClassificationModel() string
}

// Options overrides the configured fetch window for one run. Zero fields
// fall back to the [arxiv] config section.
type Options struct {
	Category string
	Days     int
	Limit    int
	NoLimit  bool
	Now      time.Time
}

// Pipeline wires the fetcher, filters, tournament and storage together.
type Pipeline struct {
	cfg    *config.Config
	store  *storage.Store
	source Source
	oracle Oracle
	ranker *tournament.Ranker

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc // set while a Start run executes
	bg      sync.WaitGroup
}

// New creates a Pipeline. The ranker is configured from cfg.Ranking.
func New(cfg *config.Config, store *storage.Store, source Source, oracle Oracle) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		store:  store,
		source: source,
		oracle: oracle,
		ranker: NewRanker(cfg.Ranking),
	}
}

// NewRanker builds a tournament ranker from the [ranking] config section.
func NewRanker(cfg config.RankingConfig) *tournament.Ranker {
	r := tournament.NewRanker()
	r.BatchSize = cfg.BatchSize
	r.FirstRoundK = cfg.FirstRoundK
	r.FinalRoundK = cfg.FinalRoundK
	r.Concurrency = cfg.Concurrency
	if cfg.MergeThreshold != nil {
		r.MergeThreshold = *cfg.MergeThreshold
	}
	return r
}

// Running reports whether a run is currently executing.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	return true
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.running = false
	p.cancel = nil
	p.mu.Unlock()
}

func (p *Pipeline) withDefaults(opts Options) Options {
	if opts.Category == "" {
		opts.Category = p.cfg.Arxiv.Category
	}
	if opts.Days <= 0 {
		opts.Days = p.cfg.Arxiv.Days
	}
	if opts.Limit <= 0 {
		opts.Limit = p.cfg.Arxiv.Limit
	}
	if !opts.NoLimit {
		opts.NoLimit = p.cfg.Arxiv.NoLimit
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return opts
}

// Run executes one full run and returns its record. The run is persisted
// before any work starts and finished even when a stage fails, so the
// returned run is non-nil whenever the run row was created.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*models.Run, error) {
	run, opts, err := p.begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer p.release()

	return run, p.complete(ctx, run, opts)
}

// Start creates a run and executes it in the background. The returned copy
// reflects the run at creation; poll storage for its progress. Shutdown
// cancels and waits for runs started this way.
func (p *Pipeline) Start(ctx context.Context, opts Options) (*models.Run, error) {
	run, opts, err := p.begin(ctx, opts)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	created := *run
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		defer p.release()
		defer cancel()
		_ = p.complete(runCtx, run, opts)
	}()
	return &created, nil
}

// Shutdown cancels any run started with Start and waits until it has been
// recorded, or until ctx is done. Call it before closing the store.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background run: %w", ctx.Err())
	}
}

// begin takes the single-run lock and persists a new run. The lock is held
// on success and must be released by the caller.
func (p *Pipeline) begin(ctx context.Context, opts Options) (*models.Run, Options, error) {
	if !p.acquire() {
		return nil, opts, ErrRunInProgress
	}

	opts = p.withDefaults(opts)
	run := &models.Run{
		ID:           uuid.NewString(),
		Status:       models.RunRunning,
		Category:     opts.Category,
		Days:         opts.Days,
		RankingModel: p.cfg.Ranking.Model,
		StartedAt:    time.Now().UTC(),
	}
	if err := p.store.CreateRun(ctx, run); err != nil {
		p.release()
		return nil, opts, err
	}

	slog.Info("run started", "run_id", run.ID, "category", run.Category, "days", run.Days)
	return run, opts, nil
}

func (p *Pipeline) complete(ctx context.Context, run *models.Run, opts Options) error {
	err := p.execute(ctx, run, opts)

	run.Status = models.RunSucceeded
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
	}
	metrics.RecordRun(string(run.Status))

	// Record the outcome even if ctx was cancelled mid-run.
	if ferr := p.store.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
		slog.Error("failed to finish run", "run_id", run.ID, "error", ferr)
	}

	if err != nil {
		slog.Error("run failed", "run_id", run.ID, "error", err)
		return err
	}
	slog.Info("run finished",
		"run_id", run.ID,
		"fetched", run.PapersFetched,
		"matched", run.PapersMatched,
		"relevant", run.PapersRelevant,
		"report", run.ReportPath,
	)
	return nil
}

func (p *Pipeline) execute(ctx context.Context, run *models.Run, opts Options) error {
	stamp := opts.Now.UTC().Format(stampLayout)

	papers, err := p.Fetch(ctx, opts)
	if err != nil {
		return err
	}
	run.PapersFetched = len(papers)
	metrics.RecordPapers("fetched", len(papers))

	ids := p.savePapers(ctx, papers)
	if err := WriteJSONL(filepath.Join(p.cfg.Output.AllDir(), stamp+".jsonl"), papers); err != nil {
		slog.Warn("failed to write fetched papers", "error", err)
	}

	matched := filter.Keywords(p.cfg.KeywordFilter.Keywords).Filter(papers)
	run.PapersMatched = len(matched)
	metrics.RecordPapers("matched", len(matched))
	slog.Info("keyword filter applied", "fetched", len(papers), "matched", len(matched))

	relevant, err := p.Classify(ctx, matched, ids)
	if err != nil {
		return err
	}
	run.PapersRelevant = len(relevant)
	metrics.RecordPapers("relevant", len(relevant))

	if err := WriteJSONL(filepath.Join(p.cfg.Output.FilteredDir(), stamp+".jsonl"), relevant); err != nil {
		slog.Warn("failed to write filtered papers", "error", err)
	}

	report, err := p.ranker.Rank(ctx, relevant, p.oracle)
	if err != nil {
		return fmt.Errorf("ranking papers: %w", err)
	}
	if report.FailedCalls > 0 {
		slog.Warn("some ranking calls failed", "run_id", run.ID, "failed", report.FailedCalls)
	}
	run.Report = report.String()

	path := filepath.Join(p.cfg.Output.RankedDir(), stamp+".md")
	if err := WriteReport(path, run.Report); err != nil {
		return err
	}
	run.ReportPath = path
	return nil
}

// Fetch returns the papers for the window in opts, falling back to the HTML
// listing when the API fails, and fills empty abstracts from the abs pages.
func (p *Pipeline) Fetch(ctx context.Context, opts Options) ([]models.Paper, error) {
	opts = p.withDefaults(opts)

	papers, err := p.source.FetchRecent(ctx, feeds.FetchOptions{
		Category: opts.Category,
		Days:     opts.Days,
		Limit:    opts.Limit,
		NoLimit:  opts.NoLimit,
		Now:      opts.Now,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("arxiv api failed, falling back to listing page", "category", opts.Category, "error", err)

		scraped, serr := p.source.ScrapeListing(ctx, opts.Category)
		if serr != nil {
			return nil, fmt.Errorf("fetching papers: %w", errors.Join(err, serr))
		}
		papers = scraped
		if !opts.NoLimit && opts.Limit > 0 && len(papers) > opts.Limit {
			papers = papers[:opts.Limit]
		}
	}

	if n := p.source.FillMissingAbstracts(ctx, papers); n > 0 {
		slog.Info("filled missing abstracts", "count", n)
	}
	slog.Info("fetched papers", "category", opts.Category, "count", len(papers))
	return papers, nil
}

// savePapers upserts every paper and returns the stored IDs keyed by link.
// Failures are logged; the paper then simply has no stored verdict.
func (p *Pipeline) savePapers(ctx context.Context, papers []models.Paper) map[string]int64 {
	ids := make(map[string]int64, len(papers))
	for _, paper := range papers {
		id, err := p.store.UpsertPaper(ctx, paper)
		if err != nil {
			slog.Warn("failed to save paper", "link", paper.Link, "error", err)
			continue
		}
		ids[paper.Link] = id
	}
	return ids
}

// Classify returns the relevant papers in input order. Verdicts stored by
// the current classification model are reused; every other paper is sent
// to the oracle and its verdict persisted. ids maps links to stored paper
// IDs; papers missing from it are saved first.
func (p *Pipeline) Classify(ctx context.Context, papers []models.Paper, ids map[string]int64) ([]models.Paper, error) {
	if ids == nil {
		ids = p.savePapers(ctx, papers)
	}

	model := p.oracle.ClassificationModel()
	known := make(map[string]bool)
	var pending []models.Paper
	for _, paper := range papers {
		if _, ok := ids[paper.Link]; !ok {
			if id, err := p.store.UpsertPaper(ctx, paper); err == nil {
				ids[paper.Link] = id
			}
		}

		stored, err := p.store.GetPaperByLink(ctx, paper.Link)
		if err == nil && stored.Classification != nil && stored.ModelUsed == model {
			known[paper.Link] = stored.Classification.Relevant
			continue
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("failed to look up stored verdict", "link", paper.Link, "error", err)
		}
		pending = append(pending, paper)
	}
	slog.Info("classifying papers", "reused", len(known), "pending", len(pending), "model", model)

	rel := &filter.Relevance{
		Classifier:  p.oracle,
		Concurrency: p.cfg.Classification.Concurrency,
		OnVerdict: func(v filter.Verdict) {
			// Transport failures and timeouts are retried next run.
			if v.Err != nil && !errors.Is(v.Err, ai.ErrMalformedResponse) {
				return
			}
			id, ok := ids[v.Paper.Link]
			if !ok {
				return
			}
			if err := p.store.UpsertClassification(ctx, id, v.Classification, model); err != nil {
				slog.Warn("failed to save classification", "link", v.Paper.Link, "error", err)
			}
		},
	}
	fresh, err := rel.Filter(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("classifying papers: %w", err)
	}
	for _, paper := range fresh {
		known[paper.Link] = true
	}

	var relevant []models.Paper
	for _, paper := range papers {
		if known[paper.Link] {
			relevant = append(relevant, paper)
		}
	}
	return relevant, nil
}

// WriteReport writes a ranked report to path, creating parent directories.
func WriteReport(path, report string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(report+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
