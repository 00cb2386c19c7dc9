package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hoanghai1803/paperfeed/internal/ai"
	"github.com/hoanghai1803/paperfeed/internal/config"
	"github.com/hoanghai1803/paperfeed/internal/feeds"
	"github.com/hoanghai1803/paperfeed/internal/models"
	"github.com/hoanghai1803/paperfeed/internal/storage"
)

type fakeSource struct {
	papers    []models.Paper
	err       error
	scraped   []models.Paper
	scrapeErr error
	onFetch   func()
	// fetching, when set, is closed once FetchRecent is entered, which then
	// blocks until ctx is cancelled.
	fetching chan struct{}

	mu       sync.Mutex
	lastOpts feeds.FetchOptions
	scrapes  int
}

func (f *fakeSource) FetchRecent(ctx context.Context, opts feeds.FetchOptions) ([]models.Paper, error) {
	f.mu.Lock()
	f.lastOpts = opts
	f.mu.Unlock()
	if f.fetching != nil {
		close(f.fetching)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.onFetch != nil {
		f.onFetch()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Paper(nil), f.papers...), nil
}

func (f *fakeSource) ScrapeListing(ctx context.Context, category string) ([]models.Paper, error) {
	f.mu.Lock()
	f.scrapes++
	f.mu.Unlock()
	if f.scrapeErr != nil {
		return nil, f.scrapeErr
	}
	return append([]models.Paper(nil), f.scraped...), nil
}

func (f *fakeSource) FillMissingAbstracts(ctx context.Context, papers []models.Paper) int {
	return 0
}

// fakeOracle marks papers relevant when their title contains "Relevant" and
// fails with a timeout when it contains "Slow".
type fakeOracle struct {
	model string

	mu         sync.Mutex
	classified []string
	selects    int
}

func (f *fakeOracle) Classify(ctx context.Context, p models.Paper) (models.Classification, error) {
	f.mu.Lock()
	f.classified = append(f.classified, p.Title)
	f.mu.Unlock()

	if strings.Contains(p.Title, "Slow") {
		return models.Classification{}, fmt.Errorf("classifying %q: %w", p.Title, ai.ErrTimeout)
	}
	if strings.Contains(p.Title, "Garbled") {
		return models.Classification{Reason: "Unparseable model output"}, ai.ErrMalformedResponse
	}
	relevant := strings.Contains(p.Title, "Relevant")
	return models.Classification{Relevant: relevant, Reason: "fake verdict"}, nil
}

func (f *fakeOracle) Select(ctx context.Context, batchText string, k int) (string, error) {
	f.mu.Lock()
	f.selects++
	f.mu.Unlock()
	first, _, _ := strings.Cut(batchText, "\n")
	return fmt.Sprintf("<think>hmm</think>1. %s", first), nil
}

func (f *fakeOracle) ClassificationModel() string { return f.model }

func (f *fakeOracle) classifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.classified)
}

func paper(n int, title string) models.Paper {
	return models.Paper{
		ArxivID:   fmt.Sprintf("2503.%05d", n),
		Title:     title,
		Link:      fmt.Sprintf("https://arxiv.org/pdf/2503.%05d", n),
		Abstract:  "An interpretability study.",
		Published: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestPipeline(t *testing.T, src *fakeSource, oracle *fakeOracle) (*Pipeline, *storage.Store, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.KeywordFilter.Keywords = []string{"interpretability"}
	store := newTestStore(t)
	return New(cfg, store, src, oracle), store, cfg
}

var testNow = time.Date(2025, 3, 11, 9, 30, 0, 0, time.UTC)

func TestRun_EndToEnd(t *testing.T) {
	src := &fakeSource{papers: []models.Paper{
		paper(1, "Relevant Circuits"),
		paper(2, "Unrelated Benchmarks"),
		{Title: "Robot Grasping", Link: "https://arxiv.org/pdf/2503.00003", Abstract: "Manipulation."},
	}}
	oracle := &fakeOracle{model: "llama3.2"}
	p, store, cfg := newTestPipeline(t, src, oracle)

	run, err := p.Run(context.Background(), Options{Now: testNow})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if run.Status != models.RunSucceeded {
		t.Errorf("Status = %q, want %q", run.Status, models.RunSucceeded)
	}
	if run.PapersFetched != 3 || run.PapersMatched != 2 || run.PapersRelevant != 1 {
		t.Errorf("counters = %d/%d/%d, want 3/2/1", run.PapersFetched, run.PapersMatched, run.PapersRelevant)
	}
	if src.lastOpts.Category != "cs.AI" || src.lastOpts.Days != 1 || src.lastOpts.Limit != 200 {
		t.Errorf("fetch options = %+v, want config defaults", src.lastOpts)
	}
	if got := oracle.classifyCount(); got != 2 {
		t.Errorf("classify calls = %d, want 2 (keyword misses are never classified)", got)
	}

	wantReport := filepath.Join(cfg.Output.RankedDir(), "2025-03-11_09-30-00.md")
	if run.ReportPath != wantReport {
		t.Errorf("ReportPath = %q, want %q", run.ReportPath, wantReport)
	}
	data, err := os.ReadFile(wantReport)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(data), "1. Relevant Circuits") {
		t.Errorf("report missing winner, got %q", data)
	}
	if strings.Contains(string(data), "<think>") {
		t.Error("report still contains a think block")
	}

	all, err := ReadJSONL(filepath.Join(cfg.Output.AllDir(), "2025-03-11_09-30-00.jsonl"))
	if err != nil {
		t.Fatalf("reading all papers: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all/ has %d papers, want 3", len(all))
	}
	filtered, err := ReadJSONL(filepath.Join(cfg.Output.FilteredDir(), "2025-03-11_09-30-00.jsonl"))
	if err != nil {
		t.Fatalf("reading filtered papers: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Title != "Relevant Circuits" {
		t.Errorf("filtered/ = %+v, want only Relevant Circuits", filtered)
	}

	stored, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if stored.Status != models.RunSucceeded || stored.Report != run.Report {
		t.Errorf("stored run = %s with report %q", stored.Status, stored.Report)
	}

	sp, err := store.GetPaperByLink(context.Background(), "https://arxiv.org/pdf/2503.00001")
	if err != nil {
		t.Fatalf("GetPaperByLink() error: %v", err)
	}
	if sp.Classification == nil || !sp.Classification.Relevant || sp.ModelUsed != "llama3.2" {
		t.Errorf("stored verdict = %+v from %q", sp.Classification, sp.ModelUsed)
	}
}

func TestRun_ReusesStoredVerdicts(t *testing.T) {
	src := &fakeSource{papers: []models.Paper{
		paper(1, "Relevant Circuits"),
		paper(2, "Unrelated Benchmarks"),
	}}
	oracle := &fakeOracle{model: "llama3.2"}
	p, _, _ := newTestPipeline(t, src, oracle)
	ctx := context.Background()

	if _, err := p.Run(ctx, Options{Now: testNow}); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	if got := oracle.classifyCount(); got != 2 {
		t.Fatalf("first run classify calls = %d, want 2", got)
	}

	run, err := p.Run(ctx, Options{Now: testNow.Add(time.Hour)})
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if got := oracle.classifyCount(); got != 2 {
		t.Errorf("second run made %d new classify calls, want 0", got-2)
	}
	if run.PapersRelevant != 1 {
		t.Errorf("PapersRelevant = %d, want 1 from stored verdicts", run.PapersRelevant)
	}

	// A different classification model invalidates stored verdicts.
	oracle.model = "qwen3"
	if _, err := p.Run(ctx, Options{Now: testNow.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("third Run() error: %v", err)
	}
	if got := oracle.classifyCount(); got != 4 {
		t.Errorf("classify calls after model change = %d, want 4", got)
	}
}

func TestRun_FailedCallsPersistence(t *testing.T) {
	src := &fakeSource{papers: []models.Paper{
		paper(1, "Slow Interpretability"),
		paper(2, "Garbled Interpretability"),
	}}
	oracle := &fakeOracle{model: "llama3.2"}
	p, store, _ := newTestPipeline(t, src, oracle)
	ctx := context.Background()

	run, err := p.Run(ctx, Options{Now: testNow})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if run.PapersRelevant != 0 {
		t.Errorf("PapersRelevant = %d, want 0", run.PapersRelevant)
	}
	if !strings.Contains(run.Report, "No papers to rank.") {
		t.Errorf("report = %q, want the empty-pool notice", run.Report)
	}

	slow, err := store.GetPaperByLink(ctx, "https://arxiv.org/pdf/2503.00001")
	if err != nil {
		t.Fatalf("GetPaperByLink() error: %v", err)
	}
	if slow.Classification != nil {
		t.Errorf("timed-out verdict was stored: %+v", slow.Classification)
	}

	garbled, err := store.GetPaperByLink(ctx, "https://arxiv.org/pdf/2503.00002")
	if err != nil {
		t.Fatalf("GetPaperByLink() error: %v", err)
	}
	if garbled.Classification == nil || garbled.Classification.Relevant {
		t.Errorf("unparseable verdict = %+v, want stored as not relevant", garbled.Classification)
	}
}

func TestRun_FallsBackToListing(t *testing.T) {
	src := &fakeSource{
		err: errors.New("api down"),
		scraped: []models.Paper{
			paper(1, "Relevant Probing"),
			paper(2, "Relevant Steering"),
			paper(3, "Relevant Features"),
		},
	}
	oracle := &fakeOracle{model: "llama3.2"}
	p, _, _ := newTestPipeline(t, src, oracle)

	run, err := p.Run(context.Background(), Options{Now: testNow, Limit: 2})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if src.scrapes != 1 {
		t.Errorf("scrapes = %d, want 1", src.scrapes)
	}
	if run.PapersFetched != 2 {
		t.Errorf("PapersFetched = %d, want 2 after applying the limit", run.PapersFetched)
	}
}

func TestRun_FetchFailureFailsRun(t *testing.T) {
	src := &fakeSource{err: errors.New("api down"), scrapeErr: errors.New("listing down")}
	oracle := &fakeOracle{model: "llama3.2"}
	p, store, _ := newTestPipeline(t, src, oracle)

	run, err := p.Run(context.Background(), Options{Now: testNow})
	if err == nil {
		t.Fatal("Run() expected error, got nil")
	}
	if run == nil {
		t.Fatal("Run() returned nil run after creating it")
	}
	if run.Status != models.RunFailed {
		t.Errorf("Status = %q, want %q", run.Status, models.RunFailed)
	}
	if !strings.Contains(run.Error, "api down") || !strings.Contains(run.Error, "listing down") {
		t.Errorf("Error = %q, want both causes", run.Error)
	}

	stored, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if stored.Status != models.RunFailed || stored.FinishedAt == nil {
		t.Errorf("stored run = %+v, want failed and finished", stored)
	}
	if p.Running() {
		t.Error("pipeline still marked running after a failed run")
	}
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeSource{}, &fakeOracle{model: "llama3.2"})

	if !p.acquire() {
		t.Fatal("acquire() on idle pipeline returned false")
	}
	defer p.release()

	if _, err := p.Run(context.Background(), Options{}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Run() error = %v, want ErrRunInProgress", err)
	}
	if !p.Running() {
		t.Error("Running() = false while a run holds the lock")
	}
}

func TestRun_CancelledStillRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		papers:  []models.Paper{paper(1, "Relevant Circuits")},
		onFetch: cancel,
	}
	p, store, _ := newTestPipeline(t, src, &fakeOracle{model: "llama3.2"})

	run, err := p.Run(ctx, Options{Now: testNow})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if src.scrapes != 0 {
		t.Error("listing fallback ran after cancellation")
	}

	stored, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if stored.Status != models.RunFailed || stored.FinishedAt == nil {
		t.Errorf("stored run = %s finished %v, want failed and finished", stored.Status, stored.FinishedAt)
	}
}

func TestNew_RankerFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Ranking.BatchSize = 7
	cfg.Ranking.FirstRoundK = 3
	cfg.Ranking.FinalRoundK = 4
	cfg.Ranking.Concurrency = 2
	zero := 0
	cfg.Ranking.MergeThreshold = &zero

	p := New(cfg, nil, &fakeSource{}, &fakeOracle{})
	r := p.ranker
	if r.BatchSize != 7 || r.FirstRoundK != 3 || r.FinalRoundK != 4 || r.Concurrency != 2 || r.MergeThreshold != 0 {
		t.Errorf("ranker = %+v, want values from config", *r)
	}
}

func TestStart_RunsInBackground(t *testing.T) {
	src := &fakeSource{papers: []models.Paper{paper(1, "Relevant Circuits")}}
	p, store, _ := newTestPipeline(t, src, &fakeOracle{model: "llama3.2"})

	run, err := p.Start(context.Background(), Options{Now: testNow})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if run.Status != models.RunRunning {
		t.Errorf("returned status = %q, want %q", run.Status, models.RunRunning)
	}

	deadline := time.Now().Add(5 * time.Second)
	for p.Running() {
		if time.Now().After(deadline) {
			t.Fatal("background run did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stored, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if stored.Status != models.RunSucceeded || stored.PapersRelevant != 1 {
		t.Errorf("stored run = %s with %d relevant, want succeeded with 1", stored.Status, stored.PapersRelevant)
	}
}

func TestShutdown_CancelsAndWaitsForBackgroundRun(t *testing.T) {
	src := &fakeSource{fetching: make(chan struct{})}
	p, store, _ := newTestPipeline(t, src, &fakeOracle{model: "llama3.2"})

	// API-triggered runs detach from the request context.
	run, err := p.Start(context.WithoutCancel(context.Background()), Options{Now: testNow})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	<-src.fetching

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	// Shutdown returns only after the run has been recorded.
	if p.Running() {
		t.Error("pipeline still running after Shutdown")
	}
	stored, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if stored.Status != models.RunFailed || stored.FinishedAt == nil {
		t.Errorf("stored run = %s finished %v, want failed and finished", stored.Status, stored.FinishedAt)
	}
	if !strings.Contains(stored.Error, context.Canceled.Error()) {
		t.Errorf("stored error = %q, want it to mention cancellation", stored.Error)
	}
}

func TestShutdown_Idle(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeSource{}, &fakeOracle{model: "llama3.2"})

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on idle pipeline error: %v", err)
	}
}

func TestShutdown_DeadlineExceeded(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeSource{}, &fakeOracle{model: "llama3.2"})

	// A tracked goroutine that ignores cancellation.
	release := make(chan struct{})
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		<-release
	}()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want context.DeadlineExceeded", err)
	}
}
