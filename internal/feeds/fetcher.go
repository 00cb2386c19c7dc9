// Package feeds pulls candidate papers from arXiv: the Atom query API first,
// the HTML listing page as a fallback, and abstract pages for enrichment.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/hoanghai1803/paperfeed/internal/models"
	"github.com/mmcdole/gofeed"
)

const (
	httpTimeout      = 30 * time.Second
	defaultPageSize  = 100
	defaultInterval  = 3 * time.Second
	defaultAPIURL    = "https://export.arxiv.org/api/query"
	defaultSiteURL   = "https://arxiv.org"
	defaultCategory  = "cs.AI"
	maxAbstractWords = 600
)

// ErrPaperNotFound is returned by FetchByID when arXiv has no such paper.
var ErrPaperNotFound = errors.New("paper not found")

// FetcherConfig configures a Fetcher. Zero values select arXiv's public
// endpoints, a page size of 100 and one request per host every 3 seconds.
// A negative MinInterval disables rate limiting.
type FetcherConfig struct {
	APIURL      string
	SiteURL     string
	PageSize    int
	MinInterval time.Duration
}

// FetchOptions controls which papers FetchRecent returns.
type FetchOptions struct {
	Category string
	// Days selects papers published on or after midnight UTC this many days
	// before Now.
	Days    int
	Limit   int
	NoLimit bool
	// Now anchors the cutoff; zero means time.Now().
	Now time.Time
}

// Fetcher talks to arXiv with per-host rate limiting.
type Fetcher struct {
	client   *http.Client
	apiURL   string
	siteURL  string
	pageSize int
	limiter  *hostLimiter
}

// NewFetcher creates a Fetcher with a custom HTTP client configured with a
// 30-second timeout and the paperfeed user agent.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: httpTimeout,
			Transport: &userAgentTransport{
				base: http.DefaultTransport,
			},
		},
		apiURL:   cfg.APIURL,
		siteURL:  cfg.SiteURL,
		pageSize: cfg.PageSize,
	}
	if f.apiURL == "" {
		f.apiURL = defaultAPIURL
	}
	if f.siteURL == "" {
		f.siteURL = defaultSiteURL
	}
	if f.pageSize <= 0 {
		f.pageSize = defaultPageSize
	}
	interval := cfg.MinInterval
	if interval == 0 {
		interval = defaultInterval
	}
	f.limiter = newHostLimiter(interval)
	return f
}

// userAgentTransport wraps an http.RoundTripper to inject a custom User-Agent
// header on every request.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", "paperfeed/1.0 (+https://github.com/hoanghai1803/paperfeed)")
	req.Header.Set("Accept", "application/atom+xml,text/html;q=0.9,*/*;q=0.8")
	return t.base.RoundTrip(req)
}

// Cutoff returns midnight UTC of the day that lies days before now.
func Cutoff(now time.Time, days int) time.Time {
	d := now.UTC().AddDate(0, 0, -days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// FetchRecent pages through the category newest first until entries fall
// before the cutoff, then returns the papers sorted newest first and capped
// at opts.Limit unless opts.NoLimit is set. A failure on a later page keeps
// the papers already collected.
func (f *Fetcher) FetchRecent(ctx context.Context, opts FetchOptions) ([]models.Paper, error) {
	category := opts.Category
	if category == "" {
		category = defaultCategory
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := Cutoff(now, opts.Days)

	slog.Info("fetching arXiv papers", "category", category, "cutoff", cutoff.Format(time.RFC3339))

	var papers []models.Paper
	for start := 0; ; start += f.pageSize {
		feed, err := f.query(ctx, url.Values{
			"search_query": {"cat:" + category},
			"sortBy":       {"submittedDate"},
			"sortOrder":    {"descending"},
			"start":        {strconv.Itoa(start)},
			"max_results":  {strconv.Itoa(f.pageSize)},
		})
		if err != nil {
			if start == 0 || ctx.Err() != nil {
				return nil, fmt.Errorf("fetching %s page at %d: %w", category, start, err)
			}
			slog.Warn("arXiv paging stopped early", "start", start, "collected", len(papers), "error", err)
			break
		}

		page, reachedCutoff := parseEntries(feed, cutoff)
		papers = append(papers, page...)

		slog.Debug("fetched arXiv page", "start", start, "entries", len(feed.Items), "kept", len(page))

		if reachedCutoff || len(feed.Items) < f.pageSize {
			break
		}
		if !opts.NoLimit && opts.Limit > 0 && len(papers) >= opts.Limit {
			break
		}
	}

	slices.SortStableFunc(papers, func(a, b models.Paper) int {
		return b.Published.Compare(a.Published)
	})
	if !opts.NoLimit && opts.Limit > 0 && len(papers) > opts.Limit {
		papers = papers[:opts.Limit]
	}

	slog.Info("fetched arXiv papers", "category", category, "count", len(papers))
	return papers, nil
}

// FetchByID returns a single paper by arXiv id, e.g. "2509.00698".
func (f *Fetcher) FetchByID(ctx context.Context, id string) (models.Paper, error) {
	feed, err := f.query(ctx, url.Values{
		"id_list":     {id},
		"max_results": {"1"},
	})
	if err != nil {
		return models.Paper{}, fmt.Errorf("fetching paper %s: %w", id, err)
	}

	for _, item := range feed.Items {
		if isErrorEntry(item) {
			continue
		}
		p := paperFromItem(item)
		if p.Published.IsZero() {
			p.Published = time.Now().UTC()
		}
		return p, nil
	}
	return models.Paper{}, fmt.Errorf("%w: %s", ErrPaperNotFound, id)
}

// query runs one API request and parses the Atom response.
func (f *Fetcher) query(ctx context.Context, params url.Values) (*gofeed.Feed, error) {
	u := f.apiURL + "?" + params.Encode()
	if err := f.limiter.Wait(ctx, u); err != nil {
		return nil, err
	}

	fp := gofeed.NewParser()
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(u, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %q: %w", u, err)
	}
	return feed, nil
}
