package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hoanghai1803/paperfeed/internal/models"
)

// ScrapeListing reads arXiv's "new submissions" HTML page for category. It is
// the fallback when the query API is unavailable. The listing carries no
// timestamps, so every paper is stamped with the time of the scrape.
func (f *Fetcher) ScrapeListing(ctx context.Context, category string) ([]models.Paper, error) {
	if category == "" {
		category = defaultCategory
	}
	pageURL := strings.TrimRight(f.siteURL, "/") + "/list/" + category + "/new"

	if err := f.limiter.Wait(ctx, pageURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %q: %w", pageURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %q: HTTP %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML from %q: %w", pageURL, err)
	}

	papers := parseListing(doc, f.siteURL, category, time.Now().UTC())
	slog.Info("scraped arXiv listing", "category", category, "count", len(papers))
	return papers, nil
}

// parseListing extracts papers from the dt/dd pairs of an arXiv listing:
//
//	dt  a[href^="/abs/"]       -> arXiv id
//	dd  .list-title            -> "Title: ..."
//	dd  p.mathjax              -> abstract
//
// Entries without an id are skipped.
func parseListing(doc *goquery.Document, siteURL, category string, stamp time.Time) []models.Paper {
	base := strings.TrimRight(siteURL, "/")
	seen := make(map[string]struct{})

	var papers []models.Paper
	doc.Find("dl > dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.Next()

		id := ""
		if href, ok := dt.Find(`a[href*="/abs/"]`).First().Attr("href"); ok {
			id = arxivID(href)
		}
		if id == "" {
			id = strings.TrimPrefix(strings.TrimSpace(dt.Find(`a[href*="/abs/"]`).First().Text()), "arXiv:")
		}
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		title := dd.Find(".list-title").First().Text()
		title = strings.TrimSpace(title)
		title = strings.TrimPrefix(title, "Title:")

		abstract := dd.Find("p.mathjax").First().Text()
		abstract = strings.TrimPrefix(strings.TrimSpace(abstract), "Abstract:")

		papers = append(papers, models.Paper{
			ArxivID:    id,
			Title:      normalizeSpace(title),
			Link:       base + "/pdf/" + id,
			Abstract:   normalizeSpace(abstract),
			Published:  stamp,
			Categories: []string{category},
		})
	})
	return papers
}
