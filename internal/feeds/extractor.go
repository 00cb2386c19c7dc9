package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/hoanghai1803/paperfeed/internal/models"
)

// browserHeaders sets request headers for readability fetches.
func browserHeaders(r *http.Request) {
	r.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	r.Header.Set("User-Agent", "paperfeed/1.0 (+https://github.com/hoanghai1803/paperfeed)")
}

// ExtractAbstract fetches an arXiv abstract page and returns its readable
// summary. The page excerpt is preferred; the main text is used when no
// excerpt exists. The result is truncated to a few hundred words.
func (f *Fetcher) ExtractAbstract(ctx context.Context, absURL string) (string, error) {
	if err := f.limiter.Wait(ctx, absURL); err != nil {
		return "", err
	}

	article, err := readability.FromURL(absURL, httpTimeout, browserHeaders)
	if err != nil {
		return "", fmt.Errorf("extracting abstract from %q: %w", absURL, err)
	}

	text := strings.TrimPrefix(strings.TrimSpace(article.Excerpt), "Abstract:")
	if strings.TrimSpace(text) == "" {
		text = article.TextContent
	}
	return truncateWords(normalizeSpace(text), maxAbstractWords), nil
}

// AbsURL maps any arXiv paper link to its abstract page on siteURL.
func (f *Fetcher) AbsURL(link string) string {
	id := arxivID(link)
	if id == "" {
		return link
	}
	return strings.TrimRight(f.siteURL, "/") + "/abs/" + id
}

// truncateWords returns the first maxWords whitespace-delimited words from s.
// If s contains fewer than maxWords words, it is returned unchanged.
func truncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ")
}

// FillMissingAbstracts fetches the abstract page for every paper whose
// abstract is empty and returns how many were filled. Failures are logged
// and leave the paper unchanged.
func (f *Fetcher) FillMissingAbstracts(ctx context.Context, papers []models.Paper) int {
	filled := 0
	for i := range papers {
		if papers[i].Abstract != "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		text, err := f.ExtractAbstract(ctx, f.AbsURL(papers[i].Link))
		if err != nil {
			slog.Warn("could not fill missing abstract", "link", papers[i].Link, "error", err)
			continue
		}
		papers[i].Abstract = text
		filled++
	}
	return filled
}
