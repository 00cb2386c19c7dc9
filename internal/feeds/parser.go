package feeds

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/hoanghai1803/paperfeed/internal/models"
	"github.com/mmcdole/gofeed"
)

var (
	htmlTagPattern = regexp.MustCompile("<[^>]*>")
	versionPattern = regexp.MustCompile(`v\d+$`)
)

// parseEntries converts one page of API results into papers. Entries are
// expected newest first: the first entry published before cutoff stops the
// scan and reachedCutoff is reported. Entries without a published date are
// skipped.
func parseEntries(feed *gofeed.Feed, cutoff time.Time) (papers []models.Paper, reachedCutoff bool) {
	for _, item := range feed.Items {
		if isErrorEntry(item) {
			continue
		}
		if item.PublishedParsed == nil {
			continue
		}
		if item.PublishedParsed.Before(cutoff) {
			return papers, true
		}
		papers = append(papers, paperFromItem(item))
	}
	return papers, false
}

// paperFromItem maps an Atom entry to a Paper. The link prefers the PDF
// and falls back to the entry id.
func paperFromItem(item *gofeed.Item) models.Paper {
	p := models.Paper{
		ArxivID:  arxivID(item.GUID),
		Title:    normalizeSpace(item.Title),
		Link:     pdfLink(item),
		Abstract: normalizeSpace(stripHTML(item.Description)),
	}
	if p.Link == "" {
		p.Link = item.GUID
	}
	if p.ArxivID == "" {
		p.ArxivID = arxivID(p.Link)
	}
	if item.PublishedParsed != nil {
		p.Published = item.PublishedParsed.UTC()
	}
	if len(item.Categories) > 0 {
		p.Categories = append([]string(nil), item.Categories...)
	}
	return p
}

// pdfLink returns the entry's PDF link. The generic translator only keeps
// alternate links, so when none points at a PDF it is derived from the abs
// URL in the entry id.
func pdfLink(item *gofeed.Item) string {
	for _, l := range item.Links {
		if strings.Contains(l, "/pdf/") {
			return l
		}
	}
	if strings.Contains(item.GUID, "/abs/") {
		return strings.Replace(item.GUID, "/abs/", "/pdf/", 1)
	}
	return ""
}

// isErrorEntry reports the placeholder entry arXiv returns for a bad query.
func isErrorEntry(item *gofeed.Item) bool {
	return strings.Contains(item.GUID, "/api/errors")
}

// arxivID extracts the version-less identifier from an abs or pdf URL, e.g.
// "http://arxiv.org/abs/2501.01234v2" -> "2501.01234".
func arxivID(link string) string {
	for _, marker := range []string{"/abs/", "/pdf/"} {
		if _, after, ok := strings.Cut(link, marker); ok {
			after = strings.TrimSuffix(after, ".pdf")
			return versionPattern.ReplaceAllString(after, "")
		}
	}
	return ""
}

// normalizeSpace collapses the line wrapping arXiv applies to titles and
// abstracts.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripHTML removes HTML tags from s and unescapes HTML entities.
func stripHTML(s string) string {
	clean := htmlTagPattern.ReplaceAllString(s, "")
	return html.UnescapeString(clean)
}
