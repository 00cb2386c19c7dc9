package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// atomEntry is one fixture paper for the fake arXiv API.
type atomEntry struct {
	id        string
	title     string
	summary   string
	published time.Time
}

func atomFeed(entries []atomEntry) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <title>arXiv Query</title>
`)
	for _, e := range entries {
		fmt.Fprintf(&b, `  <entry>
    <id>http://arxiv.org/abs/%[1]sv1</id>
    <published>%[2]s</published>
    <updated>%[2]s</updated>
    <title>%[3]s</title>
    <summary>%[4]s</summary>
    <link href="http://arxiv.org/abs/%[1]sv1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/%[1]sv1" rel="related" type="application/pdf"/>
    <category term="cs.AI" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
`, e.id, e.published.Format(time.RFC3339), e.title, e.summary)
	}
	b.WriteString("</feed>\n")
	return b.String()
}

// fakeArxiv serves entries newest first, honouring start/max_results.
type fakeArxiv struct {
	mu       sync.Mutex
	entries  []atomEntry
	requests []string
	failFrom int // fail requests with start >= failFrom when > 0
}

func (f *fakeArxiv) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f.mu.Lock()
	f.requests = append(f.requests, r.URL.RawQuery)
	f.mu.Unlock()

	if id := q.Get("id_list"); id != "" {
		var found []atomEntry
		for _, e := range f.entries {
			if e.id == id {
				found = append(found, e)
			}
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomFeed(found)))
		return
	}

	start, _ := strconv.Atoi(q.Get("start"))
	size, _ := strconv.Atoi(q.Get("max_results"))
	if f.failFrom > 0 && start >= f.failFrom {
		http.Error(w, "rate limited", http.StatusServiceUnavailable)
		return
	}

	end := min(start+size, len(f.entries))
	var page []atomEntry
	if start < len(f.entries) {
		page = f.entries[start:end]
	}
	w.Header().Set("Content-Type", "application/atom+xml")
	w.Write([]byte(atomFeed(page)))
}

func (f *fakeArxiv) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func makeEntries(n int, newest time.Time, step time.Duration) []atomEntry {
	entries := make([]atomEntry, n)
	for i := range entries {
		entries[i] = atomEntry{
			id:        fmt.Sprintf("2503.%05d", i),
			title:     fmt.Sprintf("Paper %d", i),
			summary:   fmt.Sprintf("Abstract %d", i),
			published: newest.Add(-time.Duration(i) * step),
		}
	}
	return entries
}

func newTestFetcher(apiURL string, pageSize int) *Fetcher {
	return NewFetcher(FetcherConfig{APIURL: apiURL, SiteURL: apiURL, PageSize: pageSize, MinInterval: -1})
}

func TestFetchRecent_PagesUntilCutoff(t *testing.T) {
	now := time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)
	// Papers 90 minutes apart from 11:00 on the 11th; the cutoff is
	// midnight on the 10th.
	api := &fakeArxiv{entries: makeEntries(60, now.Add(-time.Hour), 90*time.Minute)}
	srv := httptest.NewServer(api)
	defer srv.Close()

	f := newTestFetcher(srv.URL, 10)
	papers, err := f.FetchRecent(context.Background(), FetchOptions{Category: "cs.AI", Days: 1, NoLimit: true, Now: now})
	if err != nil {
		t.Fatalf("FetchRecent() unexpected error: %v", err)
	}

	requests := api.seen()
	cutoff := Cutoff(now, 1)
	for _, p := range papers {
		if p.Published.Before(cutoff) {
			t.Errorf("paper %q published %v is before cutoff %v", p.Title, p.Published, cutoff)
		}
	}
	// 11:00 on the 11th back to midnight on the 10th is 35h: entries 0..23.
	if len(papers) != 24 {
		t.Errorf("got %d papers, want 24", len(papers))
	}
	if len(requests) != 3 {
		t.Fatalf("made %d requests, want 3 pages", len(requests))
	}
	if !strings.Contains(requests[0], "search_query=cat%3Acs.AI") ||
		!strings.Contains(requests[0], "sortBy=submittedDate") ||
		!strings.Contains(requests[0], "sortOrder=descending") {
		t.Errorf("unexpected query %q", requests[0])
	}
	for i := 1; i < len(papers); i++ {
		if papers[i].Published.After(papers[i-1].Published) {
			t.Fatalf("papers not sorted newest first at %d", i)
		}
	}
	if papers[0].Link != "http://arxiv.org/pdf/2503.00000v1" {
		t.Errorf("Link = %q, want the PDF link", papers[0].Link)
	}
}

func TestFetchRecent_Limit(t *testing.T) {
	now := time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)
	api := &fakeArxiv{entries: makeEntries(40, now.Add(-time.Hour), time.Minute)}
	srv := httptest.NewServer(api)
	defer srv.Close()

	papers, err := newTestFetcher(srv.URL, 10).FetchRecent(context.Background(), FetchOptions{Days: 1, Limit: 15, Now: now})
	if err != nil {
		t.Fatalf("FetchRecent() unexpected error: %v", err)
	}
	if len(papers) != 15 {
		t.Fatalf("got %d papers, want 15", len(papers))
	}
	if papers[0].Title != "Paper 0" || papers[14].Title != "Paper 14" {
		t.Errorf("limit should keep the newest papers, got %q..%q", papers[0].Title, papers[14].Title)
	}
	if n := len(api.seen()); n != 2 {
		t.Errorf("made %d requests, want 2 (stop once the limit is reached)", n)
	}
}

func TestFetchRecent_FirstPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL, 10).FetchRecent(context.Background(), FetchOptions{Days: 1})
	if err == nil {
		t.Fatal("FetchRecent() expected error, got nil")
	}
}

func TestFetchRecent_LaterPageFailureKeepsResults(t *testing.T) {
	now := time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)
	api := &fakeArxiv{entries: makeEntries(40, now.Add(-time.Hour), time.Minute), failFrom: 10}
	srv := httptest.NewServer(api)
	defer srv.Close()

	papers, err := newTestFetcher(srv.URL, 10).FetchRecent(context.Background(), FetchOptions{Days: 1, NoLimit: true, Now: now})
	if err != nil {
		t.Fatalf("FetchRecent() unexpected error: %v", err)
	}
	if len(papers) != 10 {
		t.Errorf("got %d papers, want the 10 from the first page", len(papers))
	}
}

func TestFetchByID(t *testing.T) {
	now := time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)
	api := &fakeArxiv{entries: makeEntries(3, now, time.Hour)}
	srv := httptest.NewServer(api)
	defer srv.Close()

	f := newTestFetcher(srv.URL, 10)

	p, err := f.FetchByID(context.Background(), "2503.00001")
	if err != nil {
		t.Fatalf("FetchByID() unexpected error: %v", err)
	}
	if p.Title != "Paper 1" || p.ArxivID != "2503.00001" {
		t.Errorf("got %+v, want Paper 1", p)
	}

	_, err = f.FetchByID(context.Background(), "9999.99999")
	if !errors.Is(err, ErrPaperNotFound) {
		t.Errorf("FetchByID(missing) error = %v, want ErrPaperNotFound", err)
	}
}

func TestHostLimiter_SpacesRequests(t *testing.T) {
	l := newHostLimiter(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		if err := l.Wait(ctx, "https://export.arxiv.org/api/query"); err != nil {
			t.Fatalf("Wait() unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("three requests took %v, want at least two intervals", elapsed)
	}

	// A different host has its own budget.
	start = time.Now()
	if err := l.Wait(ctx, "https://arxiv.org/list/cs.AI/new"); err != nil {
		t.Fatalf("Wait() unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("first request to a new host waited %v", elapsed)
	}
}

func TestHostLimiter_Cancelled(t *testing.T) {
	l := newHostLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Wait(ctx, "https://arxiv.org"); err != nil {
		t.Fatalf("first Wait() unexpected error: %v", err)
	}
	cancel()
	if err := l.Wait(ctx, "https://arxiv.org"); err == nil {
		t.Error("Wait() on a cancelled context should fail")
	}
}
