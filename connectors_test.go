package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

func TestNewsAPIConnectorFetch(t *testing.T) {
	var gotKey, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok", "articles": [
			{"title": "Acme raises $50M", "description": "Series C round",
			 "url": "https://news.example/acme-50m", "publishedAt": "2026-08-30T10:00:00Z",
			 "source": {"name": "Example News"}},
			{"title": "[Removed]", "description": "", "url": "[Removed]", "publishedAt": "", "source": {"name": ""}}
		]}`))
	}))
	defer server.Close()

	c := &newsAPIConnector{
		apiKey:  "test-key",
		baseURL: server.URL,
		client:  server.Client(),
		timeout: 5 * time.Second,
	}

	items, err := c.Fetch(context.Background(), Subject{ID: 3, Name: "Acme Health"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotQuery != `"Acme Health"` {
		t.Fatalf("expected quoted subject query, got %q", gotQuery)
	}
	if len(items) != 1 {
		t.Fatalf("expected the removed article filtered out, got %d items", len(items))
	}
	item := items[0]
	if item.SubjectID != 3 || item.SourceType != "newsapi" || item.SourceName != "Example News" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.PublishedAt.IsZero() {
		t.Fatal("expected parsed publish time")
	}
}

func TestNewsAPIConnectorErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":"error","code":"rateLimited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := &newsAPIConnector{apiKey: "k", baseURL: server.URL, client: server.Client(), timeout: 5 * time.Second}
	if _, err := c.Fetch(context.Background(), Subject{ID: 1, Name: "Acme"}); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestPerplexityConnectorFetch(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "Acme Health announced a partnership with MegaHospital this week and closed a $50M Series C round led by Example Ventures."}}],
			"citations": ["https://news.example/acme-partnership", "https://news.example/acme-funding"]
		}`))
	}))
	defer server.Close()

	c := &perplexityConnector{
		apiKey:  "pplx-test",
		baseURL: server.URL,
		client:  server.Client(),
		timeout: 5 * time.Second,
	}

	items, err := c.Fetch(context.Background(), Subject{ID: 5, Name: "Acme Health"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotAuth != "Bearer pplx-test" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if len(items) != 1 {
		t.Fatalf("expected single digest item, got %d", len(items))
	}
	item := items[0]
	if item.URL != "https://news.example/acme-partnership" {
		t.Fatalf("expected first citation as URL, got %q", item.URL)
	}
	if item.SubjectID != 5 || item.SourceType != "perplexity" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestPerplexityConnectorNoCitations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"content": "Acme Health has had a quiet week with no major announcements beyond routine product updates."}}], "citations": []}`))
	}))
	defer server.Close()

	c := &perplexityConnector{apiKey: "k", baseURL: server.URL, client: server.Client(), timeout: 5 * time.Second}
	items, err := c.Fetch(context.Background(), Subject{ID: 1, Name: "Acme Health"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 1 || items[0].URL != "https://www.perplexity.ai/search?q=Acme+Health" {
		t.Fatalf("expected search fallback URL, got %+v", items)
	}
}

func TestPerplexityConnectorShortContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"content": "No recent news."}}], "citations": []}`))
	}))
	defer server.Close()

	c := &perplexityConnector{apiKey: "k", baseURL: server.URL, client: server.Client(), timeout: 5 * time.Second}
	items, err := c.Fetch(context.Background(), Subject{ID: 1, Name: "Acme"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if items != nil {
		t.Fatalf("expected near-empty answer discarded, got %d items", len(items))
	}
}

const testFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Test Feed</title>
<item><title>Acme Health launches triage platform</title>
<link>https://feed.example/acme-launch</link>
<description>Acme Health announced a new AI triage platform.</description>
<pubDate>Sun, 30 Aug 2026 09:00:00 GMT</pubDate></item>
<item><title>Unrelated biotech story</title>
<link>https://feed.example/other</link>
<description>Nothing about the subject here.</description></item>
</channel></rss>`

func TestRSSConnectorFiltersBySubject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeedXML))
	}))
	defer server.Close()

	c := &rssConnector{
		feeds:   []FeedSource{{Name: "Test Feed", URL: server.URL}},
		parser:  gofeed.NewParser(),
		timeout: 5 * time.Second,
	}

	items, err := c.Fetch(context.Background(), Subject{ID: 2, Name: "Acme Health"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 matching entry, got %d", len(items))
	}
	if items[0].URL != "https://feed.example/acme-launch" || items[0].SourceName != "Test Feed" {
		t.Fatalf("unexpected item: %+v", items[0])
	}
}

func TestRSSConnectorAllFeedsFailing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	c := &rssConnector{
		feeds:   []FeedSource{{Name: "Dead Feed", URL: server.URL}},
		parser:  gofeed.NewParser(),
		timeout: 5 * time.Second,
	}
	if _, err := c.Fetch(context.Background(), Subject{ID: 1, Name: "Acme"}); err == nil {
		t.Fatal("expected error when every feed fails")
	}
}

func TestParseSearchResultsStructured(t *testing.T) {
	text := "Here is what I found:\n" + `[
		{"headline": "Acme partners with MegaHospital", "summary": "AI triage rollout", "url": "https://news.example/partner", "date": "2026-08-29"},
		{"headline": "", "summary": "dropped, no headline", "url": "https://news.example/x", "date": ""}
	]`

	items := parseSearchResults(Subject{ID: 4, Name: "Acme Health"}, text, time.Now().UTC())
	if len(items) != 1 {
		t.Fatalf("expected 1 item after dropping the headline-less hit, got %d", len(items))
	}
	if items[0].URL != "https://news.example/partner" || items[0].SourceType != "oracle_search" {
		t.Fatalf("unexpected item: %+v", items[0])
	}
	if items[0].PublishedAt.IsZero() {
		t.Fatal("expected parsed date")
	}
}

func TestParseSearchResultsDigestFallback(t *testing.T) {
	text := "I could not format this as JSON, but Acme Health announced a major partnership this week."

	items := parseSearchResults(Subject{ID: 4, Name: "Acme Health"}, text, time.Now().UTC())
	if len(items) != 1 {
		t.Fatalf("expected single digest item, got %d", len(items))
	}
	if items[0].URL != "https://search.oracle/Acme%20Health" {
		t.Fatalf("unexpected fallback URL: %q", items[0].URL)
	}
}

func TestParseSearchResultsEmpty(t *testing.T) {
	if items := parseSearchResults(Subject{ID: 1, Name: "Acme"}, "   ", time.Now().UTC()); items != nil {
		t.Fatalf("expected nil for empty response, got %d items", len(items))
	}
}

func TestSearchConnectorFetch(t *testing.T) {
	c := &searchConnector{
		call: func(_ context.Context, prompt string) (string, error) {
			return `[{"headline": "Acme funding round", "summary": "s", "url": "https://n.example/1", "date": "2026-08-28"}]`, nil
		},
		timeout: time.Second,
	}
	items, err := c.Fetch(context.Background(), Subject{ID: 1, Name: "Acme"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 1 || items[0].Headline != "Acme funding round" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestBuildConnectors(t *testing.T) {
	cfg := testConfig()
	if got := len(BuildConnectors(cfg)); got != 2 {
		t.Fatalf("expected rss + search with no API keys, got %d connectors", got)
	}

	cfg.NewsAPIKey = "key"
	if got := len(BuildConnectors(cfg)); got != 3 {
		t.Fatalf("expected newsapi + rss + search, got %d", got)
	}

	cfg.PerplexityAPIKey = "pplx"
	if got := len(BuildConnectors(cfg)); got != 4 {
		t.Fatalf("expected all 4 connectors, got %d", got)
	}
}
