package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Connector fetches candidate items about one subject from one external
// source. A failing connector returns an error and contributes nothing;
// it must never take the other connectors down with it.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, subject Subject) ([]CandidateItem, error)
}

const (
	maxHeadlineLen = 500
	maxSummaryLen  = 1000
)

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// --- NewsAPI ---

type newsAPIConnector struct {
	apiKey  string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewNewsAPIConnector(cfg Config) Connector {
	return &newsAPIConnector{
		apiKey:  cfg.NewsAPIKey,
		baseURL: "https://newsapi.org/v2/everything",
		client:  &http.Client{},
		timeout: time.Duration(cfg.NewsAPITimeoutSecs) * time.Second,
	}
}

func (c *newsAPIConnector) Name() string { return "newsapi" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (c *newsAPIConnector) Fetch(ctx context.Context, subject Subject) ([]CandidateItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", fmt.Sprintf("%q", subject.Name))
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", "10")
	params.Set("language", "en")
	params.Set("from", time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return nil, fmt.Errorf("newsapi status %d: %s", resp.StatusCode, string(body))
	}

	var parsed newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("newsapi decode: %w", err)
	}

	now := time.Now().UTC()
	var items []CandidateItem
	for _, a := range parsed.Articles {
		if a.URL == "" || a.URL == "[Removed]" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, a.PublishedAt)
		sourceName := a.Source.Name
		if sourceName == "" {
			sourceName = "NewsAPI"
		}
		items = append(items, CandidateItem{
			SubjectID:   subject.ID,
			Headline:    truncate(a.Title, maxHeadlineLen),
			Summary:     truncate(a.Description, maxSummaryLen),
			URL:         a.URL,
			SourceName:  sourceName,
			SourceType:  "newsapi",
			PublishedAt: published,
			FetchedAt:   now,
		})
	}
	return items, nil
}

// --- Perplexity ---

const perplexityModel = "llama-3.1-sonar-small-128k-online"

// perplexityConnector asks Perplexity's online model for a news digest.
// The answer is one prose blob with citations, so the whole response
// becomes a single digest item linking the first citation.
type perplexityConnector struct {
	apiKey  string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewPerplexityConnector(cfg Config) Connector {
	return &perplexityConnector{
		apiKey:  cfg.PerplexityAPIKey,
		baseURL: "https://api.perplexity.ai/chat/completions",
		client:  &http.Client{},
		timeout: time.Duration(cfg.PerplexityTimeoutSecs) * time.Second,
	}
}

func (c *perplexityConnector) Name() string { return "perplexity" }

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// minDigestLen guards against empty or boilerplate answers.
const minDigestLen = 50

func (c *perplexityConnector) Fetch(ctx context.Context, subject Subject) ([]CandidateItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]any{
		"model": perplexityModel,
		"messages": []map[string]string{{
			"role": "user",
			"content": fmt.Sprintf(
				"Latest news about %s in the last 7 days. Include specific announcements, partnerships, funding, product launches.",
				subject.Name),
		}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perplexity request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return nil, fmt.Errorf("perplexity status %d: %s", resp.StatusCode, string(body))
	}

	var parsed perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("perplexity decode: %w", err)
	}

	content := ""
	if len(parsed.Choices) > 0 {
		content = strings.TrimSpace(parsed.Choices[0].Message.Content)
	}
	if len(content) < minDigestLen {
		return nil, nil
	}

	itemURL := ""
	if len(parsed.Citations) > 0 {
		itemURL = parsed.Citations[0]
	}
	if itemURL == "" {
		itemURL = "https://www.perplexity.ai/search?q=" + url.QueryEscape(subject.Name)
	}

	return []CandidateItem{{
		SubjectID:  subject.ID,
		Headline:   subject.Name + ": Recent Developments (Perplexity)",
		Summary:    truncate(content, maxSummaryLen),
		URL:        itemURL,
		SourceName: "Perplexity AI",
		SourceType: "perplexity",
		FetchedAt:  time.Now().UTC(),
	}}, nil
}

// --- RSS feeds ---

type rssConnector struct {
	feeds   []FeedSource
	parser  *gofeed.Parser
	timeout time.Duration
}

func NewRSSConnector(cfg Config) Connector {
	return &rssConnector{
		feeds:   cfg.RSSFeeds,
		parser:  gofeed.NewParser(),
		timeout: time.Duration(cfg.RSSTimeoutSecs) * time.Second,
	}
}

func (c *rssConnector) Name() string { return "rss" }

// Fetch scans each configured feed and keeps entries that mention the
// subject by name. Individual feed failures are logged and skipped; the
// connector only errors when every feed failed.
func (c *rssConnector) Fetch(ctx context.Context, subject Subject) ([]CandidateItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	needle := strings.ToLower(subject.Name)
	now := time.Now().UTC()

	var items []CandidateItem
	failed := 0
	for _, feed := range c.feeds {
		parsed, err := c.parser.ParseURLWithContext(feed.URL, ctx)
		if err != nil {
			log.Printf("rss feed=%s error: %v", feed.Name, err)
			failed++
			continue
		}
		entries := parsed.Items
		if len(entries) > 20 {
			entries = entries[:20]
		}
		for _, entry := range entries {
			summary := entry.Description
			if summary == "" {
				summary = entry.Content
			}
			if !strings.Contains(strings.ToLower(entry.Title), needle) &&
				!strings.Contains(strings.ToLower(summary), needle) {
				continue
			}
			var published time.Time
			if entry.PublishedParsed != nil {
				published = entry.PublishedParsed.UTC()
			}
			items = append(items, CandidateItem{
				SubjectID:   subject.ID,
				Headline:    truncate(entry.Title, maxHeadlineLen),
				Summary:     truncate(summary, maxSummaryLen),
				URL:         entry.Link,
				SourceName:  feed.Name,
				SourceType:  "rss",
				PublishedAt: published,
				FetchedAt:   now,
			})
		}
	}
	if failed == len(c.feeds) && len(c.feeds) > 0 {
		return nil, fmt.Errorf("all %d feeds failed", failed)
	}
	return items, nil
}

// --- Oracle-backed web search ---

// searchConnector asks the oracle to find recent news via web search. The
// response is free text that usually embeds a JSON array; when extraction
// fails the whole response is kept as a single digest item so nothing the
// oracle found is silently dropped.
type searchConnector struct {
	call    func(ctx context.Context, prompt string) (string, error)
	timeout time.Duration
}

func NewSearchConnector(cfg Config) Connector {
	oracle := newAnthropicOracle(cfg)
	return &searchConnector{
		call:    oracle.callWithWebSearch,
		timeout: time.Duration(cfg.SearchTimeoutSecs) * time.Second,
	}
}

func (c *searchConnector) Name() string { return "oracle_search" }

type searchHit struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
	Date     string `json:"date"`
}

func (c *searchConnector) Fetch(ctx context.Context, subject Subject) ([]CandidateItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Find the latest news, announcements, and developments about %s from the last 7 days. Focus on partnerships, product launches, funding, and executive moves.
Return 3-5 items as a JSON array:
[{"headline": "...", "summary": "...", "url": "...", "date": "2006-01-02"}]`, subject.Name)

	text, err := c.call(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseSearchResults(subject, text, time.Now().UTC()), nil
}

func parseSearchResults(subject Subject, text string, now time.Time) []CandidateItem {
	fallbackURL := "https://search.oracle/" + url.PathEscape(subject.Name)

	var hits []searchHit
	if raw := extractJSONArray(text); raw != "" {
		_ = json.Unmarshal([]byte(raw), &hits)
	}

	if len(hits) == 0 {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		// Structured extraction failed: fall back to one digest item.
		return []CandidateItem{{
			SubjectID:  subject.ID,
			Headline:   subject.Name + ": Latest Developments",
			Summary:    truncate(text, maxSummaryLen),
			URL:        fallbackURL,
			SourceName: "Oracle Web Search",
			SourceType: "oracle_search",
			FetchedAt:  now,
		}}
	}

	if len(hits) > 5 {
		hits = hits[:5]
	}
	var items []CandidateItem
	for _, h := range hits {
		if strings.TrimSpace(h.Headline) == "" {
			continue
		}
		itemURL := h.URL
		if itemURL == "" {
			itemURL = fallbackURL
		}
		published, _ := time.Parse("2006-01-02", h.Date)
		items = append(items, CandidateItem{
			SubjectID:   subject.ID,
			Headline:    truncate(h.Headline, maxHeadlineLen),
			Summary:     truncate(h.Summary, maxSummaryLen),
			URL:         itemURL,
			SourceName:  "Oracle Web Search",
			SourceType:  "oracle_search",
			PublishedAt: published,
			FetchedAt:   now,
		})
	}
	return items
}

// BuildConnectors assembles the connector set for the current config.
// Unconfigured sources are left out rather than failing at fetch time.
func BuildConnectors(cfg Config) []Connector {
	var connectors []Connector
	if cfg.NewsAPIConfigured() {
		connectors = append(connectors, NewNewsAPIConnector(cfg))
	}
	if cfg.PerplexityConfigured() {
		connectors = append(connectors, NewPerplexityConnector(cfg))
	}
	if len(cfg.RSSFeeds) > 0 {
		connectors = append(connectors, NewRSSConnector(cfg))
	}
	connectors = append(connectors, NewSearchConnector(cfg))
	return connectors
}
