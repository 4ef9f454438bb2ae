package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// IngestResult tracks separate counters for each outcome.
type IngestResult struct {
	Subjects   int
	Fetched    int
	Inserted   int
	Duplicates int
	Errors     []string
}

// headlineKeyLen is the normalized-headline prefix used for in-batch dedup.
// Long enough to distinguish stories, short enough to collapse restyled
// headlines for the same event.
const headlineKeyLen = 60

// normalizeURLKey strips the query string and trailing slash so tracking
// parameters don't defeat dedup.
func normalizeURLKey(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimRight(raw, "/")
}

func normalizeHeadlineKey(headline string) string {
	h := strings.ToLower(strings.TrimSpace(headline))
	if len(h) > headlineKeyLen {
		h = h[:headlineKeyLen]
	}
	return h
}

// dedupeCandidates removes in-batch duplicates. An item is a duplicate of
// an earlier item if either its normalized URL or its normalized headline
// matches, which catches near-duplicate coverage of one event across
// sources even when URLs differ. First occurrence wins; input order is
// preserved.
func dedupeCandidates(items []CandidateItem) []CandidateItem {
	seenURLs := make(map[string]bool, len(items))
	seenHeadlines := make(map[string]bool, len(items))

	var out []CandidateItem
	for _, item := range items {
		if item.URL == "" || strings.TrimSpace(item.Headline) == "" {
			continue
		}
		urlKey := normalizeURLKey(item.URL)
		headlineKey := normalizeHeadlineKey(item.Headline)
		if seenURLs[urlKey] || seenHeadlines[headlineKey] {
			continue
		}
		seenURLs[urlKey] = true
		seenHeadlines[headlineKey] = true
		out = append(out, item)
	}
	return out
}

// FetchSubjectNews fans out to every connector for one subject and returns
// the deduplicated union of whatever survives. Connector failures are
// logged and isolated. The fan-in waits at most maxWait and discards
// stragglers; a stuck connector cannot stall the batch.
func FetchSubjectNews(ctx context.Context, connectors []Connector, subject Subject, maxWait time.Duration) []CandidateItem {
	type outcome struct {
		pos   int
		items []CandidateItem
		err   error
	}

	// Buffered so stragglers can finish and exit after the deadline passes.
	results := make(chan outcome, len(connectors))
	for i, conn := range connectors {
		go func(pos int, conn Connector) {
			items, err := conn.Fetch(ctx, subject)
			results <- outcome{pos: pos, items: items, err: err}
		}(i, conn)
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	// Collect indexed by connector position so output order is stable
	// regardless of arrival order.
	collected := make([][]CandidateItem, len(connectors))
	received := 0
collect:
	for received < len(connectors) {
		select {
		case r := <-results:
			received++
			if r.err != nil {
				log.Printf("ingest subject=%s connector=%s error: %v", subject.Name, connectors[r.pos].Name(), r.err)
				continue
			}
			collected[r.pos] = r.items
		case <-deadline.C:
			log.Printf("ingest subject=%s fan-in timeout, %d of %d connectors answered",
				subject.Name, received, len(connectors))
			break collect
		case <-ctx.Done():
			break collect
		}
	}

	var union []CandidateItem
	for _, items := range collected {
		union = append(union, items...)
	}
	return dedupeCandidates(union)
}

// RunIngest fetches news for every active subject and upserts the results.
// The store's URL uniqueness constraint is the cross-run dedup layer: a
// duplicate insert is a silent no-op counted as such.
func RunIngest(ctx context.Context, cfg Config, db *sql.DB, connectors []Connector) (IngestResult, error) {
	subjects, err := ListActiveSubjects(db)
	if err != nil {
		return IngestResult{}, fmt.Errorf("listing subjects: %w", err)
	}
	if len(subjects) == 0 {
		log.Println("ingest: no active subjects")
		return IngestResult{}, nil
	}

	maxWait := time.Duration(cfg.AggregateWaitSecs) * time.Second

	var mu sync.Mutex
	result := IngestResult{Subjects: len(subjects)}

	// Bounded fan-out across subjects. Each subject's connector fan-out is
	// already concurrent, so a small pool keeps total parallelism sane.
	sem := make(chan struct{}, cfg.IngestConcurrency)
	var wg sync.WaitGroup
	for _, subject := range subjects {
		wg.Add(1)
		sem <- struct{}{}
		go func(subject Subject) {
			defer wg.Done()
			defer func() { <-sem }()

			items := FetchSubjectNews(ctx, connectors, subject, maxWait)

			inserted, dups := 0, 0
			for _, item := range items {
				ok, err := UpsertCandidate(db, item)
				if err != nil {
					log.Printf("ingest subject=%s upsert error: %v", subject.Name, err)
					mu.Lock()
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", subject.Name, err))
					mu.Unlock()
					continue
				}
				if ok {
					inserted++
				} else {
					dups++
				}
			}
			log.Printf("ingest subject=%s fetched=%d inserted=%d duplicate=%d",
				subject.Name, len(items), inserted, dups)

			mu.Lock()
			result.Fetched += len(items)
			result.Inserted += inserted
			result.Duplicates += dups
			mu.Unlock()
		}(subject)
	}
	wg.Wait()

	log.Printf("ingest complete subjects=%d fetched=%d inserted=%d duplicate=%d errors=%d",
		result.Subjects, result.Fetched, result.Inserted, result.Duplicates, len(result.Errors))
	return result, nil
}
