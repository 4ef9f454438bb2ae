package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "intelbot-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testConfig() Config {
	cfg := Config{AnthropicAPIKey: "test"}
	applyDefaults(&cfg)
	return cfg
}

func insertTestSubject(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	id, err := InsertSubject(db, Subject{Name: name, Category: "competitor", ThreatLevel: "monitor"})
	if err != nil {
		t.Fatalf("InsertSubject failed: %v", err)
	}
	return id
}

func insertTestCandidate(t *testing.T, db *sql.DB, subjectID int64, headline, url string) int64 {
	t.Helper()
	inserted, err := UpsertCandidate(db, CandidateItem{
		SubjectID:  subjectID,
		Headline:   headline,
		Summary:    "summary of " + headline,
		URL:        url,
		SourceName: "Test Source",
		SourceType: "rss",
		FetchedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("UpsertCandidate failed: %v", err)
	}
	if !inserted {
		t.Fatalf("expected candidate %q to insert", url)
	}
	var id int64
	if err := db.QueryRow(`SELECT id FROM candidate_items WHERE url = ?`, url).Scan(&id); err != nil {
		t.Fatalf("candidate lookup failed: %v", err)
	}
	return id
}

// fakeClassifier returns canned verdicts and surface decisions.
type fakeClassifier struct {
	verdicts     map[int64]Verdict
	surface      bool
	scoreErr     error
	surfaceErr   error
	scoreCalls   int
	surfaceCalls int
}

func (f *fakeClassifier) ScoreBatch(_ context.Context, items []CandidateItem, _ PipelineContext) ([]Verdict, error) {
	f.scoreCalls++
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	var out []Verdict
	for _, item := range items {
		if v, ok := f.verdicts[item.ID]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeClassifier) SurfaceBatch(_ context.Context, signals []Signal, _ PipelineContext) ([]SurfaceDecision, error) {
	f.surfaceCalls++
	if f.surfaceErr != nil {
		return nil, f.surfaceErr
	}
	var out []SurfaceDecision
	for _, sig := range signals {
		out = append(out, SurfaceDecision{
			SignalID:         sig.ID,
			Surface:          f.surface,
			Urgency:          string(TierBatch),
			ActionSuggestion: "review " + sig.Title,
			Rationale:        "test rationale",
		})
	}
	return out, nil
}

// fakeNotifier counts deliveries; set fail to simulate a messaging outage.
type fakeNotifier struct {
	alerts   []string
	messages []string
	fail     bool
}

func (f *fakeNotifier) PostSignalAlert(subjectName, title string, score int, sourceURL string) (string, bool) {
	if f.fail {
		return "", false
	}
	f.alerts = append(f.alerts, title)
	return "tok-alert", true
}

func (f *fakeNotifier) PostMessage(channel, text string) (string, bool) {
	if f.fail {
		return "", false
	}
	f.messages = append(f.messages, text)
	return "tok-msg", true
}

func (f *fakeNotifier) deliveries() int {
	return len(f.alerts) + len(f.messages)
}
