package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

type fakeMovementChecker struct {
	byPerson map[int64]Movement
	err      error
	calls    int
}

func (f *fakeMovementChecker) CheckMovement(_ context.Context, person Person, _ string) (Movement, error) {
	f.calls++
	if f.err != nil {
		return Movement{}, f.err
	}
	return f.byPerson[person.ID], nil
}

func insertTestPerson(t *testing.T, db *sql.DB, subjectID int64, first, last string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO people (subject_id, first_name, last_name, title, current_company)
		 VALUES (?, ?, ?, 'VP Engineering', 'OldCo')`, subjectID, first, last)
	if err != nil {
		t.Fatalf("inserting person failed: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestRunPeopleSweepRecordsMovement(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	subjectID := insertTestSubject(t, db, "Acme Health")
	personID := insertTestPerson(t, db, subjectID, "Jane", "Doe")

	checker := &fakeMovementChecker{byPerson: map[int64]Movement{
		personID: {
			Detected:   true,
			NewCompany: "Acme Health",
			NewTitle:   "Chief AI Officer",
			Summary:    "joined Acme Health as Chief AI Officer",
			SourceURL:  "https://news.example/jane",
			Confidence: "High",
		},
	}}
	notifier := &fakeNotifier{}

	checked, found, err := RunPeopleSweep(context.Background(), cfg, db, checker, notifier)
	if err != nil {
		t.Fatalf("RunPeopleSweep failed: %v", err)
	}
	if checked != 1 || found != 1 {
		t.Fatalf("expected checked=1 found=1, got %d/%d", checked, found)
	}

	// High confidence scores 85, crossing the immediate threshold.
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected immediate alert for high-confidence move, got %d", len(notifier.alerts))
	}

	people, err := ListActivePeople(db)
	if err != nil {
		t.Fatalf("ListActivePeople failed: %v", err)
	}
	if people[0].CurrentCompany != "Acme Health" || people[0].Title != "Chief AI Officer" {
		t.Fatalf("person not updated: %+v", people[0])
	}

	var signalCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM signals WHERE category = ?`, CategoryExecChange).Scan(&signalCount); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if signalCount != 1 {
		t.Fatalf("expected 1 exec_change signal, got %d", signalCount)
	}
}

func TestRunPeopleSweepRerunSameDayIsNoOp(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	subjectID := insertTestSubject(t, db, "Acme Health")
	personID := insertTestPerson(t, db, subjectID, "Jane", "Doe")

	// No source URL forces the deterministic per-day fallback key.
	checker := &fakeMovementChecker{byPerson: map[int64]Movement{
		personID: {Detected: true, NewCompany: "Acme Health", NewTitle: "CAIO",
			Summary: "joined Acme Health", Confidence: "Medium"},
	}}
	notifier := &fakeNotifier{}

	if _, found, err := RunPeopleSweep(context.Background(), cfg, db, checker, notifier); err != nil || found != 1 {
		t.Fatalf("first sweep: found=%d err=%v", found, err)
	}
	_, found, err := RunPeopleSweep(context.Background(), cfg, db, checker, notifier)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if found != 0 {
		t.Fatalf("expected same-day re-detection to be a no-op, got found=%d", found)
	}

	var signalCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM signals`).Scan(&signalCount); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if signalCount != 1 {
		t.Fatalf("expected 1 signal across both sweeps, got %d", signalCount)
	}
}

func TestRunPeopleSweepSkipsFailedChecks(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	subjectID := insertTestSubject(t, db, "Acme Health")
	insertTestPerson(t, db, subjectID, "Jane", "Doe")
	insertTestPerson(t, db, subjectID, "John", "Smith")

	checker := &fakeMovementChecker{err: errors.New("search unavailable")}
	checked, found, err := RunPeopleSweep(context.Background(), cfg, db, checker, &fakeNotifier{})
	if err != nil {
		t.Fatalf("RunPeopleSweep failed: %v", err)
	}
	if checked != 2 || found != 0 {
		t.Fatalf("expected both people checked with no movements, got %d/%d", checked, found)
	}
}

func TestMovementScore(t *testing.T) {
	cases := map[string]int{"High": 85, "medium": 70, " Low ": 55, "unknown": 55, "": 55}
	for in, want := range cases {
		if got := movementScore(in); got != want {
			t.Errorf("movementScore(%q) = %d, want %d", in, got, want)
		}
	}
}
