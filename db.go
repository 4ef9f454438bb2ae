package main

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	// DSN option so every pooled connection waits out writer locks instead
	// of surfacing SQLITE_BUSY.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		name         TEXT NOT NULL UNIQUE,
		category     TEXT NOT NULL DEFAULT 'competitor',
		threat_level TEXT NOT NULL DEFAULT 'monitor',
		status       TEXT NOT NULL DEFAULT 'active',
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS candidate_items (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id      INTEGER NOT NULL,
		headline        TEXT NOT NULL,
		summary         TEXT DEFAULT '',
		url             TEXT NOT NULL UNIQUE,
		source_name     TEXT DEFAULT '',
		source_type     TEXT DEFAULT '',
		published_at    DATETIME,
		fetched_at      DATETIME NOT NULL,
		relevance_score INTEGER NOT NULL DEFAULT 0,
		promoted        INTEGER NOT NULL DEFAULT 0,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_candidates_subject ON candidate_items(subject_id);
	CREATE INDEX IF NOT EXISTS idx_candidates_unscored ON candidate_items(promoted, relevance_score);

	CREATE TABLE IF NOT EXISTS signals (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id      INTEGER NOT NULL,
		candidate_id    INTEGER DEFAULT 0,
		category        TEXT NOT NULL DEFAULT 'news',
		title           TEXT NOT NULL,
		summary         TEXT DEFAULT '',
		source_url      TEXT NOT NULL UNIQUE,
		source_name     TEXT DEFAULT '',
		source_type     TEXT DEFAULT '',
		source_date     DATETIME,
		score           INTEGER NOT NULL,
		score_rationale TEXT DEFAULT '',
		deal_relevance  TEXT DEFAULT '',
		notified        INTEGER NOT NULL DEFAULT 0,
		batch_id        TEXT DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'new',
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_signals_candidate ON signals(candidate_id);

	CREATE TABLE IF NOT EXISTS deals (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		account_name TEXT NOT NULL,
		stage        TEXT NOT NULL DEFAULT 'prospecting',
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS push_feedback (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		signal_id   INTEGER NOT NULL,
		action      TEXT NOT NULL,
		actioned_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS people (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id      INTEGER NOT NULL,
		first_name      TEXT DEFAULT '',
		last_name       TEXT DEFAULT '',
		title           TEXT DEFAULT '',
		current_company TEXT DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'active',
		last_known_move DATETIME,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS person_movements (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id    INTEGER NOT NULL,
		from_company TEXT DEFAULT '',
		from_title   TEXT DEFAULT '',
		to_company   TEXT DEFAULT '',
		to_title     TEXT DEFAULT '',
		source_url   TEXT DEFAULT '',
		signal_id    INTEGER DEFAULT 0,
		detected_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

// --- Candidate items ---

// UpsertCandidate inserts a candidate unless its URL is already stored.
// A duplicate URL is a normal no-op outcome, not an error.
func UpsertCandidate(db *sql.DB, item CandidateItem) (inserted bool, err error) {
	res, err := db.Exec(
		`INSERT OR IGNORE INTO candidate_items
		 (subject_id, headline, summary, url, source_name, source_type, published_at, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.SubjectID, item.Headline, item.Summary, item.URL,
		item.SourceName, item.SourceType, nullableTime(item.PublishedAt), item.FetchedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUnscored returns unpromoted candidates that have no score yet,
// earliest-fetched first so downstream ordering stays deterministic.
func ListUnscored(db *sql.DB, limit int) ([]CandidateItem, error) {
	rows, err := db.Query(
		`SELECT id, subject_id, headline, summary, url, source_name, source_type,
		        COALESCE(published_at, fetched_at), fetched_at, relevance_score, promoted, created_at
		 FROM candidate_items
		 WHERE promoted = 0 AND relevance_score = 0
		 ORDER BY fetched_at ASC, id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

func GetCandidateByID(db *sql.DB, id int64) (CandidateItem, error) {
	var item CandidateItem
	var promoted int
	err := db.QueryRow(
		`SELECT id, subject_id, headline, summary, url, source_name, source_type,
		        COALESCE(published_at, fetched_at), fetched_at, relevance_score, promoted, created_at
		 FROM candidate_items WHERE id = ?`,
		id,
	).Scan(
		&item.ID, &item.SubjectID, &item.Headline, &item.Summary, &item.URL,
		&item.SourceName, &item.SourceType, &item.PublishedAt, &item.FetchedAt,
		&item.Score, &promoted, &item.CreatedAt,
	)
	item.Promoted = promoted != 0
	return item, err
}

// UpdateCandidateScore records a below-threshold score so the item is not
// resubmitted to the oracle on the next sweep.
func UpdateCandidateScore(db *sql.DB, id int64, score int) error {
	_, err := db.Exec(`UPDATE candidate_items SET relevance_score = ? WHERE id = ? AND promoted = 0`, score, id)
	return err
}

func scanCandidates(rows *sql.Rows) ([]CandidateItem, error) {
	var items []CandidateItem
	for rows.Next() {
		var item CandidateItem
		var promoted int
		err := rows.Scan(
			&item.ID, &item.SubjectID, &item.Headline, &item.Summary, &item.URL,
			&item.SourceName, &item.SourceType, &item.PublishedAt, &item.FetchedAt,
			&item.Score, &promoted, &item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		item.Promoted = promoted != 0
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Promotion ---

// PromoteCandidate creates a signal for a scored candidate and marks the
// candidate promoted, in one transaction. Promotion is keyed by candidate
// identity: re-promoting an already-promoted candidate is a no-op that
// returns the existing signal id. A racing promotion of the same candidate
// in another process loses on the signals.source_url uniqueness constraint
// and also observes already-promoted.
func PromoteCandidate(db *sql.DB, candidateID int64, v Verdict) (signalID int64, already bool, err error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	item, err := getCandidateTx(tx, candidateID)
	if err != nil {
		return 0, false, err
	}
	if item.Promoted {
		id, err := signalIDForCandidateTx(tx, candidateID, item.URL)
		if err != nil {
			return 0, false, err
		}
		return id, true, tx.Commit()
	}

	score := clampScore(v.Score)
	res, err := tx.Exec(
		`INSERT OR IGNORE INTO signals
		 (subject_id, candidate_id, category, title, summary, source_url, source_name,
		  source_type, source_date, score, score_rationale, deal_relevance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.SubjectID, item.ID, normalizeCategory(v.Category), item.Headline, item.Summary,
		item.URL, item.SourceName, item.SourceType, nullableTime(item.PublishedAt),
		score, v.Rationale, v.DealRelevance,
	)
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		// Lost the race on source_url: another promotion already produced
		// the signal. Treat as success.
		already = true
	}
	signalID, err = signalIDForCandidateTx(tx, candidateID, item.URL)
	if err != nil {
		return 0, false, err
	}

	_, err = tx.Exec(
		`UPDATE candidate_items SET promoted = 1, relevance_score = ? WHERE id = ?`,
		score, item.ID,
	)
	if err != nil {
		return 0, false, err
	}
	return signalID, already, tx.Commit()
}

func getCandidateTx(tx *sql.Tx, id int64) (CandidateItem, error) {
	var item CandidateItem
	var promoted int
	err := tx.QueryRow(
		`SELECT id, subject_id, headline, summary, url, source_name, source_type,
		        COALESCE(published_at, fetched_at), promoted
		 FROM candidate_items WHERE id = ?`,
		id,
	).Scan(
		&item.ID, &item.SubjectID, &item.Headline, &item.Summary, &item.URL,
		&item.SourceName, &item.SourceType, &item.PublishedAt, &promoted,
	)
	item.Promoted = promoted != 0
	return item, err
}

func signalIDForCandidateTx(tx *sql.Tx, candidateID int64, url string) (int64, error) {
	var id int64
	err := tx.QueryRow(
		`SELECT id FROM signals WHERE candidate_id = ? OR source_url = ? LIMIT 1`,
		candidateID, url,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("candidate %d marked promoted but has no signal", candidateID)
	}
	return id, err
}

// InsertEventSignal stores a signal that originates from a detected event
// rather than a candidate item (e.g. a person movement). The source_url
// uniqueness constraint still applies, which makes re-detection of the
// same event a no-op.
func InsertEventSignal(db *sql.DB, sig Signal) (int64, bool, error) {
	res, err := db.Exec(
		`INSERT OR IGNORE INTO signals
		 (subject_id, candidate_id, category, title, summary, source_url, source_name,
		  source_type, source_date, score, score_rationale, deal_relevance)
		 VALUES (?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.SubjectID, normalizeCategory(sig.Category), sig.Title, sig.Summary,
		sig.SourceURL, sig.SourceName, sig.SourceType, nullableTime(sig.SourceDate),
		clampScore(sig.Score), sig.Rationale, sig.DealRelevance,
	)
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	var id int64
	err = db.QueryRow(`SELECT id FROM signals WHERE source_url = ?`, sig.SourceURL).Scan(&id)
	return id, n == 0, err
}

// --- Signals ---

func GetSignalByID(db *sql.DB, id int64) (Signal, error) {
	row := db.QueryRow(signalSelect+` WHERE id = ?`, id)
	return scanSignal(row)
}

// ListUnreviewedSignals returns signals still in status 'new' created at or
// after the given time, oldest first.
func ListUnreviewedSignals(db *sql.DB, since time.Time) ([]Signal, error) {
	rows, err := db.Query(
		signalSelect+` WHERE status = 'new' AND created_at >= ? ORDER BY created_at ASC, id ASC`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func MarkSignalNotified(db *sql.DB, id int64, batchID string) error {
	_, err := db.Exec(`UPDATE signals SET notified = 1, batch_id = ? WHERE id = ?`, batchID, id)
	return err
}

func MarkSignalReviewed(db *sql.DB, id int64) error {
	_, err := db.Exec(`UPDATE signals SET status = 'reviewed' WHERE id = ?`, id)
	return err
}

const signalSelect = `SELECT id, subject_id, candidate_id, category, title, summary,
	source_url, source_name, source_type, COALESCE(source_date, created_at),
	score, score_rationale, deal_relevance, notified, batch_id, status, created_at
	FROM signals`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (Signal, error) {
	var sig Signal
	var notified int
	err := row.Scan(
		&sig.ID, &sig.SubjectID, &sig.CandidateID, &sig.Category, &sig.Title, &sig.Summary,
		&sig.SourceURL, &sig.SourceName, &sig.SourceType, &sig.SourceDate,
		&sig.Score, &sig.Rationale, &sig.DealRelevance, &notified, &sig.BatchID,
		&sig.Status, &sig.CreatedAt,
	)
	sig.Notified = notified != 0
	return sig, err
}

// --- Feedback ---

func RecordFeedback(db *sql.DB, signalID int64, action string) error {
	switch action {
	case "acted_on", "dismissed", "ignored":
	default:
		return fmt.Errorf("unknown feedback action %q", action)
	}
	_, err := db.Exec(`INSERT INTO push_feedback (signal_id, action) VALUES (?, ?)`, signalID, action)
	return err
}

func FeedbackStats(db *sql.DB) (acted, total int, err error) {
	err = db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN action = 'acted_on' THEN 1 ELSE 0 END), 0)
		 FROM push_feedback`,
	).Scan(&total, &acted)
	return acted, total, err
}

// --- Subjects, deals, people ---

func ListActiveSubjects(db *sql.DB) ([]Subject, error) {
	rows, err := db.Query(
		`SELECT id, name, category, threat_level, status, created_at
		 FROM subjects WHERE status = 'active' ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.Category, &s.ThreatLevel, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func GetSubjectByID(db *sql.DB, id int64) (Subject, error) {
	var s Subject
	err := db.QueryRow(
		`SELECT id, name, category, threat_level, status, created_at FROM subjects WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.Name, &s.Category, &s.ThreatLevel, &s.Status, &s.CreatedAt)
	return s, err
}

func InsertSubject(db *sql.DB, s Subject) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO subjects (name, category, threat_level, status) VALUES (?, ?, ?, 'active')`,
		s.Name, s.Category, s.ThreatLevel,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ArchiveSubject soft-deletes: subjects are never removed, only archived.
func ArchiveSubject(db *sql.DB, id int64) error {
	_, err := db.Exec(`UPDATE subjects SET status = 'archived' WHERE id = ?`, id)
	return err
}

// ListActiveDeals returns pipeline deals not yet closed either way. Deals
// are read-only context for scoring; the pipeline never writes them.
func ListActiveDeals(db *sql.DB) ([]Deal, error) {
	rows, err := db.Query(
		`SELECT id, account_name, stage, created_at FROM deals
		 WHERE stage NOT IN ('closed_won', 'closed_lost') ORDER BY account_name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Deal
	for rows.Next() {
		var d Deal
		if err := rows.Scan(&d.ID, &d.AccountName, &d.Stage, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func ListActivePeople(db *sql.DB) ([]Person, error) {
	rows, err := db.Query(
		`SELECT id, subject_id, first_name, last_name, title, current_company,
		        status, COALESCE(last_known_move, created_at), created_at
		 FROM people WHERE status = 'active' ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Person
	for rows.Next() {
		var p Person
		err := rows.Scan(&p.ID, &p.SubjectID, &p.FirstName, &p.LastName, &p.Title,
			&p.CurrentCompany, &p.Status, &p.LastKnownMove, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordPersonMovement stores a detected movement and updates the person's
// current role in one transaction.
func RecordPersonMovement(db *sql.DB, m PersonMovement) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO person_movements
		 (person_id, from_company, from_title, to_company, to_title, source_url, signal_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.PersonID, m.FromCompany, m.FromTitle, m.ToCompany, m.ToTitle, m.SourceURL, m.SignalID,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(
		`UPDATE people SET current_company = ?, title = ?, last_known_move = CURRENT_TIMESTAMP WHERE id = ?`,
		m.ToCompany, m.ToTitle, m.PersonID,
	)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
