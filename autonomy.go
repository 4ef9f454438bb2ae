package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// AutonomyResult tracks counters for one autonomy pass.
type AutonomyResult struct {
	Considered int
	Pushed     int
	Skipped    int
}

// RunAutonomyLoop re-evaluates recent unreviewed signals against current
// deal and subject context and pushes action suggestions for the ones the
// oracle says to surface. The collection window deliberately overlaps the
// cadence; the notified flag is what actually prevents double delivery,
// so a signal already pushed (by this loop or by immediate dispatch) is
// never re-sent even when the window re-selects it.
func RunAutonomyLoop(ctx context.Context, cfg Config, db *sql.DB, oracle Classifier, notifier Notifier) (AutonomyResult, error) {
	var result AutonomyResult

	since := time.Now().UTC().Add(-time.Duration(cfg.AutonomyWindowMins) * time.Minute)
	signals, err := ListUnreviewedSignals(db, since)
	if err != nil {
		return result, fmt.Errorf("listing unreviewed signals: %w", err)
	}
	if len(signals) == 0 {
		log.Println("autonomy: no new signals")
		runCalibration(cfg, db)
		return result, nil
	}

	if len(signals) > cfg.SurfaceBatchSize {
		signals = signals[:cfg.SurfaceBatchSize]
	}
	result.Considered = len(signals)

	pctx, err := loadPipelineContext(db)
	if err != nil {
		return result, err
	}

	decisions, err := oracle.SurfaceBatch(ctx, signals, pctx)
	if err != nil {
		// Signals stay unreviewed; the next pass re-reads the window.
		log.Printf("autonomy oracle error (retried next pass): %v", err)
		runCalibration(cfg, db)
		return result, nil
	}

	byID := make(map[int64]Signal, len(signals))
	for _, sig := range signals {
		byID[sig.ID] = sig
	}

	batchID := uuid.NewString()
	for _, d := range decisions {
		sig, ok := byID[d.SignalID]
		if !ok {
			continue
		}
		if !d.Surface {
			result.Skipped++
			continue
		}
		if sig.Notified {
			// Already delivered, e.g. at promotion time or by an earlier
			// overlapping pass.
			result.Skipped++
			continue
		}

		if pushActionSuggestion(cfg, db, notifier, sig, d, batchID) {
			result.Pushed++
		}

		if d.DossierUpdate != "" {
			// Document composition happens outside the pipeline.
			log.Printf("autonomy dossier update queued: %s", d.DossierUpdate)
		}
	}

	runCalibration(cfg, db)
	log.Printf("autonomy batch=%s considered=%d pushed=%d skipped=%d",
		batchID, result.Considered, result.Pushed, result.Skipped)
	return result, nil
}

func pushActionSuggestion(cfg Config, db *sql.DB, notifier Notifier, sig Signal, d SurfaceDecision, batchID string) bool {
	subjectName := "Unknown"
	if subject, err := GetSubjectByID(db, sig.SubjectID); err == nil {
		subjectName = subject.Name
	}

	msg := fmt.Sprintf(
		"🧠 *Intel — Action Suggested*\n\n*%s*: %s\n\n*Why it matters:* %s\n\n*Suggested action:* %s\n\nScore: %d/100 | Type: %s",
		subjectName, sig.Title, d.Rationale, d.ActionSuggestion, sig.Score, sig.Category,
	)

	token, ok := notifier.PostMessage(cfg.SlackChannel, msg)
	if !ok {
		log.Printf("autonomy push signal=%d failed, retried next pass", sig.ID)
		return false
	}
	if err := MarkSignalNotified(db, sig.ID, batchID); err != nil {
		log.Printf("autonomy mark-notified signal=%d error: %v", sig.ID, err)
	}
	log.Printf("autonomy pushed signal=%d subject=%s token=%s", sig.ID, subjectName, token)
	return true
}
