package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// SweepResult tracks counters for one score-and-promote pass.
type SweepResult struct {
	Scored    int
	Promoted  int
	Alerted   int
	BelowBar  int
	AlreadyIn int
}

// RunSignalSweep submits unscored candidates to the oracle in bounded
// batches and promotes those scoring at or above the promotion threshold.
// Oracle failure is fail-open: the batch stays unscored and is retried on
// the next sweep. Only immediate-tier signals are dispatched here;
// batch-tier signals are surfaced exclusively by the autonomy loop so the
// same item can never be alerted from two code paths.
func RunSignalSweep(ctx context.Context, cfg Config, db *sql.DB, oracle Classifier, notifier Notifier) (SweepResult, error) {
	var result SweepResult

	items, err := ListUnscored(db, cfg.SweepLimit)
	if err != nil {
		return result, fmt.Errorf("listing unscored candidates: %w", err)
	}
	if len(items) == 0 {
		log.Println("signal-sweep: no unscored items")
		return result, nil
	}

	pctx, err := loadPipelineContext(db)
	if err != nil {
		return result, err
	}

	for start := 0; start < len(items); start += cfg.OracleBatchSize {
		end := start + cfg.OracleBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		verdicts, err := oracle.ScoreBatch(ctx, batch, pctx)
		if err != nil {
			// Items in this batch stay unscored and retry next cycle.
			log.Printf("signal-sweep oracle error (batch retried next sweep): %v", err)
			continue
		}

		byID := make(map[int64]CandidateItem, len(batch))
		for _, item := range batch {
			byID[item.ID] = item
		}

		for _, v := range verdicts {
			item, ok := byID[v.ItemID]
			if !ok {
				log.Printf("signal-sweep verdict for unknown item id=%d, dropped", v.ItemID)
				continue
			}
			result.Scored++

			if v.Score < cfg.PromoteThreshold {
				if err := UpdateCandidateScore(db, item.ID, v.Score); err != nil {
					log.Printf("signal-sweep score update error item=%d: %v", item.ID, err)
				}
				result.BelowBar++
				continue
			}

			signalID, already, err := PromoteCandidate(db, item.ID, v)
			if err != nil {
				log.Printf("signal-sweep promote error item=%d: %v", item.ID, err)
				continue
			}
			if already {
				result.AlreadyIn++
				continue
			}
			result.Promoted++

			if cfg.TierFor(v.Score) == TierImmediate {
				if dispatchImmediate(cfg, db, notifier, signalID) {
					result.Alerted++
				}
			}
		}
	}

	log.Printf("signal-sweep scored=%d promoted=%d alerted=%d below_bar=%d already_promoted=%d",
		result.Scored, result.Promoted, result.Alerted, result.BelowBar, result.AlreadyIn)
	return result, nil
}

// dispatchImmediate alerts on a freshly promoted immediate-tier signal.
// Dispatch failure is logged and the signal stays un-notified; the next
// autonomy pass picks it up. Nothing here may crash the promotion path.
func dispatchImmediate(cfg Config, db *sql.DB, notifier Notifier, signalID int64) bool {
	sig, err := GetSignalByID(db, signalID)
	if err != nil {
		log.Printf("dispatch signal=%d load error: %v", signalID, err)
		return false
	}
	if sig.Notified {
		return false
	}

	subjectName := "Unknown"
	if subject, err := GetSubjectByID(db, sig.SubjectID); err == nil {
		subjectName = subject.Name
	}

	token, ok := notifier.PostSignalAlert(subjectName, sig.Title, sig.Score, sig.SourceURL)
	if !ok {
		log.Printf("dispatch signal=%d failed, retried on next autonomy pass", signalID)
		return false
	}
	if err := MarkSignalNotified(db, signalID, ""); err != nil {
		log.Printf("dispatch signal=%d mark-notified error: %v", signalID, err)
	}
	log.Printf("dispatch signal=%d subject=%s score=%d token=%s", signalID, subjectName, sig.Score, token)
	return true
}

func loadPipelineContext(db *sql.DB) (PipelineContext, error) {
	deals, err := ListActiveDeals(db)
	if err != nil {
		return PipelineContext{}, fmt.Errorf("listing deals: %w", err)
	}
	subjects, err := ListActiveSubjects(db)
	if err != nil {
		return PipelineContext{}, fmt.Errorf("listing subjects: %w", err)
	}
	return PipelineContext{Deals: deals, Subjects: subjects}, nil
}
