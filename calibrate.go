package main

import (
	"database/sql"
	"log"
)

// ActedOnRate aggregates push feedback into the fraction of pushed
// signals humans acted on. Returns ok=false until the sample reaches
// minSample, so early noise never reads as a trend.
func ActedOnRate(db *sql.DB, minSample int) (rate float64, acted, total int, ok bool, err error) {
	acted, total, err = FeedbackStats(db)
	if err != nil {
		return 0, 0, 0, false, err
	}
	if total < minSample {
		return 0, acted, total, false, nil
	}
	return float64(acted) / float64(total), acted, total, true, nil
}

// runCalibration logs the acted-on rate. Thresholds are never adjusted
// automatically; operators retune config from these numbers.
func runCalibration(cfg Config, db *sql.DB) {
	rate, acted, total, ok, err := ActedOnRate(db, cfg.MinFeedbackSample)
	if err != nil {
		log.Printf("calibration error: %v", err)
		return
	}
	if !ok {
		log.Printf("calibration: %d feedback events, below minimum sample of %d", total, cfg.MinFeedbackSample)
		return
	}
	log.Printf("calibration acted_on=%d total=%d rate=%.0f%%", acted, total, rate*100)
}
