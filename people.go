package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// Movement is a detected role change for a tracked person.
type Movement struct {
	Detected   bool   `json:"movement_detected"`
	NewCompany string `json:"new_company"`
	NewTitle   string `json:"new_title"`
	Summary    string `json:"summary"`
	SourceURL  string `json:"source_url"`
	Confidence string `json:"confidence"` // "High", "Medium", or "Low"
}

// MovementChecker is the oracle capability behind the people sweep.
type MovementChecker interface {
	CheckMovement(ctx context.Context, person Person, companyHint string) (Movement, error)
}

func NewMovementChecker(cfg Config) MovementChecker {
	return newAnthropicOracle(cfg)
}

func (o *anthropicOracle) CheckMovement(ctx context.Context, person Person, companyHint string) (Movement, error) {
	fullName := strings.TrimSpace(person.FirstName + " " + person.LastName)
	company := person.CurrentCompany
	if company == "" {
		company = companyHint
	}

	prompt := fmt.Sprintf(`Search for recent news about %s, currently %s at %s.

Has this person recently changed jobs or companies, been promoted, or joined or left a board? Look at the last 90 days.

Return a JSON object:
{"movement_detected": true/false, "new_company": "...", "new_title": "...", "summary": "one sentence on what changed", "source_url": "...", "confidence": "High/Medium/Low"}

If no movement detected, return {"movement_detected": false}.`, fullName, person.Title, company)

	text, err := o.callWithWebSearch(ctx, prompt)
	if err != nil {
		return Movement{}, err
	}
	return parseMovement(text)
}

var movementScores = map[string]int{
	"high":   85,
	"medium": 70,
	"low":    55,
}

func movementScore(confidence string) int {
	if score, ok := movementScores[strings.ToLower(strings.TrimSpace(confidence))]; ok {
		return score
	}
	return 55
}

func parseMovement(text string) (Movement, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return Movement{}, fmt.Errorf("no JSON object in movement response (length=%d)", len(text))
	}
	var m Movement
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Movement{}, fmt.Errorf("parsing movement response: %w", err)
	}
	return m, nil
}

// RunPeopleSweep checks every active tracked person for executive
// movements. Each detected movement records the move, updates the person,
// and raises an exec_change signal through the normal promotion tiers.
// Per-person failures are logged and skipped.
func RunPeopleSweep(ctx context.Context, cfg Config, db *sql.DB, checker MovementChecker, notifier Notifier) (checked, found int, err error) {
	people, err := ListActivePeople(db)
	if err != nil {
		return 0, 0, fmt.Errorf("listing people: %w", err)
	}
	if len(people) == 0 {
		log.Println("people-sweep: no active people")
		return 0, 0, nil
	}

	for _, person := range people {
		checked++
		companyHint := ""
		if subject, err := GetSubjectByID(db, person.SubjectID); err == nil {
			companyHint = subject.Name
		}

		movement, err := checker.CheckMovement(ctx, person, companyHint)
		if err != nil {
			log.Printf("people-sweep person=%d error: %v", person.ID, err)
			continue
		}
		if !movement.Detected {
			continue
		}

		if recordMovementSignal(cfg, db, notifier, person, movement) {
			found++
		}
	}

	log.Printf("people-sweep checked=%d movements=%d", checked, found)
	return checked, found, nil
}

func recordMovementSignal(cfg Config, db *sql.DB, notifier Notifier, person Person, movement Movement) bool {
	fullName := strings.TrimSpace(person.FirstName + " " + person.LastName)
	score := movementScore(movement.Confidence)

	sourceURL := movement.SourceURL
	if sourceURL == "" {
		// Deterministic per person and day, so re-detection of the same
		// move within a day is a no-op on the signal uniqueness constraint.
		sourceURL = fmt.Sprintf("movement://person/%d/%s", person.ID, time.Now().UTC().Format("2006-01-02"))
	}

	signalID, already, err := InsertEventSignal(db, Signal{
		SubjectID:  person.SubjectID,
		Category:   CategoryExecChange,
		Title:      fmt.Sprintf("%s: %s", fullName, movement.Summary),
		Summary:    movement.Summary,
		SourceURL:  sourceURL,
		SourceName: "People Sweep",
		SourceType: "movement",
		Score:      score,
		Rationale:  fmt.Sprintf("Executive movement detected with %s confidence", movement.Confidence),
	})
	if err != nil {
		log.Printf("people-sweep person=%d signal error: %v", person.ID, err)
		return false
	}
	if already {
		log.Printf("people-sweep person=%d movement already recorded", person.ID)
		return false
	}

	_, err = RecordPersonMovement(db, PersonMovement{
		PersonID:    person.ID,
		FromCompany: person.CurrentCompany,
		FromTitle:   person.Title,
		ToCompany:   movement.NewCompany,
		ToTitle:     movement.NewTitle,
		SourceURL:   movement.SourceURL,
		SignalID:    signalID,
	})
	if err != nil {
		log.Printf("people-sweep person=%d movement record error: %v", person.ID, err)
	}

	if cfg.TierFor(score) == TierImmediate {
		dispatchImmediate(cfg, db, notifier, signalID)
	}
	return true
}
