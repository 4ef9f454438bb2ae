package main

import "time"

type Subject struct {
	ID          int64
	Name        string
	Category    string // "competitor", "target", or "partner"
	ThreatLevel string // "critical", "high", "monitor", "low"
	Status      string // "active" or "archived"
	CreatedAt   time.Time
}

// CandidateItem is a raw piece of content discovered by a connector.
// The URL is the sole cross-run dedup key: the store collapses repeat
// fetches of the same URL into one row.
type CandidateItem struct {
	ID          int64
	SubjectID   int64
	Headline    string
	Summary     string
	URL         string
	SourceName  string
	SourceType  string // "newsapi", "perplexity", "rss", "oracle_search", "movement"
	PublishedAt time.Time
	FetchedAt   time.Time
	Score       int // 0 = unscored
	Promoted    bool
	CreatedAt   time.Time
}

// Signal is a promoted, human-actionable item. Created exactly once per
// promoted candidate (or per detected person movement); immutable after
// creation except for the notified/status flags.
type Signal struct {
	ID            int64
	SubjectID     int64
	CandidateID   int64 // 0 for signals from non-candidate events
	Category      string
	Title         string
	Summary       string
	SourceURL     string
	SourceName    string
	SourceType    string
	SourceDate    time.Time
	Score         int
	Rationale     string
	DealRelevance string // account name, or empty
	Notified      bool
	BatchID       string
	Status        string // "new" or "reviewed"
	CreatedAt     time.Time
}

type Deal struct {
	ID          int64
	AccountName string
	Stage       string
	CreatedAt   time.Time
}

// PushFeedback records whether a human acted on a pushed signal.
// Append-only; consumed only in aggregate by calibration.
type PushFeedback struct {
	ID         int64
	SignalID   int64
	Action     string // "acted_on", "dismissed", or "ignored"
	ActionedAt time.Time
}

type Person struct {
	ID             int64
	SubjectID      int64
	FirstName      string
	LastName       string
	Title          string
	CurrentCompany string
	Status         string
	LastKnownMove  time.Time
	CreatedAt      time.Time
}

type PersonMovement struct {
	ID          int64
	PersonID    int64
	FromCompany string
	FromTitle   string
	ToCompany   string
	ToTitle     string
	SourceURL   string
	SignalID    int64
	DetectedAt  time.Time
}

// Signal categories. The oracle assigns all of these except
// email_mention, which only appears on rows written by external email
// importers; readers must still accept it.
const (
	CategoryNews          = "news"
	CategoryProductLaunch = "product_launch"
	CategoryExecChange    = "exec_change"
	CategoryHiring        = "hiring"
	CategoryPartnership   = "partnership"
	CategoryFunding       = "funding"
	CategoryCustomerWin   = "customer_win"
	CategoryEmailMention  = "email_mention"
)

var validCategories = map[string]bool{
	CategoryNews:          true,
	CategoryProductLaunch: true,
	CategoryExecChange:    true,
	CategoryHiring:        true,
	CategoryPartnership:   true,
	CategoryFunding:       true,
	CategoryCustomerWin:   true,
	CategoryEmailMention:  true,
}

func normalizeCategory(s string) string {
	if validCategories[s] {
		return s
	}
	return CategoryNews
}

// Tier is the urgency classification governing notification timing.
type Tier string

const (
	TierImmediate Tier = "immediate"  // alert synchronously at promotion time
	TierBatch     Tier = "batch"      // surfaced by the autonomy loop
	TierStoreOnly Tier = "store_only" // stored, never pushed
)

// TierFor derives the urgency tier from a score. Promotion and the
// autonomy loop both derive tiers through here so the thresholds cannot
// drift apart.
func (c Config) TierFor(score int) Tier {
	switch {
	case score >= c.ImmediateThreshold:
		return TierImmediate
	case score >= c.PromoteThreshold:
		return TierBatch
	default:
		return TierStoreOnly
	}
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 100 {
		return 100
	}
	return score
}
