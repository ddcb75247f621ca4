// CLAUDE:SUMMARY All store data types: User, Idea, SeenRecord, Competitor, ScanRun, IdeaResults.
package store

// User is an email address that submitted at least one idea.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at"`
}

// Idea is a submitted product concept.
type Idea struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	Description   string  `json:"description"`
	Image         []byte  `json:"-"`
	ImageMIME     string  `json:"image_mime,omitempty"`
	ConceptsJSON  *string `json:"concepts,omitempty"` // nil until first extraction
	Monitoring    bool    `json:"monitoring"`
	MonitorUntil  *int64  `json:"monitor_until,omitempty"`
	LastCheckedAt *int64  `json:"last_checked_at,omitempty"`
	CreatedAt     int64   `json:"created_at"`
}

// SeenRecord is one ledger entry.
type SeenRecord struct {
	IdeaID      string `json:"idea_id"`
	Fingerprint string `json:"fingerprint"`
	URL         string `json:"url"`
	Relevant    bool   `json:"relevant"`
	FirstSeenAt int64  `json:"first_seen_at"`
	LastSeenAt  int64  `json:"last_seen_at"`
}

// Competitor is a listing that cleared the similarity threshold.
type Competitor struct {
	ID           string   `json:"id"`
	IdeaID       string   `json:"idea_id"`
	ProductName  string   `json:"product_name"`
	Source       string   `json:"source"`
	URL          string   `json:"url"`
	Price        *float64 `json:"price,omitempty"`
	Score        int      `json:"score"`
	Reasoning    string   `json:"reasoning"`
	Advantage    string   `json:"advantage,omitempty"`
	Feedback     *bool    `json:"feedback,omitempty"` // nil = unset
	FeedbackAt   *int64   `json:"feedback_at,omitempty"`
	DiscoveredAt int64    `json:"discovered_at"`
}

// ScanRun records the progress of one runScan invocation.
type ScanRun struct {
	ID            string `json:"id"`
	IdeaID        string `json:"idea_id"`
	State         string `json:"state"`
	Query         string `json:"query"`
	RawCount      int    `json:"raw_count"`
	FilteredCount int    `json:"filtered_count"`
	LedgerHits    int    `json:"ledger_hits"`
	ScoredCount   int    `json:"scored_count"`
	NewCount      int    `json:"new_count"`
	Notified      bool   `json:"notified"`
	Error         string `json:"error,omitempty"`
	StartedAt     int64  `json:"started_at"`
	FinishedAt    *int64 `json:"finished_at,omitempty"`
}

// IdeaResults groups an idea with its competitors, best match first.
type IdeaResults struct {
	Idea        *Idea         `json:"idea"`
	Competitors []*Competitor `json:"competitors"`
}
