package models

import "time"

// FactRow is one observed day of performance for a campaign, optionally
// attributed to a single creative. A nil CreativeID means the row is
// campaign-level and unattributed. Rows are immutable once ingested and
// uniquely identified by (date, campaign id, creative id-or-absent).
type FactRow struct {
	Date         time.Time
	CampaignID   string
	CampaignName *string
	CreativeID   *string
	CreativeName *string
	Impressions  int
	Clicks       int
	Cost         float64
	Leads        int
	UpdatedAt    time.Time
}

// CreativeKey is the storage key for the creative dimension: the creative
// id, or "" for unattributed rows. It exists only at the persistence
// boundary; the model itself keeps absence explicit via the nil pointer.
func (r FactRow) CreativeKey() string {
	if r.CreativeID != nil {
		return *r.CreativeID
	}
	return ""
}

// Filter selects fact rows by inclusive date range and optional campaign
// set (empty = all). Owned by the caller; the engine never holds one.
type Filter struct {
	From        time.Time
	To          time.Time
	CampaignIDs []string
}

func (f Filter) Matches(r FactRow) bool {
	if r.Date.Before(f.From) || r.Date.After(f.To) {
		return false
	}
	if len(f.CampaignIDs) == 0 {
		return true
	}
	for _, id := range f.CampaignIDs {
		if id == r.CampaignID {
			return true
		}
	}
	return false
}

type CampaignOption struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
}

// Recommendation impact and status values.
const (
	ImpactLow    = "low"
	ImpactMedium = "medium"
	ImpactHigh   = "high"

	RecommendationPending  = "pending"
	RecommendationApproved = "approved"
	RecommendationRejected = "rejected"
)

func ValidImpact(s string) bool {
	return s == ImpactLow || s == ImpactMedium || s == ImpactHigh
}

func ValidRecommendationStatus(s string) bool {
	return s == RecommendationPending || s == RecommendationApproved || s == RecommendationRejected
}

type Recommendation struct {
	ID        string `json:"id,omitempty"`
	Action    string `json:"action"`
	Reasoning string `json:"reasoning"`
	Impact    string `json:"impact"`
	Status    string `json:"status"`
}

// Briefing statuses.
const (
	BriefingDraft     = "draft"
	BriefingPublished = "published"
)

// Briefing is the weekly free-text summary a human or upstream system
// writes against the numeric rollups. Week bounds are ISO calendar dates.
type Briefing struct {
	ID              string           `json:"id"`
	WeekStart       string           `json:"week_start"`
	WeekEnd         string           `json:"week_end"`
	Summary         string           `json:"summary"`
	Highlights      []string         `json:"highlights"`
	Insights        []string         `json:"insights"`
	KPIComparisons  map[string]any   `json:"kpi_comparisons"`
	Recommendations []Recommendation `json:"recommendations"`
	Status          string           `json:"status"`
	RawPayload      map[string]any   `json:"-"`
	PublishedAt     *time.Time       `json:"published_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Logbook event types mirror the dashboard journal.
var eventTypes = map[string]struct{}{
	"campaign_created":  {},
	"campaign_paused":   {},
	"budget_updated":    {},
	"creative_rotation": {},
	"bid_adjustment":    {},
	"budget_change":     {},
	"bid_change":        {},
	"note":              {},
}

func ValidEventType(s string) bool {
	_, ok := eventTypes[s]
	return ok
}

type LogEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	CampaignID  *string   `json:"campaign_id,omitempty"`
	Description string    `json:"description"`
	Value       *float64  `json:"value,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}
