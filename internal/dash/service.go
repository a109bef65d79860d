// Package dash assembles the dashboard views: each view is one row fetch
// from the store followed by a pure recompute in the kpi core. The
// service holds no state between calls; filters are passed in by the
// caller on every request.
package dash

import (
	"context"
	"time"

	"github.com/kpiboard/kpiboard/internal/kpi"
	"github.com/kpiboard/kpiboard/internal/models"
)

// Store is the row source and journal the views read from.
type Store interface {
	QueryFacts(ctx context.Context, f models.Filter) ([]models.FactRow, error)
	AllFacts(ctx context.Context) ([]models.FactRow, error)
	CampaignOptions(ctx context.Context) ([]models.CampaignOption, error)
	LatestBriefing(ctx context.Context) (*models.Briefing, error)
	SetRecommendationStatus(ctx context.Context, briefingID string, index int, status string) (*models.Briefing, error)
	InsertEvent(ctx context.Context, e models.LogEvent) (models.LogEvent, error)
	ListEvents(ctx context.Context) ([]models.LogEvent, error)
}

type Service struct{ st Store }

func NewService(st Store) *Service { return &Service{st: st} }

// Totals is the headline KPI card block.
type Totals struct {
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	Cost        float64 `json:"cost"`
	Leads       int     `json:"leads"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
	CPM         float64 `json:"cpm"`
	CVR         float64 `json:"cvr"`
	CPL         float64 `json:"cpl"`
	Rows        int     `json:"entries"`
}

func totalsFrom(r kpi.Rollup) Totals {
	return Totals{
		Impressions: r.Impressions, Clicks: r.Clicks, Cost: r.Cost, Leads: r.Leads,
		CTR: r.CTR, CPC: r.CPC, CPM: r.CPM, CVR: r.CVR, CPL: r.CPL, Rows: r.Rows,
	}
}

// EntityRow is one leaderboard/table line.
type EntityRow struct {
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name"`
	Unattributed bool    `json:"unattributed,omitempty"`
	CampaignID   string  `json:"campaign_id,omitempty"`
	CampaignName string  `json:"campaign_name,omitempty"`
	Impressions  int     `json:"impressions"`
	Clicks       int     `json:"clicks"`
	Cost         float64 `json:"cost"`
	Leads        int     `json:"leads"`
	CTR          float64 `json:"ctr"`
	CPC          float64 `json:"cpc"`
	CPM          float64 `json:"cpm"`
	CVR          float64 `json:"cvr"`
	CPL          float64 `json:"cpl"`
	Rows         int     `json:"entries"`
}

func entityRows(rollups []kpi.EntityRollup) []EntityRow {
	out := make([]EntityRow, 0, len(rollups))
	for _, e := range rollups {
		out = append(out, EntityRow{
			ID: e.ID, Name: e.Name, Unattributed: e.Unattributed,
			CampaignID: e.CampaignID, CampaignName: e.CampaignName,
			Impressions: e.Impressions, Clicks: e.Clicks, Cost: e.Cost, Leads: e.Leads,
			CTR: e.CTR, CPC: e.CPC, CPM: e.CPM, CVR: e.CVR, CPL: e.CPL, Rows: e.Rows,
		})
	}
	return out
}

type AllTimeView struct {
	Totals       Totals      `json:"totals"`
	TopCampaigns []EntityRow `json:"top_campaigns"`
	TopCreatives []EntityRow `json:"top_creatives"`
	LastUpdated  *time.Time  `json:"last_updated,omitempty"`
}

const allTimeLeaderboardSize = 6

// AllTime aggregates every stored row: account totals plus the campaigns
// and creatives with the most leads. Unattributed rows count toward the
// totals but not the creative leaderboard.
func (s *Service) AllTime(ctx context.Context) (AllTimeView, error) {
	rows, err := s.st.AllFacts(ctx)
	if err != nil {
		return AllTimeView{}, err
	}

	campaigns := kpi.RankEntities(kpi.AggregateByEntity(rows, kpi.ByCampaign),
		kpi.MetricLeads, kpi.Descending, allTimeLeaderboardSize)

	creatives := []kpi.EntityRollup{}
	for _, e := range kpi.AggregateByEntity(rows, kpi.ByCreative) {
		if !e.Unattributed {
			creatives = append(creatives, e)
		}
	}
	creatives = kpi.RankEntities(creatives, kpi.MetricLeads, kpi.Descending, allTimeLeaderboardSize)

	return AllTimeView{
		Totals:       totalsFrom(kpi.Summarize(rows)),
		TopCampaigns: entityRows(campaigns),
		TopCreatives: entityRows(creatives),
		LastUpdated:  lastUpdated(rows),
	}, nil
}

// ChartPoint is one day of the weekly trend series.
type ChartPoint struct {
	Date        string  `json:"date"`
	Weekday     string  `json:"weekday"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	Cost        float64 `json:"cost"`
	Leads       int     `json:"leads"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
	CPM         float64 `json:"cpm"`
	CVR         float64 `json:"cvr"`
	CPL         float64 `json:"cpl"`
}

type WeeklyView struct {
	Chart       []ChartPoint     `json:"chart"`
	Campaigns   []EntityRow      `json:"campaigns"`
	Briefing    *models.Briefing `json:"briefing,omitempty"`
	LastUpdated *time.Time       `json:"last_updated,omitempty"`
}

// Weekly builds the per-day trend and per-campaign rollups for the
// filtered range, alongside the most recent briefing.
func (s *Service) Weekly(ctx context.Context, f models.Filter) (WeeklyView, error) {
	rows, err := s.st.QueryFacts(ctx, f)
	if err != nil {
		return WeeklyView{}, err
	}

	buckets := kpi.AggregateByTime(rows, kpi.DailyKey)
	chart := make([]ChartPoint, 0, len(buckets))
	for _, b := range buckets {
		chart = append(chart, ChartPoint{
			Date: b.Key, Weekday: kpi.WeekdayKey(b.Date),
			Impressions: b.Impressions, Clicks: b.Clicks, Cost: b.Cost, Leads: b.Leads,
			CTR: b.CTR, CPC: b.CPC, CPM: b.CPM, CVR: b.CVR, CPL: b.CPL,
		})
	}

	briefing, err := s.st.LatestBriefing(ctx)
	if err != nil {
		return WeeklyView{}, err
	}

	return WeeklyView{
		Chart:       chart,
		Campaigns:   entityRows(kpi.AggregateByEntity(rows, kpi.ByCampaign)),
		Briefing:    briefing,
		LastUpdated: lastUpdated(rows),
	}, nil
}

type DeepDiveView struct {
	Creatives   []EntityRow             `json:"creatives"`
	Top         []EntityRow             `json:"top_performers"`
	Bottom      []EntityRow             `json:"bottom_performers"`
	Campaigns   []models.CampaignOption `json:"campaign_options"`
	LastUpdated *time.Time              `json:"last_updated,omitempty"`
}

const deepDivePodiumSize = 3

// DeepDive ranks creatives in the filtered range by CPL ascending and
// picks the best and worst three. Creatives are kept per campaign: a
// creative reused by two campaigns is two board rows, and each campaign
// has its own unattributed bucket rather than losing those rows.
func (s *Service) DeepDive(ctx context.Context, f models.Filter) (DeepDiveView, error) {
	rows, err := s.st.QueryFacts(ctx, f)
	if err != nil {
		return DeepDiveView{}, err
	}

	ranked := kpi.RankEntities(kpi.AggregateByEntity(rows, kpi.ByCampaignCreative),
		kpi.MetricCPL, kpi.Ascending, 0)
	top, bottom := kpi.TopBottom(ranked, kpi.MetricCPL, deepDivePodiumSize)

	options, err := s.st.CampaignOptions(ctx)
	if err != nil {
		return DeepDiveView{}, err
	}

	return DeepDiveView{
		Creatives:   entityRows(ranked),
		Top:         entityRows(top),
		Bottom:      entityRows(bottom),
		Campaigns:   options,
		LastUpdated: lastUpdated(rows),
	}, nil
}

// RowView is a raw fact row as the daily table renders it, with its
// rates derived through the shared derivation rather than read back from
// storage.
type RowView struct {
	Date         string   `json:"date"`
	CampaignID   string   `json:"campaign_id"`
	CampaignName *string  `json:"campaign_name,omitempty"`
	CreativeID   *string  `json:"creative_id,omitempty"`
	CreativeName *string  `json:"creative_name,omitempty"`
	Impressions  int      `json:"impressions"`
	Clicks       int      `json:"clicks"`
	Cost         float64  `json:"cost"`
	Leads        int      `json:"leads"`
	CTR          float64  `json:"ctr"`
	CPC          float64  `json:"cpc"`
	CPM          float64  `json:"cpm"`
	CVR          float64  `json:"cvr"`
	CPL          float64  `json:"cpl"`
}

type DailyView struct {
	Rows   []RowView `json:"rows"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

const defaultDailyPageSize = 25

// Daily lists the filtered raw rows with pagination.
func (s *Service) Daily(ctx context.Context, f models.Filter, limit, offset int) (DailyView, error) {
	rows, err := s.st.QueryFacts(ctx, f)
	if err != nil {
		return DailyView{}, err
	}

	views := make([]RowView, 0, len(rows))
	for _, r := range rows {
		rt := kpi.RowRatios(r)
		views = append(views, RowView{
			Date: r.Date.Format("2006-01-02"), CampaignID: r.CampaignID,
			CampaignName: r.CampaignName, CreativeID: r.CreativeID, CreativeName: r.CreativeName,
			Impressions: r.Impressions, Clicks: r.Clicks, Cost: r.Cost, Leads: r.Leads,
			CTR: rt.CTR, CPC: rt.CPC, CPM: rt.CPM, CVR: rt.CVR, CPL: rt.CPL,
		})
	}

	if limit <= 0 {
		limit = defaultDailyPageSize
	}
	limit, offset = clampLimitOffset(limit, offset, len(views))
	return DailyView{
		Rows:   paginate(views, limit, offset),
		Total:  len(views),
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (s *Service) Campaigns(ctx context.Context) ([]models.CampaignOption, error) {
	return s.st.CampaignOptions(ctx)
}

func (s *Service) LatestBriefing(ctx context.Context) (*models.Briefing, error) {
	return s.st.LatestBriefing(ctx)
}

func (s *Service) SetRecommendationStatus(ctx context.Context, briefingID string, index int, status string) (*models.Briefing, error) {
	return s.st.SetRecommendationStatus(ctx, briefingID, index, status)
}

func (s *Service) Events(ctx context.Context) ([]models.LogEvent, error) {
	return s.st.ListEvents(ctx)
}

func (s *Service) AddEvent(ctx context.Context, e models.LogEvent) (models.LogEvent, error) {
	return s.st.InsertEvent(ctx, e)
}

func lastUpdated(rows []models.FactRow) *time.Time {
	var latest *time.Time
	for _, r := range rows {
		if r.UpdatedAt.IsZero() {
			continue
		}
		if latest == nil || r.UpdatedAt.After(*latest) {
			t := r.UpdatedAt
			latest = &t
		}
	}
	return latest
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func clampLimitOffset(limit, offset, n int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = n
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset > n {
		offset = n
	}
	return limit, offset
}
