package kpi

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpiboard/kpiboard/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func strp(s string) *string { return &s }

func row(date, campaign string, creative *string, imp, clicks int, cost float64, leads int) models.FactRow {
	return models.FactRow{
		Date:        day(date),
		CampaignID:  campaign,
		CreativeID:  creative,
		Impressions: imp,
		Clicks:      clicks,
		Cost:        cost,
		Leads:       leads,
	}
}

func TestAggregateByEntityRatioOfSums(t *testing.T) {
	// Row A: 100 imp / 10 clicks (CTR 10%). Row B: 1 imp / 1 click
	// (CTR 100%). Mean of per-row CTRs would be 55%; the correct group
	// CTR is 11/101.
	rows := []models.FactRow{
		row("2024-01-15", "c1", nil, 100, 10, 0, 0),
		row("2024-01-16", "c1", nil, 1, 1, 0, 0),
	}

	got := AggregateByEntity(rows, ByCampaign)
	require.Len(t, got, 1)

	want := float64(11) / float64(101) * 100
	assert.InDelta(t, want, got[0].CTR, 1e-9)
	assert.Greater(t, math.Abs(got[0].CTR-55.0), 1.0, "mean-of-ratios leaked into aggregation")
}

func TestAggregateByEntityCampaigns(t *testing.T) {
	rows := []models.FactRow{
		{Date: day("2024-01-15"), CampaignID: "c1", CampaignName: strp("Lead Gen"), Impressions: 1000, Clicks: 50, Cost: 75, Leads: 5},
		{Date: day("2024-01-16"), CampaignID: "c1", Impressions: 500, Clicks: 25, Cost: 25, Leads: 5},
		{Date: day("2024-01-15"), CampaignID: "c2", Impressions: 200, Clicks: 2, Cost: 10, Leads: 0},
	}

	got := AggregateByEntity(rows, ByCampaign)
	require.Len(t, got, 2)

	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "Lead Gen", got[0].Name)
	assert.Equal(t, 1500, got[0].Impressions)
	assert.Equal(t, 75, got[0].Clicks)
	assert.InDelta(t, 100.0, got[0].Cost, 1e-9)
	assert.Equal(t, 10, got[0].Leads)
	assert.Equal(t, 2, got[0].Rows)
	assert.InDelta(t, 10.0, got[0].CPL, 1e-9)

	// no name supplied: id is the display fallback
	assert.Equal(t, "c2", got[1].ID)
	assert.Equal(t, "c2", got[1].Name)
	assert.Zero(t, got[1].CPL)
}

func TestAggregateByEntityUnattributedCreatives(t *testing.T) {
	rows := []models.FactRow{
		row("2024-01-15", "c1", strp("cr1"), 100, 10, 10, 1),
		row("2024-01-15", "c1", nil, 200, 20, 20, 2),
		row("2024-01-16", "c2", nil, 300, 30, 30, 3),
	}

	got := AggregateByEntity(rows, ByCreative)
	require.Len(t, got, 2)

	assert.Equal(t, "cr1", got[0].ID)

	un := got[1]
	assert.True(t, un.Unattributed)
	assert.Empty(t, un.ID)
	assert.Equal(t, "Unattributed", un.Name)
	assert.Equal(t, 500, un.Impressions)
	assert.Equal(t, 50, un.Clicks)
	assert.InDelta(t, 50.0, un.Cost, 1e-9)
	assert.Equal(t, 5, un.Leads)
}

func TestAggregateByEntityPerCampaignCreatives(t *testing.T) {
	// the same creative id under two campaigns, plus one unattributed
	// row in each campaign
	rows := []models.FactRow{
		row("2024-01-15", "c1", strp("cr-shared"), 100, 10, 10, 1),
		row("2024-01-15", "c2", strp("cr-shared"), 200, 20, 20, 2),
		row("2024-01-16", "c1", nil, 300, 30, 30, 3),
		row("2024-01-16", "c2", nil, 400, 40, 40, 4),
	}

	got := AggregateByEntity(rows, ByCampaignCreative)
	require.Len(t, got, 4)

	assert.Equal(t, "cr-shared", got[0].ID)
	assert.Equal(t, "c1", got[0].CampaignID)
	assert.Equal(t, 100, got[0].Impressions)

	assert.Equal(t, "cr-shared", got[1].ID)
	assert.Equal(t, "c2", got[1].CampaignID)
	assert.Equal(t, 200, got[1].Impressions)

	assert.True(t, got[2].Unattributed)
	assert.Equal(t, "c1", got[2].CampaignID)
	assert.Equal(t, 300, got[2].Impressions)

	assert.True(t, got[3].Unattributed)
	assert.Equal(t, "c2", got[3].CampaignID)
	assert.Equal(t, 400, got[3].Impressions)

	// ByCreative still merges across campaigns
	merged := AggregateByEntity(rows, ByCreative)
	require.Len(t, merged, 2)
	assert.Equal(t, 300, merged[0].Impressions)
	assert.Equal(t, 700, merged[1].Impressions)
}

func TestAggregateByEntitySkipsRowsWithoutCampaign(t *testing.T) {
	rows := []models.FactRow{
		row("2024-01-15", "", nil, 100, 10, 10, 1),
		row("2024-01-15", "c1", nil, 50, 5, 5, 1),
	}

	for _, kind := range []EntityKind{ByCampaign, ByCreative, ByCampaignCreative} {
		got := AggregateByEntity(rows, kind)
		require.Len(t, got, 1)
		assert.Equal(t, 50, got[0].Impressions)
	}
}

func TestAggregateByEntityFirstNameWins(t *testing.T) {
	rows := []models.FactRow{
		{Date: day("2024-01-15"), CampaignID: "c1", Impressions: 1},
		{Date: day("2024-01-16"), CampaignID: "c1", CampaignName: strp("First"), Impressions: 1},
		{Date: day("2024-01-17"), CampaignID: "c1", CampaignName: strp("Second"), Impressions: 1},
	}

	got := AggregateByEntity(rows, ByCampaign)
	require.Len(t, got, 1)
	assert.Equal(t, "First", got[0].Name)
}

func TestAggregateByTimeSortsByDate(t *testing.T) {
	rows := []models.FactRow{
		row("2024-01-17", "c1", nil, 300, 30, 30, 3),
		row("2024-01-15", "c1", nil, 100, 10, 10, 1),
		row("2024-01-16", "c2", nil, 200, 20, 20, 2),
		row("2024-01-15", "c2", nil, 50, 5, 5, 0),
	}

	got := AggregateByTime(rows, DailyKey)
	require.Len(t, got, 3)

	assert.Equal(t, []string{"2024-01-15", "2024-01-16", "2024-01-17"},
		[]string{got[0].Key, got[1].Key, got[2].Key})

	// 2024-01-15 merges two campaigns
	assert.Equal(t, 150, got[0].Impressions)
	assert.Equal(t, 15, got[0].Clicks)
	assert.Equal(t, 2, got[0].Rows)
	assert.InDelta(t, 10.0, got[0].CTR, 1e-9)
	assert.InDelta(t, 15.0, got[0].CPL, 1e-9)
}

func TestAggregateByTimeISOWeek(t *testing.T) {
	rows := []models.FactRow{
		row("2024-01-08", "c1", nil, 100, 10, 10, 1), // W02
		row("2024-01-14", "c1", nil, 100, 10, 10, 1), // W02 (Sunday)
		row("2024-01-15", "c1", nil, 100, 10, 10, 1), // W03
	}

	got := AggregateByTime(rows, ISOWeekKey)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-W02", got[0].Key)
	assert.Equal(t, 200, got[0].Impressions)
	assert.Equal(t, "2024-W03", got[1].Key)
}

func TestAggregateByTimeZeroImpressionsBucket(t *testing.T) {
	got := AggregateByTime([]models.FactRow{row("2024-01-15", "c1", nil, 0, 0, 12.5, 0)}, DailyKey)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].CTR)
	assert.Zero(t, got[0].CPM)
	assert.Zero(t, got[0].CPC)
	assert.Zero(t, got[0].CVR)
	assert.Zero(t, got[0].CPL)
}

func TestSummarize(t *testing.T) {
	rows := []models.FactRow{
		row("2024-01-15", "c1", nil, 1000, 100, 150, 10),
		row("2024-01-16", "c2", strp("cr1"), 1000, 100, 50, 10),
	}

	got := Summarize(rows)
	assert.Equal(t, 2000, got.Impressions)
	assert.Equal(t, 200, got.Clicks)
	assert.InDelta(t, 200.0, got.Cost, 1e-9)
	assert.Equal(t, 20, got.Leads)
	assert.Equal(t, 2, got.Rows)
	assert.InDelta(t, 10.0, got.CTR, 1e-9)
	assert.InDelta(t, 10.0, got.CPL, 1e-9)
}

func TestAggregationDeterminism(t *testing.T) {
	rows := []models.FactRow{
		row("2024-01-16", "c2", strp("cr2"), 500, 25, 40, 2),
		row("2024-01-15", "c1", strp("cr1"), 1000, 100, 150, 10),
		row("2024-01-15", "c1", nil, 200, 10, 15, 1),
	}

	assert.Equal(t, AggregateByTime(rows, DailyKey), AggregateByTime(rows, DailyKey))
	assert.Equal(t, AggregateByEntity(rows, ByCampaign), AggregateByEntity(rows, ByCampaign))
	assert.Equal(t, AggregateByEntity(rows, ByCreative), AggregateByEntity(rows, ByCreative))
	assert.Equal(t, Summarize(rows), Summarize(rows))
}

func TestAggregationEmptyInput(t *testing.T) {
	assert.Empty(t, AggregateByTime(nil, DailyKey))
	assert.Empty(t, AggregateByTime([]models.FactRow{}, WeekdayKey))
	assert.Empty(t, AggregateByEntity(nil, ByCampaign))
	assert.Empty(t, AggregateByEntity([]models.FactRow{}, ByCreative))
	assert.Empty(t, RankEntities(nil, MetricCPL, Ascending, 3))

	sum := Summarize(nil)
	assert.Zero(t, sum.Rows)
	assert.Zero(t, sum.CPL)
}
