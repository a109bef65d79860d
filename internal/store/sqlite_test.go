package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpiboard/kpiboard/internal/models"
	"github.com/kpiboard/kpiboard/internal/store"
)

func openTestDB(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteFactRoundTrip(t *testing.T) {
	st := openTestDB(t)
	ctx := context.Background()

	n, err := st.UpsertFacts(ctx, []models.FactRow{
		{
			Date: day("2024-01-15"), CampaignID: "c1",
			CampaignName: strp("Lead Gen"), CreativeID: strp("cr1"), CreativeName: strp("Hero"),
			Impressions: 1000, Clicks: 20, Cost: 30, Leads: 2,
		},
		{Date: day("2024-01-16"), CampaignID: "c1", Impressions: 500, Clicks: 5, Cost: 10, Leads: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := st.AllFacts(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	got := rows[0]
	assert.Equal(t, "c1", got.CampaignID)
	require.NotNil(t, got.CreativeID)
	assert.Equal(t, "cr1", *got.CreativeID)
	assert.Equal(t, 1000, got.Impressions)
	assert.Equal(t, 30.0, got.Cost)
	assert.False(t, got.UpdatedAt.IsZero())

	assert.Nil(t, rows[1].CreativeID, "unattributed row reads back as nil creative")
}

func TestSQLiteUpsertConflictOnCreativeKey(t *testing.T) {
	st := openTestDB(t)
	ctx := context.Background()

	seed := models.FactRow{Date: day("2024-01-15"), CampaignID: "c1", CreativeID: strp("cr1"), Impressions: 100}
	_, err := st.UpsertFacts(ctx, []models.FactRow{seed})
	require.NoError(t, err)

	seed.Impressions = 999
	_, err = st.UpsertFacts(ctx, []models.FactRow{seed})
	require.NoError(t, err)

	// nil creative shares the campaign but not the key
	_, err = st.UpsertFacts(ctx, []models.FactRow{
		{Date: day("2024-01-15"), CampaignID: "c1", Impressions: 5},
	})
	require.NoError(t, err)

	rows, err := st.AllFacts(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// ordering: empty creative_key sorts before "cr1"
	assert.Equal(t, 5, rows[0].Impressions)
	assert.Equal(t, 999, rows[1].Impressions)
}

func TestSQLiteQueryFactsFilter(t *testing.T) {
	st := openTestDB(t)
	ctx := context.Background()

	_, err := st.UpsertFacts(ctx, []models.FactRow{
		{Date: day("2024-01-14"), CampaignID: "c1"},
		{Date: day("2024-01-15"), CampaignID: "c1"},
		{Date: day("2024-01-15"), CampaignID: "c2"},
		{Date: day("2024-01-22"), CampaignID: "c2"},
	})
	require.NoError(t, err)

	rows, err := st.QueryFacts(ctx, models.Filter{
		From: day("2024-01-15"), To: day("2024-01-21"), CampaignIDs: []string{"c2"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c2", rows[0].CampaignID)
	assert.Equal(t, day("2024-01-15"), rows[0].Date)

	options, err := st.CampaignOptions(ctx)
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, "c1", options[0].ID)
}

func TestSQLiteBriefingLifecycle(t *testing.T) {
	st := openTestDB(t)
	ctx := context.Background()

	draft, err := st.SaveBriefing(ctx, models.Briefing{
		WeekStart: "2024-01-15", WeekEnd: "2024-01-21", Summary: "v1",
		Highlights: []string{"CPL improved"},
		Status:     models.BriefingDraft,
		Recommendations: []models.Recommendation{
			{Action: "pause cr2", Reasoning: "CPL too high", Impact: models.ImpactHigh, Status: models.RecommendationPending},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, draft.ID)
	assert.Nil(t, draft.PublishedAt)

	published, err := st.SaveBriefing(ctx, models.Briefing{
		WeekStart: "2024-01-15", WeekEnd: "2024-01-21", Summary: "v2",
		Status: models.BriefingPublished,
		Recommendations: []models.Recommendation{
			{Action: "pause cr2", Reasoning: "CPL too high", Impact: models.ImpactHigh, Status: models.RecommendationPending},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, published.ID, "conflict on week_start keeps the original id")
	assert.Equal(t, "v2", published.Summary)
	require.NotNil(t, published.PublishedAt)

	updated, err := st.SetRecommendationStatus(ctx, published.ID, 0, models.RecommendationRejected)
	require.NoError(t, err)
	assert.Equal(t, models.RecommendationRejected, updated.Recommendations[0].Status)

	_, err = st.SetRecommendationStatus(ctx, published.ID, 9, models.RecommendationApproved)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.SetRecommendationStatus(ctx, "nope", 0, models.RecommendationApproved)
	assert.ErrorIs(t, err, store.ErrNotFound)

	latest, err := st.LatestBriefing(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.RecommendationRejected, latest.Recommendations[0].Status)
}

func TestSQLiteLatestBriefingEmpty(t *testing.T) {
	st := openTestDB(t)

	latest, err := st.LatestBriefing(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSQLiteEvents(t *testing.T) {
	st := openTestDB(t)
	ctx := context.Background()

	v := 250.0
	_, err := st.InsertEvent(ctx, models.LogEvent{
		Type: "budget_change", CampaignID: strp("c1"), Description: "raised daily cap",
		Value: &v, CreatedAt: day("2024-01-15"),
	})
	require.NoError(t, err)
	_, err = st.InsertEvent(ctx, models.LogEvent{
		Type: "note", Description: "creative swap scheduled", CreatedAt: day("2024-01-16"),
	})
	require.NoError(t, err)

	events, err := st.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "note", events[0].Type)
	assert.Nil(t, events[0].Value)
	require.NotNil(t, events[1].Value)
	assert.Equal(t, 250.0, *events[1].Value)
	assert.Equal(t, "System", events[1].CreatedBy)
}
