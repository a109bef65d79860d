package store

import (
	"context"
	"time"

	"github.com/kpiboard/kpiboard/internal/models"
)

type seedCreative struct {
	id       string
	campaign string
	name     string
}

var seedCampaigns = map[string]string{
	"campaign-1": "B2B Lead Generation Q4",
	"campaign-2": "Brand Awareness Campaign",
	"campaign-3": "Product Launch Campaign",
	"campaign-4": "Retargeting Campaign",
}

var seedCreatives = []seedCreative{
	{"creative-1", "campaign-1", "Tech Innovation Headline"},
	{"creative-2", "campaign-1", "Data Analytics Video"},
	{"creative-3", "campaign-2", "Brand Story Carousel"},
	{"creative-4", "campaign-3", "Product Demo Image"},
}

// Seed loads deterministic demo rows for the seven days ending at base,
// so the dashboard renders something without a configured ingest source.
func Seed(ctx context.Context, s Store, base time.Time) error {
	base = base.UTC().Truncate(24 * time.Hour)
	rows := []models.FactRow{}
	for d := 0; d < 7; d++ {
		date := base.AddDate(0, 0, -d)
		for i, cr := range seedCreatives {
			campaignName := seedCampaigns[cr.campaign]
			creativeID := cr.id
			creativeName := cr.name
			imp := 9000 + 1500*i + 400*d
			clicks := 180 + 30*i + 8*d
			rows = append(rows, models.FactRow{
				Date:         date,
				CampaignID:   cr.campaign,
				CampaignName: &campaignName,
				CreativeID:   &creativeID,
				CreativeName: &creativeName,
				Impressions:  imp,
				Clicks:       clicks,
				Cost:         float64(clicks) * 1.5,
				Leads:        4 + i + d%3,
			})
		}
		// one unattributed campaign-level row per day
		name := seedCampaigns["campaign-4"]
		rows = append(rows, models.FactRow{
			Date:         date,
			CampaignID:   "campaign-4",
			CampaignName: &name,
			Impressions:  4000 + 200*d,
			Clicks:       60 + 5*d,
			Cost:         95 + 7.5*float64(d),
			Leads:        2 + d%2,
		})
	}
	if _, err := s.UpsertFacts(ctx, rows); err != nil {
		return err
	}

	weekStart := base.AddDate(0, 0, -6)
	_, err := s.SaveBriefing(ctx, models.Briefing{
		WeekStart: weekStart.Format(isoDate),
		WeekEnd:   base.Format(isoDate),
		Summary:   "Lead generation up week over week at stable CPL.",
		Highlights: []string{
			"B2B Lead Generation Q4 drives the lowest CPL of the account.",
		},
		Insights: []string{
			"Carousel creatives outperform static images on CTR.",
		},
		Recommendations: []models.Recommendation{
			{
				Action:    "Shift 10% of awareness budget into lead generation",
				Reasoning: "CPL trend favors performance campaigns this week",
				Impact:    models.ImpactMedium,
				Status:    models.RecommendationPending,
			},
		},
		Status: models.BriefingDraft,
	})
	return err
}
