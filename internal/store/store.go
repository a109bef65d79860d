// Package store persists fact rows, weekly briefings and logbook events.
// SQLiteStore is the system of record; MemoryStore backs tests and the
// demo mode. The aggregation core only ever reads row snapshots from
// here, it never writes.
package store

import (
	"context"
	"errors"

	"github.com/kpiboard/kpiboard/internal/models"
)

// ErrNotFound reports a missing briefing or recommendation.
var ErrNotFound = errors.New("store: not found")

// Store is the full contract both backends implement. Consumers depend
// on narrower interfaces (dash.Store, ingest.Sink); this one exists for
// wiring in main.
type Store interface {
	UpsertFacts(ctx context.Context, rows []models.FactRow) (int, error)
	QueryFacts(ctx context.Context, f models.Filter) ([]models.FactRow, error)
	AllFacts(ctx context.Context) ([]models.FactRow, error)
	CampaignOptions(ctx context.Context) ([]models.CampaignOption, error)

	SaveBriefing(ctx context.Context, b models.Briefing) (models.Briefing, error)
	LatestBriefing(ctx context.Context) (*models.Briefing, error)
	SetRecommendationStatus(ctx context.Context, briefingID string, index int, status string) (*models.Briefing, error)

	InsertEvent(ctx context.Context, e models.LogEvent) (models.LogEvent, error)
	ListEvents(ctx context.Context) ([]models.LogEvent, error)

	Ping(ctx context.Context) error
	Close() error
}
