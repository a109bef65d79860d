package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kpiboard/kpiboard/internal/models"
)

type factKey struct {
	date     string
	campaign string
	creative string
}

// MemoryStore keeps everything in process. Same contract as SQLiteStore;
// used by tests and as the demo fallback when no DB path is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	facts     map[factKey]models.FactRow
	briefings map[string]models.Briefing // keyed by week_start
	events    []models.LogEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		facts:     make(map[factKey]models.FactRow),
		briefings: make(map[string]models.Briefing),
	}
}

func (s *MemoryStore) UpsertFacts(_ context.Context, rows []models.FactRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range rows {
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = time.Now().UTC()
		}
		k := factKey{date: r.Date.Format(isoDate), campaign: r.CampaignID, creative: r.CreativeKey()}
		s.facts[k] = r
		n++
	}
	return n, nil
}

func (s *MemoryStore) QueryFacts(_ context.Context, f models.Filter) ([]models.FactRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.FactRow{}
	for _, r := range s.facts {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sortFacts(out)
	return out, nil
}

func (s *MemoryStore) AllFacts(_ context.Context) ([]models.FactRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FactRow, 0, len(s.facts))
	for _, r := range s.facts {
		out = append(out, r)
	}
	sortFacts(out)
	return out, nil
}

// sortFacts applies the same ordering the SQL store produces, so either
// backend feeds the engine rows in a reproducible order.
func sortFacts(rows []models.FactRow) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		if rows[i].CampaignID != rows[j].CampaignID {
			return rows[i].CampaignID < rows[j].CampaignID
		}
		return rows[i].CreativeKey() < rows[j].CreativeKey()
	})
}

func (s *MemoryStore) CampaignOptions(_ context.Context) ([]models.CampaignOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := map[string]*string{}
	for _, r := range s.facts {
		if r.CampaignID == "" {
			continue
		}
		if existing, ok := names[r.CampaignID]; !ok || (existing == nil && r.CampaignName != nil) {
			names[r.CampaignID] = r.CampaignName
		}
	}
	out := make([]models.CampaignOption, 0, len(names))
	for id, name := range names {
		out = append(out, models.CampaignOption{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveBriefing(_ context.Context, b models.Briefing) (models.Briefing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.briefings[b.WeekStart]; ok {
		b.ID = existing.ID
		b.CreatedAt = existing.CreatedAt
	} else {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		b.CreatedAt = now
	}
	if b.Status == models.BriefingPublished && b.PublishedAt == nil {
		b.PublishedAt = &now
	}
	b.UpdatedAt = now
	if b.Highlights == nil {
		b.Highlights = []string{}
	}
	if b.Insights == nil {
		b.Insights = []string{}
	}
	if b.Recommendations == nil {
		b.Recommendations = []models.Recommendation{}
	}
	if b.KPIComparisons == nil {
		b.KPIComparisons = map[string]any{}
	}
	s.briefings[b.WeekStart] = b
	return b, nil
}

func (s *MemoryStore) LatestBriefing(_ context.Context) (*models.Briefing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Briefing
	for week := range s.briefings {
		b := s.briefings[week]
		if latest == nil || b.WeekStart > latest.WeekStart {
			latest = &b
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	cp.Recommendations = append([]models.Recommendation(nil), latest.Recommendations...)
	return &cp, nil
}

func (s *MemoryStore) SetRecommendationStatus(_ context.Context, briefingID string, index int, status string) (*models.Briefing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for week, b := range s.briefings {
		if b.ID != briefingID {
			continue
		}
		if index < 0 || index >= len(b.Recommendations) {
			return nil, ErrNotFound
		}
		recs := append([]models.Recommendation(nil), b.Recommendations...)
		recs[index].Status = status
		b.Recommendations = recs
		b.UpdatedAt = time.Now().UTC()
		s.briefings[week] = b
		cp := b
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) InsertEvent(_ context.Context, e models.LogEvent) (models.LogEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.CreatedBy == "" {
		e.CreatedBy = "System"
	}
	s.events = append(s.events, e)
	return e, nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]models.LogEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.LogEvent(nil), s.events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }
