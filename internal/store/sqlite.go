package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kpiboard/kpiboard/internal/kpi"
	"github.com/kpiboard/kpiboard/internal/models"
	"github.com/kpiboard/kpiboard/internal/utils"
)

// creative_key materializes the nullable creative id ('' = unattributed)
// so the upsert conflict target matches the row identity.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS fact_daily (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		campaign_id TEXT NOT NULL,
		campaign_name TEXT,
		creative_id TEXT,
		creative_key TEXT NOT NULL DEFAULT '',
		creative_name TEXT,
		impressions INTEGER NOT NULL DEFAULT 0,
		clicks INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		leads INTEGER NOT NULL DEFAULT 0,
		ctr REAL NOT NULL DEFAULT 0,
		cpc REAL NOT NULL DEFAULT 0,
		cpm REAL NOT NULL DEFAULT 0,
		cvr REAL NOT NULL DEFAULT 0,
		cpl REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		UNIQUE(date, campaign_id, creative_key)
	)`,
	`CREATE TABLE IF NOT EXISTS weekly_briefings (
		id TEXT PRIMARY KEY,
		week_start TEXT NOT NULL UNIQUE,
		week_end TEXT NOT NULL,
		summary TEXT NOT NULL,
		highlights TEXT NOT NULL DEFAULT '[]',
		insights TEXT NOT NULL DEFAULT '[]',
		kpi_comparisons TEXT NOT NULL DEFAULT '{}',
		recommendations TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'draft',
		raw_payload TEXT NOT NULL DEFAULT '{}',
		published_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		campaign_id TEXT,
		description TEXT NOT NULL,
		value REAL,
		created_by TEXT NOT NULL DEFAULT 'System',
		created_at TEXT NOT NULL
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_fact_daily_date ON fact_daily(date)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_daily_campaign ON fact_daily(campaign_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)`,
}

type SQLiteStore struct{ db *sql.DB }

// OpenSQLite opens (creating if needed) the database at path and ensures
// the schema exists. The ping is retried with exponential backoff to ride
// out slow cold starts on networked volumes.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := utils.NewBackoff(100*time.Millisecond, 3).Do(func(int) error { return db.Ping() }); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	for _, q := range tables {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	for _, q := range indexes {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

const isoDate = "2006-01-02"

// UpsertFacts writes denormalized row snapshots, replacing prior values
// for the same (date, campaign, creative) key. Stored ratio columns are
// recomputed from the row's own sums so they can never disagree with the
// aggregation core.
func (s *SQLiteStore) UpsertFacts(ctx context.Context, rows []models.FactRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fact_daily
		(date, campaign_id, campaign_name, creative_id, creative_key, creative_name,
		 impressions, clicks, cost, leads, ctr, cpc, cpm, cvr, cpl, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, campaign_id, creative_key) DO UPDATE SET
		 campaign_name = excluded.campaign_name,
		 creative_name = excluded.creative_name,
		 impressions = excluded.impressions,
		 clicks = excluded.clicks,
		 cost = excluded.cost,
		 leads = excluded.leads,
		 ctr = excluded.ctr,
		 cpc = excluded.cpc,
		 cpm = excluded.cpm,
		 cvr = excluded.cvr,
		 cpl = excluded.cpl,
		 updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, r := range rows {
		rt := kpi.RowRatios(r)
		updated := r.UpdatedAt
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			r.Date.Format(isoDate), r.CampaignID, r.CampaignName,
			r.CreativeID, r.CreativeKey(), r.CreativeName,
			r.Impressions, r.Clicks, r.Cost, r.Leads,
			rt.CTR, rt.CPC, rt.CPM, rt.CVR, rt.CPL,
			updated.Format(time.RFC3339))
		if err != nil {
			return 0, fmt.Errorf("upsert fact row: %w", err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return n, nil
}

const factColumns = `date, campaign_id, campaign_name, creative_id, creative_name,
	impressions, clicks, cost, leads, updated_at`

func (s *SQLiteStore) QueryFacts(ctx context.Context, f models.Filter) ([]models.FactRow, error) {
	q := `SELECT ` + factColumns + ` FROM fact_daily WHERE date >= ? AND date <= ?`
	args := []any{f.From.Format(isoDate), f.To.Format(isoDate)}
	if len(f.CampaignIDs) > 0 {
		q += ` AND campaign_id IN (?` + strings.Repeat(",?", len(f.CampaignIDs)-1) + `)`
		for _, id := range f.CampaignIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY date, campaign_id, creative_key`
	return s.selectFacts(ctx, q, args...)
}

func (s *SQLiteStore) AllFacts(ctx context.Context) ([]models.FactRow, error) {
	return s.selectFacts(ctx, `SELECT `+factColumns+` FROM fact_daily ORDER BY date, campaign_id, creative_key`)
}

func (s *SQLiteStore) selectFacts(ctx context.Context, q string, args ...any) ([]models.FactRow, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	out := []models.FactRow{}
	for rows.Next() {
		var (
			r        models.FactRow
			date     string
			updated  string
			campName sql.NullString
			crID     sql.NullString
			crName   sql.NullString
		)
		if err := rows.Scan(&date, &r.CampaignID, &campName, &crID, &crName,
			&r.Impressions, &r.Clicks, &r.Cost, &r.Leads, &updated); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		if r.Date, err = time.Parse(isoDate, date); err != nil {
			return nil, fmt.Errorf("parse fact date %q: %w", date, err)
		}
		if t, err := time.Parse(time.RFC3339, updated); err == nil {
			r.UpdatedAt = t
		}
		r.CampaignName = nullableString(campName)
		r.CreativeID = nullableString(crID)
		r.CreativeName = nullableString(crName)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CampaignOptions lists the distinct campaigns present in fact rows, for
// the dashboard filter dropdown.
func (s *SQLiteStore) CampaignOptions(ctx context.Context) ([]models.CampaignOption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, MAX(campaign_name) FROM fact_daily GROUP BY campaign_id ORDER BY campaign_id`)
	if err != nil {
		return nil, fmt.Errorf("query campaign options: %w", err)
	}
	defer rows.Close()

	out := []models.CampaignOption{}
	for rows.Next() {
		var (
			o    models.CampaignOption
			name sql.NullString
		)
		if err := rows.Scan(&o.ID, &name); err != nil {
			return nil, fmt.Errorf("scan campaign option: %w", err)
		}
		o.Name = nullableString(name)
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveBriefing upserts by week_start, keeping the id and created_at of an
// existing record for that week.
func (s *SQLiteStore) SaveBriefing(ctx context.Context, b models.Briefing) (models.Briefing, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if b.Status == models.BriefingPublished && b.PublishedAt == nil {
		b.PublishedAt = &now
	}
	highlights, _ := json.Marshal(emptyIfNil(b.Highlights))
	insights, _ := json.Marshal(emptyIfNil(b.Insights))
	comparisons, _ := json.Marshal(emptyMapIfNil(b.KPIComparisons))
	recs, _ := json.Marshal(b.Recommendations)
	raw, _ := json.Marshal(emptyMapIfNil(b.RawPayload))
	if b.Recommendations == nil {
		recs = []byte("[]")
	}

	var publishedAt any
	if b.PublishedAt != nil {
		publishedAt = b.PublishedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO weekly_briefings
		(id, week_start, week_end, summary, highlights, insights, kpi_comparisons,
		 recommendations, status, raw_payload, published_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(week_start) DO UPDATE SET
		 week_end = excluded.week_end,
		 summary = excluded.summary,
		 highlights = excluded.highlights,
		 insights = excluded.insights,
		 kpi_comparisons = excluded.kpi_comparisons,
		 recommendations = excluded.recommendations,
		 status = excluded.status,
		 raw_payload = excluded.raw_payload,
		 published_at = excluded.published_at,
		 updated_at = excluded.updated_at`,
		b.ID, b.WeekStart, b.WeekEnd, b.Summary, string(highlights), string(insights),
		string(comparisons), string(recs), b.Status, string(raw), publishedAt,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return models.Briefing{}, fmt.Errorf("save briefing: %w", err)
	}

	saved, err := s.briefingWhere(ctx, `week_start = ?`, b.WeekStart)
	if err != nil {
		return models.Briefing{}, err
	}
	if saved == nil {
		return models.Briefing{}, ErrNotFound
	}
	return *saved, nil
}

func (s *SQLiteStore) LatestBriefing(ctx context.Context) (*models.Briefing, error) {
	return s.briefingWhere(ctx, `1=1`)
}

// SetRecommendationStatus flips one recommendation inside the stored
// briefing JSON and returns the updated record.
func (s *SQLiteStore) SetRecommendationStatus(ctx context.Context, briefingID string, index int, status string) (*models.Briefing, error) {
	b, err := s.briefingWhere(ctx, `id = ?`, briefingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	if index < 0 || index >= len(b.Recommendations) {
		return nil, ErrNotFound
	}
	b.Recommendations[index].Status = status
	recs, _ := json.Marshal(b.Recommendations)
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE weekly_briefings SET recommendations = ?, updated_at = ? WHERE id = ?`,
		string(recs), now.Format(time.RFC3339), briefingID)
	if err != nil {
		return nil, fmt.Errorf("update recommendations: %w", err)
	}
	b.UpdatedAt = now
	return b, nil
}

func (s *SQLiteStore) briefingWhere(ctx context.Context, where string, args ...any) (*models.Briefing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, week_start, week_end, summary, highlights,
		insights, kpi_comparisons, recommendations, status, raw_payload, published_at,
		created_at, updated_at
		FROM weekly_briefings WHERE `+where+` ORDER BY week_start DESC LIMIT 1`, args...)

	var (
		b                                 models.Briefing
		highlights, insights, comps, recs string
		raw                               string
		publishedAt                       sql.NullString
		createdAt, updatedAt              string
	)
	err := row.Scan(&b.ID, &b.WeekStart, &b.WeekEnd, &b.Summary, &highlights,
		&insights, &comps, &recs, &b.Status, &raw, &publishedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan briefing: %w", err)
	}
	json.Unmarshal([]byte(highlights), &b.Highlights)
	json.Unmarshal([]byte(insights), &b.Insights)
	json.Unmarshal([]byte(comps), &b.KPIComparisons)
	json.Unmarshal([]byte(recs), &b.Recommendations)
	json.Unmarshal([]byte(raw), &b.RawPayload)
	if publishedAt.Valid {
		if t, err := time.Parse(time.RFC3339, publishedAt.String); err == nil {
			b.PublishedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		b.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		b.UpdatedAt = t
	}
	return &b, nil
}

func (s *SQLiteStore) InsertEvent(ctx context.Context, e models.LogEvent) (models.LogEvent, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.CreatedBy == "" {
		e.CreatedBy = "System"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO events
		(id, type, campaign_id, description, value, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.CampaignID, e.Description, e.Value, e.CreatedBy,
		e.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return models.LogEvent{}, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

// ListEvents returns the journal newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context) ([]models.LogEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, campaign_id, description, value,
		created_by, created_at FROM events ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []models.LogEvent{}
	for rows.Next() {
		var (
			e          models.LogEvent
			campaignID sql.NullString
			value      sql.NullFloat64
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.Type, &campaignID, &e.Description, &value,
			&e.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CampaignID = nullableString(campaignID)
		if value.Valid {
			v := value.Float64
			e.Value = &v
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableString(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func emptyMapIfNil(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v
}
