// Package ingest accepts pushed KPI batches: an array of per-day fact
// rows plus an optional weekly briefing, validated field by field before
// anything reaches the store. Malformed rows are dropped, not fatal; the
// aggregation core only ever sees rows that passed this boundary.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kpiboard/kpiboard/internal/models"
)

// Sink is the write half of the row store.
type Sink interface {
	UpsertFacts(ctx context.Context, rows []models.FactRow) (int, error)
	SaveBriefing(ctx context.Context, b models.Briefing) (models.Briefing, error)
}

type Handler struct {
	sink  Sink
	token string
	log   *slog.Logger
}

// NewHandler wires the ingest endpoint. An empty token disables auth
// (local development); otherwise the bearer token must match.
func NewHandler(sink Sink, token string, log *slog.Logger) *Handler {
	return &Handler{sink: sink, token: token, log: log}
}

// ingestPayload mirrors the automation webhook contract. Field names are
// camelCase on the wire.
type ingestPayload struct {
	DailyMetrics   []json.RawMessage `json:"dailyMetrics"`
	WeeklyBriefing json.RawMessage   `json:"weeklyBriefing"`
}

type dailyMetricPayload struct {
	Date         string   `json:"date"`
	CampaignID   string   `json:"campaignId"`
	CreativeID   *string  `json:"creativeId"`
	CampaignName *string  `json:"campaignName"`
	CreativeName *string  `json:"creativeName"`
	Impressions  *float64 `json:"impressions"`
	Clicks       *float64 `json:"clicks"`
	Cost         *float64 `json:"cost"`
	Leads        *float64 `json:"leads"`
	CTR          *float64 `json:"ctr"`
	CPC          *float64 `json:"cpc"`
	CPM          *float64 `json:"cpm"`
	CVR          *float64 `json:"cvr"`
	CPL          *float64 `json:"cpl"`
}

type briefingPayload struct {
	WeekStart       string            `json:"weekStart"`
	WeekEnd         string            `json:"weekEnd"`
	Summary         string            `json:"summary"`
	Highlights      []any             `json:"highlights"`
	Insights        []any             `json:"insights"`
	KPIComparisons  map[string]any    `json:"kpiComparisons"`
	Recommendations []json.RawMessage `json:"recommendations"`
	Status          string            `json:"status"`
}

type recommendationPayload struct {
	ID        string  `json:"id"`
	Action    *string `json:"action"`
	Reasoning *string `json:"reasoning"`
	Impact    string  `json:"impact"`
	Status    string  `json:"status"`
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.token != "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) != h.token {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	var payload ingestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	rows, dropped := parseDailyMetrics(payload.DailyMetrics)
	briefing := parseBriefing(payload.WeeklyBriefing)

	if len(rows) == 0 && briefing == nil {
		writeJSONError(w, http.StatusBadRequest, "Nothing to ingest")
		return
	}

	results := map[string]any{"status": "ok"}

	if len(rows) > 0 {
		n, err := h.sink.UpsertFacts(r.Context(), rows)
		if err != nil {
			h.log.Error("persist daily metrics", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "Failed to persist daily metrics")
			return
		}
		h.log.Info("daily metrics ingested", slog.Int("received", n), slog.Int("dropped", dropped))
		results["dailyMetrics"] = map[string]int{"received": n, "dropped": dropped}
	}

	if briefing != nil {
		saved, err := h.sink.SaveBriefing(r.Context(), *briefing)
		if err != nil {
			h.log.Error("persist weekly briefing", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "Failed to persist weekly briefing")
			return
		}
		results["weeklyBriefing"] = saved
	}

	writeJSON(w, http.StatusOK, results)
}

// parseDailyMetrics keeps rows whose required fields are all present and
// well formed; everything else is counted and dropped. Negative counters
// are clamped to zero. Payload-supplied ratio fields are required by the
// contract but not trusted: stored rates are re-derived from the sums.
func parseDailyMetrics(items []json.RawMessage) ([]models.FactRow, int) {
	rows := make([]models.FactRow, 0, len(items))
	dropped := 0
	now := time.Now().UTC()
	for _, raw := range items {
		var p dailyMetricPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			dropped++
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(p.Date))
		if err != nil || strings.TrimSpace(p.CampaignID) == "" ||
			anyNil(p.Impressions, p.Clicks, p.Cost, p.Leads, p.CTR, p.CPC, p.CPM, p.CVR, p.CPL) {
			dropped++
			continue
		}
		rows = append(rows, models.FactRow{
			Date:         date,
			CampaignID:   strings.TrimSpace(p.CampaignID),
			CampaignName: trimmed(p.CampaignName),
			CreativeID:   trimmed(p.CreativeID),
			CreativeName: trimmed(p.CreativeName),
			Impressions:  count(*p.Impressions),
			Clicks:       count(*p.Clicks),
			Cost:         amount(*p.Cost),
			Leads:        count(*p.Leads),
			UpdatedAt:    now,
		})
	}
	return rows, dropped
}

// parseBriefing returns nil unless weekStart, weekEnd and summary are all
// present. Recommendations with an unknown impact are discarded; unknown
// statuses default to pending. Only an explicit "published" publishes.
func parseBriefing(raw json.RawMessage) *models.Briefing {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var p briefingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	if p.WeekStart == "" || p.WeekEnd == "" || p.Summary == "" {
		return nil
	}

	recs := []models.Recommendation{}
	for _, rawRec := range p.Recommendations {
		var rp recommendationPayload
		if err := json.Unmarshal(rawRec, &rp); err != nil {
			continue
		}
		if rp.Action == nil || rp.Reasoning == nil || !models.ValidImpact(rp.Impact) {
			continue
		}
		status := rp.Status
		if !models.ValidRecommendationStatus(status) {
			status = models.RecommendationPending
		}
		recs = append(recs, models.Recommendation{
			ID:        rp.ID,
			Action:    *rp.Action,
			Reasoning: *rp.Reasoning,
			Impact:    rp.Impact,
			Status:    status,
		})
	}

	status := models.BriefingDraft
	if p.Status == models.BriefingPublished {
		status = models.BriefingPublished
	}

	var rawPayload map[string]any
	json.Unmarshal(raw, &rawPayload)

	return &models.Briefing{
		WeekStart:       p.WeekStart,
		WeekEnd:         p.WeekEnd,
		Summary:         p.Summary,
		Highlights:      stringsOnly(p.Highlights),
		Insights:        stringsOnly(p.Insights),
		KPIComparisons:  p.KPIComparisons,
		Recommendations: recs,
		Status:          status,
		RawPayload:      rawPayload,
	}
}

func stringsOnly(items []any) []string {
	out := []string{}
	for _, v := range items {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func anyNil(vs ...*float64) bool {
	for _, v := range vs {
		if v == nil {
			return true
		}
	}
	return false
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// count converts a payload number to a counter. Values beyond the int
// range are clamped: int(f) is unspecified when f does not fit.
func count(f float64) int {
	if f < 0 {
		return 0
	}
	if f >= float64(math.MaxInt) {
		return math.MaxInt
	}
	return int(f)
}

func amount(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
