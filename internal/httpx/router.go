package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kpiboard/kpiboard/internal/dash"
	"github.com/kpiboard/kpiboard/internal/ingest"
	"github.com/kpiboard/kpiboard/internal/models"
	"github.com/kpiboard/kpiboard/internal/store"
	"github.com/kpiboard/kpiboard/internal/utils"
)

// Pinger is the readiness check against the row store.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(log *slog.Logger, ds *dash.Service, ing *ingest.Handler, db Pinger) http.Handler {
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))
	mux.Use(utils.Metrics)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.Post("/api/ingest", ing.Ingest)

	mux.Get("/api/alltime", func(w http.ResponseWriter, r *http.Request) {
		view, err := ds.AllTime(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, view)
	})

	mux.Get("/api/weekly", func(w http.ResponseWriter, r *http.Request) {
		view, err := ds.Weekly(r.Context(), filterFromQuery(r.URL.Query()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, view)
	})

	mux.Get("/api/deepdive", func(w http.ResponseWriter, r *http.Request) {
		view, err := ds.DeepDive(r.Context(), filterFromQuery(r.URL.Query()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, view)
	})

	mux.Get("/api/daily", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := atoiDef(q.Get("limit"), 0)
		offset := atoiDef(q.Get("offset"), 0)
		view, err := ds.Daily(r.Context(), filterFromQuery(q), limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, view)
	})

	mux.Get("/api/campaigns", func(w http.ResponseWriter, r *http.Request) {
		options, err := ds.Campaigns(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, options)
	})

	mux.Get("/api/briefings/latest", func(w http.ResponseWriter, r *http.Request) {
		b, err := ds.LatestBriefing(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if b == nil {
			http.Error(w, "no briefing yet", http.StatusNotFound)
			return
		}
		writeJSON(w, b)
	})

	mux.Patch("/api/briefings/{id}/recommendations/{index}", func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			http.Error(w, "bad recommendation index", http.StatusBadRequest)
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !models.ValidRecommendationStatus(body.Status) {
			http.Error(w, "status must be pending, approved or rejected", http.StatusBadRequest)
			return
		}
		b, err := ds.SetRecommendationStatus(r.Context(), chi.URLParam(r, "id"), index, body.Status)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "briefing or recommendation not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, b)
	})

	mux.Get("/api/events", func(w http.ResponseWriter, r *http.Request) {
		events, err := ds.Events(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, events)
	})

	mux.Post("/api/events", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Type        string   `json:"type"`
			CampaignID  *string  `json:"campaign_id"`
			Description string   `json:"description"`
			Value       *float64 `json:"value"`
			CreatedBy   string   `json:"created_by"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if !models.ValidEventType(body.Type) {
			http.Error(w, "unknown event type", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Description) == "" {
			http.Error(w, "description required", http.StatusBadRequest)
			return
		}
		saved, err := ds.AddEvent(r.Context(), models.LogEvent{
			Type:        body.Type,
			CampaignID:  body.CampaignID,
			Description: strings.TrimSpace(body.Description),
			Value:       body.Value,
			CreatedBy:   body.CreatedBy,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSONStatus(w, http.StatusCreated, saved)
	})

	return mux
}

// filterFromQuery reads from/to (YYYY-MM-DD, defaulting to the last seven
// days) and an optional campaign_id CSV. The caller owns filter state;
// the engine only ever sees the resolved value.
func filterFromQuery(v url.Values) models.Filter {
	to := time.Now().UTC().Truncate(24 * time.Hour)
	if t, err := time.Parse("2006-01-02", v.Get("to")); err == nil {
		to = t
	}
	from := to.AddDate(0, 0, -6)
	if t, err := time.Parse("2006-01-02", v.Get("from")); err == nil {
		from = t
	}
	return models.Filter{From: from, To: to, CampaignIDs: csvList(v.Get("campaign_id"))}
}

func csvList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
